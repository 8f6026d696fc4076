package device_test

import (
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/device"
)

type fakeDevice struct {
	base, size uint64
	reads      int
	writes     int
}

func (f *fakeDevice) Base() uint64 { return f.base }
func (f *fakeDevice) Size() uint64 { return f.size }

func (f *fakeDevice) Read(addr uint64, data []byte) error {
	f.reads++
	data[0] = 0x42

	return nil
}

func (f *fakeDevice) Write(addr uint64, data []byte) error {
	f.writes++

	return nil
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	r := device.NewRegistry()
	d := &fakeDevice{base: 0x1000, size: 0x200}
	r.Register(d)

	data := make([]byte, 1)
	if err := r.Read(0x1050, data); err != nil {
		t.Fatal(err)
	}

	if data[0] != 0x42 || d.reads != 1 {
		t.Fatalf("Read did not reach device: data=%v reads=%d", data, d.reads)
	}

	if err := r.Write(0x1050, data); err != nil {
		t.Fatal(err)
	}

	if d.writes != 1 {
		t.Fatalf("Write did not reach device: writes=%d", d.writes)
	}
}

func TestRegistryUnmappedReadsZero(t *testing.T) {
	t.Parallel()

	r := device.NewRegistry()

	data := []byte{0xAA, 0xBB}
	if err := r.Read(0xdeadbeef, data); err != nil {
		t.Fatal(err)
	}

	for _, b := range data {
		if b != 0 {
			t.Fatalf("unmapped read = %v, want all zero", data)
		}
	}
}

func TestRegistryUnmappedWriteIgnored(t *testing.T) {
	t.Parallel()

	r := device.NewRegistry()

	if err := r.Write(0xdeadbeef, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
}
