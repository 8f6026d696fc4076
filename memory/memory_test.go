package memory_test

import (
	"bytes"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/memory"
)

// newFakeRegion lets tests exercise the ReadAt/WriteAt/Slice/LoadFile logic
// without a real VM fd, by building a Region through memory.NewForTest, a
// helper constructor used only in tests.
func newFakeRegion(t *testing.T, base uint64, size int) *memory.Region {
	t.Helper()

	r, err := memory.NewForTest(base, size)
	if err != nil {
		t.Fatal(err)
	}

	return r
}

func TestReadWriteAt(t *testing.T) {
	t.Parallel()

	r := newFakeRegion(t, 0x1000, 0x10000)

	want := []byte("hello, guest")
	if _, err := r.WriteAt(want, 0x1100); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(want))
	if _, err := r.ReadAt(got, 0x1100); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("ReadAt = %q, want %q", got, want)
	}
}

func TestReadAtOutOfRange(t *testing.T) {
	t.Parallel()

	r := newFakeRegion(t, 0x1000, 0x10000)

	if _, err := r.ReadAt(make([]byte, 4), 0); err == nil {
		t.Fatal("want error reading before base, got nil")
	}

	if _, err := r.ReadAt(make([]byte, 4), 0x20000); err == nil {
		t.Fatal("want error reading past end, got nil")
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	r := newFakeRegion(t, 0x1000, 0x10000)

	payload := bytes.Repeat([]byte{0xAB}, 37)

	n, err := r.LoadFile(0x1000, bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}

	if n != len(payload) {
		t.Fatalf("LoadFile wrote %d bytes, want %d", n, len(payload))
	}

	got := make([]byte, len(payload))
	if _, err := r.ReadAt(got, 0x1000); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("loaded bytes mismatch")
	}
}
