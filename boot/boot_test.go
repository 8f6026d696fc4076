package boot_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/boot"
	"github.com/bobuhiro11/gokvm-arm64/memory"
)

func buildImage(t *testing.T, textOffset uint64, size int) []byte {
	t.Helper()

	img := make([]byte, size)
	binary.LittleEndian.PutUint64(img[8:16], textOffset)
	binary.LittleEndian.PutUint32(img[56:60], 0x644d5241)

	return img
}

func TestPlaceImagesWithInitrd(t *testing.T) {
	t.Parallel()

	region, err := memory.NewForTest(boot.RAMBase, 512<<20)
	if err != nil {
		t.Fatal(err)
	}

	kernelImg := buildImage(t, 0x80000, 0x10000)
	initrd := bytes.Repeat([]byte{0xCD}, 0x1000)
	dtbBytes := []byte("fakedtb")

	info, err := boot.PlaceImages(region, kernelImg, initrd, dtbBytes)
	if err != nil {
		t.Fatal(err)
	}

	wantKernelAddr := boot.RAMBase + 0x80000
	if info.KernelAddr != wantKernelAddr {
		t.Fatalf("KernelAddr = %#x, want %#x", info.KernelAddr, wantKernelAddr)
	}

	wantInitrdAddr := boot.RAMBase + (128 << 20)
	if info.InitrdAddr != wantInitrdAddr {
		t.Fatalf("InitrdAddr = %#x, want %#x", info.InitrdAddr, wantInitrdAddr)
	}

	if info.DTBAddr < info.InitrdEnd {
		t.Fatalf("DTBAddr %#x must come after InitrdEnd %#x", info.DTBAddr, info.InitrdEnd)
	}

	if info.DTBAddr%0x1000 != 0 {
		t.Fatalf("DTBAddr %#x is not page-aligned", info.DTBAddr)
	}

	got := make([]byte, len(dtbBytes))
	if _, err := region.ReadAt(got, int64(info.DTBAddr)); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, dtbBytes) {
		t.Fatalf("dtb bytes at DTBAddr = %q, want %q", got, dtbBytes)
	}
}

func TestPlaceImagesWithoutInitrd(t *testing.T) {
	t.Parallel()

	region, err := memory.NewForTest(boot.RAMBase, 64<<20)
	if err != nil {
		t.Fatal(err)
	}

	kernelImg := buildImage(t, 0x80000, 0x10000)

	info, err := boot.PlaceImages(region, kernelImg, nil, []byte("dtb"))
	if err != nil {
		t.Fatal(err)
	}

	if info.InitrdAddr != 0 || info.InitrdEnd != 0 {
		t.Fatalf("expected no initrd placement, got addr=%#x end=%#x", info.InitrdAddr, info.InitrdEnd)
	}

	if info.DTBAddr < info.KernelAddr+uint64(len(kernelImg)) {
		t.Fatalf("DTBAddr %#x must come after the kernel image", info.DTBAddr)
	}
}

func TestPlaceImagesBadMagic(t *testing.T) {
	t.Parallel()

	region, err := memory.NewForTest(boot.RAMBase, 16<<20)
	if err != nil {
		t.Fatal(err)
	}

	bad := make([]byte, 0x100)

	if _, err := boot.PlaceImages(region, bad, nil, nil); err == nil {
		t.Fatal("want error for bad kernel magic, got nil")
	}
}
