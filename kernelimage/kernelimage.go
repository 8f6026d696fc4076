// Package kernelimage parses the 64-byte ARM64 Linux Image header, per
// Documentation/arm64/booting.rst: validate the magic, then derive the
// effective load offset.
package kernelimage

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed size of the ARM64 Image header.
const HeaderSize = 64

// magic is "ARM\x64" read as a little-endian uint32.
const magic = 0x644d5241

// defaultTextOffset is used when the header's text_offset is zero and the
// kernel does not advertise position independence.
const defaultTextOffset = 0x80000

// Flag bits within Header.Flags.
const flagPositionIndependent = 1 << 3

var (
	// ErrTooSmall is returned when the supplied bytes are shorter than
	// HeaderSize.
	ErrTooSmall = errors.New("kernelimage: image shorter than header size")

	// ErrBadMagic is returned when the magic field does not read "ARM\x64".
	ErrBadMagic = errors.New("kernelimage: bad magic, not an arm64 Image")
)

// Header is the parsed form of the ARM64 Image header.
type Header struct {
	Code0      uint32
	Code1      uint32
	TextOffset uint64
	ImageSize  uint64
	Flags      uint64
	Magic      uint32

	// EffectiveTextOffset is TextOffset as derived per §3: zero replaced
	// with defaultTextOffset unless the position-independent flag is set.
	EffectiveTextOffset uint64
}

// Parse validates and parses the header at the start of image.
func Parse(image []byte) (Header, error) {
	if len(image) < HeaderSize {
		return Header{}, ErrTooSmall
	}

	h := Header{
		Code0:      binary.LittleEndian.Uint32(image[0:4]),
		Code1:      binary.LittleEndian.Uint32(image[4:8]),
		TextOffset: binary.LittleEndian.Uint64(image[8:16]),
		ImageSize:  binary.LittleEndian.Uint64(image[16:24]),
		Flags:      binary.LittleEndian.Uint64(image[24:32]),
		Magic:      binary.LittleEndian.Uint32(image[56:60]),
	}

	if h.Magic != magic {
		return Header{}, ErrBadMagic
	}

	h.EffectiveTextOffset = h.TextOffset

	if h.TextOffset == 0 {
		if h.Flags&flagPositionIndependent != 0 {
			h.EffectiveTextOffset = 0
		} else {
			h.EffectiveTextOffset = defaultTextOffset
		}
	}

	return h, nil
}
