// Package firmware builds the flash image for the APOX USB-CAN bootloader
// from an Intel HEX file and slices it into the bootloader's write packets.
//
// The image is a flat byte buffer pre-filled with the erased-flash value
// 0xFF. The last 64 bytes are reserved for the bootloader's trailer and are
// never written from firmware data. Packetizing walks the image in 64-byte
// windows and skips windows that are entirely erased.
package firmware

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultCapacity is the flash size of the reference board.
	DefaultCapacity = 0x10000

	// ErasedValue is the content of unprogrammed flash.
	ErasedValue = 0xFF

	// ReservedSize is the number of bytes at the top of the image that
	// firmware data may not overwrite.
	ReservedSize = 64
)

var ErrInvalidCapacity = errors.New("invalid image capacity")

// Image is a flat flash image addressed 0..Capacity()-1.
type Image struct {
	data []byte
}

// NewImage returns an erased image of the given size. A capacity of zero
// selects DefaultCapacity.
func NewImage(capacity int) (*Image, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity <= ReservedSize {
		return nil, fmt.Errorf("%w: %d bytes (must exceed %d)", ErrInvalidCapacity, capacity, ReservedSize)
	}
	data := make([]byte, capacity)
	for i := range data {
		data[i] = ErasedValue
	}
	return &Image{data: data}, nil
}

// Capacity returns the image size in bytes.
func (img *Image) Capacity() int {
	return len(img.data)
}

// WritableLimit returns the first address that firmware data may not write.
func (img *Image) WritableLimit() int {
	return len(img.data) - ReservedSize
}

// Bytes returns the image contents. The slice aliases the image.
func (img *Image) Bytes() []byte {
	return img.data
}

// At returns the byte at addr.
func (img *Image) At(addr int) byte {
	return img.data[addr]
}

// Set writes b at addr if addr is inside the writable region. It reports
// whether the byte was written.
func (img *Image) Set(addr uint32, b byte) bool {
	if uint64(addr) >= uint64(img.WritableLimit()) {
		return false
	}
	img.data[addr] = b
	return true
}

// IsErased reports whether every byte of the image is ErasedValue.
func (img *Image) IsErased() bool {
	return isErased(img.data)
}

// Digest returns the hex BLAKE2b-256 digest of the image contents.
func (img *Image) Digest() string {
	sum := blake2b.Sum256(img.data)
	return hex.EncodeToString(sum[:])
}

func isErased(data []byte) bool {
	for _, b := range data {
		if b != ErasedValue {
			return false
		}
	}
	return true
}
