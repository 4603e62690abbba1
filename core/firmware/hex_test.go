package firmware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record formats one Intel HEX record with a valid checksum.
func record(addr uint16, typ byte, data ...byte) string {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + typ
	var sb strings.Builder
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(data), addr, typ)
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
		sum += b
	}
	fmt.Fprintf(&sb, "%02X", byte(-int8(sum)))
	return sb.String()
}

func hexText(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

var eofRecord = record(0, 0x01)

func TestRecordHelper(t *testing.T) {
	assert.Equal(t, ":00000001FF", eofRecord)
	assert.Equal(t, ":020000040001F9", record(0, 0x04, 0x00, 0x01))
}

func TestParseHex_ExtendedLinearAddress(t *testing.T) {
	text := hexText(
		record(0, 0x04, 0x00, 0x01),
		record(0x0010, 0x00, 0xAB, 0xCD),
		eofRecord,
	)

	img, err := ParseHex(strings.NewReader(text), 0x10100)
	require.NoError(t, err)

	assert.Equal(t, byte(0xAB), img.At(0x10010))
	assert.Equal(t, byte(0xCD), img.At(0x10011))
	for addr, b := range img.Bytes() {
		if addr == 0x10010 || addr == 0x10011 {
			continue
		}
		if b != ErasedValue {
			t.Fatalf("byte at 0x%X = 0x%02X, want erased", addr, b)
		}
	}
}

func TestParseHex_DefaultCapacity(t *testing.T) {
	img, err := ParseHex(strings.NewReader(hexText(eofRecord)), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, img.Capacity())
	assert.True(t, img.IsErased())
}

func TestParseHex_ReservedTrailerIsNotWritten(t *testing.T) {
	// capacity 0x100: writable region ends at 0xC0
	text := hexText(
		record(0x00BE, 0x00, 0x11, 0x22, 0x33, 0x44),
		eofRecord,
	)

	img, err := ParseHex(strings.NewReader(text), 0x100)
	require.NoError(t, err)

	assert.Equal(t, byte(0x11), img.At(0xBE))
	assert.Equal(t, byte(0x22), img.At(0xBF))
	assert.Equal(t, byte(ErasedValue), img.At(0xC0))
	assert.Equal(t, byte(ErasedValue), img.At(0xC1))
}

func TestParseHex_OutOfRangeDataDropped(t *testing.T) {
	text := hexText(
		record(0, 0x04, 0x00, 0x05),
		record(0x0000, 0x00, 0x01),
		eofRecord,
	)

	img, err := ParseHex(strings.NewReader(text), DefaultCapacity)
	require.NoError(t, err)
	assert.True(t, img.IsErased())
}

func TestParseHex_StopsAtEndOfFile(t *testing.T) {
	text := hexText(
		record(0x0000, 0x00, 0x01),
		eofRecord,
		record(0x0001, 0x00, 0x02),
	)

	img, err := ParseHex(strings.NewReader(text), DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), img.At(0))
	assert.Equal(t, byte(ErasedValue), img.At(1))
}

func TestParseHex_Permissive(t *testing.T) {
	text := strings.Join([]string{
		"; comment line",
		"",
		record(0x0000, 0x00, 0x01, 0x02),
		":0Z000000AA",   // bad count
		":01000000",     // truncated data
		":0100030055FF", // bad checksum is not checked
		// segment address records are ignored
		record(0x0004, 0x02, 0x10, 0x00),
		record(0x0008, 0x00, 0x08),
		eofRecord,
	}, "\r\n")

	img, err := ParseHex(strings.NewReader(text), DefaultCapacity)
	require.NoError(t, err)

	assert.Equal(t, byte(0x01), img.At(0))
	assert.Equal(t, byte(0x02), img.At(1))
	assert.Equal(t, byte(0x55), img.At(3))
	assert.Equal(t, byte(0x08), img.At(8))
}

func TestParseHex_TruncatedDataRecordKeepsPrefix(t *testing.T) {
	// claims 4 bytes, carries 2
	img, err := ParseHex(strings.NewReader(":04001000AABB\n"), DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), img.At(0x10))
	assert.Equal(t, byte(0xBB), img.At(0x11))
	assert.Equal(t, byte(ErasedValue), img.At(0x12))
}

func TestParseHex_Strict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		text := hexText(
			record(0, 0x04, 0x00, 0x01),
			record(0x0010, 0x00, 0xAB, 0xCD),
			eofRecord,
		)
		img, err := ParseHex(strings.NewReader(text), 0x10100, Strict())
		require.NoError(t, err)
		assert.Equal(t, byte(0xAB), img.At(0x10010))
		assert.Equal(t, byte(0xCD), img.At(0x10011))
	})

	t.Run("bad checksum", func(t *testing.T) {
		text := hexText(":0100030055FF", eofRecord)
		_, err := ParseHex(strings.NewReader(text), DefaultCapacity, Strict())
		require.Error(t, err)

		var perr *ParseError
		assert.True(t, errors.As(err, &perr))
	})
}

func TestParseHex_InvalidCapacity(t *testing.T) {
	_, err := ParseHex(strings.NewReader(""), ReservedSize)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestParseHex_ReadFailure(t *testing.T) {
	img, err := ParseHex(failingReader{}, DefaultCapacity)
	assert.Nil(t, img)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestParseHexFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(path, []byte(hexText(record(0x0020, 0x00, 0x42), eofRecord)), 0o600))

	img, err := ParseHexFile(path, DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), img.At(0x20))

	_, err = ParseHexFile(filepath.Join(t.TempDir(), "missing.hex"), DefaultCapacity)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
