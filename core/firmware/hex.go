package firmware

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/marcinbor85/gohex"
)

// Intel HEX record types handled by the parser.
const (
	RecordData                  = "00"
	RecordEndOfFile             = "01"
	RecordExtendedLinearAddress = "04"
)

const (
	// recordDataOffset is the index of the first data character: ':' + count(2) + address(4) + type(2).
	recordDataOffset = 9
)

// ParseError reports an Intel HEX stream rejected in strict mode.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid intel hex: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type parseConfig struct {
	strict bool
}

// ParseOption configures ParseHex.
type ParseOption func(*parseConfig)

// Strict validates the whole stream, including record checksums, before
// building the image. Any malformed record fails the parse.
func Strict() ParseOption {
	return func(c *parseConfig) {
		c.strict = true
	}
}

// ParseHexFile reads an Intel HEX file into an image of the given capacity.
//
// Example:
//
//	img, err := firmware.ParseHexFile("usbcan4_4_1.HEX", firmware.DefaultCapacity)
//	if err != nil {
//	    log.Fatal(err)
//	}
func ParseHexFile(path string, capacity int, opts ...ParseOption) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseHex(f, capacity, opts...)
}

// ParseHex reads Intel HEX text from r into an image of the given capacity.
//
// By default the parser is permissive: lines not starting with ':' are
// ignored, malformed records are skipped, checksums are not verified, and
// data outside the writable region is dropped. Only data (00), end of file
// (01) and extended linear address (04) records have an effect. Processing
// stops at the first end of file record.
//
// If r cannot be read the parse fails and no image is returned.
func ParseHex(r io.Reader, capacity int, opts ...ParseOption) (*Image, error) {
	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	img, err := NewImage(capacity)
	if err != nil {
		return nil, err
	}

	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read hex data: %w", err)
	}

	if cfg.strict {
		if err := loadStrict(img, text); err != nil {
			return nil, err
		}
		return img, nil
	}

	loadPermissive(img, string(text))
	return img, nil
}

func loadPermissive(img *Image, text string) {
	var extended uint32
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, ":") || len(line) < recordDataOffset {
			continue
		}

		count, err := parseHexField(line[1:3])
		if err != nil {
			continue
		}
		address, err := parseHexField(line[3:7])
		if err != nil {
			continue
		}

		switch line[7:9] {
		case RecordData:
			for pos := uint32(0); pos < count; pos++ {
				off := recordDataOffset + int(pos)*2
				if off+2 > len(line) {
					break
				}
				b, err := parseHexField(line[off : off+2])
				if err != nil {
					break
				}
				img.Set(extended<<16|(address+pos), byte(b))
			}
		case RecordExtendedLinearAddress:
			if len(line) < recordDataOffset+4 {
				continue
			}
			v, err := parseHexField(line[recordDataOffset : recordDataOffset+4])
			if err != nil {
				continue
			}
			extended = v
		case RecordEndOfFile:
			return
		}
	}
}

func parseHexField(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

func loadStrict(img *Image, text []byte) error {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(text)); err != nil {
		return &ParseError{Err: err}
	}
	for _, seg := range mem.GetDataSegments() {
		for i, b := range seg.Data {
			img.Set(seg.Address+uint32(i), b)
		}
	}
	return nil
}
