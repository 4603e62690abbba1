// Package codec encodes and decodes the byte frames exchanged with the APOX
// USB-CAN board.
//
// Every frame on the USB link is wrapped as
//
//	DLE STX <payload> <checksum> DLE ETX
//
// where any DLE inside the payload or checksum is doubled and the checksum is
// the XOR of all payload bytes. The payload is either a board message (first
// byte 0x00 or 0xFF) or a CAN-bus message.
package codec

import (
	"errors"
	"fmt"
)

const (
	// DLE is the data link escape byte.
	DLE = 0x10
	// STX starts a frame after DLE.
	STX = 0x02
	// ETX ends a frame after DLE.
	ETX = 0x03

	// MaxFramePayload is the largest payload the decoder will buffer.
	MaxFramePayload = 32768
)

var (
	ErrExpectingDLE     = errors.New("expecting a DLE byte")
	ErrExpectingSTX     = errors.New("expecting a STX byte")
	ErrExpectingETX     = errors.New("expecting a ETX byte or content byte")
	ErrChecksumMismatch = errors.New("bad frame checksum")
	ErrFrameOverflow    = errors.New("frame exceeds buffer size")
	ErrEmptyFrame       = errors.New("empty frame")
)

// FrameError wraps a decoding error with the offending byte.
type FrameError struct {
	Err  error
	Byte byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: dropping byte 0x%02X", e.Err, e.Byte)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Checksum returns the XOR of all bytes in data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// EncodeFrame wraps payload in a DLE/STX ... DLE/ETX frame with byte stuffing
// and an XOR checksum.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)*2+6)
	frame = append(frame, DLE, STX)
	for _, b := range payload {
		if b == DLE {
			frame = append(frame, DLE)
		}
		frame = append(frame, b)
	}
	sum := Checksum(payload)
	if sum == DLE {
		frame = append(frame, DLE)
	}
	frame = append(frame, sum, DLE, ETX)
	return frame
}

type decodeState int

const (
	stateIdle decodeState = iota
	stateStart
	stateContent
	stateContentDLE
)

// FrameDecoder reassembles frames from a byte stream. It is not safe for
// concurrent use.
type FrameDecoder struct {
	state decodeState
	buf   []byte
	sum   byte
}

// NewFrameDecoder returns a decoder waiting for the start of a frame.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{buf: make([]byte, 0, 64)}
}

// Reset discards any partially received frame.
func (d *FrameDecoder) Reset() {
	d.state = stateIdle
	d.buf = d.buf[:0]
	d.sum = 0
}

// DecodeByte feeds one byte into the decoder. It returns the frame payload
// (checksum stripped) when b completes a valid frame. A non-nil error means
// the byte was dropped and the decoder is waiting for the next DLE.
func (d *FrameDecoder) DecodeByte(b byte) ([]byte, error) {
	switch d.state {
	case stateIdle:
		if b == DLE {
			d.state = stateStart
			d.buf = d.buf[:0]
			d.sum = 0
			return nil, nil
		}
		// The board emits a lone 0xFF after a reset or a code switch.
		if b == 0xFF {
			return nil, nil
		}
		return nil, &FrameError{Err: ErrExpectingDLE, Byte: b}

	case stateStart:
		if b == STX {
			d.state = stateContent
			return nil, nil
		}
		d.state = stateIdle
		return nil, &FrameError{Err: ErrExpectingSTX, Byte: b}

	case stateContent:
		if b == DLE {
			d.state = stateContentDLE
			return nil, nil
		}
		return nil, d.appendByte(b)

	case stateContentDLE:
		switch b {
		case ETX:
			d.state = stateIdle
			if d.sum != 0 {
				return nil, &FrameError{Err: ErrChecksumMismatch, Byte: b}
			}
			if len(d.buf) == 0 {
				return nil, &FrameError{Err: ErrEmptyFrame, Byte: b}
			}
			payload := make([]byte, len(d.buf)-1)
			copy(payload, d.buf)
			return payload, nil
		case STX:
			d.state = stateIdle
			return nil, &FrameError{Err: ErrExpectingETX, Byte: b}
		default:
			d.state = stateContent
			return nil, d.appendByte(b)
		}
	}
	return nil, nil
}

func (d *FrameDecoder) appendByte(b byte) error {
	if len(d.buf) >= MaxFramePayload {
		d.state = stateIdle
		return &FrameError{Err: ErrFrameOverflow, Byte: b}
	}
	d.buf = append(d.buf, b)
	d.sum ^= b
	return nil
}

// Decode feeds data into the decoder and returns every frame it completes.
// Decoding errors are passed to onErr, which may be nil.
func (d *FrameDecoder) Decode(data []byte, onErr func(error)) [][]byte {
	var frames [][]byte
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}
