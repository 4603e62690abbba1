package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{
			name:    "board command",
			payload: []byte{0x00, 0xC3},
			want:    []byte{DLE, STX, 0x00, 0xC3, 0xC3, DLE, ETX},
		},
		{
			name:    "stuffed DLE in payload",
			payload: []byte{0x01, DLE, 0x02},
			want:    []byte{DLE, STX, 0x01, DLE, DLE, 0x02, 0x13, DLE, ETX},
		},
		{
			name:    "stuffed DLE checksum",
			payload: []byte{0x11, 0x01},
			want:    []byte{DLE, STX, 0x11, 0x01, DLE, DLE, DLE, ETX},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeFrame(tt.payload)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeFrame() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeFrame(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "single byte", payload: []byte{0x42}},
		{name: "board response", payload: []byte{0x00, 0x80, 0xCC}},
		{name: "all DLE", payload: []byte{DLE, DLE, DLE}},
		{name: "contains ETX and STX", payload: []byte{STX, ETX, DLE, ETX}},
		{name: "write packet", payload: bytes.Repeat([]byte{0xA5}, 66)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewFrameDecoder()
			frames := d.Decode(EncodeFrame(tc.payload), func(err error) {
				t.Errorf("unexpected decode error: %v", err)
			})
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if !bytes.Equal(frames[0], tc.payload) {
				t.Errorf("decoded payload = % X, want % X", frames[0], tc.payload)
			}
		})
	}
}

func TestFrameDecoder_IncrementalAssembly(t *testing.T) {
	payload := []byte{0x00, 0x80, 0x55}
	frame := EncodeFrame(payload)

	d := NewFrameDecoder()
	var got []byte
	for i, b := range frame {
		out, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
		if out != nil {
			if i != len(frame)-1 {
				t.Fatalf("frame completed early at byte %d", i)
			}
			got = out
		}
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}
}

func TestFrameDecoder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "garbage before DLE", data: []byte{0x42}, wantErr: ErrExpectingDLE},
		{name: "missing STX", data: []byte{DLE, 0x42}, wantErr: ErrExpectingSTX},
		{name: "STX inside frame", data: []byte{DLE, STX, 0x01, DLE, STX}, wantErr: ErrExpectingETX},
		{name: "bad checksum", data: []byte{DLE, STX, 0x01, 0x02, 0x00, DLE, ETX}, wantErr: ErrChecksumMismatch},
		{name: "empty frame", data: []byte{DLE, STX, DLE, ETX}, wantErr: ErrEmptyFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewFrameDecoder()
			var errs []error
			frames := d.Decode(tt.data, func(err error) { errs = append(errs, err) })
			if len(frames) != 0 {
				t.Errorf("got %d frames, want 0", len(frames))
			}
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
			}
			if !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("error = %v, want %v", errs[0], tt.wantErr)
			}
		})
	}
}

func TestFrameDecoder_IgnoresIdleFF(t *testing.T) {
	d := NewFrameDecoder()
	data := append([]byte{0xFF, 0xFF}, EncodeFrame([]byte{0xFF, 0x80, 0x63})...)

	frames := d.Decode(data, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestFrameDecoder_ResyncAfterError(t *testing.T) {
	d := NewFrameDecoder()
	data := []byte{DLE, 0x00, 0x00}
	data = append(data, EncodeFrame([]byte{0x00, 0xC4, '1', '.', '0'})...)

	var errCount int
	frames := d.Decode(data, func(error) { errCount++ })
	if errCount != 2 {
		t.Errorf("errors = %d, want 2 (missing STX, stray byte)", errCount)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestFrameDecoder_Overflow(t *testing.T) {
	d := NewFrameDecoder()
	data := append([]byte{DLE, STX}, bytes.Repeat([]byte{0x01}, MaxFramePayload+1)...)

	var errs []error
	d.Decode(data, func(err error) { errs = append(errs, err) })
	if len(errs) == 0 || !errors.Is(errs[0], ErrFrameOverflow) {
		t.Fatalf("first error = %v, want %v", errs, ErrFrameOverflow)
	}
}

func TestFrameError_Message(t *testing.T) {
	err := &FrameError{Err: ErrExpectingDLE, Byte: 0x42}
	want := "expecting a DLE byte: dropping byte 0x42"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
