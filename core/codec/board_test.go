package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeBoardCommand(t *testing.T) {
	got := EncodeBoardCommand(0x43)
	want := []byte{0x00, 0xC3}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeBoardCommand() = % X, want % X", got, want)
	}
}

func TestDecodeBoardMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    BoardMessage
		wantErr error
	}{
		{
			name:    "response with data",
			payload: []byte{0x00, 0xC3, 'v', '4'},
			want:    BoardMessage{ID: 0x00, Command: 0x43, Data: []byte("v4")},
		},
		{
			name:    "unsolicited",
			payload: []byte{0xFF, 0x80, 0x63},
			want:    BoardMessage{ID: 0xFF, Command: 0x00, Data: []byte{0x63}},
		},
		{
			name:    "no data",
			payload: []byte{0x00, 0x80},
			want:    BoardMessage{ID: 0x00, Command: 0x00, Data: []byte{}},
		},
		{
			name:    "too short",
			payload: []byte{0x00},
			wantErr: ErrShortBoardMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBoardMessage(tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.want.ID || got.Command != tt.want.Command || !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("DecodeBoardMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBoardFrame(t *testing.T) {
	if !IsBoardFrame([]byte{0x00, 0x80}) {
		t.Error("0x00 should be a board frame")
	}
	if !IsBoardFrame([]byte{0xFF, 0x80}) {
		t.Error("0xFF should be a board frame")
	}
	if IsBoardFrame([]byte{0xA0}) {
		t.Error("0xA0 should be a CAN frame")
	}
	if IsBoardFrame(nil) {
		t.Error("empty payload is not a board frame")
	}
}
