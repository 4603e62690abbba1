package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/apoxcan-go/core/codec"
	"github.com/kabili207/apoxcan-go/transport/usbcan"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		rtr      bool
		extended bool
		want     codec.CANFrame
		wantErr  bool
	}{
		{
			name:     "extended with data",
			args:     []string{"18EAFF00", "EE 00 00"},
			extended: true,
			want:     codec.CANFrame{ID: 0x18EAFF00, Extended: true, Data: []byte{0xEE, 0x00, 0x00}},
		},
		{
			name: "standard with colons",
			args: []string{"0x123", "DE:AD"},
			want: codec.CANFrame{ID: 0x123, Data: []byte{0xDE, 0xAD}},
		},
		{
			name: "remote request without data",
			args: []string{"7FF"},
			rtr:  true,
			want: codec.CANFrame{ID: 0x7FF, RTR: true},
		},
		{name: "standard id too large", args: []string{"800"}, wantErr: true},
		{name: "extended id too large", args: []string{"20000000"}, extended: true, wantErr: true},
		{name: "bad id", args: []string{"xyz"}, wantErr: true},
		{name: "odd data", args: []string{"1", "ABC"}, wantErr: true},
		{name: "too much data", args: []string{"1", "000102030405060708"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFrame(tt.args, tt.rtr, tt.extended)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUSBID(t *testing.T) {
	vid, pid, err := parseUSBID("")
	require.NoError(t, err)
	assert.Equal(t, usbcan.VendorID, vid)
	assert.Equal(t, usbcan.ProductID, pid)

	vid, pid, err = parseUSBID("0x0403:6001")
	require.NoError(t, err)
	assert.EqualValues(t, 0x0403, vid)
	assert.EqualValues(t, 0x6001, pid)

	_, _, err = parseUSBID("0403")
	assert.Error(t, err)
	_, _, err = parseUSBID("0403:zzzz")
	assert.Error(t, err)
}

func TestNewLogger_JSONUsesTsKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "json", false)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hello", "opcode", "GET_FIRMWARE_VERSION")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, entry, "time")
	assert.Equal(t, "hello", entry["msg"])
}

func TestNewLogger_UnknownFormat(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "xml", false)
	assert.Error(t, err)
}

func TestCaptureRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := newCaptureWriter(&buf)

	msgs := []codec.CANMessage{
		{Timestamp: 1, ID: 0x123, Data: []byte{1}},
		{Timestamp: 2, ID: 0x18EAFF00, Extended: true, RTR: true},
	}
	for _, m := range msgs {
		require.NoError(t, w.Write(m))
	}

	var got []codec.CANMessage
	require.NoError(t, readCapture(&buf, func(m codec.CANMessage) { got = append(got, m) }))
	require.Len(t, got, 2)
	assert.Equal(t, uint32(0x123), got[0].ID)
	assert.Equal(t, []byte{1}, got[0].Data)
	assert.True(t, got[1].Extended)
	assert.True(t, got[1].RTR)
}

func TestFormatCAN(t *testing.T) {
	line := formatCAN(codec.CANMessage{ID: 0x123, Data: []byte{0xDE, 0xAD}})
	assert.Contains(t, line, "123")
	assert.Contains(t, line, "DE AD")
	assert.Contains(t, line, "[2]")
}

func TestInterruptedResult(t *testing.T) {
	assert.NoError(t, interruptedResult(nil))
	assert.NoError(t, interruptedResult(context.Canceled))
	assert.NoError(t, interruptedResult(fmt.Errorf("uploading: %w", context.Canceled)))

	writeErr := errors.New("write packet: broken pipe")
	assert.ErrorIs(t, interruptedResult(writeErr), writeErr)
}
