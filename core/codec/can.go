package codec

import (
	"errors"
	"fmt"
)

const (
	// MaxCANData is the data length of a classical CAN frame.
	MaxCANData = 8
	// MaxExtendedID is the largest 29-bit identifier.
	MaxExtendedID = 0x1FFFFFFF

	canFrameFlag    = 0x80
	canRTRFlag      = 0x40
	canExtendedFlag = 0x20

	canTxHeaderSize = 9
	canRxHeaderSize = 11
)

var ErrShortCANMessage = errors.New("CAN message too short")

// CANFrame is an outbound CAN-bus frame.
type CANFrame struct {
	ID       uint32 `cbor:"1,keyasint"`
	RTR      bool   `cbor:"2,keyasint,omitempty"`
	Extended bool   `cbor:"3,keyasint,omitempty"`
	Flags    uint8  `cbor:"4,keyasint,omitempty"`
	Data     []byte `cbor:"5,keyasint,omitempty"`
}

// CANMessage is a CAN-bus frame received by the board.
type CANMessage struct {
	Timestamp uint32 `cbor:"1,keyasint"`
	RTR       bool   `cbor:"2,keyasint,omitempty"`
	ID        uint32 `cbor:"3,keyasint"`
	Extended  bool   `cbor:"4,keyasint,omitempty"`
	Flags     uint8  `cbor:"5,keyasint,omitempty"`
	Data      []byte `cbor:"6,keyasint,omitempty"`
}

func (m CANMessage) String() string {
	kind := "std"
	if m.Extended {
		kind = "ext"
	}
	if m.RTR {
		kind += ",rtr"
	}
	return fmt.Sprintf("can ts=%d id=0x%08X (%s) flags=0x%02X data=% X",
		m.Timestamp, m.ID, kind, m.Flags, m.Data)
}

// EncodeCANFrame builds the frame payload for an outbound CAN frame:
//
//	[0]    1 RTR EXT 0 0 0 0 0
//	[1..4] ID, most significant byte first (29 bits)
//	[5..6] reserved
//	[7]    TX flags
//	[8]    data length (0-8)
//	[9..]  data
//
// Data beyond 8 bytes is dropped.
func EncodeCANFrame(f CANFrame) []byte {
	n := len(f.Data)
	if n > MaxCANData {
		n = MaxCANData
	}
	header := byte(canFrameFlag)
	if f.RTR {
		header |= canRTRFlag
	}
	if f.Extended {
		header |= canExtendedFlag
	}
	out := make([]byte, 0, canTxHeaderSize+n)
	out = append(out,
		header,
		byte(f.ID>>24)&0x1F,
		byte(f.ID>>16),
		byte(f.ID>>8),
		byte(f.ID),
		0x00,
		0x00,
		f.Flags,
		byte(n),
	)
	return append(out, f.Data[:n]...)
}

// DecodeCANMessage parses an inbound CAN frame payload:
//
//	[0]     1 RTR EXT x x x x x
//	[1..4]  ID, least significant byte first (29 bits)
//	[5..8]  timestamp, least significant byte first
//	[9]     RX flags
//	[10]    data length
//	[11..]  data
func DecodeCANMessage(payload []byte) (CANMessage, error) {
	if len(payload) < canRxHeaderSize {
		return CANMessage{}, fmt.Errorf("%w: %d bytes", ErrShortCANMessage, len(payload))
	}
	msg := CANMessage{
		RTR:      payload[0]&canRTRFlag != 0,
		Extended: payload[0]&canExtendedFlag != 0,
		ID: (uint32(payload[4])<<24)&0x1F000000 |
			uint32(payload[3])<<16 |
			uint32(payload[2])<<8 |
			uint32(payload[1]),
		Timestamp: uint32(payload[8])<<24 |
			uint32(payload[7])<<16 |
			uint32(payload[6])<<8 |
			uint32(payload[5]),
		Flags: payload[9],
	}
	n := int(payload[10])
	if avail := len(payload) - canRxHeaderSize; n > avail {
		n = avail
	}
	msg.Data = make([]byte, n)
	copy(msg.Data, payload[canRxHeaderSize:canRxHeaderSize+n])
	return msg, nil
}
