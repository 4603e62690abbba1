package codec

import (
	"errors"
	"fmt"
)

const (
	// BoardIDResponse marks a board message sent in response to a command.
	BoardIDResponse = 0x00
	// BoardIDUnsolicited marks an unsolicited board message (emergency or
	// bootloader notification).
	BoardIDUnsolicited = 0xFF

	// boardCommandFlag is set on the command byte of every board frame.
	boardCommandFlag = 0x80
	// boardHeaderSize is id + command.
	boardHeaderSize = 2
)

var ErrShortBoardMessage = errors.New("board message too short")

// BoardMessage is a notification from the board itself, either a response to
// a command or an unsolicited event.
type BoardMessage struct {
	ID      uint8
	Command uint8
	Data    []byte
}

func (m BoardMessage) String() string {
	return fmt.Sprintf("board id=0x%02X cmd=0x%02X data=% X", m.ID, m.Command, m.Data)
}

// IsBoardFrame reports whether a decoded frame payload carries a board message
// rather than a CAN-bus message.
func IsBoardFrame(payload []byte) bool {
	return len(payload) > 0 && (payload[0] == BoardIDResponse || payload[0] == BoardIDUnsolicited)
}

// EncodeBoardCommand builds the frame payload for a board command.
func EncodeBoardCommand(opcode uint8) []byte {
	return []byte{BoardIDResponse, opcode | boardCommandFlag}
}

// DecodeBoardMessage parses a board frame payload:
//
//	[0] id (0x00 response, 0xFF unsolicited)
//	[1] command | 0x80
//	[2..n] data
func DecodeBoardMessage(payload []byte) (BoardMessage, error) {
	if len(payload) < boardHeaderSize {
		return BoardMessage{}, fmt.Errorf("%w: %d bytes", ErrShortBoardMessage, len(payload))
	}
	msg := BoardMessage{
		ID:      payload[0],
		Command: payload[1] &^ boardCommandFlag,
		Data:    make([]byte, len(payload)-boardHeaderSize),
	}
	copy(msg.Data, payload[boardHeaderSize:])
	return msg, nil
}
