// Package transport defines the boundary between the board driver and the
// physical link to an APOX USB-CAN board.
//
// A Transport accepts outbound board commands, CAN frames and raw frames, and
// broadcasts three notification streams: board messages, CAN-bus messages and
// link errors. Each stream may have any number of subscribers.
package transport

import (
	"context"

	"github.com/kabili207/apoxcan-go/core/codec"
)

// Transport is the base interface for all board transports.
type Transport interface {
	// Start opens the link and begins reading frames.
	// The provided context controls the transport's lifetime.
	Start(ctx context.Context) error
	// Stop closes the link and waits for the read loop to exit.
	Stop() error
	// IsConnected returns true if the link is open.
	IsConnected() bool
	// SetStateHandler sets the callback for transport state changes.
	SetStateHandler(fn StateHandler)

	// SendCommand sends a one-byte board command.
	SendCommand(opcode uint8) error
	// SendFrame sends a CAN-bus frame through the board.
	SendFrame(frame codec.CANFrame) error
	// Write frames payload as-is and sends it. Used for bootloader packets.
	Write(payload []byte) error

	// SubscribeBoardMessages registers fn for every board message. The
	// returned function removes the subscription.
	SubscribeBoardMessages(fn func(codec.BoardMessage)) (unsubscribe func())
	// SubscribeCANMessages registers fn for every CAN-bus message.
	SubscribeCANMessages(fn func(codec.CANMessage)) (unsubscribe func())
	// SubscribeErrors registers fn for link-level errors that are not tied
	// to any request.
	SubscribeErrors(fn func(error)) (unsubscribe func())
}

// StateHandler is called when the transport state changes.
type StateHandler func(transport Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the link opens.
	EventConnected Event = iota
	// EventDisconnected is fired when the link closes or is lost.
	EventDisconnected
	// EventError is fired when the read loop stops on an error.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
