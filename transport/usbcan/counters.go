package usbcan

import "sync/atomic"

// Counters tracks link traffic using atomic counters.
// All fields are safe for concurrent access.
type Counters struct {
	FramesRecv    atomic.Uint32 // Valid frames decoded
	FramesSent    atomic.Uint32 // Frames written to the link
	BoardMessages atomic.Uint32 // Board messages dispatched
	CANMessages   atomic.Uint32 // CAN-bus messages dispatched
	FrameErrors   atomic.Uint32 // Framing and payload decode errors
	BytesRecv     atomic.Uint32 // Raw bytes read from the link
	BytesSent     atomic.Uint32 // Raw bytes written, framing included
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	FramesRecv    uint32
	FramesSent    uint32
	BoardMessages uint32
	CANMessages   uint32
	FrameErrors   uint32
	BytesRecv     uint32
	BytesSent     uint32
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		FramesRecv:    c.FramesRecv.Load(),
		FramesSent:    c.FramesSent.Load(),
		BoardMessages: c.BoardMessages.Load(),
		CANMessages:   c.CANMessages.Load(),
		FrameErrors:   c.FrameErrors.Load(),
		BytesRecv:     c.BytesRecv.Load(),
		BytesSent:     c.BytesSent.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.FramesRecv.Store(0)
	c.FramesSent.Store(0)
	c.BoardMessages.Store(0)
	c.CANMessages.Store(0)
	c.FrameErrors.Store(0)
	c.BytesRecv.Store(0)
	c.BytesSent.Store(0)
}
