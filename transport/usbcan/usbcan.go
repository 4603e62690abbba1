// Package usbcan provides the transport for APOX USB-CAN boards.
//
// The board speaks DLE/STX framing over a byte stream. The stream itself is
// supplied by an Opener, so the same transport runs over the FTDI chip
// directly (libusb), over the FTDI virtual COM port, or over a WebSocket
// bridge to a remote host.
package usbcan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kabili207/apoxcan-go/core/codec"
	"github.com/kabili207/apoxcan-go/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// maxStandardID is the largest 11-bit identifier.
	maxStandardID = 0x7FF

	// readBufSize is the size of the link read buffer.
	readBufSize = 2048
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrInvalidID    = errors.New("CAN identifier out of range")
	ErrNoOpener     = errors.New("no link opener configured")
)

// Opener opens the byte stream to a board.
type Opener func(ctx context.Context) (io.ReadWriteCloser, error)

// Config holds the configuration for a board transport.
type Config struct {
	// Open opens the link. Required.
	Open Opener
	// Name describes the link in log output (e.g. "/dev/ttyUSB0").
	Name string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over a framed byte stream.
type Transport struct {
	cfg          Config
	log          *slog.Logger
	mu           sync.RWMutex
	writeMu      sync.Mutex
	link         io.ReadWriteCloser
	connected    bool
	cancel       context.CancelFunc
	done         chan struct{}
	stateHandler transport.StateHandler

	decoder *codec.FrameDecoder
	board   *transport.Fanout[codec.BoardMessage]
	can     *transport.Fanout[codec.CANMessage]
	errs    *transport.Fanout[error]

	counters Counters
}

// New creates a new board transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg:     cfg,
		log:     cfg.Logger.WithGroup("usbcan"),
		decoder: codec.NewFrameDecoder(),
		board:   transport.NewFanout[codec.BoardMessage](),
		can:     transport.NewFanout[codec.CANMessage](),
		errs:    transport.NewFanout[error](),
	}
}

// Start opens the link and begins reading frames.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Open == nil {
		return ErrNoOpener
	}

	link, err := t.cfg.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening link: %w", err)
	}

	readCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.link = link
	t.connected = true
	t.done = make(chan struct{})
	t.cancel = cancel
	t.decoder.Reset()
	handler := t.stateHandler
	t.mu.Unlock()

	go t.readLoop(readCtx, link)

	t.log.Info("connected to board", "link", t.cfg.Name)

	if handler != nil {
		handler(t, transport.EventConnected)
	}

	return nil
}

// Stop closes the link and stops the read loop.
func (t *Transport) Stop() error {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.connected = false
	link := t.link
	t.link = nil
	done := t.done
	handler := t.stateHandler
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if link != nil {
		err = link.Close()
	}

	// Wait for read loop to finish
	if done != nil {
		<-done
	}

	if handler != nil && link != nil {
		handler(t, transport.EventDisconnected)
	}

	return err
}

// IsConnected returns true if the link is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// Counters returns the transport's traffic counters.
func (t *Transport) Counters() *Counters {
	return &t.counters
}

// SendCommand sends a one-byte board command.
func (t *Transport) SendCommand(opcode uint8) error {
	return t.Write(codec.EncodeBoardCommand(opcode))
}

// SendFrame sends a CAN-bus frame. Standard frames take an 11-bit ID,
// extended frames a 29-bit ID.
func (t *Transport) SendFrame(frame codec.CANFrame) error {
	limit := uint32(maxStandardID)
	if frame.Extended {
		limit = codec.MaxExtendedID
	}
	if frame.ID > limit {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, frame.ID)
	}
	return t.Write(codec.EncodeCANFrame(frame))
}

// Write frames payload and writes it to the link.
func (t *Transport) Write(payload []byte) error {
	t.mu.RLock()
	link := t.link
	connected := t.connected
	t.mu.RUnlock()

	if !connected || link == nil {
		return ErrNotConnected
	}

	frame := codec.EncodeFrame(payload)

	t.writeMu.Lock()
	_, err := link.Write(frame)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("writing to link: %w", err)
	}

	t.counters.FramesSent.Add(1)
	t.counters.BytesSent.Add(uint32(len(frame)))
	return nil
}

// SubscribeBoardMessages registers fn for every board message.
func (t *Transport) SubscribeBoardMessages(fn func(codec.BoardMessage)) func() {
	return t.board.Subscribe(fn)
}

// SubscribeCANMessages registers fn for every CAN-bus message.
func (t *Transport) SubscribeCANMessages(fn func(codec.CANMessage)) func() {
	return t.can.Subscribe(fn)
}

// SubscribeErrors registers fn for link and framing errors.
func (t *Transport) SubscribeErrors(fn func(error)) func() {
	return t.errs.Subscribe(fn)
}

// readLoop continuously reads from the link and decodes frames.
func (t *Transport) readLoop(ctx context.Context, link io.Reader) {
	defer close(t.done)

	buf := make([]byte, readBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := link.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, clean shutdown
			}
			t.handleDisconnect(err)
			return
		}

		if n == 0 {
			continue
		}

		t.counters.BytesRecv.Add(uint32(n))
		t.processBytes(buf[:n])
	}
}

// processBytes feeds raw link bytes to the frame decoder and dispatches every
// completed frame.
func (t *Transport) processBytes(data []byte) {
	frames := t.decoder.Decode(data, func(err error) {
		t.counters.FrameErrors.Add(1)
		t.log.Debug("framing error", "error", err)
		t.errs.Publish(err)
	})
	for _, payload := range frames {
		t.counters.FramesRecv.Add(1)
		t.dispatch(payload)
	}
}

// dispatch routes a frame payload to the board or CAN stream.
func (t *Transport) dispatch(payload []byte) {
	if codec.IsBoardFrame(payload) {
		msg, err := codec.DecodeBoardMessage(payload)
		if err != nil {
			t.counters.FrameErrors.Add(1)
			t.errs.Publish(err)
			return
		}
		t.counters.BoardMessages.Add(1)
		t.board.Publish(msg)
		return
	}

	msg, err := codec.DecodeCANMessage(payload)
	if err != nil {
		t.counters.FrameErrors.Add(1)
		t.errs.Publish(err)
		return
	}
	t.counters.CANMessages.Add(1)
	t.can.Publish(msg)
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	if errors.Is(err, io.EOF) {
		t.log.Info("link closed", "link", t.cfg.Name)
	} else {
		t.log.Error("link read error", "error", err)
		t.errs.Publish(fmt.Errorf("reading from link: %w", err))
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}
