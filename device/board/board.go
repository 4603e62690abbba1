// Package board provides the named operations of an APOX USB-CAN board on
// top of the request/response engine.
//
// Every operation has a callback form, which returns immediately and reports
// its outcome exactly once, and a blocking form that takes a context.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kabili207/apoxcan-go/core/codec"
	"github.com/kabili207/apoxcan-go/core/command"
	"github.com/kabili207/apoxcan-go/core/exchange"
	"github.com/kabili207/apoxcan-go/core/firmware"
)

// Running-code values returned by WhichCodeIsRunning.
const (
	RunningMainCode   = 0xCC
	RunningBootloader = 0x55
)

const (
	// runningCodeRetries is the retry budget of the running-code query. The
	// board may be busy rebooting when first asked.
	runningCodeRetries = 2

	// mainCodeStartedID and mainCodeStartedCode identify the unsolicited
	// message the board emits once main code has started.
	mainCodeStartedID   = codec.BoardIDUnsolicited
	mainCodeStartedCode = 0x63
)

// ErrEmptyResponse is returned when a response carries no data byte.
var ErrEmptyResponse = errors.New("empty board response")

// UnexpectedRunningCodeError reports a running-code response that is neither
// main code nor bootloader.
type UnexpectedRunningCodeError struct {
	Value byte
}

func (e *UnexpectedRunningCodeError) Error() string {
	return fmt.Sprintf("unexpected running code: 0x%02X", e.Value)
}

// Link is the part of a transport the board needs.
type Link interface {
	exchange.Link
	SendFrame(frame codec.CANFrame) error
	Write(payload []byte) error
}

// Config configures a Board.
type Config struct {
	// Timeout is the wait per request attempt. Default: exchange.DefaultTimeout.
	Timeout time.Duration

	// Logger for board events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Board issues commands to one APOX USB-CAN board.
type Board struct {
	link   Link
	engine *exchange.Engine
	log    *slog.Logger
}

// New creates a Board that talks through link.
func New(link Link, cfg Config) *Board {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		link: link,
		engine: exchange.New(link, exchange.Config{
			Timeout: cfg.Timeout,
			Logger:  logger,
		}),
		log: logger.WithGroup("board"),
	}
}

// Engine returns the request engine shared by all board operations.
func (b *Board) Engine() *exchange.Engine {
	return b.engine
}

// SendAndAwait issues an arbitrary board command. See exchange.Request.
func (b *Board) SendAndAwait(req exchange.Request) *exchange.Pending {
	return b.engine.Send(req)
}

// GetHardwareVersion queries the hardware version string.
func (b *Board) GetHardwareVersion(cb func(version string, err error)) {
	b.engine.Send(versionRequest(command.GetHardwareVersion, cb))
}

// GetFirmwareVersion queries the firmware version string.
func (b *Board) GetFirmwareVersion(cb func(version string, err error)) {
	b.engine.Send(versionRequest(command.GetFirmwareVersion, cb))
}

// IsMainCodeRunning reports whether the board runs main code (true) or the
// bootloader (false). The query is retried twice before failing.
func (b *Board) IsMainCodeRunning(cb func(running bool, err error)) {
	b.engine.Send(runningCodeRequest(cb))
}

// SwitchToMainCode starts main code if the bootloader is running. If main
// code is already running, nothing is sent and cb reports success.
func (b *Board) SwitchToMainCode(cb func(err error)) {
	b.IsMainCodeRunning(func(running bool, err error) {
		if err != nil || running {
			if cb != nil {
				cb(err)
			}
			return
		}
		b.log.Info("switching to main code")
		b.engine.Send(exchange.Request{
			Opcode: command.RunMainCode,
			Match:  mainCodeStarted,
			OnResolve: func(_ []byte, err error) {
				if cb != nil {
					cb(err)
				}
			},
		})
	})
}

// Reset restarts the microcontroller. The board cannot answer, so cb is
// called right after the command is sent.
func (b *Board) Reset(cb func(err error)) {
	err := b.ResetBoard()
	if cb != nil {
		cb(err)
	}
}

// HardwareVersion is the blocking form of GetHardwareVersion.
func (b *Board) HardwareVersion(ctx context.Context) (string, error) {
	data, err := b.engine.Do(ctx, exchange.Request{Opcode: command.GetHardwareVersion})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FirmwareVersion is the blocking form of GetFirmwareVersion.
func (b *Board) FirmwareVersion(ctx context.Context) (string, error) {
	data, err := b.engine.Do(ctx, exchange.Request{Opcode: command.GetFirmwareVersion})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MainCodeRunning is the blocking form of IsMainCodeRunning.
func (b *Board) MainCodeRunning(ctx context.Context) (bool, error) {
	data, err := b.engine.Do(ctx, exchange.Request{
		Opcode:  command.WhichCodeIsRunning,
		Retries: runningCodeRetries,
	})
	if err != nil {
		return false, err
	}
	return decodeRunningCode(data)
}

// EnterMainCode is the blocking form of SwitchToMainCode.
func (b *Board) EnterMainCode(ctx context.Context) error {
	running, err := b.MainCodeRunning(ctx)
	if err != nil || running {
		return err
	}
	b.log.Info("switching to main code")
	_, err = b.engine.Do(ctx, exchange.Request{
		Opcode: command.RunMainCode,
		Match:  mainCodeStarted,
	})
	return err
}

// ResetBoard sends ResetMicro without waiting for a response.
func (b *Board) ResetBoard() error {
	b.log.Info("resetting board")
	return b.link.SendCommand(uint8(command.ResetMicro))
}

// SendCANMessage transmits a frame on the CAN bus.
func (b *Board) SendCANMessage(frame codec.CANFrame) error {
	return b.link.SendFrame(frame)
}

// UploadFirmware streams img to the bootloader. The board must be running
// bootloader code.
func (b *Board) UploadFirmware(ctx context.Context, img *firmware.Image, opts ...firmware.UploadOption) (firmware.UploadStats, error) {
	return firmware.Upload(ctx, img, b.link, opts...)
}

func versionRequest(op command.Opcode, cb func(string, error)) exchange.Request {
	return exchange.Request{
		Opcode: op,
		OnResolve: func(data []byte, err error) {
			if cb == nil {
				return
			}
			if err != nil {
				cb("", err)
				return
			}
			cb(string(data), nil)
		},
	}
}

func runningCodeRequest(cb func(bool, error)) exchange.Request {
	return exchange.Request{
		Opcode:  command.WhichCodeIsRunning,
		Retries: runningCodeRetries,
		OnResolve: func(data []byte, err error) {
			if cb == nil {
				return
			}
			if err != nil {
				cb(false, err)
				return
			}
			cb(decodeRunningCode(data))
		},
	}
}

func decodeRunningCode(data []byte) (bool, error) {
	if len(data) == 0 {
		return false, ErrEmptyResponse
	}
	switch data[0] {
	case RunningMainCode:
		return true, nil
	case RunningBootloader:
		return false, nil
	default:
		return false, &UnexpectedRunningCodeError{Value: data[0]}
	}
}

// mainCodeStarted matches the board's announcement after RunMainCode. It does
// not echo the request opcode.
func mainCodeStarted(msg codec.BoardMessage) bool {
	return msg.ID == mainCodeStartedID && len(msg.Data) > 0 && msg.Data[0] == mainCodeStartedCode
}
