package firmware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kabili207/apoxcan-go/core/command"
)

// Sink is the byte path to the bootloader.
type Sink interface {
	SendCommand(opcode uint8) error
	Write(payload []byte) error
}

// Progress is reported once per image window.
type Progress struct {
	Window  int
	Windows int
	Address int
	Sent    int
	Skipped int
}

// UploadStats summarizes a completed upload.
type UploadStats struct {
	Packets int
	Skipped int
	Bytes   int
	Digest  string
	Elapsed time.Duration
}

type uploadConfig struct {
	progress func(Progress)
	logger   *slog.Logger
	capacity int
	parse    []ParseOption
}

// UploadOption configures Upload and UploadFile.
type UploadOption func(*uploadConfig)

// WithProgress registers fn to be called after each window is handled.
func WithProgress(fn func(Progress)) UploadOption {
	return func(c *uploadConfig) {
		c.progress = fn
	}
}

// WithLogger sets the logger used for upload diagnostics.
func WithLogger(logger *slog.Logger) UploadOption {
	return func(c *uploadConfig) {
		c.logger = logger
	}
}

// WithCapacity sets the image capacity used by UploadFile.
func WithCapacity(n int) UploadOption {
	return func(c *uploadConfig) {
		c.capacity = n
	}
}

// WithParseOptions passes options to the hex parser used by UploadFile.
func WithParseOptions(opts ...ParseOption) UploadOption {
	return func(c *uploadConfig) {
		c.parse = append(c.parse, opts...)
	}
}

func newUploadConfig(opts []UploadOption) uploadConfig {
	cfg := uploadConfig{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	cfg.logger = cfg.logger.WithGroup("firmware")
	return cfg
}

// UploadFile parses the hex file at path and uploads it. A parse failure
// is returned before anything is sent to the sink.
func UploadFile(ctx context.Context, path string, sink Sink, opts ...UploadOption) (UploadStats, error) {
	cfg := newUploadConfig(opts)
	img, err := ParseHexFile(path, cfg.capacity, cfg.parse...)
	if err != nil {
		return UploadStats{}, err
	}
	return Upload(ctx, img, sink, opts...)
}

// Upload streams the image to the bootloader: a StartDownload command, one
// write packet per non-erased window in ascending address order, then an
// EndDownload command. The start and end commands are always sent, even
// when every window is erased.
//
// If ctx is canceled mid-transfer, EndDownload is still sent so the
// bootloader leaves download mode, and the context error is returned.
func Upload(ctx context.Context, img *Image, sink Sink, opts ...UploadOption) (UploadStats, error) {
	cfg := newUploadConfig(opts)
	start := time.Now()

	windows, err := img.Windows()
	if err != nil {
		return UploadStats{}, err
	}

	stats := UploadStats{Digest: img.Digest()}
	cfg.logger.Info("starting firmware upload",
		"capacity", img.Capacity(),
		"digest", stats.Digest)

	if err := sink.SendCommand(uint8(command.StartDownload)); err != nil {
		return stats, fmt.Errorf("start download: %w", err)
	}

	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			_ = sink.SendCommand(uint8(command.EndDownload))
			return stats, err
		}

		if w.Erased {
			stats.Skipped++
		} else {
			if err := sink.Write(w.Packet.Bytes()); err != nil {
				return stats, fmt.Errorf("write packet at 0x%04X: %w", w.Packet.WordAddress, err)
			}
			stats.Packets++
			stats.Bytes += PacketSize
		}

		if cfg.progress != nil {
			cfg.progress(Progress{
				Window:  i + 1,
				Windows: len(windows),
				Address: w.Address,
				Sent:    stats.Packets,
				Skipped: stats.Skipped,
			})
		}
	}

	if err := sink.SendCommand(uint8(command.EndDownload)); err != nil {
		return stats, fmt.Errorf("end download: %w", err)
	}

	stats.Elapsed = time.Since(start)
	cfg.logger.Info("firmware upload complete",
		"packets", stats.Packets,
		"skipped", stats.Skipped,
		"elapsed", stats.Elapsed)
	return stats, nil
}
