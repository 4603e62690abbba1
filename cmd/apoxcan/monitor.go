package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/kabili207/apoxcan-go/core/codec"
	"github.com/kabili207/apoxcan-go/device/keepalive"
)

var (
	monitorCapture   string
	monitorKeepAlive bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print CAN traffic as it arrives",
	Long: `Switch the board to main code and print every CAN frame it receives.

With --capture, frames are also appended to a file as a CBOR sequence that
"apoxcan dump" can read back.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBoard(cmd, runMonitor)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print a capture written by monitor --capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		return readCapture(f, func(msg codec.CANMessage) {
			fmt.Println(formatCAN(msg))
		})
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Append received frames to a CBOR capture file")
	monitorCmd.Flags().BoolVar(&monitorKeepAlive, "keepalive", true, "Periodically check that the board still answers")
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(dumpCmd)
}

func runMonitor(ctx context.Context, s *session) error {
	if err := s.board.EnterMainCode(ctx); err != nil {
		return fmt.Errorf("failed to switch to main code: %w", err)
	}

	var capture *captureWriter
	if monitorCapture != "" {
		f, err := os.OpenFile(monitorCapture, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		capture = newCaptureWriter(f)
	}

	unsubscribe := s.transport.SubscribeCANMessages(func(msg codec.CANMessage) {
		fmt.Println(formatCAN(msg))
		if capture != nil {
			if err := capture.Write(msg); err != nil {
				slog.Warn("capture write failed", "error", err)
			}
		}
	})
	defer unsubscribe()

	fmt.Fprintln(os.Stderr, dimStyle.Render("Monitoring CAN bus, press Ctrl+C to exit"))

	if monitorKeepAlive {
		mon := keepalive.New(s.board, keepalive.Config{Logger: slog.Default()})
		mon.SetOnLost(func(err error) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Board stopped responding: "+err.Error()))
		})
		mon.SetOnRecovered(func() {
			fmt.Fprintln(os.Stderr, valueStyle.Render("Board responding again"))
		})
		go mon.Start(ctx)
	}

	<-ctx.Done()

	snap := s.transport.Counters().Snapshot()
	fmt.Fprintln(os.Stderr, field("Frames", fmt.Sprintf("%d CAN, %d board, %d errors",
		snap.CANMessages, snap.BoardMessages, snap.FrameErrors)))
	return nil
}

// captureWriter appends CAN messages to a CBOR sequence.
type captureWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

func newCaptureWriter(w io.Writer) *captureWriter {
	return &captureWriter{enc: cbor.NewEncoder(w)}
}

func (c *captureWriter) Write(msg codec.CANMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(msg)
}

// readCapture decodes a CBOR sequence of CAN messages until EOF.
func readCapture(r io.Reader, fn func(codec.CANMessage)) error {
	dec := cbor.NewDecoder(r)
	for {
		var msg codec.CANMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading capture: %w", err)
		}
		fn(msg)
	}
}
