package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kabili207/apoxcan-go/device/board"
	"github.com/kabili207/apoxcan-go/transport"
	"github.com/kabili207/apoxcan-go/transport/usbcan"
)

// getPassword retrieves the WebSocket password from the environment or
// prompts for it.
func getPassword() (string, error) {
	if pw := os.Getenv("APOXCAN_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal: read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// parseUSBID parses "VID:PID" in hex.
func parseUSBID(s string) (gousb.ID, gousb.ID, error) {
	if s == "" {
		return usbcan.VendorID, usbcan.ProductID, nil
	}
	vidStr, pidStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid USB id %q (want VID:PID)", s)
	}
	vid, err := strconv.ParseUint(strings.TrimPrefix(vidStr, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor id %q: %w", vidStr, err)
	}
	pid, err := strconv.ParseUint(strings.TrimPrefix(pidStr, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q: %w", pidStr, err)
	}
	return gousb.ID(vid), gousb.ID(pid), nil
}

// linkConfig picks the link from the connection flags.
func linkConfig() (usbcan.Config, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = getPassword()
			if err != nil {
				return usbcan.Config{}, err
			}
		}
		return usbcan.Config{
			Name: "WebSocket: " + wsURL,
			Open: usbcan.WebSocketOpener(usbcan.WebSocketConfig{
				URL:           wsURL,
				Username:      wsUsername,
				Password:      password,
				SkipTLSVerify: wsNoSSLVerify,
			}),
		}, nil
	}

	if portName != "" {
		return usbcan.Config{
			Name: fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate),
			Open: usbcan.SerialOpener(portName, baudRate),
		}, nil
	}

	vid, pid, err := parseUSBID(usbID)
	if err != nil {
		return usbcan.Config{}, err
	}
	return usbcan.Config{
		Name: fmt.Sprintf("USB: %s:%s", vid, pid),
		Open: usbcan.FTDIOpener(vid, pid),
	}, nil
}

// session is an open board connection.
type session struct {
	transport *usbcan.Transport
	board     *board.Board
}

// withBoard opens the board, runs fn, and closes the link. On SIGINT or
// SIGTERM the context passed to fn is canceled and the board is reset
// before the link is closed.
func withBoard(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := linkConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	cfg.Logger = logger

	tr := usbcan.New(cfg)
	tr.SubscribeErrors(func(err error) {
		logger.Debug("link error", "error", err)
	})
	tr.SetStateHandler(func(_ transport.Transport, ev transport.Event) {
		logger.Debug("link state changed", "event", ev.String())
	})
	if err := tr.Start(ctx); err != nil {
		return err
	}

	s := &session{
		transport: tr,
		board: board.New(tr, board.Config{
			Timeout: time.Duration(requestTimeout) * time.Millisecond,
			Logger:  logger,
		}),
	}

	runErr := fn(ctx, s)

	if ctx.Err() != nil && cmd.Context().Err() == nil {
		fmt.Fprintln(os.Stderr, "Got interrupt, resetting board")
		if err := s.board.ResetBoard(); err != nil {
			logger.Warn("reset failed", "error", err)
		}
		runErr = interruptedResult(runErr)
	}
	if err := tr.Stop(); err != nil {
		logger.Debug("closing link", "error", err)
	}
	return runErr
}

// interruptedResult drops the cancellation error an interrupted command
// returns and keeps any other failure.
func interruptedResult(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
