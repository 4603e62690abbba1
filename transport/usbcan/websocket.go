package usbcan

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLinkClosed is returned when reading from a closed WebSocket link.
var ErrLinkClosed = errors.New("websocket link closed")

// WebSocketConfig configures a WebSocket link to a remote board.
type WebSocketConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// Username and Password enable HTTP Basic auth when both are set.
	Username string
	Password string
	// SkipTLSVerify disables certificate checks for wss://.
	SkipTLSVerify bool
	// HandshakeTimeout bounds the dial. Default: 10 seconds.
	HandshakeTimeout time.Duration
}

// WebSocketOpener reaches a board exposed by a remote host. Each binary
// message carries raw link bytes in either direction.
func WebSocketOpener(cfg WebSocketConfig) Opener {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss":
		default:
			return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
		}

		dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		if u.Scheme == "wss" {
			dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify}
		}

		headers := http.Header{}
		if cfg.Username != "" && cfg.Password != "" {
			credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
			headers.Set("Authorization", "Basic "+credentials)
		}

		conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("websocket connection failed: %w", err)
		}
		return &wsLink{conn: conn}, nil
	}
}

// wsLink adapts a WebSocket connection to a byte stream.
type wsLink struct {
	conn   *websocket.Conn
	buf    []byte
	closed bool
}

func (w *wsLink) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrLinkClosed
	}

	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	}
}

func (w *wsLink) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsLink) Close() error {
	return w.conn.Close()
}
