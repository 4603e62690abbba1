package usbcan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/apoxcan-go/core/codec"
)

func TestWebSocketOpener(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	gotFrame := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, codec.EncodeFrame([]byte{0x00, 0xC4, '4', '.', '4'}))

		_, data, err := conn.ReadMessage()
		if err == nil {
			gotFrame <- data
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr := New(Config{
		Name: "ws",
		Open: WebSocketOpener(WebSocketConfig{
			URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
			Username: "admin",
			Password: "secret",
		}),
	})

	versions := make(chan codec.BoardMessage, 1)
	tr.SubscribeBoardMessages(func(m codec.BoardMessage) { versions <- m })

	require.NoError(t, tr.Start(context.Background()))
	defer func() { _ = tr.Stop() }()

	assert.Equal(t, "Basic YWRtaW46c2VjcmV0", recv(t, gotAuth))
	assert.Equal(t, []byte("4.4"), recv(t, versions).Data)

	require.NoError(t, tr.SendCommand(0x44))
	assert.Equal(t, codec.EncodeFrame([]byte{0x00, 0xC4}), recv(t, gotFrame))
}

func TestWebSocketOpener_BadScheme(t *testing.T) {
	open := WebSocketOpener(WebSocketConfig{URL: "http://localhost:1"})
	_, err := open(context.Background())
	assert.ErrorContains(t, err, "unsupported URL scheme")
}
