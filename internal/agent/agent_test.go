package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormholehq/wormhole/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestAgent_ReplaysRequestAgainstLocalOrigin(t *testing.T) {
	// local origin the agent forwards to
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/webhook", r.URL.Path)
		assert.Equal(t, "k=v", r.URL.RawQuery)
		assert.Equal(t, "val", r.Header.Get("X-In"))
		assert.Empty(t, r.Header.Get("Proxy-Agent"), "hop-by-hop headers are not replayed")
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))

		w.Header().Set("X-Out", "reply")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	t.Cleanup(origin.Close)

	replies := make(chan *protocol.HTTPResponse, 1)

	// fake tunnel server: assign, forward one request, collect the reply
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		connected, _ := protocol.Encode(&protocol.Connected{TunnelID: "t1", Subdomain: "abcd", PublicURL: "http://abcd.localhost"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, connected))

		req, _ := protocol.Encode(&protocol.HTTPRequest{
			RequestID:   "r1",
			Method:      http.MethodPost,
			Path:        "/webhook",
			QueryString: "k=v",
			Headers:     map[string]string{"x-in": "val", "proxy-agent": "nope", "host": "abcd.localhost"},
			Body:        protocol.EncodeBody([]byte("payload")),
		})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := protocol.Decode(data)
		require.NoError(t, err)
		resp, ok := f.(*protocol.HTTPResponse)
		require.True(t, ok)
		replies <- resp
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tunnel"
	assigned := make(chan *protocol.Connected, 1)
	a := New(wsURL, origin.URL)
	a.OnConnected = func(c *protocol.Connected) { assigned <- c }
	go func() { _ = a.Run(ctx) }()

	select {
	case c := <-assigned:
		assert.Equal(t, "abcd", c.Subdomain)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not receive assignment")
	}

	select {
	case resp := <-replies:
		assert.Equal(t, "r1", resp.RequestID)
		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.Equal(t, "reply", resp.Headers["x-out"])
		body, err := protocol.DecodeBody(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "created", string(body))
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not reply")
	}
}

func TestAgent_LocalOriginDown(t *testing.T) {
	replies := make(chan *protocol.HTTPResponse, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		connected, _ := protocol.Encode(&protocol.Connected{TunnelID: "t1", Subdomain: "abcd", PublicURL: "http://abcd.localhost"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, connected))

		req, _ := protocol.Encode(&protocol.HTTPRequest{
			RequestID: "r1", Method: http.MethodGet, Path: "/", QueryString: "",
			Headers: map[string]string{}, Body: protocol.EncodeBody(nil),
		})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := protocol.Decode(data)
		require.NoError(t, err)
		if resp, ok := f.(*protocol.HTTPResponse); ok {
			replies <- resp
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tunnel"
	// port 9 is discard/unassigned; the dial fails fast
	a := New(wsURL, "http://127.0.0.1:9")
	go func() { _ = a.Run(ctx) }()

	select {
	case resp := <-replies:
		assert.Equal(t, "r1", resp.RequestID)
		assert.Equal(t, http.StatusBadGateway, resp.Status)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not report local failure")
	}
}
