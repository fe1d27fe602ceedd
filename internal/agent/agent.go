// Package agent implements the wormhole agent: it holds one control-channel
// connection to the server and replays forwarded requests against a local
// origin.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"k8s.io/klog/v2"

	"github.com/wormholehq/wormhole/internal/protocol"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 20 * time.Second
	writeWait    = 5 * time.Second
	localTimeout = 30 * time.Second
	backoffReset = 10 * time.Second
)

// Agent forwards tunnel traffic to a local HTTP origin.
type Agent struct {
	ServerURL string // ws:// or wss:// URL of the /tunnel endpoint
	LocalURL  string // local origin, e.g. http://127.0.0.1:3000

	// OnConnected is invoked with the assignment frame after each successful
	// handshake. Optional.
	OnConnected func(c *protocol.Connected)

	client *http.Client
}

// New returns an Agent for the given server and local origin.
func New(serverURL, localURL string) *Agent {
	return &Agent{
		ServerURL: serverURL,
		LocalURL:  localURL,
		client:    &http.Client{Timeout: localTimeout},
	}
}

// Run connects to the server and reconnects with exponential backoff until
// ctx is cancelled. Each reconnect receives a fresh subdomain.
func (a *Agent) Run(ctx context.Context) error {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: true}
	for {
		start := time.Now()
		if err := a.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			klog.Errorf("connection error: %v", err)
		}
		if time.Since(start) > backoffReset {
			b.Reset()
		}
		wait := b.Duration()
		klog.Infof("reconnecting in %s", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// connect runs one control-channel session to completion.
func (a *Agent) connect(ctx context.Context) error {
	klog.Infof("connecting to %s", a.ServerURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.ServerURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	mu := &sync.Mutex{}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			mu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()

	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := protocol.Decode(data)
		if err != nil {
			klog.Errorf("invalid frame: %v", err)
			continue
		}

		switch f := frame.(type) {
		case *protocol.Connected:
			klog.Infof("tunnel assigned: subdomain=%s url=%s", f.Subdomain, f.PublicURL)
			if a.OnConnected != nil {
				a.OnConnected(f)
			}
		case *protocol.HTTPRequest:
			go a.handleRequest(conn, mu, f)
		case *protocol.Ping:
			send(conn, mu, &protocol.Pong{})
		case *protocol.Pong:
			// keepalive only
		}
	}
}

// handleRequest replays one forwarded request against the local origin and
// answers with an http_response frame.
func (a *Agent) handleRequest(conn *websocket.Conn, mu *sync.Mutex, req *protocol.HTTPRequest) {
	klog.V(1).Infof("%s %s", req.Method, req.Path)

	resp := &protocol.HTTPResponse{
		RequestID: req.RequestID,
		Headers:   map[string]string{},
		Body:      protocol.EncodeBody(nil),
	}

	body, err := protocol.DecodeBody(req.Body)
	if err != nil {
		resp.Status = http.StatusBadRequest
		resp.Body = protocol.EncodeBody([]byte("malformed request body"))
		send(conn, mu, resp)
		return
	}

	target := a.LocalURL + req.Path
	if req.QueryString != "" {
		target += "?" + req.QueryString
	}
	r, err := http.NewRequest(req.Method, target, bytes.NewReader(body))
	if err != nil {
		resp.Status = http.StatusInternalServerError
		resp.Body = protocol.EncodeBody([]byte(err.Error()))
		send(conn, mu, resp)
		return
	}
	for k, v := range req.Headers {
		// the local origin sees its own host and connection semantics
		if k == "host" || isHopByHop(k) {
			continue
		}
		r.Header.Set(k, v)
	}

	res, err := a.client.Do(r)
	if err != nil {
		klog.Errorf("local request error: %v", err)
		resp.Status = http.StatusBadGateway
		resp.Body = protocol.EncodeBody([]byte(err.Error()))
		send(conn, mu, resp)
		return
	}
	defer res.Body.Close()

	out, err := io.ReadAll(res.Body)
	if err != nil {
		resp.Status = http.StatusBadGateway
		resp.Body = protocol.EncodeBody([]byte(err.Error()))
		send(conn, mu, resp)
		return
	}

	resp.Status = res.StatusCode
	for k, vv := range res.Header {
		if len(vv) > 0 {
			resp.Headers[strings.ToLower(k)] = strings.Join(vv, ", ")
		}
	}
	resp.Body = protocol.EncodeBody(out)
	send(conn, mu, resp)
}

func send(conn *websocket.Conn, mu *sync.Mutex, f protocol.Frame) {
	data, err := protocol.Encode(f)
	if err != nil {
		klog.Errorf("marshal error: %v", err)
		return
	}
	mu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	mu.Unlock()
	if err != nil {
		klog.Errorf("write error: %v", err)
	}
}

func isHopByHop(name string) bool {
	switch name {
	case "connection", "keep-alive", "transfer-encoding", "upgrade":
		return true
	}
	return strings.HasPrefix(name, "proxy-")
}
