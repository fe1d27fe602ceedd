package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/wormholehq/wormhole/internal/protocol"
)

const controlWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	// TLS and host routing are the edge proxy's business; accept all origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTunnelConnect owns the agent control channel: upgrade, tunnel
// assignment, heartbeats, reply demultiplexing, and eviction on close.
func (s *Server) handleTunnelConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Errorf("websocket upgrade: %v", err)
		return
	}

	t, err := s.registry.Create(conn, controlWriteWait)
	if err != nil {
		klog.Errorf("tunnel create: %v", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "no tunnel slots available")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
		_ = conn.Close()
		return
	}

	if err := t.Send(&protocol.Connected{
		TunnelID:  t.ID,
		Subdomain: t.Subdomain,
		PublicURL: s.cfg.PublicURL(t.Subdomain),
	}); err != nil {
		klog.Errorf("send connected frame: subdomain=%s: %v", t.Subdomain, err)
		s.teardown(t, conn)
		return
	}
	klog.Infof("tunnel connected: subdomain=%s id=%s from=%s", t.Subdomain, t.ID, r.RemoteAddr)

	// Liveness: any data frame or pong resets the read deadline. No traffic
	// for two heartbeat intervals means the agent is dead.
	interval := s.cfg.Heartbeat()
	deadline := 2 * interval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.Ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	defer func() {
		close(done)
		s.teardown(t, conn)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !t.Closed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				klog.Infof("tunnel read: subdomain=%s: %v", t.Subdomain, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		frame, err := protocol.Decode(data)
		if err != nil {
			klog.Errorf("protocol violation: subdomain=%s: %v", t.Subdomain, err)
			msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, ErrProtocol.Error())
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
			return
		}

		switch f := frame.(type) {
		case *protocol.HTTPResponse:
			if !s.pending.Fulfill(f.RequestID, f) {
				klog.V(2).Infof("dropped reply: subdomain=%s request_id=%s", t.Subdomain, f.RequestID)
			}
		case *protocol.Ping:
			if err := t.Send(&protocol.Pong{}); err != nil {
				return
			}
		case *protocol.Pong:
			// deadline already reset above
		default:
			klog.Errorf("protocol violation: subdomain=%s: unexpected %s frame", t.Subdomain, frame.FrameType())
			msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, ErrProtocol.Error())
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
			return
		}
	}
}

// teardown destroys the tunnel exactly once: unmap the subdomain, fail every
// pending request bound to it, and close the socket.
func (s *Server) teardown(t *Tunnel, conn *websocket.Conn) {
	if !t.markClosed() {
		return
	}
	s.registry.Remove(t.ID)
	s.pending.FailAllFor(t.ID, ErrTunnelGone)
	_ = conn.Close()
	klog.Infof("tunnel closed: subdomain=%s id=%s", t.Subdomain, t.ID)
}
