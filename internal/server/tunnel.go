package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wormholehq/wormhole/internal/protocol"
)

// Tunnel is one live agent connection owning one subdomain. Outbound writes
// are serialized by sendMu so concurrent proxy handlers never interleave
// frames on the channel.
type Tunnel struct {
	ID        string
	Subdomain string
	CreatedAt time.Time

	conn      *websocket.Conn
	writeWait time.Duration

	sendMu       sync.Mutex
	closed       atomic.Bool
	requestCount atomic.Int64
}

// Send writes one frame to the agent. Returns ErrTunnelGone once the tunnel
// is torn down.
func (t *Tunnel) Send(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.closed.Load() {
		return ErrTunnelGone
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a transport-level ping, serialized with data frames.
func (t *Tunnel) Ping() error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.closed.Load() {
		return ErrTunnelGone
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

// Closed reports whether teardown has started.
func (t *Tunnel) Closed() bool { return t.closed.Load() }

// markClosed flips the tunnel to closed exactly once; the caller that wins
// runs teardown.
func (t *Tunnel) markClosed() bool {
	return t.closed.CompareAndSwap(false, true)
}

// IncRequestCount advances the dispatched-request counter. Called only after
// the outbound frame has been handed to the channel.
func (t *Tunnel) IncRequestCount() { t.requestCount.Add(1) }

// RequestCount returns the number of successfully dispatched requests.
func (t *Tunnel) RequestCount() int64 { return t.requestCount.Load() }

// Info snapshots the tunnel for the status surface.
func (t *Tunnel) Info() TunnelInfo {
	return TunnelInfo{
		Subdomain:    t.Subdomain,
		TunnelID:     t.ID,
		CreatedAt:    t.CreatedAt,
		RequestCount: t.RequestCount(),
	}
}

// TunnelInfo is the status-surface view of a tunnel.
type TunnelInfo struct {
	Subdomain    string    `json:"subdomain"`
	TunnelID     string    `json:"tunnel_id"`
	CreatedAt    time.Time `json:"created_at"`
	RequestCount int64     `json:"request_count"`
}
