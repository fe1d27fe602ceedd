package server

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// subdomain allocation: 8 random bytes rendered lowercase hex, retried a
// bounded number of times on collision.
const subdomainRetries = 8

// Registry maps subdomain to the active tunnel connection. In-memory only.
type Registry struct {
	mu          sync.RWMutex
	bySubdomain map[string]*Tunnel
	byID        map[string]string
	maxTunnels  int
}

func NewRegistry(maxTunnels int) *Registry {
	return &Registry{
		bySubdomain: make(map[string]*Tunnel),
		byID:        make(map[string]string),
		maxTunnels:  maxTunnels,
	}
}

// Create allocates a fresh subdomain and inserts a new tunnel for conn.
// Returns ErrTunnelLimit when the registry is full and ErrSubdomainsExhausted
// when allocation keeps colliding.
func (r *Registry) Create(conn *websocket.Conn, writeWait time.Duration) (*Tunnel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxTunnels > 0 && len(r.bySubdomain) >= r.maxTunnels {
		return nil, ErrTunnelLimit
	}
	for i := 0; i < subdomainRetries; i++ {
		sub := newSubdomain()
		if _, taken := r.bySubdomain[sub]; taken {
			continue
		}
		t := &Tunnel{
			ID:        uuid.New().String(),
			Subdomain: sub,
			CreatedAt: time.Now().UTC(),
			conn:      conn,
			writeWait: writeWait,
		}
		r.bySubdomain[sub] = t
		r.byID[t.ID] = sub
		return t, nil
	}
	return nil, ErrSubdomainsExhausted
}

// Lookup returns the live tunnel for a subdomain. A returned tunnel stays
// usable for the duration of one request even if removed concurrently; the
// request then fails through the pending table instead.
func (r *Registry) Lookup(subdomain string) (*Tunnel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.bySubdomain[subdomain]
	return t, ok
}

// Remove deletes the tunnel by id. Idempotent.
func (r *Registry) Remove(tunnelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[tunnelID]
	if !ok {
		return
	}
	delete(r.byID, tunnelID)
	delete(r.bySubdomain, sub)
}

// Len returns the number of live tunnels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubdomain)
}

// Snapshot returns status info for all live tunnels, ordered by subdomain.
func (r *Registry) Snapshot() []TunnelInfo {
	r.mu.RLock()
	out := make([]TunnelInfo, 0, len(r.bySubdomain))
	for _, t := range r.bySubdomain {
		out = append(out, t.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Subdomain < out[j].Subdomain })
	return out
}

func newSubdomain() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
