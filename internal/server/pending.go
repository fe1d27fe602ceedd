package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wormholehq/wormhole/internal/protocol"
)

// PendingTable correlates in-flight public requests with asynchronously
// returning agent replies. Register and Fulfill are linearizable with respect
// to each other: a reply arriving after Register returns is visible to the
// waiter.
type PendingTable struct {
	mu           sync.Mutex
	entries      map[string]*pendingEntry
	perTunnel    map[string]int
	maxPerTunnel int
	dropped      atomic.Int64
}

type pendingEntry struct {
	tunnelID string
	ch       chan replyResult
}

type replyResult struct {
	resp *protocol.HTTPResponse
	err  error
}

func NewPendingTable(maxPerTunnel int) *PendingTable {
	return &PendingTable{
		entries:      make(map[string]*pendingEntry),
		perTunnel:    make(map[string]int),
		maxPerTunnel: maxPerTunnel,
	}
}

// Register inserts a pending entry for requestID bound to t and returns the
// handle the proxy handler waits on. Registration is rejected once the
// tunnel's teardown has started, on a duplicate id, and past the per-tunnel
// cap.
func (p *PendingTable) Register(requestID string, t *Tunnel, deadline time.Time) (*ReplyHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.Closed() {
		return nil, ErrTunnelGone
	}
	if _, exists := p.entries[requestID]; exists {
		return nil, ErrDuplicateRequestID
	}
	if p.maxPerTunnel > 0 && p.perTunnel[t.ID] >= p.maxPerTunnel {
		return nil, ErrPendingLimit
	}
	e := &pendingEntry{tunnelID: t.ID, ch: make(chan replyResult, 1)}
	p.entries[requestID] = e
	p.perTunnel[t.ID]++
	return &ReplyHandle{id: requestID, table: p, ch: e.ch, deadline: deadline}, nil
}

// Fulfill completes the slot for requestID if it is still pending. The return
// value reports whether a waiter was fed; false means the reply was dropped
// (unknown id, stale, or already completed).
func (p *PendingTable) Fulfill(requestID string, resp *protocol.HTTPResponse) bool {
	p.mu.Lock()
	e, ok := p.entries[requestID]
	if ok {
		p.removeLocked(requestID, e)
	}
	p.mu.Unlock()
	if !ok {
		p.dropped.Add(1)
		return false
	}
	e.ch <- replyResult{resp: resp}
	return true
}

// FailAllFor completes every entry bound to tunnelID with err. Used at tunnel
// teardown, after the tunnel is marked closed, so no new registration can
// slip in behind the sweep.
func (p *PendingTable) FailAllFor(tunnelID string, err error) {
	p.mu.Lock()
	var failed []*pendingEntry
	for id, e := range p.entries {
		if e.tunnelID == tunnelID {
			p.removeLocked(id, e)
			failed = append(failed, e)
		}
	}
	p.mu.Unlock()
	for _, e := range failed {
		e.ch <- replyResult{err: err}
	}
}

// Cancel removes the entry for requestID. Idempotent; a later reply with the
// same id is dropped.
func (p *PendingTable) Cancel(requestID string) {
	p.mu.Lock()
	if e, ok := p.entries[requestID]; ok {
		p.removeLocked(requestID, e)
	}
	p.mu.Unlock()
}

// Len returns the number of outstanding entries.
func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Dropped returns how many replies were discarded for unknown or completed
// request ids.
func (p *PendingTable) Dropped() int64 { return p.dropped.Load() }

func (p *PendingTable) removeLocked(requestID string, e *pendingEntry) {
	delete(p.entries, requestID)
	if n := p.perTunnel[e.tunnelID]; n <= 1 {
		delete(p.perTunnel, e.tunnelID)
	} else {
		p.perTunnel[e.tunnelID] = n - 1
	}
}

// ReplyHandle is the one-shot reply slot for a single pending request.
type ReplyHandle struct {
	id       string
	table    *PendingTable
	ch       chan replyResult
	deadline time.Time
}

// Await blocks until the first of: reply, deadline, tunnel teardown, or ctx
// cancellation. The entry is unregistered on every exit path.
func (h *ReplyHandle) Await(ctx context.Context) (*protocol.HTTPResponse, error) {
	timer := time.NewTimer(time.Until(h.deadline))
	defer timer.Stop()
	select {
	case r := <-h.ch:
		return r.resp, r.err
	case <-timer.C:
		h.table.Cancel(h.id)
		return nil, ErrTimeout
	case <-ctx.Done():
		h.table.Cancel(h.id)
		return nil, ErrCancelled
	}
}
