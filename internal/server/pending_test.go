package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormholehq/wormhole/internal/protocol"
)

func testTunnel(id string) *Tunnel {
	return &Tunnel{ID: id, Subdomain: id + "-sub", CreatedAt: time.Now().UTC()}
}

func TestPending_RegisterFulfill(t *testing.T) {
	p := NewPendingTable(0)
	tun := testTunnel("t1")

	h, err := p.Register("r1", tun, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	want := &protocol.HTTPResponse{RequestID: "r1", Status: 200, Headers: map[string]string{}, Body: ""}
	require.True(t, p.Fulfill("r1", want))

	got, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, p.Len(), "entry must be unregistered on fulfill")
}

func TestPending_FulfillBeforeAwait(t *testing.T) {
	// A reply arriving after Register returns is visible to the waiter even
	// if it lands before Await is called.
	p := NewPendingTable(0)
	h, err := p.Register("r1", testTunnel("t1"), time.Now().Add(time.Second))
	require.NoError(t, err)

	require.True(t, p.Fulfill("r1", &protocol.HTTPResponse{RequestID: "r1", Status: 204}))

	got, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 204, got.Status)
}

func TestPending_DuplicateID(t *testing.T) {
	p := NewPendingTable(0)
	tun := testTunnel("t1")
	_, err := p.Register("r1", tun, time.Now().Add(time.Second))
	require.NoError(t, err)

	_, err = p.Register("r1", tun, time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrDuplicateRequestID)
}

func TestPending_FulfillUnknownID(t *testing.T) {
	p := NewPendingTable(0)
	assert.False(t, p.Fulfill("nope", &protocol.HTTPResponse{RequestID: "nope", Status: 200}))
	assert.Equal(t, int64(1), p.Dropped())
}

func TestPending_DoubleFulfill(t *testing.T) {
	p := NewPendingTable(0)
	h, err := p.Register("r1", testTunnel("t1"), time.Now().Add(time.Second))
	require.NoError(t, err)

	assert.True(t, p.Fulfill("r1", &protocol.HTTPResponse{RequestID: "r1", Status: 200}))
	assert.False(t, p.Fulfill("r1", &protocol.HTTPResponse{RequestID: "r1", Status: 500}))

	got, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, got.Status, "slot fulfilled at most once; second reply discarded")
	assert.Equal(t, int64(1), p.Dropped())
}

func TestPending_AwaitTimeout(t *testing.T) {
	p := NewPendingTable(0)
	h, err := p.Register("r1", testTunnel("t1"), time.Now().Add(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = h.Await(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, p.Len(), "timeout must unregister the entry")

	// late reply is dropped
	assert.False(t, p.Fulfill("r1", &protocol.HTTPResponse{RequestID: "r1", Status: 200}))
}

func TestPending_AwaitCancelled(t *testing.T) {
	p := NewPendingTable(0)
	h, err := p.Register("r1", testTunnel("t1"), time.Now().Add(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.Await(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("Await did not observe cancellation")
	}
	assert.Equal(t, 0, p.Len())
}

func TestPending_FailAllFor(t *testing.T) {
	p := NewPendingTable(0)
	t1 := testTunnel("t1")
	t2 := testTunnel("t2")

	h1, err := p.Register("r1", t1, time.Now().Add(time.Minute))
	require.NoError(t, err)
	h2, err := p.Register("r2", t1, time.Now().Add(time.Minute))
	require.NoError(t, err)
	h3, err := p.Register("r3", t2, time.Now().Add(time.Minute))
	require.NoError(t, err)

	p.FailAllFor("t1", ErrTunnelGone)

	for _, h := range []*ReplyHandle{h1, h2} {
		_, err := h.Await(context.Background())
		assert.ErrorIs(t, err, ErrTunnelGone)
	}
	assert.Equal(t, 1, p.Len(), "other tunnel's entry must survive")

	require.True(t, p.Fulfill("r3", &protocol.HTTPResponse{RequestID: "r3", Status: 200}))
	_, err = h3.Await(context.Background())
	assert.NoError(t, err)
}

func TestPending_RegisterAfterTeardown(t *testing.T) {
	p := NewPendingTable(0)
	tun := testTunnel("t1")
	tun.markClosed()
	p.FailAllFor(tun.ID, ErrTunnelGone)

	_, err := p.Register("r1", tun, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrTunnelGone)
}

func TestPending_PerTunnelCap(t *testing.T) {
	p := NewPendingTable(2)
	tun := testTunnel("t1")

	_, err := p.Register("r1", tun, time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = p.Register("r2", tun, time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = p.Register("r3", tun, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrPendingLimit)

	// completing an entry frees a slot
	require.True(t, p.Fulfill("r1", &protocol.HTTPResponse{RequestID: "r1", Status: 200}))
	_, err = p.Register("r3", tun, time.Now().Add(time.Minute))
	assert.NoError(t, err)
}

func TestPending_ConcurrentFulfill(t *testing.T) {
	p := NewPendingTable(0)
	tun := testTunnel("t1")

	const n = 100
	handles := make([]*ReplyHandle, n)
	for i := 0; i < n; i++ {
		h, err := p.Register(uuidLike(i), tun, time.Now().Add(5*time.Second))
		require.NoError(t, err)
		handles[i] = h
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Fulfill(uuidLike(i), &protocol.HTTPResponse{RequestID: uuidLike(i), Status: 200, Body: protocol.EncodeBody([]byte(uuidLike(i)))})
		}(i)
	}

	for i, h := range handles {
		resp, err := h.Await(context.Background())
		require.NoError(t, err)
		body, err := protocol.DecodeBody(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, uuidLike(i), string(body), "each waiter sees its own reply")
	}
	wg.Wait()
	assert.Equal(t, 0, p.Len())
}

func uuidLike(i int) string {
	return fmt.Sprintf("req-%03d", i)
}
