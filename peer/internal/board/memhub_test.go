package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sketchrelay/sketchrelay/pkg/types"
)

var errClosed = errors.New("transport closed")

// memHub routes envelopes between in-memory peers the way the relay does in
// broadcast mode.
type memHub struct {
	mu    sync.Mutex
	peers []*memPeer
	seq   int
}

func newMemHub() *memHub { return &memHub{} }

// connect registers a new peer and returns its transport.
func (h *memHub) connect() *memPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	p := newMemPeer(h, fmt.Sprintf("peer-%d", h.seq))
	h.peers = append(h.peers, p)
	return p
}

func (h *memHub) disconnect(p *memPeer) {
	h.mu.Lock()
	for i, q := range h.peers {
		if q == p {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	p.close()
}

func (h *memHub) route(from *memPeer, env types.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	env.From = from.id
	switch env.Event {
	case types.EventClientReady:
		h.deliver(types.Envelope{Event: types.EventGetCanvasState, From: from.id}, from, false)
	case types.EventCanvasState:
		env.Event = types.EventCanvasFromServer
		h.deliver(env, nil, true)
	case types.EventDrawLine:
		h.deliver(env, from, false)
	case types.EventClear:
		h.deliver(env, nil, true)
	}
}

func (h *memHub) deliver(env types.Envelope, except *memPeer, all bool) {
	for _, p := range h.peers {
		if !all && p == except {
			continue
		}
		p.push(env)
	}
}

// memPeer is a board.Transport backed by a queue. A peer is idle when its
// queue is empty and its reader is parked in Recv, so every delivered event
// has been handled.
type memPeer struct {
	hub *memHub
	id  string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []types.Envelope
	parked  bool
	closed  bool
	got     []string // events delivered, in order
	sent    []types.Envelope
	sendErr error
}

func newMemPeer(hub *memHub, id string) *memPeer {
	p := &memPeer{hub: hub, id: id}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *memPeer) Send(_ context.Context, env types.Envelope) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errClosed
	}
	if p.sendErr != nil {
		err := p.sendErr
		p.mu.Unlock()
		return err
	}
	p.sent = append(p.sent, env)
	p.mu.Unlock()

	if p.hub != nil {
		p.hub.route(p, env)
	}
	return nil
}

func (p *memPeer) Recv(ctx context.Context) (types.Envelope, error) {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		if p.closed {
			p.parked = false
			return types.Envelope{}, errClosed
		}
		if err := ctx.Err(); err != nil {
			p.parked = false
			return types.Envelope{}, err
		}
		p.parked = true
		p.cond.Wait()
	}
	env := p.queue[0]
	p.queue = p.queue[1:]
	p.parked = false
	return env, nil
}

func (p *memPeer) push(env types.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, env)
	p.got = append(p.got, env.Event)
	p.cond.Broadcast()
}

func (p *memPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

func (p *memPeer) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && p.parked
}

func (p *memPeer) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.got {
		if e == event {
			n++
		}
	}
	return n
}

func (p *memPeer) sentEvents(event string) []types.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.Envelope
	for _, env := range p.sent {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// settle waits until every peer has handled everything delivered to it.
func settle(t *testing.T, peers ...*memPeer) {
	t.Helper()
	allIdle := func() bool {
		for _, p := range peers {
			if !p.idle() {
				return false
			}
		}
		return true
	}
	// Two passes: a peer finishing after it was checked may have queued
	// work for one checked earlier.
	require.Eventually(t, func() bool {
		return allIdle() && allIdle()
	}, 5*time.Second, 5*time.Millisecond, "peers did not settle")
}
