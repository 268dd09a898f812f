package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sketchrelay/sketchrelay/pkg/types"
	"github.com/sketchrelay/sketchrelay/server/internal/config"
	"github.com/sketchrelay/sketchrelay/server/internal/metrics"
	"github.com/sketchrelay/sketchrelay/server/internal/session"
)

// inboxSize is the depth of the dispatch loop's queue, shared by all peers.
const inboxSize = 1024

// Options configures a Hub.
type Options struct {
	// Relay holds buffer sizes, timeouts and the initial routing policy.
	Relay config.RelayConfig

	// AllowedOrigins restricts the Origin header of upgrade requests.
	// Empty allows any origin.
	AllowedOrigins []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Peer is one connected drawing client.
type Peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	// slot is set when the peer holds one of the hub's reserved slots.
	slot bool
}

// ID returns the peer's session-unique identifier.
func (p *Peer) ID() string { return p.id }

// policy is the part of the relay configuration that can change at runtime.
type policy struct {
	syncMode string
	echoDraw bool
}

type msgKind int

const (
	msgJoin msgKind = iota
	msgLeave
	msgFrame
)

// message is one unit of work for the dispatch loop.
type message struct {
	kind       msgKind
	peer       *Peer
	remoteAddr string
	env        types.Envelope
}

// pendingSync pairs an elected get-canvas-state with the peer waiting for it.
type pendingSync struct {
	requester string
	responder string
}

// Hub relays drawing events between all connected peers.
//
// All membership changes and routing decisions happen on the goroutine
// running Run, in the order messages reach the inbox. Connection goroutines
// only decode frames and write queued bytes.
type Hub struct {
	peers    *session.Registry[*Peer]
	rec      *metrics.Recorder
	log      *slog.Logger
	upgrader websocket.Upgrader

	sendBuffer      int
	maxMessageBytes int64
	writeTimeout    time.Duration
	pongWait        time.Duration
	pingPeriod      time.Duration
	maxPeers        int

	// slots counts upgrades in progress plus registered peers. It is
	// reserved before the upgrade so concurrent dials cannot overshoot
	// maxPeers.
	slots atomic.Int64

	policy atomic.Pointer[policy]

	inbox   chan message
	stopped chan struct{}

	// pending is owned by the dispatch loop.
	pending map[string]pendingSync
}

// New creates a Hub that tracks membership in peers and counts activity in
// rec. A nil rec gets a private recorder.
func New(peers *session.Registry[*Peer], rec *metrics.Recorder, opts Options) *Hub {
	if rec == nil {
		rec = metrics.New(peers.Count)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	relay := withDefaults(opts.Relay)

	h := &Hub{
		peers:           peers,
		rec:             rec,
		log:             logger.With("component", "hub"),
		sendBuffer:      relay.SendBuffer,
		maxMessageBytes: relay.MaxMessageBytes,
		writeTimeout:    relay.WriteTimeout,
		pongWait:        relay.PongWait,
		pingPeriod:      (relay.PongWait * 9) / 10,
		maxPeers:        relay.MaxPeers,
		inbox:           make(chan message, inboxSize),
		stopped:         make(chan struct{}),
		pending:         make(map[string]pendingSync),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	h.Reconfigure(relay)
	return h
}

// Reconfigure swaps the sync mode and echo policy. Sizes and timeouts are
// fixed at construction.
func (h *Hub) Reconfigure(relay config.RelayConfig) {
	mode := relay.SyncMode
	if mode == "" {
		mode = config.SyncBroadcast
	}
	h.policy.Store(&policy{syncMode: mode, echoDraw: relay.EchoDraw})
}

// SyncMode returns the active sync mode.
func (h *Hub) SyncMode() string { return h.policy.Load().syncMode }

// Count returns the number of connected peers.
func (h *Hub) Count() int { return h.peers.Count() }

// Peers describes the connected peers in join order.
func (h *Hub) Peers() []session.Info { return h.peers.Infos() }

// Run processes joins, leaves and inbound frames until ctx is cancelled,
// then disconnects every peer. Run must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case m := <-h.inbox:
			h.handle(m)
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the peer
// until it disconnects. Nothing is sent to the peer until it asks.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.reserve() {
		h.rec.Dropped(metrics.ReasonSessionFull)
		h.log.Warn("session full, refusing peer", "remote", r.RemoteAddr, "max_peers", h.maxPeers)
		http.Error(w, "session full", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.slots.Add(-1)
		return
	}

	p := &Peer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		slot: true,
	}
	if !h.submit(message{kind: msgJoin, peer: p, remoteAddr: r.RemoteAddr}) {
		h.slots.Add(-1)
		conn.Close()
		return
	}

	go h.writePump(p)
	h.readPump(p) // blocks until the connection closes
	h.submit(message{kind: msgLeave, peer: p})
}

// reserve takes a peer slot. It reports false when the session is full.
func (h *Hub) reserve() bool {
	for {
		n := h.slots.Load()
		if h.maxPeers > 0 && n >= int64(h.maxPeers) {
			return false
		}
		if h.slots.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release returns p's slot, if it holds one.
func (h *Hub) release(p *Peer) {
	if p.slot {
		p.slot = false
		h.slots.Add(-1)
	}
}

// submit queues m for the dispatch loop. It reports false once Run has exited.
func (h *Hub) submit(m message) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.stopped:
		return false
	}
}

// --- dispatch ----------------------------------------------------------------

func (h *Hub) handle(m message) {
	switch m.kind {
	case msgJoin:
		h.peers.Add(m.peer, m.remoteAddr)
		h.rec.Connected()
		h.log.Info("peer joined", "peer", m.peer.id, "remote", m.remoteAddr, "peers", h.peers.Count())
	case msgLeave:
		h.drop(m.peer, "")
	case msgFrame:
		if _, ok := h.peers.Get(m.peer.id); !ok {
			return // frame read after the peer was dropped
		}
		h.route(m.peer, m.env)
	}
}

func (h *Hub) route(from *Peer, env types.Envelope) {
	pol := h.policy.Load()
	switch env.Event {
	case types.EventClientReady:
		h.rec.Received(env.Event)
		h.onClientReady(from, pol)
	case types.EventCanvasState:
		h.rec.Received(env.Event)
		h.onCanvasState(from, env, pol)
	case types.EventDrawLine:
		h.rec.Received(env.Event)
		h.onDrawLine(from, env, pol)
	case types.EventClear:
		h.rec.Received(env.Event)
		h.fanout(types.Envelope{Event: types.EventClear, From: from.id}, h.peers.List())
	default:
		h.rec.Dropped(metrics.ReasonUnknownEvent)
		if types.Known(env.Event) {
			h.log.Warn("dropping hub-to-peer event sent by a peer", "peer", from.id, "event", env.Event)
			return
		}
		h.log.Warn("dropping unknown event", "peer", from.id, "event", env.Event)
	}
}

func (h *Hub) onClientReady(from *Peer, pol *policy) {
	h.rec.SyncRequested()
	req := types.Envelope{Event: types.EventGetCanvasState, From: from.id}

	if pol.syncMode != config.SyncElected {
		n := h.fanout(req, h.peers.Others(from.id))
		h.log.Debug("sync requested", "peer", from.id, "mode", pol.syncMode, "asked", n)
		return
	}

	responder, ok := h.peers.Oldest(from.id)
	if !ok {
		h.log.Debug("sync requested in empty session", "peer", from.id)
		return
	}
	// A repeated client-ready supersedes the requester's earlier request,
	// so pending holds at most one entry per peer.
	for id, prev := range h.pending {
		if prev.requester == from.id {
			delete(h.pending, id)
		}
	}
	req.RequestID = uuid.NewString()
	h.pending[req.RequestID] = pendingSync{requester: from.id, responder: responder.Member.id}
	h.fanout(req, []*session.Entry[*Peer]{responder})
	h.log.Debug("sync requested", "peer", from.id, "mode", pol.syncMode,
		"responder", responder.Member.id, "request_id", req.RequestID)
}

func (h *Hub) onCanvasState(from *Peer, env types.Envelope, pol *policy) {
	if _, err := env.Snapshot(); err != nil {
		h.rec.Dropped(metrics.ReasonMalformed)
		h.log.Warn("dropping canvas-state", "peer", from.id, "err", err)
		return
	}
	out := types.Envelope{
		Event:     types.EventCanvasFromServer,
		Data:      env.Data,
		From:      from.id,
		RequestID: env.RequestID,
	}

	if env.RequestID == "" {
		if pol.syncMode == config.SyncElected {
			h.rec.Dropped(metrics.ReasonStaleRequest)
			h.log.Debug("dropping untagged canvas-state", "peer", from.id)
			return
		}
		h.fanout(out, h.peers.List())
		return
	}

	// Tagged replies are routed even after a switch back to broadcast so
	// that in-flight requests still complete.
	req, ok := h.pending[env.RequestID]
	if !ok || req.responder != from.id {
		h.rec.Dropped(metrics.ReasonStaleRequest)
		h.log.Debug("dropping canvas-state for unknown request", "peer", from.id, "request_id", env.RequestID)
		return
	}
	delete(h.pending, env.RequestID)

	requester, ok := h.peers.Get(req.requester)
	if !ok {
		h.rec.Dropped(metrics.ReasonStaleRequest)
		return
	}
	h.fanout(out, []*session.Entry[*Peer]{requester})
}

func (h *Hub) onDrawLine(from *Peer, env types.Envelope, pol *policy) {
	if _, err := env.DrawEvent(); err != nil {
		h.rec.Dropped(metrics.ReasonMalformed)
		h.log.Warn("dropping draw-line", "peer", from.id, "err", err)
		return
	}
	out := types.Envelope{Event: types.EventDrawLine, Data: env.Data, From: from.id}
	if pol.echoDraw {
		h.fanout(out, h.peers.List())
		return
	}
	h.fanout(out, h.peers.Others(from.id))
}

// fanout encodes env once and queues it for every target. It returns the
// number of peers the frame was queued for.
func (h *Hub) fanout(env types.Envelope, targets []*session.Entry[*Peer]) int {
	if len(targets) == 0 {
		return 0
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("encode frame", "event", env.Event, "err", err)
		return 0
	}
	n := 0
	for _, e := range targets {
		if h.deliver(e.Member, data) {
			n++
		}
	}
	h.rec.Relayed(env.Event, n)
	return n
}

// deliver queues data for p without blocking. A peer whose queue is full is
// disconnected.
func (h *Hub) deliver(p *Peer, data []byte) bool {
	select {
	case p.send <- data:
		return true
	default:
		h.drop(p, metrics.ReasonSlowConsumer)
		return false
	}
}

// drop removes p from the session and closes its queue, which makes the
// write pump close the socket. reason is empty for ordinary disconnects.
func (h *Hub) drop(p *Peer, reason string) {
	if _, ok := h.peers.Remove(p.id); !ok {
		return
	}
	close(p.send)
	h.release(p)
	h.rec.Disconnected()
	if reason != "" {
		h.rec.Dropped(reason)
	}

	for id, req := range h.pending {
		if req.requester == p.id || req.responder == p.id {
			delete(h.pending, id)
		}
	}

	if reason != "" {
		h.log.Warn("peer dropped", "peer", p.id, "reason", reason, "peers", h.peers.Count())
		return
	}
	h.log.Info("peer left", "peer", p.id, "peers", h.peers.Count())
}

func (h *Hub) closeAll() {
	for _, e := range h.peers.Drain() {
		close(e.Member.send)
		h.release(e.Member)
		h.rec.Disconnected()
	}
	clear(h.pending)
}

// --- connection goroutines ---------------------------------------------------

// writePump drains the peer's send queue onto the socket and sends periodic
// pings. It closes the connection when the queue is closed or a write fails.
func (h *Hub) writePump(p *Peer) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes frames from the peer and queues them for dispatch. Frames
// that are not valid envelopes are dropped without closing the connection.
func (h *Hub) readPump(p *Peer) {
	defer p.conn.Close()
	p.conn.SetReadLimit(h.maxMessageBytes)
	p.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed", "peer", p.id, "err", err)
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			h.rec.Dropped(metrics.ReasonMalformed)
			h.log.Warn("dropping malformed frame", "peer", p.id, "bytes", len(data))
			continue
		}
		// Clients cannot choose their own identity.
		env.From = ""

		if !h.submit(message{kind: msgFrame, peer: p, env: env}) {
			return
		}
	}
}

// withDefaults fills unset sizes and timeouts so a zero RelayConfig is usable.
func withDefaults(relay config.RelayConfig) config.RelayConfig {
	if relay.SendBuffer <= 0 {
		relay.SendBuffer = config.DefaultSendBuffer
	}
	if relay.MaxMessageBytes <= 0 {
		relay.MaxMessageBytes = config.DefaultMaxMessageBytes
	}
	if relay.WriteTimeout <= 0 {
		relay.WriteTimeout = config.DefaultWriteTimeout
	}
	if relay.PongWait <= 0 {
		relay.PongWait = config.DefaultPongWait
	}
	return relay
}

// originChecker allows requests without an Origin header (non-browser
// peers) and browser requests whose origin is listed. An empty list allows
// everything.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
