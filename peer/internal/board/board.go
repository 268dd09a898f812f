package board

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/sketchrelay/sketchrelay/peer/internal/stroke"
	"github.com/sketchrelay/sketchrelay/pkg/types"
)

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("board: not connected")

// State is the join/sync state of the current session.
type State int

const (
	Connecting State = iota
	AwaitingSync
	Synced
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingSync:
		return "awaiting_sync"
	case Synced:
		return "synced"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transport carries envelopes to and from the hub. Send may be called
// concurrently with Recv and with itself.
type Transport interface {
	Send(ctx context.Context, env types.Envelope) error
	Recv(ctx context.Context) (types.Envelope, error)
}

// Rasterizer is the surface a board draws on.
type Rasterizer interface {
	RenderSegment(prev *types.Point, cur types.Point, color string, width float64) error
	RenderSnapshot(img image.Image)
	ClearSurface()
	Image() *image.RGBA
}

// Codec converts between images and the snapshot strings on the wire.
type Codec interface {
	Encode(img image.Image) (string, error)
	Decode(s string) (image.Image, error)
}

// Options configures a Board.
type Options struct {
	Color     string
	LineWidth float64
	Logger    *slog.Logger
}

// Board is a drawing peer. Run drives a session; the local API may be used
// from any goroutine.
type Board struct {
	surface Rasterizer
	codec   Codec
	pen     *stroke.Encoder
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	tr     Transport
	synced chan struct{}
	closed bool // synced is closed
}

// New returns a Board drawing on surface. It starts in Connecting.
func New(surface Rasterizer, codec Codec, opts Options) *Board {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		surface: surface,
		codec:   codec,
		pen:     stroke.New(opts.Color, opts.LineWidth),
		logger:  logger,
		synced:  make(chan struct{}),
	}
}

// Run drives one session over tr. It announces the peer with client-ready,
// then applies inbound events until tr fails or ctx ends. The surface is kept
// when Run returns so a later session can still serve snapshots.
func (b *Board) Run(ctx context.Context, tr Transport) error {
	b.begin(tr)
	defer b.end()

	if err := tr.Send(ctx, types.Envelope{Event: types.EventClientReady}); err != nil {
		return fmt.Errorf("board: send client-ready: %w", err)
	}
	b.setState(AwaitingSync)

	for {
		env, err := tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("board: receive: %w", err)
		}
		b.handle(ctx, tr, env)
	}
}

func (b *Board) begin(tr Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tr = tr
	b.state = Connecting
	if b.closed {
		b.synced = make(chan struct{})
		b.closed = false
	}
}

func (b *Board) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tr = nil
	b.state = Connecting
}

func (b *Board) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	if s == Synced && !b.closed {
		close(b.synced)
		b.closed = true
	}
}

func (b *Board) handle(ctx context.Context, tr Transport, env types.Envelope) {
	switch env.Event {
	case types.EventGetCanvasState:
		b.replySnapshot(ctx, tr, env.RequestID)

	case types.EventCanvasFromServer:
		b.applySnapshot(env)

	case types.EventDrawLine:
		ev, err := env.DrawEvent()
		if err != nil {
			b.logger.Warn("board: invalid draw-line skipped", "from", env.From, "err", err)
			return
		}
		if err := b.surface.RenderSegment(ev.PrevPoint, ev.CurrentPoint, ev.Color, ev.LineWidth); err != nil {
			b.logger.Warn("board: render draw-line", "from", env.From, "err", err)
		}

	case types.EventClear:
		b.surface.ClearSurface()
		b.pen.Reset()
		b.logger.Debug("board: cleared", "from", env.From)

	default:
		b.logger.Debug("board: ignoring event", "event", env.Event)
	}
}

func (b *Board) replySnapshot(ctx context.Context, tr Transport, requestID string) {
	data, err := b.codec.Encode(b.surface.Image())
	if err != nil {
		b.logger.Error("board: encode snapshot", "err", err)
		return
	}
	reply, err := types.NewEnvelope(types.EventCanvasState, data)
	if err != nil {
		b.logger.Error("board: build canvas-state", "err", err)
		return
	}
	reply.RequestID = requestID
	if err := tr.Send(ctx, reply); err != nil {
		b.logger.Warn("board: send canvas-state", "err", err)
		return
	}
	b.logger.Debug("board: snapshot sent", "request_id", requestID, "bytes", len(data))
}

func (b *Board) applySnapshot(env types.Envelope) {
	data, err := env.Snapshot()
	if err != nil {
		b.logger.Warn("board: malformed snapshot skipped", "err", err)
		return
	}
	img, err := b.codec.Decode(data)
	if err != nil {
		b.logger.Warn("board: undecodable snapshot skipped", "err", err)
		return
	}
	b.surface.RenderSnapshot(img)
	b.setState(Synced)
	b.logger.Info("board: snapshot applied",
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
}

// SetBrush changes the color and width of subsequent segments.
func (b *Board) SetBrush(color string, width float64) {
	b.pen.SetBrush(color, width)
}

// Brush returns the current color and width.
func (b *Board) Brush() (color string, width float64) {
	return b.pen.Brush()
}

// PenDown starts a stroke.
func (b *Board) PenDown() { b.pen.PenDown() }

// PenUp ends the stroke.
func (b *Board) PenUp() { b.pen.PenUp() }

// MoveTo extends the current stroke to p, renders the segment locally and
// sends it to the hub. With the pen up it does nothing. The segment is
// rendered even when there is no session, in which case ErrNotConnected is
// returned.
func (b *Board) MoveTo(ctx context.Context, p types.Point) error {
	ev, ok := b.pen.Move(p)
	if !ok {
		return nil
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("board: move: %w", err)
	}
	if err := b.surface.RenderSegment(ev.PrevPoint, ev.CurrentPoint, ev.Color, ev.LineWidth); err != nil {
		return fmt.Errorf("board: render: %w", err)
	}

	tr := b.transport()
	if tr == nil {
		return ErrNotConnected
	}
	env, err := types.NewEnvelope(types.EventDrawLine, ev)
	if err != nil {
		return err
	}
	if err := tr.Send(ctx, env); err != nil {
		return fmt.Errorf("board: send draw-line: %w", err)
	}
	return nil
}

// Clear asks every peer, this one included, to wipe its canvas. The local
// surface is cleared when the hub relays the signal back.
func (b *Board) Clear(ctx context.Context) error {
	tr := b.transport()
	if tr == nil {
		return ErrNotConnected
	}
	if err := tr.Send(ctx, types.Envelope{Event: types.EventClear}); err != nil {
		return fmt.Errorf("board: send clear: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the surface.
func (b *Board) Snapshot() *image.RGBA {
	return b.surface.Image()
}

// State returns the current session state.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Synced returns a channel closed when the current session applies its
// first snapshot. Each new session gets a fresh channel once the previous
// one has closed.
func (b *Board) Synced() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.synced
}

func (b *Board) transport() Transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tr
}
