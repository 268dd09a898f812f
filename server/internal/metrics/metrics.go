package metrics

import (
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Reasons a frame or a peer is dropped.
const (
	ReasonMalformed    = "malformed"
	ReasonUnknownEvent = "unknown_event"
	ReasonSlowConsumer = "slow_consumer"
	ReasonStaleRequest = "stale_request"
	ReasonSessionFull  = "session_full"
)

const namespace = "sketchrelay_"

// Stats is a point-in-time copy of the recorder's counters.
type Stats struct {
	Peers        int               `json:"peers"`
	Connects     uint64            `json:"connects"`
	Disconnects  uint64            `json:"disconnects"`
	SyncRequests uint64            `json:"sync_requests"`
	Received     map[string]uint64 `json:"received"`
	Relayed      map[string]uint64 `json:"relayed"`
	Dropped      map[string]uint64 `json:"dropped"`
}

// Recorder counts hub activity and serves it in the Prometheus text format.
// Recorder is safe for concurrent use.
type Recorder struct {
	peers func() int

	mu           sync.Mutex
	connects     uint64
	disconnects  uint64
	syncRequests uint64
	received     map[string]uint64 // by event name
	relayed      map[string]uint64 // deliveries, by event name
	dropped      map[string]uint64 // by reason
}

// New creates a Recorder. peers reports the current session size; nil reports 0.
func New(peers func() int) *Recorder {
	if peers == nil {
		peers = func() int { return 0 }
	}
	return &Recorder{
		peers:    peers,
		received: make(map[string]uint64),
		relayed:  make(map[string]uint64),
		dropped:  make(map[string]uint64),
	}
}

func (r *Recorder) Connected() {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
}

func (r *Recorder) Disconnected() {
	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()
}

func (r *Recorder) SyncRequested() {
	r.mu.Lock()
	r.syncRequests++
	r.mu.Unlock()
}

// Received counts one inbound frame for event.
func (r *Recorder) Received(event string) {
	r.mu.Lock()
	r.received[event]++
	r.mu.Unlock()
}

// Relayed counts n outbound deliveries of event.
func (r *Recorder) Relayed(event string, n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.relayed[event] += uint64(n)
	r.mu.Unlock()
}

// Dropped counts one frame or peer dropped for reason.
func (r *Recorder) Dropped(reason string) {
	r.mu.Lock()
	r.dropped[reason]++
	r.mu.Unlock()
}

// Stats returns a copy of the current counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Peers:        r.peers(),
		Connects:     r.connects,
		Disconnects:  r.disconnects,
		SyncRequests: r.syncRequests,
		Received:     copyMap(r.received),
		Relayed:      copyMap(r.relayed),
		Dropped:      copyMap(r.dropped),
	}
}

// Families renders the counters as Prometheus metric families, sorted by name.
func (r *Recorder) Families() []*dto.MetricFamily {
	s := r.Stats()
	return []*dto.MetricFamily{
		labelled(namespace+"dropped_total", "Frames or peers dropped, by reason.", "reason", s.Dropped),
		labelled(namespace+"events_received_total", "Inbound frames, by event.", "event", s.Received),
		labelled(namespace+"events_relayed_total", "Outbound deliveries, by event.", "event", s.Relayed),
		gauge(namespace+"peers", "Currently connected peers.", float64(s.Peers)),
		counter(namespace+"peer_connects_total", "Peers that joined the session.", float64(s.Connects)),
		counter(namespace+"peer_disconnects_total", "Peers that left the session.", float64(s.Disconnects)),
		counter(namespace+"sync_requests_total", "client-ready handshakes processed.", float64(s.SyncRequests)),
	}
}

// ServeHTTP writes the metric families in the format negotiated from the
// request's Accept header.
func (r *Recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	format := expfmt.Negotiate(req.Header)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range r.Families() {
		// The text format rejects families without samples.
		if len(mf.Metric) == 0 {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func labelled(name, help, label string, values map[string]uint64) *dto.MetricFamily {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(k)}},
			Counter: &dto.Counter{Value: proto.Float64(float64(values[k]))},
		})
	}
	return mf
}

func copyMap(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
