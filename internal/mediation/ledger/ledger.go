// Package ledger records every side effect the interceptors apply to
// container stock, host results or host bookkeeping.
package ledger

import (
	"log/slog"
	"time"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/sim/model"
)

type Action string

const (
	ActionWithdraw Action = "withdraw" // units left a container
	ActionReturn   Action = "return"   // withdrawn units went back
	ActionConsume  Action = "consume"  // withdrawn units were picked by the host
	ActionEmpty    Action = "empty"    // trade emptied a container onto the ground
	ActionReclaim  Action = "reclaim"  // loose units pulled back in
	ActionGrant    Action = "grant"    // reservation short-circuited
	ActionTally    Action = "tally"    // units merged into a host count
	ActionInject   Action = "inject"   // units offered to a host listing
	ActionFlip     Action = "flip"     // a host boolean result was overridden
	ActionSelect   Action = "select"   // a build material was chosen
	ActionReject   Action = "reject"   // the interceptor surfaced a rejection
	ActionSession  Action = "session"  // a trade or caravan session opened/closed
)

type Entry struct {
	Seq       uint64       `json:"seq"`
	At        time.Time    `json:"at"`
	Hook      string       `json:"hook"`
	Action    Action       `json:"action"`
	Area      model.AreaID `json:"area,omitempty"`
	Container string       `json:"container,omitempty"`
	Kind      string       `json:"kind,omitempty"`
	Count     int          `json:"count,omitempty"`
	Session   string       `json:"session,omitempty"`
	Code      string       `json:"code,omitempty"`
	Note      string       `json:"note,omitempty"`
}

// Sink receives journal entries. Sinks must not block the simulation loop.
type Sink interface {
	WriteEntry(e Entry) error
}

type SinkFunc func(Entry) error

func (f SinkFunc) WriteEntry(e Entry) error { return f(e) }

// Journal fans entries out to sinks and metrics. A nil *Journal is valid and
// records nothing. Not safe for concurrent use.
type Journal struct {
	sinks   []Sink
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
	seq     uint64
}

type Option func(*Journal)

func WithSink(s Sink) Option        { return func(j *Journal) { j.sinks = append(j.sinks, s) } }
func WithMetrics(m *Metrics) Option { return func(j *Journal) { j.metrics = m } }
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.log = logging.WithComponent(l, "ledger") }
}
func WithClock(now func() time.Time) Option { return func(j *Journal) { j.now = now } }

func NewJournal(opts ...Option) *Journal {
	j := &Journal{log: logging.Discard(), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

func (j *Journal) AddSink(s Sink) {
	if j == nil || s == nil {
		return
	}
	j.sinks = append(j.sinks, s)
}

// Record stamps e with a sequence number and time, then fans it out.
func (j *Journal) Record(e Entry) {
	if j == nil {
		return
	}
	j.seq++
	e.Seq = j.seq
	if e.At.IsZero() {
		e.At = j.now().UTC()
	}
	if j.metrics != nil && e.Count > 0 {
		j.metrics.UnitsMoved.WithLabelValues(e.Hook, string(e.Action)).Add(float64(e.Count))
	}
	for _, s := range j.sinks {
		if err := s.WriteEntry(e); err != nil {
			j.log.Warn("ledger sink write failed", "hook", e.Hook, "seq", e.Seq, "err", err)
		}
	}
}

// Call counts one dispatch of hook with its outcome.
func (j *Journal) Call(hook string, outcome Outcome) {
	if j == nil || j.metrics == nil {
		return
	}
	j.metrics.HookCalls.WithLabelValues(hook, string(outcome)).Inc()
}

func (j *Journal) Seq() uint64 {
	if j == nil {
		return 0
	}
	return j.seq
}

// Memory keeps entries in memory. Used by tests and the replay verifier.
type Memory struct {
	Entries []Entry
}

func (m *Memory) WriteEntry(e Entry) error {
	m.Entries = append(m.Entries, e)
	return nil
}

// Filter returns the recorded entries of hook (all hooks when empty) with action.
func (m *Memory) Filter(hook string, action Action) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if (hook == "" || e.Hook == hook) && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Units sums Count over the matching entries.
func (m *Memory) Units(hook string, action Action) int {
	n := 0
	for _, e := range m.Filter(hook, action) {
		n += e.Count
	}
	return n
}

// ObserveStock publishes the stored units of kind in area and the number of
// live containers contributing to it.
func (j *Journal) ObserveStock(area model.AreaID, live int, stock map[string]int) {
	if j == nil || j.metrics == nil {
		return
	}
	j.metrics.LiveContainers.WithLabelValues(string(area)).Set(float64(live))
	for kind, n := range stock {
		j.metrics.StoredUnits.WithLabelValues(string(area), kind).Set(float64(n))
	}
}

// DroppedEntry counts an entry a sink had to drop.
func (j *Journal) DroppedEntry() {
	if j == nil || j.metrics == nil {
		return
	}
	j.metrics.SinkQueueDrops.Inc()
}
