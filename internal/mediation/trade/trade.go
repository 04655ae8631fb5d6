// Package trade puts container stock on the table when a trade opens and
// pulls the unsold remainder back when it closes.
package trade

import (
	"log/slog"
	"sort"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/ids"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
	"deepstore.ai/internal/storage/registry"
)

type Session struct {
	ID         string
	Area       model.AreaID
	Negotiator host.Agent
	// Emptied is what the containers put on the table, per kind.
	Emptied map[string]int
}

// Close describes how the host ended a trade.
type Close struct {
	SessionID string
	Cancelled bool
	Sold      []model.Stack
}

type Aggregator struct {
	reg     *registry.Registry
	journal *ledger.Journal
	log     *slog.Logger

	open map[string]*Session
}

func New(reg *registry.Registry, j *ledger.Journal, log *slog.Logger) *Aggregator {
	return &Aggregator{
		reg:     reg,
		journal: j,
		log:     logging.WithComponent(log, "trade"),
		open:    map[string]*Session{},
	}
}

// AfterSellable empties every trade-enabled live container in the
// negotiator's area and appends the resulting piles to the host's list.
func (a *Aggregator) AfterSellable(neg host.Agent, native []model.Stack) ([]model.Stack, Session) {
	s := &Session{ID: ids.SessionID(), Area: neg.Area, Negotiator: neg, Emptied: map[string]int{}}
	a.open[s.ID] = s
	a.journal.Record(ledger.Entry{
		Hook:    string(host.EventTradeSellable),
		Action:  ledger.ActionSession,
		Area:    neg.Area,
		Session: s.ID,
		Note:    "open " + neg.ID,
	})

	out := native
	for _, c := range a.reg.Live(neg.Area) {
		if !c.IncludeInTrade() {
			continue
		}
		start := len(out)
		out = c.Empty(out)
		for _, p := range out[start:] {
			s.Emptied[p.Kind] += p.Count
			a.journal.Record(ledger.Entry{
				Hook:      string(host.EventTradeSellable),
				Action:    ledger.ActionEmpty,
				Area:      neg.Area,
				Container: c.ID(),
				Kind:      p.Kind,
				Count:     p.Count,
				Session:   s.ID,
				Note:      p.EntityID,
			})
		}
	}
	a.log.Info("trade opened", "session", s.ID, "area", neg.Area, "offered", len(out)-len(native))
	return out, *s
}

// AfterClose sweeps every live container across all areas in registry order
// and reclaims loose stock. Cancelled and aborted trades sweep too.
// Returns the units reclaimed.
func (a *Aggregator) AfterClose(cl Close) int {
	s := a.open[cl.SessionID]
	delete(a.open, cl.SessionID)
	if s == nil {
		s = &Session{ID: cl.SessionID}
	}
	for _, sold := range cl.Sold {
		if sold.Empty() {
			continue
		}
		a.journal.Record(ledger.Entry{
			Hook:    string(host.EventTradeClose),
			Action:  ledger.ActionConsume,
			Area:    s.Area,
			Kind:    sold.Kind,
			Count:   sold.Count,
			Session: s.ID,
			Note:    sold.EntityID,
		})
	}

	total := 0
	for _, c := range a.reg.All() {
		if !c.Live() {
			continue
		}
		total += a.reclaim(c, s)
	}
	note := "sold"
	if cl.Cancelled {
		note = "cancelled"
	}
	a.journal.Record(ledger.Entry{
		Hook:    string(host.EventTradeClose),
		Action:  ledger.ActionSession,
		Area:    s.Area,
		Session: s.ID,
		Note:    "close " + note,
	})
	a.log.Info("trade closed", "session", s.ID, "outcome", note, "reclaimed", total)
	return total
}

func (a *Aggregator) reclaim(c *storage.Container, s *Session) int {
	before := model.StacksToMap(c.Stock())
	n := c.Reclaim()
	if n == 0 {
		return 0
	}
	after := model.StacksToMap(c.Stock())
	kinds := make([]string, 0, len(after))
	for k := range after {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if d := after[k] - before[k]; d > 0 {
			a.journal.Record(ledger.Entry{
				Hook:      string(host.EventTradeClose),
				Action:    ledger.ActionReclaim,
				Area:      c.Area(),
				Container: c.ID(),
				Kind:      k,
				Count:     d,
				Session:   s.ID,
			})
		}
	}
	return n
}

// Open reports the number of sessions not yet closed.
func (a *Aggregator) Open() int { return len(a.open) }
