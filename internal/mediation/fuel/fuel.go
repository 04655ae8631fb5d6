// Package fuel lends container fuel to the host's best-fuel search and takes
// back whatever the search did not pick.
package fuel

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
	"deepstore.ai/internal/storage/registry"
)

type Withdrawal struct {
	Pile   model.Stack
	Origin *storage.Container
}

// Scratch carries the piles dropped by Before to the matching After. It is
// owned by one search and is inert once closed.
type Scratch struct {
	area   model.AreaID
	out    []Withdrawal
	closed bool
}

func (s *Scratch) Withdrawals() []Withdrawal {
	if s == nil || s.closed {
		return nil
	}
	return s.out
}

// Piles lists the entity ids the native search may now see.
func (s *Scratch) Piles() []model.Stack {
	var out []model.Stack
	for _, w := range s.Withdrawals() {
		out = append(out, w.Pile)
	}
	return out
}

func (s *Scratch) Closed() bool { return s == nil || s.closed }

type Supplier struct {
	reg     *registry.Registry
	items   *catalogs.ItemCatalog
	journal *ledger.Journal
	log     *slog.Logger
}

func New(reg *registry.Registry, items *catalogs.ItemCatalog, j *ledger.Journal, log *slog.Logger) *Supplier {
	return &Supplier{reg: reg, items: items, journal: j, log: logging.WithComponent(log, "fuel")}
}

// Before withdraws one stack of acceptable fuel from every live container in
// the target's area and drops it as a loose pile. Agents working outside the
// target's area get nothing.
func (f *Supplier) Before(agent host.Agent, target host.Refuelable) *Scratch {
	s := &Scratch{area: target.Area}
	if target.Def.Fuel == nil || target.Area == "" || agent.Area != target.Area {
		return s
	}
	filter := f.items.FuelFilter(*target.Def.Fuel)
	for _, c := range f.reg.Live(target.Area) {
		got, ok := c.TryRemoveMatching(filter)
		if !ok {
			continue
		}
		piles := c.DropNear(got)
		if len(piles) == 0 {
			continue
		}
		f.journal.Record(ledger.Entry{
			Hook:      string(host.EventFuelSearch),
			Action:    ledger.ActionWithdraw,
			Area:      target.Area,
			Container: c.ID(),
			Kind:      got.Kind,
			Count:     model.TotalOf(piles, got.Kind),
			Note:      target.ID,
		})
		for _, p := range piles {
			s.out = append(s.out, Withdrawal{Pile: p, Origin: c})
		}
	}
	return s
}

// After returns every pile the search did not select to its origin and closes
// the scratch. Returns the units taken back.
func (f *Supplier) After(s *Scratch, selectedEntityID string) int {
	if s.Closed() {
		return 0
	}
	defer func() { s.closed = true; s.out = nil }()

	returned := 0
	for _, w := range s.out {
		e := ledger.Entry{
			Hook:      string(host.EventFuelSearch),
			Area:      s.area,
			Container: w.Origin.ID(),
			Kind:      w.Pile.Kind,
			Note:      w.Pile.EntityID,
		}
		if w.Pile.EntityID == selectedEntityID {
			e.Action = ledger.ActionConsume
			e.Count = w.Pile.Count
			f.journal.Record(e)
			continue
		}
		back, ok := w.Origin.TakeBack(w.Pile.EntityID)
		if !ok {
			f.log.Warn("withdrawn fuel pile vanished", "pile", w.Pile.EntityID, "container", w.Origin.ID())
			e.Action = ledger.ActionReject
			e.Code = protocol.ErrNoResource
			f.journal.Record(e)
			continue
		}
		e.Action = ledger.ActionReturn
		e.Count = back.Count
		f.journal.Record(e)
		returned += back.Count
	}
	return returned
}
