// Package tally merges container stock into the host's periodic per-kind
// resource count.
package tally

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage/registry"
)

type Tally struct {
	reg     *registry.Registry
	items   *catalogs.ItemCatalog
	journal *ledger.Journal
	log     *slog.Logger
}

func New(reg *registry.Registry, items *catalogs.ItemCatalog, j *ledger.Journal, log *slog.Logger) *Tally {
	return &Tally{reg: reg, items: items, journal: j, log: logging.WithComponent(log, "tally")}
}

// Countable reports whether stack s belongs in a resource count.
func (t *Tally) Countable(s model.Stack) bool {
	if s.Empty() || s.Freshness.NotFresh() {
		return false
	}
	def, ok := t.items.Def(s.Kind)
	if !ok {
		t.log.Warn("stored kind missing from catalog", "kind", s.Kind)
		return false
	}
	return def.Storeable && def.Resource
}

// AfterRecount runs after the host rebuilt counts for the visible area. Each
// live container stack is added exactly once. Returns the units added.
func (t *Tally) AfterRecount(area model.AreaID, counts map[string]int) int {
	if counts == nil || area == "" {
		return 0
	}
	live := t.reg.Live(area)
	added := map[string]int{}
	total := 0
	for _, c := range live {
		for _, s := range c.Stock() {
			if !t.Countable(s) {
				continue
			}
			counts[s.Kind] += s.Count
			added[s.Kind] += s.Count
			total += s.Count
		}
	}
	t.journal.ObserveStock(area, len(live), added)
	if total > 0 {
		t.log.Debug("recount merged", "area", area, "containers", len(live), "units", total)
	}
	return total
}
