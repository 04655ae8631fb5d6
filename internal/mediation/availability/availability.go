// Package availability answers "is this need satisfiable anywhere" from
// container stock when the host's own answer is no, by dropping the stock
// next to the container so the host's hauling can reach it.
package availability

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage/registry"
)

type Resolver struct {
	reg     *registry.Registry
	items   *catalogs.ItemCatalog
	cache   host.AvailabilityCache
	journal *ledger.Journal
	log     *slog.Logger

	playerFaction string
}

func New(reg *registry.Registry, items *catalogs.ItemCatalog, cache host.AvailabilityCache, playerFaction string, j *ledger.Journal, log *slog.Logger) *Resolver {
	return &Resolver{
		reg:           reg,
		items:         items,
		cache:         cache,
		journal:       j,
		log:           logging.WithComponent(log, "availability"),
		playerFaction: playerFaction,
	}
}

// After runs once the host answered native for need on behalf of agent.
// Only player agents are helped. The first live container that can put the
// full count on the ground drops max(need, stack limit) units, capped at what
// it stores. Lots of different freshness are dropped as separate piles.
func (r *Resolver) After(need host.Need, agent host.Agent, native bool) bool {
	if native || agent.Faction != r.playerFaction || need.Kind == "" || need.Count <= 0 {
		return native
	}
	for _, c := range r.reg.Live(agent.Area) {
		if c.StoredThingCount(need.Kind) < need.Count {
			continue
		}
		toDrop := max(need.Count, r.items.StackLimit(need.Kind))
		var piles []model.Stack
		for _, lot := range c.TryRemoveLots(need.Kind, toDrop) {
			piles = append(piles, c.DropNear(lot)...)
		}
		dropped := model.TotalOf(piles, need.Kind)
		if dropped < need.Count {
			// The ground is full; whatever made it out goes back in.
			for _, p := range piles {
				c.TakeBack(p.EntityID)
			}
			r.log.Debug("no room to drop stored need", "container", c.ID(), "kind", need.Kind, "dropped", dropped)
			continue
		}
		r.journal.Record(ledger.Entry{
			Hook:      string(host.EventAvailability),
			Action:    ledger.ActionWithdraw,
			Area:      agent.Area,
			Container: c.ID(),
			Kind:      need.Kind,
			Count:     dropped,
			Note:      agent.ID,
		})
		r.cache.Remember(need, agent.Faction, true)
		r.journal.Record(ledger.Entry{
			Hook:      string(host.EventAvailability),
			Action:    ledger.ActionFlip,
			Area:      agent.Area,
			Container: c.ID(),
			Kind:      need.Kind,
		})
		r.log.Debug("need satisfied from storage", "kind", need.Kind, "need", need.Count, "dropped", dropped)
		return true
	}
	return native
}
