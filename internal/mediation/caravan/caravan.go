// Package caravan empties containers while a caravan is being formed and
// restores auto-collection once forming ends.
package caravan

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage/registry"
)

type Mediator struct {
	reg     *registry.Registry
	journal *ledger.Journal
	log     *slog.Logger

	playerFaction string
}

func New(reg *registry.Registry, playerFaction string, j *ledger.Journal, log *slog.Logger) *Mediator {
	return &Mediator{reg: reg, playerFaction: playerFaction, journal: j, log: logging.WithComponent(log, "caravan")}
}

// Opened puts trade-enabled stock of area on the ground so it can be packed
// and stops every container of area from pulling it back in.
func (m *Mediator) Opened(area model.AreaID) []model.Stack {
	var piles []model.Stack
	for _, c := range m.reg.List(area) {
		if c.Live() {
			start := len(piles)
			piles = c.Empty(piles)
			for _, p := range piles[start:] {
				m.journal.Record(ledger.Entry{
					Hook:      string(host.EventCaravanOpen),
					Action:    ledger.ActionEmpty,
					Area:      area,
					Container: c.ID(),
					Kind:      p.Kind,
					Count:     p.Count,
					Note:      p.EntityID,
				})
			}
		}
		c.SetAutoCollect(false)
	}
	m.log.Info("caravan forming", "area", area, "piles", len(piles))
	return piles
}

// Stopped re-enables auto-collection and reclaims leftovers.
func (m *Mediator) Stopped(area model.AreaID) int {
	return m.restore(host.EventCaravanStop, area)
}

// Departed behaves like Stopped for player caravans.
func (m *Mediator) Departed(faction string, area model.AreaID) int {
	if faction != m.playerFaction {
		return 0
	}
	return m.restore(host.EventCaravanDepart, area)
}

func (m *Mediator) restore(ev host.Event, area model.AreaID) int {
	total := 0
	for _, c := range m.reg.List(area) {
		c.SetAutoCollect(true)
		n := c.Reclaim()
		if n == 0 {
			continue
		}
		total += n
		m.journal.Record(ledger.Entry{
			Hook:      string(ev),
			Action:    ledger.ActionReclaim,
			Area:      area,
			Container: c.ID(),
			Count:     n,
		})
	}
	return total
}
