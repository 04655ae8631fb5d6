// Package repair supplies a spare part from storage when the host's repair
// job cannot find one on the map.
package repair

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/storage/registry"
)

type Supplier struct {
	reg     *registry.Registry
	journal *ledger.Journal
	log     *slog.Logger

	partKind string
}

func New(reg *registry.Registry, partKind string, j *ledger.Journal, log *slog.Logger) *Supplier {
	return &Supplier{reg: reg, partKind: partKind, journal: j, log: logging.WithComponent(log, "repair")}
}

// After runs when the native search for a part returned nativePick (empty
// when nothing was found). One part is dropped beside the first live
// container holding it and the native search is rerun. A dropped part the
// rerun does not pick goes back into its container.
func (s *Supplier) After(agent host.Agent, nativePick string, rerun host.PartSearch) string {
	if nativePick != "" || rerun == nil || s.partKind == "" {
		return nativePick
	}
	for _, c := range s.reg.Live(agent.Area) {
		got, ok := c.TryRemove(s.partKind, 1)
		if !ok {
			continue
		}
		piles := c.DropNear(got)
		if len(piles) == 0 {
			return nativePick
		}
		pile := piles[0]
		s.journal.Record(ledger.Entry{
			Hook:      string(host.EventRepairPartSearch),
			Action:    ledger.ActionWithdraw,
			Area:      agent.Area,
			Container: c.ID(),
			Kind:      pile.Kind,
			Count:     pile.Count,
			Note:      pile.EntityID,
		})

		picked, found := rerun()
		if found && picked == pile.EntityID {
			s.journal.Record(ledger.Entry{
				Hook:      string(host.EventRepairPartSearch),
				Action:    ledger.ActionConsume,
				Area:      agent.Area,
				Container: c.ID(),
				Kind:      pile.Kind,
				Count:     pile.Count,
				Note:      pile.EntityID,
			})
			return picked
		}
		if back, ok := c.TakeBack(pile.EntityID); ok {
			s.journal.Record(ledger.Entry{
				Hook:      string(host.EventRepairPartSearch),
				Action:    ledger.ActionReturn,
				Area:      agent.Area,
				Container: c.ID(),
				Kind:      back.Kind,
				Count:     back.Count,
				Note:      pile.EntityID,
			})
		} else {
			s.log.Warn("dropped part vanished before take back", "pile", pile.EntityID)
		}
		if found {
			return picked
		}
		return nativePick
	}
	return nativePick
}
