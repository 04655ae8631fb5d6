// Package recipe adds container stock to the host's "already produced"
// count used by do-until-N production bills.
package recipe

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/storage/registry"
)

type Counter struct {
	reg     *registry.Registry
	journal *ledger.Journal
	log     *slog.Logger
}

func New(reg *registry.Registry, j *ledger.Journal, log *slog.Logger) *Counter {
	return &Counter{reg: reg, journal: j, log: logging.WithComponent(log, "recipe")}
}

// After returns native plus the stored count of every recipe product across
// the live containers of the bill's area. A bill without an area is logged
// and counted natively.
func (rc *Counter) After(bill host.Bill, native int) int {
	if bill.Area == "" {
		rc.log.Warn("bill has no area, counting natively", "bill", bill.ID, "recipe", bill.Recipe.RecipeID)
		rc.journal.Record(ledger.Entry{
			Hook:   string(host.EventRecipeCount),
			Action: ledger.ActionReject,
			Code:   protocol.ErrMissingArea,
			Note:   bill.ID,
		})
		return native
	}
	if !rc.reg.Has(bill.Area) {
		return native
	}
	extra := 0
	live := rc.reg.Live(bill.Area)
	for _, out := range bill.Recipe.Outputs {
		for _, c := range live {
			extra += c.StoredThingCount(out.Item)
		}
	}
	if extra > 0 {
		rc.log.Debug("stored products counted", "bill", bill.ID, "native", native, "stored", extra)
	}
	return native + extra
}
