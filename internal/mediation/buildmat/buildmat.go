// Package buildmat replaces the host's construction material menu with one
// that also offers materials held by containers in the build area.
package buildmat

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/storage/registry"
)

// RejectNoStuff is the message shown instead of an empty menu.
const RejectNoStuff = "NoStuffsToBuildWith"

type Option struct {
	Kind  string
	Label string
}

type Menu struct {
	// Handled is false when the host should build its own menu.
	Handled   bool
	Options   []Option
	Rejection string
	Code      string
}

type Resolver struct {
	reg     *registry.Registry
	items   *catalogs.ItemCatalog
	journal *ledger.Journal
	log     *slog.Logger

	// GodMode offers every compatible material regardless of stock.
	GodMode bool
}

func New(reg *registry.Registry, items *catalogs.ItemCatalog, j *ledger.Journal, log *slog.Logger) *Resolver {
	return &Resolver{reg: reg, items: items, journal: j, log: logging.WithComponent(log, "buildmat")}
}

// Prompt builds the material menu for pb. counted is the host's per-kind
// count of stock already on the map.
func (r *Resolver) Prompt(pb host.PendingBuild, counted map[string]int) Menu {
	if !pb.Def.MadeFromStuff() || !r.reg.Has(pb.Area) {
		return Menu{}
	}

	menu := Menu{Handled: true}
	seen := map[string]bool{}
	offer := func(kind string) {
		if seen[kind] {
			return
		}
		def, ok := r.items.Def(kind)
		if !ok || !def.CanMake(pb.Def) {
			return
		}
		seen[kind] = true
		menu.Options = append(menu.Options, Option{Kind: kind, Label: def.LabelCap()})
	}

	for _, kind := range r.items.Palette {
		if r.GodMode || counted[kind] > 0 {
			offer(kind)
		}
	}
	for _, c := range r.reg.Live(pb.Area) {
		for _, kind := range c.Kinds() {
			if c.StoredThingCount(kind) > 0 {
				offer(kind)
			}
		}
	}

	if len(menu.Options) == 0 {
		menu.Rejection = RejectNoStuff
		menu.Code = protocol.ErrNoStuff
		r.journal.Record(ledger.Entry{
			Hook:   string(host.EventBuildMaterial),
			Action: ledger.ActionReject,
			Area:   pb.Area,
			Code:   protocol.ErrNoStuff,
			Note:   pb.Def.ID,
		})
	}
	return menu
}

// Select records the chosen material on pb. It does not withdraw stock.
func (r *Resolver) Select(pb *host.PendingBuild, opt Option) {
	if pb == nil || opt.Kind == "" {
		return
	}
	pb.Stuff = opt.Kind
	pb.StuffChosen = true
	pb.Selected = true
	r.journal.Record(ledger.Entry{
		Hook:   string(host.EventBuildMaterial),
		Action: ledger.ActionSelect,
		Area:   pb.Area,
		Kind:   opt.Kind,
		Note:   pb.Def.ID,
	})
	r.log.Debug("material selected", "buildable", pb.Def.ID, "stuff", opt.Kind)
}
