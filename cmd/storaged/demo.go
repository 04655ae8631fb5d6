package main

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/sim/simhost"
	"deepstore.ai/internal/storage"
)

const demoArea model.AreaID = "COLONY"

// demoColony drives one hook per tick in rotation so a running daemon
// produces a steady ledger.
type demoColony struct {
	log   *slog.Logger
	pawn  host.Agent
	gen   host.Refuelable
	bill  host.Bill
	wall  host.PendingBuild
	store *storage.Container
	tick  int
}

func seedDemo(h *simhost.Host, logger *slog.Logger) (*demoColony, error) {
	cats := h.Catalogs()
	h.SetVisible(demoArea)

	store, err := h.Place(demoArea, storage.Config{Type: "DEEP_STORAGE", Pos: model.Vec3i{X: 0}, AutoCollect: true, IncludeInTrade: true})
	if err != nil {
		return nil, err
	}
	fuelStore, err := h.Place(demoArea, storage.Config{
		Type:        "DEEP_STORAGE",
		Pos:         model.Vec3i{X: 6},
		Filter:      cats.Items.FilterCategories("FUEL"),
		AutoCollect: true,
	})
	if err != nil {
		return nil, err
	}
	for _, s := range []model.Stack{
		{Kind: "STEEL", Count: 300},
		{Kind: "WOOD", Count: 120},
		{Kind: "COMPONENT", Count: 12},
		{Kind: "PENOXYCYLINE", Count: 20},
		{Kind: "HERBAL_MEDICINE", Count: 15},
	} {
		store.Add(s)
	}
	fuelStore.Add(model.Stack{Kind: "CHEMFUEL", Count: 400})

	return &demoColony{
		log:   logging.WithComponent(logger, "demo"),
		pawn:  host.Agent{ID: "pawn_1", Area: demoArea, Faction: "PLAYER", Pos: model.Vec3i{X: 3}},
		gen:   host.Refuelable{ID: "GEN_1", Area: demoArea, Pos: model.Vec3i{X: 8}, Def: cats.Buildables.ByID["CHEMFUEL_GENERATOR"]},
		bill:  host.Bill{ID: "BILL_1", Area: demoArea, Recipe: cats.Recipes.ByID["make_component"], TargetCount: 20},
		wall:  host.PendingBuild{Area: demoArea, Def: cats.Buildables.ByID["WALL"]},
		store: store,
	}, nil
}

func (d *demoColony) step(h *simhost.Host) {
	d.tick++
	switch d.tick % 8 {
	case 0:
		counts := h.Recount()
		d.log.Debug("recount", "steel", counts["STEEL"])
	case 1:
		if got, ok := h.Refuel(d.pawn, d.gen); ok {
			d.log.Debug("refueled", "kind", got.Kind, "count", got.Count)
		}
	case 2:
		d.log.Debug("bill", "produced", h.Produced(d.bill), "satisfied", h.BillSatisfied(d.bill))
	case 3:
		menu := h.BuildMenu(d.wall)
		if len(menu.Options) > 0 {
			pb := d.wall
			h.ChooseMaterial(&pb, menu.Options[0])
		}
	case 4:
		ts := h.OpenTrade(d.pawn)
		for _, p := range ts.Sellable {
			if p.Kind == "STEEL" {
				h.Sell(ts, p.EntityID, 5)
				break
			}
		}
		h.CloseTrade(ts, false)
	case 5:
		h.MedicalDraw(d.pawn, host.GroupMedicine)
	case 6:
		if _, ok := h.RepairPart(d.pawn); !ok {
			d.log.Debug("no spare part")
		}
	case 7:
		h.Available(d.pawn, host.Need{Kind: "WOOD", Count: 10})
		cell := host.Target{Area: demoArea, Cell: d.store.Pos(), Valid: true}
		h.Reserve(d.pawn.ID, cell)
		h.Release(d.pawn.ID, cell)
	}
}
