package simhost

import (
	"context"
	"testing"
	"time"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/mediation/mediationtest"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/sim/tuning"
	"deepstore.ai/internal/storage"
)

func newHost(t *testing.T) (*Host, *ledger.Memory) {
	t.Helper()
	mem := &ledger.Memory{}
	h, err := New(Config{
		Catalogs: mediationtest.Catalogs(t),
		Tuning:   tuning.Defaults(),
		Journal:  ledger.NewJournal(ledger.WithSink(mem)),
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	h.SetVisible("A1")
	return h, mem
}

func place(t *testing.T, h *Host, area model.AreaID, x int, cfg storage.Config, stock ...model.Stack) *storage.Container {
	t.Helper()
	cfg.Type = "DEEP_STORAGE"
	cfg.Pos = model.Vec3i{X: x}
	c, err := h.Place(area, cfg)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	for _, s := range stock {
		if !c.Add(s) {
			t.Fatalf("add %#v refused", s)
		}
	}
	return c
}

var player = host.Agent{ID: "pawn1", Area: "A1", Faction: "PLAYER"}

func TestTradeScenario(t *testing.T) {
	h, mem := newHost(t)
	c := place(t, h, "A1", 0, storage.Config{IncludeInTrade: true}, model.Stack{Kind: "STEEL", Count: 50})

	ts := h.OpenTrade(player)
	if ts.ID == "" {
		t.Fatalf("expected a trade session id")
	}
	if model.TotalOf(ts.Sellable, "STEEL") != 50 || c.StoredThingCount("STEEL") != 0 {
		t.Fatalf("expected stock on the table: sellable=%v stored=%d", ts.Sellable, c.StoredThingCount("STEEL"))
	}

	// Auto-collect must not pull the table back in mid-trade.
	h.Step()
	if c.StoredThingCount("STEEL") != 0 {
		t.Fatalf("stock reclaimed during an open trade")
	}

	if _, ok := h.Sell(ts, ts.Sellable[0].EntityID, 30); !ok {
		t.Fatalf("sell failed")
	}
	h.CloseTrade(ts, false)

	if got := c.StoredThingCount("STEEL"); got != 20 {
		t.Fatalf("stored=%d want 20", got)
	}
	if h.Total("STEEL") != 20 {
		t.Fatalf("loose steel left behind: total=%d", h.Total("STEEL"))
	}
	emptied := mem.Units("trade_sellable", ledger.ActionEmpty)
	sold := mem.Units("trade_close", ledger.ActionConsume)
	reclaimed := mem.Units("trade_close", ledger.ActionReclaim)
	if emptied != 50 || sold != 30 || reclaimed != 20 {
		t.Fatalf("ledger emptied=%d sold=%d reclaimed=%d", emptied, sold, reclaimed)
	}
}

func TestCancelledTradeStillSweeps(t *testing.T) {
	h, _ := newHost(t)
	c := place(t, h, "A1", 0, storage.Config{IncludeInTrade: true}, model.Stack{Kind: "CLOTH", Count: 60})

	ts := h.OpenTrade(player)
	h.CloseTrade(ts, true)
	if c.StoredThingCount("CLOTH") != 60 {
		t.Fatalf("cancelled trade lost stock: %d", c.StoredThingCount("CLOTH"))
	}
	h.CloseTrade(ts, true)
	if c.StoredThingCount("CLOTH") != 60 {
		t.Fatalf("second close must be a no-op")
	}
}

func TestBuildMenuScenario(t *testing.T) {
	h, _ := newHost(t)
	h.Scatter("A1", model.Vec3i{X: 40}, model.Stack{Kind: "WOOD", Count: 20})
	place(t, h, "A1", 0, storage.Config{}, model.Stack{Kind: "STEEL", Count: 10})
	place(t, h, "A1", 1, storage.Config{}, model.Stack{Kind: "STEEL", Count: 10})

	pb := host.PendingBuild{Area: "A1", Def: h.Catalogs().Buildables.ByID["WALL"]}
	menu := h.BuildMenu(pb)
	steel := 0
	wood := 0
	for _, o := range menu.Options {
		switch o.Kind {
		case "STEEL":
			steel++
		case "WOOD":
			wood++
		}
	}
	if steel != 1 || wood != 1 {
		t.Fatalf("unexpected menu %#v", menu.Options)
	}
	for _, o := range menu.Options {
		if o.Kind == "STEEL" {
			h.ChooseMaterial(&pb, o)
		}
	}
	if pb.Stuff != "STEEL" || !pb.StuffChosen {
		t.Fatalf("selection not applied: %#v", pb)
	}
}

func TestRecipeCountScenario(t *testing.T) {
	h, _ := newHost(t)
	h.Scatter("A1", model.Vec3i{X: 40}, model.Stack{Kind: "COMPONENT", Count: 8})
	place(t, h, "A1", 0, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 5})
	place(t, h, "A1", 1, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 5})

	bill := host.Bill{ID: "B1", Area: "A1", Recipe: h.Catalogs().Recipes.ByID["make_component"], TargetCount: 18}
	if got := h.Produced(bill); got != 18 {
		t.Fatalf("produced=%d want 18", got)
	}
	if !h.BillSatisfied(bill) {
		t.Fatalf("bill should be satisfied")
	}
}

func TestRefuelScenario(t *testing.T) {
	h, mem := newHost(t)
	first := place(t, h, "A1", 0, storage.Config{}, model.Stack{Kind: "CHEMFUEL", Count: 20})
	second := place(t, h, "A1", 10, storage.Config{}, model.Stack{Kind: "CHEMFUEL", Count: 30})

	target := host.Refuelable{ID: "GEN1", Area: "A1", Pos: model.Vec3i{X: 5}, Def: h.Catalogs().Buildables.ByID["CHEMFUEL_GENERATOR"]}
	got, ok := h.Refuel(player, target)
	if !ok || got.Kind != "CHEMFUEL" || got.Count != 20 {
		t.Fatalf("refuel got %#v ok=%v", got, ok)
	}
	if first.StoredThingCount("CHEMFUEL") != 0 || second.StoredThingCount("CHEMFUEL") != 30 {
		t.Fatalf("first=%d second=%d", first.StoredThingCount("CHEMFUEL"), second.StoredThingCount("CHEMFUEL"))
	}
	if n := len(h.Ground("A1").Piles()); n != 0 {
		t.Fatalf("loose piles left: %d", n)
	}
	w := mem.Units("fuel_search", ledger.ActionWithdraw)
	r := mem.Units("fuel_search", ledger.ActionReturn)
	c := mem.Units("fuel_search", ledger.ActionConsume)
	if w != r+c || c != 20 {
		t.Fatalf("withdraw=%d return=%d consume=%d", w, r, c)
	}
}

func TestAvailabilityFlipsAndCaches(t *testing.T) {
	h, _ := newHost(t)
	c := place(t, h, "A1", 0, storage.Config{}, model.Stack{Kind: "STEEL", Count: 40})

	need := host.Need{Kind: "STEEL", Count: 10}
	if !h.Available(player, need) {
		t.Fatalf("expected availability from storage")
	}
	if ok, known := h.Cached(need, player.Faction); !ok || !known {
		t.Fatalf("cache not updated: ok=%v known=%v", ok, known)
	}
	if c.StoredThingCount("STEEL") != 0 || h.Ground("A1").Total("STEEL") != 40 {
		t.Fatalf("expected the stock dropped beside the container")
	}

	visitor := host.Agent{ID: "v1", Area: "A1", Faction: "VISITOR"}
	if h.Available(visitor, host.Need{Kind: "PLASTEEL", Count: 1}) {
		t.Fatalf("non-player need must stay native")
	}
}

func TestMedicalDrawOffersStorage(t *testing.T) {
	h, _ := newHost(t)
	place(t, h, "A1", 0, storage.Config{},
		model.Stack{Kind: "PENOXYCYLINE", Count: 10},
		model.Stack{Kind: "BIONIC_ARM", Count: 1},
		model.Stack{Kind: "STEEL", Count: 5},
	)

	drugs := h.MedicalDraw(player, host.GroupDrugs)
	if model.TotalOf(drugs, "PENOXYCYLINE") != 10 || model.TotalOf(drugs, "STEEL") != 0 {
		t.Fatalf("unexpected drug listing %#v", drugs)
	}
	parts := h.MedicalDraw(player, host.GroupBodyParts)
	if model.TotalOf(parts, "BIONIC_ARM") != 1 || model.TotalOf(parts, "PENOXYCYLINE") != 0 {
		t.Fatalf("unexpected body part listing %#v", parts)
	}
	// Outside a draw the listing is native only.
	if got := h.Dispatcher().ListQuery(nil, host.GroupDrugs, nil); len(got) != 0 {
		t.Fatalf("listing outside a draw must not include storage: %#v", got)
	}
}

func TestRepairPartFromStorage(t *testing.T) {
	h, mem := newHost(t)
	c := place(t, h, "A1", 0, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 3})

	got, ok := h.RepairPart(player)
	if !ok || got.Kind != "COMPONENT" || got.Count != 1 {
		t.Fatalf("repair part got %#v ok=%v", got, ok)
	}
	if c.StoredThingCount("COMPONENT") != 2 || h.Total("COMPONENT") != 2 {
		t.Fatalf("stored=%d total=%d", c.StoredThingCount("COMPONENT"), h.Total("COMPONENT"))
	}
	if mem.Units("repair_part_search", ledger.ActionConsume) != 1 {
		t.Fatalf("expected one consumed part")
	}
}

func TestReservationBypassesContainerCells(t *testing.T) {
	h, _ := newHost(t)
	place(t, h, "A1", 0, storage.Config{})

	onContainer := host.Target{Area: "A1", Cell: model.Vec3i{}, Valid: true}
	if !h.Reserve("p1", onContainer) || !h.Reserve("p2", onContainer) || !h.Reserve("p1", onContainer) {
		t.Fatalf("container cells must always be reservable")
	}
	if _, ok := h.ReservedBy("A1", model.Vec3i{}); ok {
		t.Fatalf("container cell must not enter the native table")
	}

	floor := host.Target{Area: "A1", Cell: model.Vec3i{X: 5}, Valid: true}
	if !h.Reserve("p1", floor) {
		t.Fatalf("first floor reservation should succeed")
	}
	if h.CanReserve("p2", floor) || h.Reserve("p2", floor) {
		t.Fatalf("floor cell is contended")
	}
	h.Release("p1", floor)
	if !h.Reserve("p2", floor) {
		t.Fatalf("released cell should be reservable")
	}
}

func TestRecountMergesVisibleArea(t *testing.T) {
	h, _ := newHost(t)
	h.Scatter("A1", model.Vec3i{X: 40}, model.Stack{Kind: "STEEL", Count: 4})
	place(t, h, "A1", 0, storage.Config{}, model.Stack{Kind: "STEEL", Count: 6})
	place(t, h, "A2", 0, storage.Config{}, model.Stack{Kind: "STEEL", Count: 100})

	counts := h.Recount()
	if counts["STEEL"] != 10 {
		t.Fatalf("counts=%v want STEEL=10", counts)
	}
	if h.Counts()["STEEL"] != 10 {
		t.Fatalf("stored counts mismatch")
	}
}

func TestCaravanFormingScenario(t *testing.T) {
	h, _ := newHost(t)
	c := place(t, h, "A1", 0, storage.Config{IncludeInTrade: true, AutoCollect: true}, model.Stack{Kind: "STEEL", Count: 40})

	piles := h.FormCaravan("A1")
	if model.TotalOf(piles, "STEEL") != 40 || c.AutoCollect() {
		t.Fatalf("forming should empty and pause auto-collect: piles=%v auto=%v", piles, c.AutoCollect())
	}
	h.Step()
	if c.StoredThingCount("STEEL") != 0 {
		t.Fatalf("paused container pulled stock back")
	}
	if _, ok := h.Pack("A1", piles[0].EntityID, 10); !ok {
		t.Fatalf("pack failed")
	}
	h.StopCaravan("A1")
	if !c.AutoCollect() || c.StoredThingCount("STEEL") != 30 {
		t.Fatalf("stop should resume: auto=%v stored=%d", c.AutoCollect(), c.StoredThingCount("STEEL"))
	}
}

func TestStepAutoCollects(t *testing.T) {
	h, mem := newHost(t)
	c := place(t, h, "A1", 0, storage.Config{AutoCollect: true})
	h.Scatter("A1", model.Vec3i{X: 1}, model.Stack{Kind: "WOOD", Count: 5})
	h.Scatter("A1", model.Vec3i{X: 30}, model.Stack{Kind: "WOOD", Count: 7})

	h.Step()
	if c.StoredThingCount("WOOD") != 5 || h.Tick() != 1 {
		t.Fatalf("stored=%d tick=%d", c.StoredThingCount("WOOD"), h.Tick())
	}
	if mem.Units("auto_collect", ledger.ActionReclaim) != 5 {
		t.Fatalf("auto collect not journaled")
	}
}

func TestRunExecutesOnLoop(t *testing.T) {
	h, _ := newHost(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	var placed string
	if err := h.Do(callCtx, func(h *Host) {
		c, err := h.Place("A1", storage.Config{Type: "DEEP_STORAGE"})
		if err == nil {
			placed = c.ID()
		}
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if placed == "" {
		t.Fatalf("expected a placed container")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
