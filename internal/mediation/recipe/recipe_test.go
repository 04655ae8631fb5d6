package recipe

import (
	"testing"

	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/mediation/mediationtest"
	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
)

func TestEightPlusFivePlusFive(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 5})
	f.Place(t, "A1", 1, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 5}, model.Stack{Kind: "STEEL", Count: 50})
	off := f.Place(t, "A1", 2, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 40})
	off.SetOperational(false)
	f.Place(t, "A2", 0, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 40})

	rc := New(f.Reg, f.Journal, nil)
	bill := host.Bill{ID: "bill1", Area: "A1", Recipe: f.Cats.Recipes.ByID["make_component"], TargetCount: 20}
	if got := rc.After(bill, 8); got != 18 {
		t.Fatalf("expected 18, got %d", got)
	}
	if got := rc.After(bill, 8); got != 18 {
		t.Fatalf("count must not mutate stock, got %d", got)
	}
}

func TestBillWithoutAreaCountsNatively(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "COMPONENT", Count: 5})
	rc := New(f.Reg, f.Journal, nil)

	if got := rc.After(host.Bill{ID: "orphan", Recipe: f.Cats.Recipes.ByID["make_component"]}, 3); got != 3 {
		t.Fatalf("expected native 3, got %d", got)
	}
	rej := f.Ledger.Filter(string(host.EventRecipeCount), ledger.ActionReject)
	if len(rej) != 1 || rej[0].Code != protocol.ErrMissingArea {
		t.Fatalf("expected missing area entry, got %#v", rej)
	}
	if got := rc.After(host.Bill{ID: "b", Area: "A7", Recipe: f.Cats.Recipes.ByID["make_component"]}, 3); got != 3 {
		t.Fatalf("area without containers must count natively, got %d", got)
	}
}
