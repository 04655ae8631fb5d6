package tally

import (
	"testing"

	"deepstore.ai/internal/mediation/mediationtest"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
)

func TestAfterRecountAddsLiveFreshResources(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{},
		model.Stack{Kind: "STEEL", Count: 40},
		model.Stack{Kind: "RICE", Count: 10, Freshness: model.Spoiled},
		model.Stack{Kind: "RICE", Count: 6},
		model.Stack{Kind: "SHORT_BOW", Count: 1},
	)
	off := f.Place(t, "A1", 2, storage.Config{}, model.Stack{Kind: "STEEL", Count: 99})
	off.SetOperational(false)
	f.Place(t, "A2", 0, storage.Config{}, model.Stack{Kind: "STEEL", Count: 500})

	tl := New(f.Reg, &f.Cats.Items, f.Journal, nil)
	counts := map[string]int{"STEEL": 5}
	if added := tl.AfterRecount("A1", counts); added != 46 {
		t.Fatalf("expected 46 units added, got %d", added)
	}
	if counts["STEEL"] != 45 || counts["RICE"] != 6 {
		t.Fatalf("unexpected counts %#v", counts)
	}
	if _, ok := counts["SHORT_BOW"]; ok {
		t.Fatalf("non-resource kinds must not be counted")
	}
}

func TestRepeatedRecountDoesNotDrift(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "WOOD", Count: 30})
	f.Place(t, "A1", 1, storage.Config{}, model.Stack{Kind: "WOOD", Count: 12})
	tl := New(f.Reg, &f.Cats.Items, f.Journal, nil)

	recount := func() map[string]int {
		counts := map[string]int{"WOOD": 3} // native pass rebuilds from scratch
		tl.AfterRecount("A1", counts)
		return counts
	}
	first, second := recount(), recount()
	if first["WOOD"] != 45 || second["WOOD"] != first["WOOD"] {
		t.Fatalf("expected stable 45, got %d then %d", first["WOOD"], second["WOOD"])
	}
}

func TestAfterRecountIgnoresNilSinkAndUnknownKinds(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "MYSTERY", Count: 3})
	tl := New(f.Reg, &f.Cats.Items, f.Journal, nil)
	if tl.AfterRecount("A1", nil) != 0 {
		t.Fatalf("nil sink must be a no-op")
	}
	counts := map[string]int{}
	if tl.AfterRecount("A1", counts) != 0 || len(counts) != 0 {
		t.Fatalf("unknown kinds must be skipped, got %#v", counts)
	}
}
