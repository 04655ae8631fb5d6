package buildmat

import (
	"testing"

	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/mediation/mediationtest"
	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
)

func TestMenuOffersContainerOnlyMaterial(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "WOOD", Count: 12})
	r := New(f.Reg, &f.Cats.Items, f.Journal, nil)
	pb := host.PendingBuild{Area: "A1", Def: f.Cats.Buildables.ByID["WALL"]}

	menu := r.Prompt(pb, map[string]int{"WOOD": 0})
	if !menu.Handled || len(menu.Options) != 1 || menu.Options[0].Kind != "WOOD" || menu.Options[0].Label != "Wood" {
		t.Fatalf("expected one WOOD option, got %#v", menu)
	}
	r.Select(&pb, menu.Options[0])
	if pb.Stuff != "WOOD" || !pb.StuffChosen || !pb.Selected {
		t.Fatalf("selection not applied: %#v", pb)
	}
	if len(f.Ledger.Filter("", ledger.ActionSelect)) != 1 {
		t.Fatalf("expected select entry")
	}
}

func TestMenuMergesAndDedupes(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{},
		model.Stack{Kind: "STEEL", Count: 3},
		model.Stack{Kind: "CLOTH", Count: 9},
		model.Stack{Kind: "CHEMFUEL", Count: 9},
	)
	f.Place(t, "A1", 1, storage.Config{}, model.Stack{Kind: "GRANITE_BLOCKS", Count: 5})
	r := New(f.Reg, &f.Cats.Items, f.Journal, nil)
	pb := host.PendingBuild{Area: "A1", Def: f.Cats.Buildables.ByID["WALL"]}

	menu := r.Prompt(pb, map[string]int{"STEEL": 4, "WOOD": 2})
	var kinds []string
	for _, o := range menu.Options {
		kinds = append(kinds, o.Kind)
	}
	want := []string{"STEEL", "WOOD", "GRANITE_BLOCKS"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestMenuRejectsWhenNothingFits(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "CLOTH", Count: 20})
	r := New(f.Reg, &f.Cats.Items, f.Journal, nil)

	menu := r.Prompt(host.PendingBuild{Area: "A1", Def: f.Cats.Buildables.ByID["WALL"]}, nil)
	if !menu.Handled || menu.Rejection != RejectNoStuff || menu.Code != protocol.ErrNoStuff || len(menu.Options) != 0 {
		t.Fatalf("expected rejection, got %#v", menu)
	}
}

func TestMenuDefersToNative(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{}, model.Stack{Kind: "WOOD", Count: 1})
	r := New(f.Reg, &f.Cats.Items, f.Journal, nil)

	if r.Prompt(host.PendingBuild{Area: "A1", Def: f.Cats.Buildables.ByID["DEEP_STORAGE"]}, nil).Handled {
		t.Fatalf("buildables without stuff must defer")
	}
	if r.Prompt(host.PendingBuild{Area: "A9", Def: f.Cats.Buildables.ByID["WALL"]}, nil).Handled {
		t.Fatalf("areas without containers must defer")
	}
}

func TestGodModeListsEverything(t *testing.T) {
	f := mediationtest.New(t)
	f.Place(t, "A1", 0, storage.Config{})
	r := New(f.Reg, &f.Cats.Items, f.Journal, nil)
	r.GodMode = true

	menu := r.Prompt(host.PendingBuild{Area: "A1", Def: f.Cats.Buildables.ByID["BED"]}, nil)
	if len(menu.Options) != 4 { // CLOTH, PLASTEEL, STEEL, WOOD
		t.Fatalf("expected 4 options, got %#v", menu.Options)
	}
}
