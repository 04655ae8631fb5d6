package memground

import (
	"testing"

	"deepstore.ai/internal/sim/model"
)

func TestNearOrdersByDistance(t *testing.T) {
	g := New(nil)
	far := g.Put(model.Vec3i{X: 3}, model.Stack{Kind: "WOOD", Count: 1})
	near := g.Put(model.Vec3i{X: 1}, model.Stack{Kind: "WOOD", Count: 2})
	g.Put(model.Vec3i{X: 9}, model.Stack{Kind: "WOOD", Count: 4})

	got := g.Near(model.Vec3i{}, 3)
	if len(got) != 2 || got[0].EntityID != near.EntityID || got[1].EntityID != far.EntityID {
		t.Fatalf("unexpected order: %#v", got)
	}
}

func TestTakePartialAndWhole(t *testing.T) {
	g := New(nil)
	p := g.Put(model.Vec3i{}, model.Stack{Kind: "STEEL", Count: 10})

	part, ok := g.Take(p.EntityID, 4)
	if !ok || part.Count != 4 || g.Total("STEEL") != 6 {
		t.Fatalf("partial take: %#v ok=%v left=%d", part, ok, g.Total("STEEL"))
	}
	rest, ok := g.Take(p.EntityID, 0)
	if !ok || rest.Count != 6 || len(g.Piles()) != 0 {
		t.Fatalf("whole take: %#v ok=%v", rest, ok)
	}
	if _, ok := g.Take(p.EntityID, 0); ok {
		t.Fatalf("expected missing pile")
	}
}

func TestSharedSequence(t *testing.T) {
	var seq uint64
	a, b := New(&seq), New(&seq)
	pa, _ := a.Drop(model.Vec3i{}, model.Stack{Kind: "WOOD", Count: 1})
	pb, _ := b.Drop(model.Vec3i{}, model.Stack{Kind: "WOOD", Count: 1})
	if pa.EntityID == pb.EntityID {
		t.Fatalf("expected unique ids across grounds, got %s twice", pa.EntityID)
	}
	b.Full = true
	if _, ok := b.Drop(model.Vec3i{}, model.Stack{Kind: "WOOD", Count: 1}); ok {
		t.Fatalf("expected full ground to refuse")
	}
}
