// Package memground is an in-memory loose-item surface for one area.
package memground

import (
	"sort"

	"deepstore.ai/internal/sim/ids"
	"deepstore.ai/internal/sim/model"
)

type pile struct {
	stack model.Stack
	pos   model.Vec3i
}

type Ground struct {
	piles map[string]*pile
	seq   *uint64

	// Full makes every Drop fail.
	Full bool
}

// New returns an empty ground. Grounds created with a shared counter hand out
// globally unique pile ids.
func New(seq *uint64) *Ground {
	if seq == nil {
		seq = new(uint64)
	}
	return &Ground{piles: map[string]*pile{}, seq: seq}
}

func (g *Ground) Drop(near model.Vec3i, s model.Stack) (model.Stack, bool) {
	if g.Full || s.Empty() {
		return model.Stack{}, false
	}
	return g.Put(near, s), true
}

// Put places a pile unconditionally.
func (g *Ground) Put(pos model.Vec3i, s model.Stack) model.Stack {
	*g.seq++
	s.EntityID = ids.PileID(*g.seq)
	g.piles[s.EntityID] = &pile{stack: s, pos: pos}
	return s
}

func (g *Ground) Near(pos model.Vec3i, radius int) []model.Stack {
	type hit struct {
		s    model.Stack
		dist int
	}
	var hits []hit
	for _, p := range g.piles {
		if d := model.Manhattan(p.pos, pos); d <= radius {
			hits = append(hits, hit{s: p.stack, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].s.EntityID < hits[j].s.EntityID
	})
	out := make([]model.Stack, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.s)
	}
	return out
}

func (g *Ground) Take(entityID string, count int) (model.Stack, bool) {
	p, ok := g.piles[entityID]
	if !ok {
		return model.Stack{}, false
	}
	if count <= 0 || count >= p.stack.Count {
		delete(g.piles, entityID)
		return p.stack, true
	}
	p.stack.Count -= count
	out := p.stack
	out.Count = count
	return out, true
}

func (g *Ground) Get(entityID string) (model.Stack, model.Vec3i, bool) {
	p, ok := g.piles[entityID]
	if !ok {
		return model.Stack{}, model.Vec3i{}, false
	}
	return p.stack, p.pos, true
}

// Piles lists every pile ordered by entity id.
func (g *Ground) Piles() []model.Stack {
	out := make([]model.Stack, 0, len(g.piles))
	for _, p := range g.piles {
		out = append(out, p.stack)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func (g *Ground) Total(kind string) int {
	n := 0
	for _, p := range g.piles {
		if p.stack.Kind == kind {
			n += p.stack.Count
		}
	}
	return n
}
