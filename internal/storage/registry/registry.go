// Package registry indexes live storage containers per area.
//
// Insertion order is preserved and is the tie-break for every "first
// container that matches" decision made by the interceptors.
package registry

import (
	"fmt"

	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
)

type Registry struct {
	areas  []model.AreaID
	byArea map[model.AreaID][]*storage.Container
}

func New() *Registry {
	return &Registry{byArea: map[model.AreaID][]*storage.Container{}}
}

// Place spawns c into area and registers it at the end of the area's order.
func (r *Registry) Place(c *storage.Container, area model.AreaID, ground storage.Ground) error {
	if c == nil {
		return protocol.NewError(protocol.ErrBadRequest, "nil container")
	}
	if err := c.Spawn(area, ground); err != nil {
		return fmt.Errorf("place %s: %w", c.ID(), err)
	}
	if _, ok := r.byArea[area]; !ok {
		r.areas = append(r.areas, area)
	}
	r.byArea[area] = append(r.byArea[area], c)
	return nil
}

// Remove unregisters c and despawns it, returning the piles its stock left behind.
func (r *Registry) Remove(c *storage.Container) ([]model.Stack, error) {
	if c == nil || !c.Spawned() {
		return nil, protocol.NewError(protocol.ErrNotPlaced, "container is not placed")
	}
	area := c.Area()
	list := r.byArea[area]
	idx := -1
	for i, x := range list {
		if x == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, protocol.NewError(protocol.ErrNotPlaced, fmt.Sprintf("%s not registered in %s", c.ID(), area))
	}
	list = append(list[:idx:idx], list[idx+1:]...)
	if len(list) == 0 {
		r.dropArea(area)
	} else {
		r.byArea[area] = list
	}
	return c.Despawn(), nil
}

// UnloadArea removes every container of area.
func (r *Registry) UnloadArea(area model.AreaID) []model.Stack {
	list := r.byArea[area]
	r.dropArea(area)
	var piles []model.Stack
	for _, c := range list {
		piles = append(piles, c.Despawn()...)
	}
	return piles
}

func (r *Registry) dropArea(area model.AreaID) {
	delete(r.byArea, area)
	for i, a := range r.areas {
		if a == area {
			r.areas = append(r.areas[:i:i], r.areas[i+1:]...)
			break
		}
	}
}

// Has reports whether area holds any spawned container.
func (r *Registry) Has(area model.AreaID) bool {
	return len(r.byArea[area]) > 0
}

// List returns the spawned containers of area in insertion order.
// Operational filtering is left to the caller.
func (r *Registry) List(area model.AreaID) []*storage.Container {
	list := r.byArea[area]
	if len(list) == 0 {
		return nil
	}
	out := make([]*storage.Container, len(list))
	copy(out, list)
	return out
}

// Live returns the spawned and operational containers of area.
func (r *Registry) Live(area model.AreaID) []*storage.Container {
	var out []*storage.Container
	for _, c := range r.byArea[area] {
		if c.Live() {
			out = append(out, c)
		}
	}
	return out
}

// All enumerates every area in registration order, then each area's
// containers in insertion order.
func (r *Registry) All() []*storage.Container {
	var out []*storage.Container
	for _, a := range r.areas {
		out = append(out, r.byArea[a]...)
	}
	return out
}

func (r *Registry) Areas() []model.AreaID {
	out := make([]model.AreaID, len(r.areas))
	copy(out, r.areas)
	return out
}

// At returns the container whose footprint covers cell, operational or not.
func (r *Registry) At(area model.AreaID, cell model.Vec3i) (*storage.Container, bool) {
	for _, c := range r.byArea[area] {
		if c.Occupies(cell) {
			return c, true
		}
	}
	return nil, false
}

func (r *Registry) Lookup(id string) (*storage.Container, bool) {
	for _, a := range r.areas {
		for _, c := range r.byArea[a] {
			if c.ID() == id {
				return c, true
			}
		}
	}
	return nil, false
}

// Count returns the number of spawned containers across all areas.
func (r *Registry) Count() int {
	n := 0
	for _, list := range r.byArea {
		n += len(list)
	}
	return n
}
