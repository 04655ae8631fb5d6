// Package storage holds the virtual storage container: unbounded typed stock
// behind an admission filter, living in exactly one area while spawned.
//
// Containers are not safe for concurrent use. They are only touched from the
// host's simulation loop.
package storage

import (
	"fmt"

	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/ids"
	"deepstore.ai/internal/sim/model"
)

// Ground is the host's loose-item surface for one area.
type Ground interface {
	// Drop places s as a loose pile near a cell and returns it with its entity id.
	Drop(near model.Vec3i, s model.Stack) (model.Stack, bool)
	// Near lists loose piles within a Manhattan radius, nearest first.
	Near(pos model.Vec3i, radius int) []model.Stack
	// Take removes up to count units of a pile (count <= 0 takes all of it).
	Take(entityID string, count int) (model.Stack, bool)
}

type Config struct {
	Type string
	Pos  model.Vec3i
	// Size of the structure footprint; zero means a single cell.
	Size model.Vec3i

	Filter model.Filter
	Items  *catalogs.ItemCatalog

	ReclaimRadius  int
	AutoCollect    bool
	IncludeInTrade bool
}

type Container struct {
	typ  string
	pos  model.Vec3i
	size model.Vec3i

	area        model.AreaID
	ground      Ground
	spawned     bool
	operational bool

	stock  []model.Stack
	filter model.Filter
	items  *catalogs.ItemCatalog

	reclaimRadius  int
	autoCollect    bool
	includeInTrade bool
}

func New(cfg Config) *Container {
	size := cfg.Size
	if size.X <= 0 {
		size.X = 1
	}
	if size.Y <= 0 {
		size.Y = 1
	}
	if size.Z <= 0 {
		size.Z = 1
	}
	filter := cfg.Filter
	if filter == nil {
		filter = model.AllowAll
	}
	return &Container{
		typ:            cfg.Type,
		pos:            cfg.Pos,
		size:           size,
		operational:    true,
		filter:         filter,
		items:          cfg.Items,
		reclaimRadius:  cfg.ReclaimRadius,
		autoCollect:    cfg.AutoCollect,
		includeInTrade: cfg.IncludeInTrade,
	}
}

func (c *Container) ID() string { return ids.ContainerID(c.typ, c.pos.X, c.pos.Y, c.pos.Z) }

func (c *Container) Type() string         { return c.typ }
func (c *Container) Pos() model.Vec3i     { return c.pos }
func (c *Container) Area() model.AreaID   { return c.area }
func (c *Container) Spawned() bool        { return c.spawned }
func (c *Container) Operational() bool    { return c.operational }
func (c *Container) Filter() model.Filter { return c.filter }

// Live reports spawned && operational, the precondition of every stock query
// made on behalf of a host subsystem.
func (c *Container) Live() bool { return c.spawned && c.operational }

func (c *Container) AutoCollect() bool        { return c.autoCollect }
func (c *Container) SetAutoCollect(on bool)   { c.autoCollect = on }
func (c *Container) IncludeInTrade() bool     { return c.includeInTrade }
func (c *Container) SetIncludeInTrade(v bool) { c.includeInTrade = v }

// SetOperational mirrors the structure's power state.
func (c *Container) SetOperational(on bool) { c.operational = on }

func (c *Container) SetFilter(f model.Filter) {
	if f == nil {
		f = model.AllowAll
	}
	c.filter = f
}

// Occupies reports whether cell lies inside the structure footprint.
func (c *Container) Occupies(cell model.Vec3i) bool {
	return cell.X >= c.pos.X && cell.X < c.pos.X+c.size.X &&
		cell.Y >= c.pos.Y && cell.Y < c.pos.Y+c.size.Y &&
		cell.Z >= c.pos.Z && cell.Z < c.pos.Z+c.size.Z
}

// Spawn attaches the container to an area. Use registry.Place instead of
// calling this directly.
func (c *Container) Spawn(area model.AreaID, ground Ground) error {
	if c.spawned {
		return protocol.NewError(protocol.ErrAlreadyPlaced, fmt.Sprintf("%s already in %s", c.ID(), c.area))
	}
	if area == "" || ground == nil {
		return protocol.NewError(protocol.ErrBadRequest, "spawn needs an area and its ground")
	}
	c.area = area
	c.ground = ground
	c.spawned = true
	return nil
}

// Despawn detaches the container and drops its remaining stock on the ground
// in stack-limit piles. Units the ground refuses stay in stock.
func (c *Container) Despawn() []model.Stack {
	if !c.spawned {
		return nil
	}
	stock := c.stock
	c.stock = nil
	var piles []model.Stack
	for _, s := range stock {
		piles = append(piles, c.DropNear(s)...)
	}
	c.spawned = false
	c.ground = nil
	c.area = ""
	return piles
}

// Stock returns a copy of the stored stacks in storage order.
func (c *Container) Stock() []model.Stack {
	if len(c.stock) == 0 {
		return nil
	}
	out := make([]model.Stack, len(c.stock))
	copy(out, c.stock)
	return out
}

func (c *Container) Kinds() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range c.stock {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			out = append(out, s.Kind)
		}
	}
	return out
}

func (c *Container) StoredThingCount(kind string) int {
	return model.TotalOf(c.stock, kind)
}

// TryGetValue returns a representative stack of kind carrying the aggregate count.
func (c *Container) TryGetValue(kind string) (model.Stack, bool) {
	var out model.Stack
	for _, s := range c.stock {
		if s.Kind != kind || s.Count <= 0 {
			continue
		}
		if out.Kind == "" {
			out = model.Stack{Kind: kind, Freshness: s.Freshness}
		}
		out.Count += s.Count
	}
	return out, out.Count > 0
}

// TryRemove takes up to amount units of kind from one lot: the oldest stack of
// kind sets the freshness, and only stacks of that freshness are drawn from.
// Call again to reach the next lot.
func (c *Container) TryRemove(kind string, amount int) (model.Stack, bool) {
	if amount <= 0 {
		return model.Stack{}, false
	}
	var out model.Stack
	kept := c.stock[:0]
	for _, s := range c.stock {
		if s.Kind == kind && s.Count > 0 && amount > 0 {
			if out.Count == 0 {
				out = model.Stack{Kind: kind, Freshness: s.Freshness}
			}
			if s.SameLot(out) {
				n := min(s.Count, amount)
				s.Count -= n
				amount -= n
				out.Count += n
			}
		}
		if s.Count > 0 {
			kept = append(kept, s)
		}
	}
	c.stock = kept
	return out, out.Count > 0
}

// TryRemoveLots takes up to amount units of kind across lots, one stack per
// freshness in stock order.
func (c *Container) TryRemoveLots(kind string, amount int) []model.Stack {
	var out []model.Stack
	for amount > 0 {
		got, ok := c.TryRemove(kind, amount)
		if !ok {
			break
		}
		amount -= got.Count
		out = append(out, got)
	}
	return out
}

// TryRemoveMatching takes up to one stack limit from the first stored stack
// accepted by filter. A nil filter means the container's own filter.
func (c *Container) TryRemoveMatching(filter model.Filter) (model.Stack, bool) {
	if filter == nil {
		filter = c.filter
	}
	for i, s := range c.stock {
		if s.Count <= 0 || !filter.Allows(s.Kind) {
			continue
		}
		n := min(s.Count, c.items.StackLimit(s.Kind))
		c.stock[i].Count -= n
		if c.stock[i].Count == 0 {
			c.stock = append(c.stock[:i], c.stock[i+1:]...)
		}
		s.Count = n
		return s, true
	}
	return model.Stack{}, false
}

// CanAccept reports whether Add would admit kind right now.
func (c *Container) CanAccept(kind string) bool {
	return c.Live() && kind != "" && c.filter.Allows(kind)
}

// Add admits s when the container is live and the filter allows the kind.
func (c *Container) Add(s model.Stack) bool {
	if s.Empty() || !c.CanAccept(s.Kind) {
		return false
	}
	c.restore(s)
	return true
}

// restore puts units back without admission checks. Only used for units this
// container released itself.
func (c *Container) restore(s model.Stack) {
	if s.Empty() {
		return
	}
	s.EntityID = ""
	for i := range c.stock {
		if c.stock[i].SameLot(s) {
			c.stock[i].Count += s.Count
			return
		}
	}
	c.stock = append(c.stock, s)
}

// DropNear deposits s beside the container as stack-limit piles and returns
// the piles. Whatever the ground refuses is restored into stock.
func (c *Container) DropNear(s model.Stack) []model.Stack {
	if s.Empty() {
		return nil
	}
	if c.ground == nil {
		c.restore(s)
		return nil
	}
	limit := c.items.StackLimit(s.Kind)
	var piles []model.Stack
	for left := s.Count; left > 0; {
		n := left
		if n > limit {
			n = limit
		}
		left -= n
		chunk := model.Stack{Kind: s.Kind, Count: n, Freshness: s.Freshness}
		pile, ok := c.ground.Drop(c.pos, chunk)
		if !ok {
			chunk.Count += left
			c.restore(chunk)
			break
		}
		piles = append(piles, pile)
	}
	return piles
}

// Empty drops all stock beside the container and appends the piles to out.
// Containers not included in trade keep their stock.
func (c *Container) Empty(out []model.Stack) []model.Stack {
	if !c.includeInTrade || !c.spawned {
		return out
	}
	stock := c.stock
	c.stock = nil
	for _, s := range stock {
		out = append(out, c.DropNear(s)...)
	}
	return out
}

// Reclaim pulls admissible loose piles within the reclaim radius back into
// stock and returns the number of units taken. Nothing nearby is a no-op.
func (c *Container) Reclaim() int {
	if !c.Live() || c.ground == nil {
		return 0
	}
	total := 0
	for _, pile := range c.ground.Near(c.pos, c.reclaimRadius) {
		if pile.EntityID == "" || !c.CanAccept(pile.Kind) {
			continue
		}
		got, ok := c.ground.Take(pile.EntityID, 0)
		if !ok {
			continue
		}
		c.restore(got)
		total += got.Count
	}
	return total
}

// TakeBack picks a pile this container dropped back up into stock.
func (c *Container) TakeBack(entityID string) (model.Stack, bool) {
	if c.ground == nil || entityID == "" {
		return model.Stack{}, false
	}
	got, ok := c.ground.Take(entityID, 0)
	if !ok {
		return model.Stack{}, false
	}
	c.restore(got)
	return got, true
}
