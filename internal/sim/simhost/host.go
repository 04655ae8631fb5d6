// Package simhost is an in-memory host. It owns loose ground piles, the
// reservation table, resource counts and the availability cache, and calls
// the mediation dispatcher at every extension point. All state belongs to
// the loop goroutine; use Do from other goroutines.
package simhost

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/hooks"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/sim/tuning"
	"deepstore.ai/internal/storage"
	"deepstore.ai/internal/storage/memground"
	"deepstore.ai/internal/storage/registry"
)

// searchRadius bounds the native pile searches.
const searchRadius = 64

var ErrStopped = errors.New("host stopped")

type Config struct {
	Catalogs   *catalogs.Catalogs
	Tuning     tuning.Tuning
	Journal    *ledger.Journal
	Logger     *slog.Logger
	TickRateHz int

	// OnTick runs on the loop goroutine after every step.
	OnTick func(h *Host)
}

type cellKey struct {
	area model.AreaID
	cell model.Vec3i
}

type availKey struct {
	need    host.Need
	faction string
}

type Host struct {
	cfg     Config
	cats    *catalogs.Catalogs
	reg     *registry.Registry
	disp    *hooks.Dispatcher
	journal *ledger.Journal
	log     *slog.Logger

	seq      uint64
	grounds  map[model.AreaID]*memground.Ground
	visible  model.AreaID
	reserved map[cellKey]string
	counts   map[string]int
	avail    map[availKey]bool
	trading  map[model.AreaID]int
	tick     uint64

	exec chan func()
}

func New(cfg Config) (*Host, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("simhost: nil catalogs")
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	h := &Host{
		cfg:      cfg,
		cats:     cfg.Catalogs,
		reg:      registry.New(),
		journal:  cfg.Journal,
		log:      logging.WithComponent(cfg.Logger, "simhost"),
		grounds:  map[model.AreaID]*memground.Ground{},
		reserved: map[cellKey]string{},
		counts:   map[string]int{},
		avail:    map[availKey]bool{},
		trading:  map[model.AreaID]int{},
		exec:     make(chan func(), 64),
	}
	d, err := hooks.New(hooks.Config{
		Registry: h.reg,
		Catalogs: cfg.Catalogs,
		Tuning:   cfg.Tuning,
		Journal:  cfg.Journal,
		Logger:   cfg.Logger,
		Cache:    h,
		Visible:  h.Visible,
	})
	if err != nil {
		return nil, err
	}
	h.disp = d
	return h, nil
}

func (h *Host) Registry() *registry.Registry  { return h.reg }
func (h *Host) Dispatcher() *hooks.Dispatcher { return h.disp }
func (h *Host) Journal() *ledger.Journal      { return h.journal }
func (h *Host) Catalogs() *catalogs.Catalogs  { return h.cats }
func (h *Host) Tick() uint64                  { return h.tick }
func (h *Host) Visible() model.AreaID         { return h.visible }
func (h *Host) SetVisible(area model.AreaID)  { h.visible = area }
func (h *Host) Counts() map[string]int        { return copyCounts(h.counts) }

func (h *Host) items() *catalogs.ItemCatalog { return &h.cats.Items }

// Ground returns the loose piles of area, creating it on first use.
func (h *Host) Ground(area model.AreaID) *memground.Ground {
	g, ok := h.grounds[area]
	if !ok {
		g = memground.New(&h.seq)
		h.grounds[area] = g
	}
	return g
}

// Place builds a container from cfg and spawns it into area.
func (h *Host) Place(area model.AreaID, cfg storage.Config) (*storage.Container, error) {
	if cfg.Items == nil {
		cfg.Items = h.items()
	}
	if cfg.ReclaimRadius == 0 {
		cfg.ReclaimRadius = h.cfg.Tuning.ReclaimRadius
	}
	c := storage.New(cfg)
	if err := h.reg.Place(c, area, h.Ground(area)); err != nil {
		return nil, err
	}
	h.log.Info("container placed", "container", c.ID(), "area", area)
	return c, nil
}

// Deconstruct despawns c; its stock is left on the ground.
func (h *Host) Deconstruct(c *storage.Container) ([]model.Stack, error) {
	return h.reg.Remove(c)
}

// Scatter puts a loose pile at pos.
func (h *Host) Scatter(area model.AreaID, pos model.Vec3i, s model.Stack) model.Stack {
	return h.Ground(area).Put(pos, s)
}

// Total counts kind in every container and on every ground.
func (h *Host) Total(kind string) int {
	n := 0
	for _, c := range h.reg.All() {
		n += c.StoredThingCount(kind)
	}
	for _, g := range h.grounds {
		n += g.Total(kind)
	}
	return n
}

// Step advances one tick. Live auto-collecting containers pull loose stock
// back in, except in areas with an open trade.
func (h *Host) Step() {
	h.tick++
	for _, c := range h.reg.All() {
		if !c.Live() || !c.AutoCollect() || h.trading[c.Area()] > 0 {
			continue
		}
		before := c.Stock()
		if n := c.Reclaim(); n > 0 {
			h.recordAutoCollect(c, before)
		}
	}
	if h.cfg.OnTick != nil {
		h.cfg.OnTick(h)
	}
}

func (h *Host) recordAutoCollect(c *storage.Container, before []model.Stack) {
	prev := model.StacksToMap(before)
	for kind, n := range model.StacksToMap(c.Stock()) {
		if d := n - prev[kind]; d > 0 {
			h.journal.Record(ledger.Entry{
				Hook:      "auto_collect",
				Action:    ledger.ActionReclaim,
				Area:      c.Area(),
				Container: c.ID(),
				Kind:      kind,
				Count:     d,
			})
		}
	}
}

// Run steps the host at TickRateHz and runs Do requests between ticks.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.TickRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-h.exec:
			fn()
		case <-ticker.C:
			h.Step()
		}
	}
}

// Do runs fn on the loop goroutine and waits for it.
func (h *Host) Do(ctx context.Context, fn func(h *Host)) error {
	done := make(chan struct{})
	select {
	case h.exec <- func() { fn(h); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
