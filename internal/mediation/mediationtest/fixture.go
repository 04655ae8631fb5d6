// Package mediationtest builds registries, grounds and journals for
// interceptor tests.
package mediationtest

import (
	"path/filepath"
	"runtime"
	"testing"

	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage"
	"deepstore.ai/internal/storage/memground"
	"deepstore.ai/internal/storage/registry"
)

// ConfigDir is the repository configs/ directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs")
}

func Catalogs(t testing.TB) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(ConfigDir())
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

type Fixture struct {
	Cats    *catalogs.Catalogs
	Reg     *registry.Registry
	Journal *ledger.Journal
	Ledger  *ledger.Memory

	grounds map[model.AreaID]*memground.Ground
	seq     uint64
}

func New(t testing.TB) *Fixture {
	t.Helper()
	mem := &ledger.Memory{}
	return &Fixture{
		Cats:    Catalogs(t),
		Reg:     registry.New(),
		Journal: ledger.NewJournal(ledger.WithSink(mem)),
		Ledger:  mem,
		grounds: map[model.AreaID]*memground.Ground{},
	}
}

func (f *Fixture) Ground(area model.AreaID) *memground.Ground {
	g, ok := f.grounds[area]
	if !ok {
		g = memground.New(&f.seq)
		f.grounds[area] = g
	}
	return g
}

// Place registers a container at (x,0,0) of area with the given stock.
// Zero-valued config fields get test defaults.
func (f *Fixture) Place(t testing.TB, area model.AreaID, x int, cfg storage.Config, stock ...model.Stack) *storage.Container {
	t.Helper()
	if cfg.Type == "" {
		cfg.Type = "DEEP_STORAGE"
	}
	if cfg.Items == nil {
		cfg.Items = &f.Cats.Items
	}
	if cfg.ReclaimRadius == 0 {
		cfg.ReclaimRadius = 2
	}
	cfg.Pos = model.Vec3i{X: x}
	c := storage.New(cfg)
	if err := f.Reg.Place(c, area, f.Ground(area)); err != nil {
		t.Fatalf("place: %v", err)
	}
	for _, s := range stock {
		if !c.Add(s) {
			t.Fatalf("container %s refused %#v", c.ID(), s)
		}
	}
	return c
}

// Total counts kind across every container and every ground.
func (f *Fixture) Total(kind string) int {
	n := 0
	for _, c := range f.Reg.All() {
		n += c.StoredThingCount(kind)
	}
	for _, g := range f.grounds {
		n += g.Total(kind)
	}
	return n
}
