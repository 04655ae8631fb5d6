// Package hooks is the static registration table between host extension
// points and interceptors. The table is built once at startup; every
// dispatch is guarded so that no interceptor failure reaches the host call.
package hooks

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/pkg/errors"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/availability"
	"deepstore.ai/internal/mediation/buildmat"
	"deepstore.ai/internal/mediation/caravan"
	"deepstore.ai/internal/mediation/fuel"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/mediation/medical"
	"deepstore.ai/internal/mediation/recipe"
	"deepstore.ai/internal/mediation/repair"
	"deepstore.ai/internal/mediation/reservation"
	"deepstore.ai/internal/mediation/tally"
	"deepstore.ai/internal/mediation/trade"
	"deepstore.ai/internal/protocol"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/sim/tuning"
	"deepstore.ai/internal/storage/registry"
)

type Config struct {
	Registry *registry.Registry
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Journal  *ledger.Journal
	Logger   *slog.Logger

	// Required while availability_check is enabled.
	Cache host.AvailabilityCache
	// Required while resource_recount is enabled.
	Visible host.VisibleArea
}

type Binding struct {
	Event   host.Event
	Handler string
	Enabled bool
}

type Dispatcher struct {
	table   []Binding
	enabled map[host.Event]bool
	journal *ledger.Journal
	log     *slog.Logger
	visible host.VisibleArea

	reservation  *reservation.Mediator
	tally        *tally.Tally
	trade        *trade.Aggregator
	buildmat     *buildmat.Resolver
	fuel         *fuel.Supplier
	availability *availability.Resolver
	recipe       *recipe.Counter
	medical      *medical.Injector
	repair       *repair.Supplier
	caravan      *caravan.Mediator
}

// companions lists events whose effects are only undone by another event.
// Enabling the first without the rest leaks state.
var companions = []struct {
	event host.Event
	needs []host.Event
}{
	{host.EventListQuery, []host.Event{host.EventMedicalDraw}},
	{host.EventTradeSellable, []host.Event{host.EventTradeClose}},
	{host.EventCaravanOpen, []host.Event{host.EventCaravanStop, host.EventCaravanDepart}},
}

var handlerNames = map[host.Event]string{
	host.EventReserveCheck:     "reservation.CanReserve",
	host.EventReserve:          "reservation.Reserve",
	host.EventRelease:          "reservation.Release",
	host.EventResourceRecount:  "tally.AfterRecount",
	host.EventTradeSellable:    "trade.AfterSellable",
	host.EventTradeClose:       "trade.AfterClose",
	host.EventBuildMaterial:    "buildmat.Prompt",
	host.EventFuelSearch:       "fuel.Before/After",
	host.EventAvailability:     "availability.After",
	host.EventRecipeCount:      "recipe.After",
	host.EventMedicalDraw:      "medical.Before/After",
	host.EventListQuery:        "medical.ListQuery",
	host.EventRepairPartSearch: "repair.After",
	host.EventCaravanOpen:      "caravan.Opened",
	host.EventCaravanStop:      "caravan.Stopped",
	host.EventCaravanDepart:    "caravan.Departed",
}

// New validates cfg and builds the table. Missing adapters for enabled
// events are reported here, never per call.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("hooks: registry is required")
	}
	if cfg.Catalogs == nil {
		return nil, errors.New("hooks: catalogs are required")
	}
	for _, name := range cfg.Tuning.Hooks.Disabled {
		if !host.KnownEvent(name) {
			return nil, errors.Errorf("hooks: unknown event %q in hooks.disabled", name)
		}
	}

	d := &Dispatcher{
		enabled: map[host.Event]bool{},
		journal: cfg.Journal,
		log:     logging.WithComponent(cfg.Logger, "hooks"),
		visible: cfg.Visible,
	}
	for _, ev := range host.Events {
		on := !cfg.Tuning.HookDisabled(string(ev))
		d.enabled[ev] = on
		d.table = append(d.table, Binding{Event: ev, Handler: handlerNames[ev], Enabled: on})
	}

	if d.enabled[host.EventAvailability] && cfg.Cache == nil {
		return nil, missingAdapter(host.EventAvailability, "AvailabilityCache")
	}
	if d.enabled[host.EventResourceRecount] && cfg.Visible == nil {
		return nil, missingAdapter(host.EventResourceRecount, "VisibleArea")
	}
	for _, dep := range companions {
		if !d.enabled[dep.event] {
			continue
		}
		for _, need := range dep.needs {
			if !d.enabled[need] {
				return nil, errors.Errorf("hooks: %s needs %s enabled", dep.event, need)
			}
		}
	}

	reg, items, j, log := cfg.Registry, &cfg.Catalogs.Items, cfg.Journal, cfg.Logger
	d.reservation = reservation.New(reg, j, log)
	d.tally = tally.New(reg, items, j, log)
	d.trade = trade.New(reg, j, log)
	d.buildmat = buildmat.New(reg, items, j, log)
	d.buildmat.GodMode = cfg.Tuning.GodMode
	d.fuel = fuel.New(reg, items, j, log)
	d.availability = availability.New(reg, items, cfg.Cache, cfg.Tuning.PlayerFaction, j, log)
	d.recipe = recipe.New(reg, j, log)
	d.medical = medical.New(reg, items, log)
	d.repair = repair.New(reg, cfg.Tuning.RepairComponentKind, j, log)
	d.caravan = caravan.New(reg, cfg.Tuning.PlayerFaction, j, log)
	return d, nil
}

func missingAdapter(ev host.Event, adapter string) error {
	return errors.Wrapf(protocol.NewError(protocol.ErrMissingAdapter, adapter), "hooks: event %s", ev)
}

// Bindings returns a copy of the registration table.
func (d *Dispatcher) Bindings() []Binding {
	out := make([]Binding, len(d.table))
	copy(out, d.table)
	return out
}

func (d *Dispatcher) Enabled(ev host.Event) bool { return d.enabled[ev] }

// guard runs fn for ev unless the event is disabled. fn reports whether it
// changed the host result. A panic is logged and the call keeps its native
// result.
func (d *Dispatcher) guard(ev host.Event, fn func() bool) {
	if !d.enabled[ev] {
		d.journal.Call(string(ev), ledger.OutcomeDisabled)
		return
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		d.log.Error("interceptor panicked, deferring to native", "event", ev, "panic", r, "stack", string(debug.Stack()))
		d.journal.Call(string(ev), ledger.OutcomePanic)
		d.journal.Record(ledger.Entry{
			Hook:   string(ev),
			Action: ledger.ActionReject,
			Code:   protocol.ErrHookPanic,
			Note:   fmt.Sprint(r),
		})
	}()
	if fn() {
		d.journal.Call(string(ev), ledger.OutcomeHandled)
	} else {
		d.journal.Call(string(ev), ledger.OutcomeDeferred)
	}
}

func (d *Dispatcher) CanReserve(claimant string, t host.Target, prior bool) (granted, skipNative bool) {
	granted = prior
	d.guard(host.EventReserveCheck, func() bool {
		g, skip := d.reservation.CanReserve(claimant, t, prior)
		granted, skipNative = g, skip
		return skip
	})
	return granted, skipNative
}

func (d *Dispatcher) Reserve(claimant string, t host.Target, prior bool) (granted, skipNative bool) {
	granted = prior
	d.guard(host.EventReserve, func() bool {
		g, skip := d.reservation.Reserve(claimant, t, prior)
		granted, skipNative = g, skip
		return skip
	})
	return granted, skipNative
}

func (d *Dispatcher) Release(claimant string, t host.Target) (skipNative bool) {
	d.guard(host.EventRelease, func() bool {
		skipNative = d.reservation.Release(claimant, t)
		return skipNative
	})
	return skipNative
}

// AfterRecount merges container stock of the visible area into counts.
func (d *Dispatcher) AfterRecount(counts map[string]int) {
	d.guard(host.EventResourceRecount, func() bool {
		return d.tally.AfterRecount(d.visible(), counts) > 0
	})
}

// AfterSellable returns the host list with container piles appended and the
// trade session id to hand back on close.
func (d *Dispatcher) AfterSellable(neg host.Agent, native []model.Stack) ([]model.Stack, string) {
	out, session := native, ""
	d.guard(host.EventTradeSellable, func() bool {
		list, s := d.trade.AfterSellable(neg, native)
		out, session = list, s.ID
		return len(list) > len(native)
	})
	return out, session
}

func (d *Dispatcher) AfterTradeClose(cl trade.Close) {
	d.guard(host.EventTradeClose, func() bool {
		return d.trade.AfterClose(cl) > 0
	})
}

func (d *Dispatcher) BuildMaterialPrompt(pb host.PendingBuild, counted map[string]int) buildmat.Menu {
	var menu buildmat.Menu
	d.guard(host.EventBuildMaterial, func() bool {
		m := d.buildmat.Prompt(pb, counted)
		menu = m
		return m.Handled
	})
	return menu
}

func (d *Dispatcher) SelectMaterial(pb *host.PendingBuild, opt buildmat.Option) {
	d.guard(host.EventBuildMaterial, func() bool {
		d.buildmat.Select(pb, opt)
		return true
	})
}

// BeforeFuelSearch returns the scratch to pass to AfterFuelSearch. It is nil
// when the hook is disabled or failed.
func (d *Dispatcher) BeforeFuelSearch(agent host.Agent, target host.Refuelable) *fuel.Scratch {
	var s *fuel.Scratch
	d.guard(host.EventFuelSearch, func() bool {
		s = d.fuel.Before(agent, target)
		return len(s.Withdrawals()) > 0
	})
	return s
}

func (d *Dispatcher) AfterFuelSearch(s *fuel.Scratch, selectedEntityID string) {
	if s.Closed() {
		return
	}
	d.guard(host.EventFuelSearch, func() bool {
		return d.fuel.After(s, selectedEntityID) > 0
	})
}

func (d *Dispatcher) AfterAvailability(need host.Need, agent host.Agent, native bool) bool {
	out := native
	d.guard(host.EventAvailability, func() bool {
		r := d.availability.After(need, agent, native)
		out = r
		return r != native
	})
	return out
}

func (d *Dispatcher) AfterRecipeCount(bill host.Bill, native int) int {
	out := native
	d.guard(host.EventRecipeCount, func() bool {
		r := d.recipe.After(bill, native)
		out = r
		return r != native
	})
	return out
}

func (d *Dispatcher) BeforeMedicalDraw(agent host.Agent) *medical.Scratch {
	var s *medical.Scratch
	d.guard(host.EventMedicalDraw, func() bool {
		s = d.medical.Before(agent)
		return len(s.Offers()) > 0
	})
	return s
}

func (d *Dispatcher) ListQuery(s *medical.Scratch, group host.ThingGroup, native []model.Stack) []model.Stack {
	out := native
	d.guard(host.EventListQuery, func() bool {
		r := d.medical.ListQuery(s, group, native)
		out = r
		return len(r) > len(native)
	})
	return out
}

// AfterMedicalDraw clears s. It runs even when the draw hook is disabled.
func (d *Dispatcher) AfterMedicalDraw(s *medical.Scratch) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("medical scratch clear panicked", "panic", r)
		}
	}()
	d.medical.After(s)
}

func (d *Dispatcher) AfterRepairPartSearch(agent host.Agent, nativePick string, rerun host.PartSearch) string {
	out := nativePick
	d.guard(host.EventRepairPartSearch, func() bool {
		r := d.repair.After(agent, nativePick, rerun)
		out = r
		return r != nativePick
	})
	return out
}

func (d *Dispatcher) CaravanOpened(area model.AreaID) []model.Stack {
	var piles []model.Stack
	d.guard(host.EventCaravanOpen, func() bool {
		piles = d.caravan.Opened(area)
		return len(piles) > 0
	})
	return piles
}

func (d *Dispatcher) CaravanStopped(area model.AreaID) {
	d.guard(host.EventCaravanStop, func() bool {
		return d.caravan.Stopped(area) > 0
	})
}

func (d *Dispatcher) CaravanDeparted(faction string, area model.AreaID) {
	d.guard(host.EventCaravanDepart, func() bool {
		return d.caravan.Departed(faction, area) > 0
	})
}
