// Package medical offers drugs and implants held by containers to the
// host's medical operation listing for the duration of one draw.
package medical

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
	"deepstore.ai/internal/storage/registry"
)

type Offer struct {
	Container string
	Stack     model.Stack
}

// Scratch is the eligible item list of one draw.
type Scratch struct {
	offers []Offer
	closed bool
}

func (s *Scratch) Offers() []Offer {
	if s == nil || s.closed {
		return nil
	}
	return s.offers
}

func (s *Scratch) Closed() bool { return s == nil || s.closed }

type Injector struct {
	reg   *registry.Registry
	items *catalogs.ItemCatalog
	log   *slog.Logger
}

func New(reg *registry.Registry, items *catalogs.ItemCatalog, log *slog.Logger) *Injector {
	return &Injector{reg: reg, items: items, log: logging.WithComponent(log, "medical")}
}

// Before collects every drug or implant stack from the live containers in
// the agent's area.
func (m *Injector) Before(agent host.Agent) *Scratch {
	s := &Scratch{}
	if agent.Area == "" {
		return s
	}
	for _, c := range m.reg.Live(agent.Area) {
		for _, st := range c.Stock() {
			def, ok := m.items.Def(st.Kind)
			if !ok || !def.Medical() {
				continue
			}
			s.offers = append(s.offers, Offer{Container: c.ID(), Stack: st})
		}
	}
	return s
}

// ListQuery appends the scratch stacks that belong to group to the host's
// listing. A closed or nil scratch adds nothing.
func (m *Injector) ListQuery(s *Scratch, group host.ThingGroup, native []model.Stack) []model.Stack {
	out := native
	for _, o := range s.Offers() {
		def, ok := m.items.Def(o.Stack.Kind)
		if ok && group.Matches(def) {
			out = append(out, o.Stack)
		}
	}
	return out
}

// After clears the scratch, whether or not the listing used it.
func (m *Injector) After(s *Scratch) {
	if s == nil {
		return
	}
	if n := len(s.offers); n > 0 {
		m.log.Debug("medical offers cleared", "offers", n)
	}
	s.offers = nil
	s.closed = true
}
