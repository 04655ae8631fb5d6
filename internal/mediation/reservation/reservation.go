// Package reservation keeps container structures out of the host's
// reservation bookkeeping. A container cell is never contended: every claim
// on it succeeds and nothing is recorded natively.
package reservation

import (
	"log/slog"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/storage/registry"
)

type Mediator struct {
	reg     *registry.Registry
	journal *ledger.Journal
	log     *slog.Logger
}

func New(reg *registry.Registry, j *ledger.Journal, log *slog.Logger) *Mediator {
	return &Mediator{reg: reg, journal: j, log: logging.WithComponent(log, "reservation")}
}

// occupied returns the container id on the target cell, if any. Unusable
// targets are left to the host.
func (m *Mediator) occupied(t host.Target) (string, bool) {
	if !t.Usable() {
		return "", false
	}
	c, ok := m.reg.At(t.Area, t.Cell)
	if !ok {
		return "", false
	}
	return c.ID(), true
}

// CanReserve is the pre-hook of the host's reservation check. When skipNative
// is true the host returns granted without consulting its bookkeeping.
func (m *Mediator) CanReserve(claimant string, t host.Target, prior bool) (granted, skipNative bool) {
	if prior {
		return prior, false
	}
	if _, ok := m.occupied(t); !ok {
		return false, false
	}
	return true, true
}

// Reserve is the pre-hook of the host's reserve call.
func (m *Mediator) Reserve(claimant string, t host.Target, prior bool) (granted, skipNative bool) {
	if prior {
		return prior, false
	}
	id, ok := m.occupied(t)
	if !ok {
		return false, false
	}
	m.log.Debug("reservation bypassed", "claimant", claimant, "container", id)
	m.journal.Record(ledger.Entry{
		Hook:      string(host.EventReserve),
		Action:    ledger.ActionGrant,
		Area:      t.Area,
		Container: id,
		Note:      claimant,
	})
	return true, true
}

// Release is absorbed for container cells; skipNative tells the host not to
// touch its bookkeeping.
func (m *Mediator) Release(claimant string, t host.Target) (skipNative bool) {
	_, ok := m.occupied(t)
	return ok
}
