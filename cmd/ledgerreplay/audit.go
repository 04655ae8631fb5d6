package main

import (
	"fmt"
	"sort"
	"strings"

	"deepstore.ai/internal/mediation/ledger"
)

// scratchHooks lend stock for the length of one call; every withdrawal must
// come back or be consumed.
var scratchHooks = map[string]bool{
	"fuel_search":        true,
	"repair_part_search": true,
}

type balance struct {
	Withdrawn int
	Returned  int
	Consumed  int
	Rejected  int
}

func (b balance) Leaked() int { return b.Withdrawn - b.Returned - b.Consumed }

type session struct {
	ID        string
	Area      string
	Closed    string
	Emptied   map[string]int
	Sold      map[string]int
	Reclaimed map[string]int

	piles map[string]string // pile id -> kind, for emptied piles
}

// Leaked is the per-kind count of emptied units neither sold nor reclaimed.
func (s *session) Leaked() map[string]int {
	out := map[string]int{}
	for k, n := range s.Emptied {
		if d := n - s.Sold[k] - s.Reclaimed[k]; d > 0 {
			out[k] = d
		}
	}
	return out
}

type audit struct {
	Entries  int
	LastSeq  uint64
	Gaps     int
	Actions  map[ledger.Action]int
	Scratch  map[string]map[string]*balance // hook -> kind
	Sessions map[string]*session
	order    []string
}

func newAudit() *audit {
	return &audit{
		Actions:  map[ledger.Action]int{},
		Scratch:  map[string]map[string]*balance{},
		Sessions: map[string]*session{},
	}
}

func (a *audit) session(id, area string) *session {
	s, ok := a.Sessions[id]
	if !ok {
		s = &session{
			ID:        id,
			Area:      area,
			Emptied:   map[string]int{},
			Sold:      map[string]int{},
			Reclaimed: map[string]int{},
			piles:     map[string]string{},
		}
		a.Sessions[id] = s
		a.order = append(a.order, id)
	}
	if s.Area == "" {
		s.Area = area
	}
	return s
}

func (a *audit) Add(e ledger.Entry) {
	a.Entries++
	if a.LastSeq != 0 && e.Seq != a.LastSeq+1 {
		a.Gaps++
	}
	a.LastSeq = e.Seq
	a.Actions[e.Action] += e.Count

	if scratchHooks[e.Hook] && e.Kind != "" {
		kinds, ok := a.Scratch[e.Hook]
		if !ok {
			kinds = map[string]*balance{}
			a.Scratch[e.Hook] = kinds
		}
		b, ok := kinds[e.Kind]
		if !ok {
			b = &balance{}
			kinds[e.Kind] = b
		}
		switch e.Action {
		case ledger.ActionWithdraw:
			b.Withdrawn += e.Count
		case ledger.ActionReturn:
			b.Returned += e.Count
		case ledger.ActionConsume:
			b.Consumed += e.Count
		case ledger.ActionReject:
			b.Rejected++
		}
	}

	if e.Session == "" {
		return
	}
	s := a.session(e.Session, string(e.Area))
	switch e.Action {
	case ledger.ActionEmpty:
		s.Emptied[e.Kind] += e.Count
		if e.Note != "" {
			s.piles[e.Note] = e.Kind
		}
	case ledger.ActionConsume:
		// Only sold units that came off a container count against it.
		if _, ok := s.piles[e.Note]; ok {
			s.Sold[e.Kind] += e.Count
		}
	case ledger.ActionReclaim:
		s.Reclaimed[e.Kind] += e.Count
	case ledger.ActionSession:
		if outcome, ok := strings.CutPrefix(e.Note, "close "); ok {
			s.Closed = outcome
		}
	}
}

// Problems lists every conservation violation found.
func (a *audit) Problems() []string {
	var out []string
	hooks := make([]string, 0, len(a.Scratch))
	for h := range a.Scratch {
		hooks = append(hooks, h)
	}
	sort.Strings(hooks)
	for _, h := range hooks {
		kinds := make([]string, 0, len(a.Scratch[h]))
		for k := range a.Scratch[h] {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			if b := a.Scratch[h][k]; b.Leaked() != 0 {
				out = append(out, fmt.Sprintf("%s %s: withdrawn=%d returned=%d consumed=%d (leaked %d)",
					h, k, b.Withdrawn, b.Returned, b.Consumed, b.Leaked()))
			}
		}
	}
	for _, id := range a.order {
		s := a.Sessions[id]
		if s.Closed == "" {
			out = append(out, fmt.Sprintf("session %s (%s): never closed", s.ID, s.Area))
			continue
		}
		leaked := s.Leaked()
		kinds := make([]string, 0, len(leaked))
		for k := range leaked {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			out = append(out, fmt.Sprintf("session %s %s: emptied=%d sold=%d reclaimed=%d (leaked %d)",
				s.ID, k, s.Emptied[k], s.Sold[k], s.Reclaimed[k], leaked[k]))
		}
	}
	return out
}
