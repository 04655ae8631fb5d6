package model

type Freshness uint8

const (
	Fresh Freshness = iota
	Stale
	Spoiled
)

func (f Freshness) NotFresh() bool { return f != Fresh }

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "FRESH"
	case Stale:
		return "STALE"
	case Spoiled:
		return "SPOILED"
	default:
		return "UNKNOWN"
	}
}

// Stack is a quantity of one item kind. EntityID is only set while the stack
// lies loose in the world (a pile); stored stock carries no entity id.
type Stack struct {
	EntityID  string    `json:"entity_id,omitempty"`
	Kind      string    `json:"kind"`
	Count     int       `json:"count"`
	Freshness Freshness `json:"freshness,omitempty"`
}

func (s Stack) Empty() bool { return s.Kind == "" || s.Count <= 0 }

// SameLot reports whether two stacks may be merged into one.
func (s Stack) SameLot(o Stack) bool {
	return s.Kind == o.Kind && s.Freshness == o.Freshness
}

func TotalOf(stacks []Stack, kind string) int {
	n := 0
	for _, s := range stacks {
		if s.Kind == kind && s.Count > 0 {
			n += s.Count
		}
	}
	return n
}

func StacksToMap(stacks []Stack) map[string]int {
	out := map[string]int{}
	for _, s := range stacks {
		if s.Empty() {
			continue
		}
		out[s.Kind] += s.Count
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
