package model

// Filter decides whether an item kind is admitted (or withdrawn).
type Filter func(kind string) bool

func AllowAll(string) bool { return true }

func AllowKinds(kinds ...string) Filter {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	return func(kind string) bool {
		_, ok := set[kind]
		return ok
	}
}

func (f Filter) Allows(kind string) bool {
	if f == nil {
		return false
	}
	return f(kind)
}

func (f Filter) And(g Filter) Filter {
	return func(kind string) bool { return f.Allows(kind) && g.Allows(kind) }
}
