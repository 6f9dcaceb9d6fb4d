package store

// UnknownMembers collects the distinct names of elements and attributes a
// document carried but the target type could not hold. It preserves the
// order in which names were first seen.
type UnknownMembers struct {
	names []string
	seen  map[string]struct{}
}

// NewUnknownMembers returns an empty collector.
func NewUnknownMembers() *UnknownMembers {
	return &UnknownMembers{seen: make(map[string]struct{})}
}

// Add records name and reports whether it was new.
func (u *UnknownMembers) Add(name string) bool {
	if _, ok := u.seen[name]; ok {
		return false
	}
	u.seen[name] = struct{}{}
	u.names = append(u.names, name)
	return true
}

// Names returns the recorded names in first-seen order.
func (u *UnknownMembers) Names() []string {
	out := make([]string, len(u.names))
	copy(out, u.names)
	return out
}

// Len returns the number of distinct names.
func (u *UnknownMembers) Len() int {
	return len(u.names)
}
