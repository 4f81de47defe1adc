// Package tags implements the insertion-ordered, duplicate-free string
// lists used throughout the LMAP data model.
package tags

// List is an ordered set of strings: insertion order is preserved and
// duplicates are silently dropped on Add, matching the round-trip
// property that rendered output must reproduce the order tags were
// declared in.
type List struct {
	values []string
	seen   map[string]struct{}
}

// New builds a List from an initial slice, de-duplicating while
// preserving the first occurrence of each value.
func New(values ...string) *List {
	l := &List{seen: make(map[string]struct{}, len(values))}
	for _, v := range values {
		l.Add(v)
	}
	return l
}

// Add appends v if it isn't already present. Returns true if it was added.
func (l *List) Add(v string) bool {
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[v]; ok {
		return false
	}
	l.seen[v] = struct{}{}
	l.values = append(l.values, v)
	return true
}

// Has reports whether v is present.
func (l *List) Has(v string) bool {
	if l == nil || l.seen == nil {
		return false
	}
	_, ok := l.seen[v]
	return ok
}

// Values returns the tags in insertion order. The caller must not mutate
// the returned slice.
func (l *List) Values() []string {
	if l == nil {
		return nil
	}
	return l.values
}

// Len reports the number of distinct tags.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.values)
}

// MatchAny reports whether any tag in the list matches any of the given
// glob patterns using the supplied matcher (typically
// suppression.GlobMatch), short-circuiting on the first match.
func (l *List) MatchAny(patterns []string, match func(pattern, name string) bool) bool {
	if l == nil {
		return false
	}
	for _, pattern := range patterns {
		for _, v := range l.values {
			if match(pattern, v) {
				return true
			}
		}
	}
	return false
}

// Concat returns a new List formed by appending each source list's
// values, in order, de-duplicating globally. Used when rendering a
// meta sidecar that lists task tags, then schedule tags, then action
// tags.
func Concat(lists ...*List) *List {
	out := New()
	for _, l := range lists {
		for _, v := range l.Values() {
			out.Add(v)
		}
	}
	return out
}
