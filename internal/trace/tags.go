package trace

import (
	"maps"
	"slices"
)

// Reserved tag names understood by the agent
const (
	TagStack       = "stack"
	TagPath        = "path"
	TagDBStatement = "db.statement"
	TagHTTPStatus  = "http.status"
	TagHTTPMethod  = "http.method"
	TagError       = "error"
)

// Tag is a single name/value annotation
type Tag struct {
	Name  string
	Value any
}

// T is shorthand for building a Tag
func T(name string, value any) Tag {
	return Tag{Name: name, Value: value}
}

// tagSet is a unit's tag map. Callers hold the owning unit's lock.
type tagSet map[string]any

func (ts *tagSet) set(name string, value any) {
	if *ts == nil {
		*ts = make(tagSet)
	}
	(*ts)[name] = value
}

func (ts tagSet) sortedNames() []string {
	return slices.Sorted(maps.Keys(ts))
}

func (ts tagSet) clone() map[string]any {
	return maps.Clone(map[string]any(ts))
}
