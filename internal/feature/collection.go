package feature

import "sort"

// Collection is an ordered set of features from one layer, already scoped to
// a single boundary by the spatial provider.
type Collection struct {
	Layer    string    `json:"layer"`
	Features []Feature `json:"features"`
}

// NewCollection returns a collection for layer holding features.
func NewCollection(layer string, features ...Feature) *Collection {
	return &Collection{Layer: layer, Features: features}
}

// Len returns the number of features; a nil collection is empty.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

// Each calls fn for every feature in order.
func (c *Collection) Each(fn func(Feature)) {
	if c == nil {
		return
	}
	for _, f := range c.Features {
		fn(f)
	}
}

// Where returns a new collection holding the features for which keep returns
// true. The receiver is not modified.
func (c *Collection) Where(keep func(Feature) bool) *Collection {
	if c == nil {
		return &Collection{}
	}
	out := &Collection{Layer: c.Layer}
	for _, f := range c.Features {
		if keep(f) {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// Derive sets field on every feature to fn(feature).
func (c *Collection) Derive(field string, fn func(Feature) Value) {
	if c == nil {
		return
	}
	for i := range c.Features {
		c.Features[i].Set(field, fn(c.Features[i]))
	}
}

// Set maps collection names to the collections fetched for one boundary.
type Set struct {
	Boundary    string                 `json:"boundary"`
	Collections map[string]*Collection `json:"collections"`
}

// NewSet returns an empty Set for boundary.
func NewSet(boundary string) *Set {
	return &Set{Boundary: boundary, Collections: make(map[string]*Collection)}
}

// Put stores c under name.
func (s *Set) Put(name string, c *Collection) {
	if s.Collections == nil {
		s.Collections = make(map[string]*Collection)
	}
	if c == nil {
		c = &Collection{Layer: name}
	}
	s.Collections[name] = c
}

// Get returns the collection stored under name, or an empty collection when
// nothing was fetched for it.
func (s *Set) Get(name string) *Collection {
	if s == nil || s.Collections == nil {
		return &Collection{Layer: name}
	}
	if c, ok := s.Collections[name]; ok && c != nil {
		return c
	}
	return &Collection{Layer: name}
}

// Names returns the stored collection names in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Collections))
	for n := range s.Collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of c, so derived fields can be added without
// touching the original.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	out := &Collection{Layer: c.Layer, Features: make([]Feature, len(c.Features))}
	for i, f := range c.Features {
		attrs := make(map[string]Value, len(f.Attrs))
		for k, v := range f.Attrs {
			attrs[k] = v
		}
		out.Features[i] = Feature{ID: f.ID, Attrs: attrs}
	}
	return out
}

// Clone returns a deep copy of s.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	out := NewSet(s.Boundary)
	for name, c := range s.Collections {
		out.Collections[name] = c.Clone()
	}
	return out
}
