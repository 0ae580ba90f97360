package viewable

import (
	"sort"
	"sync"

	"github.com/ctagard/dap-viewer/internal/errors"
)

// Registry holds viewable descriptors keyed by group and type. It only grows:
// the first registration of a (group, type) pair wins and there is no removal.
type Registry struct {
	mu      sync.RWMutex
	byGroup map[string]map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byGroup: make(map[string]map[string]*Descriptor),
	}
}

// NewBuiltinRegistry creates a registry holding the built-in catalogue.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, d := range Builtins() {
		// Builtins are static and valid; a failure here is a programming error.
		if _, err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds d unless its (group, type) is already registered. It reports
// whether d was added; a duplicate is not an error. Only a malformed
// descriptor returns an error.
func (r *Registry) Register(d *Descriptor) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kinds, ok := r.byGroup[d.Group]
	if !ok {
		kinds = make(map[string]*Descriptor)
		r.byGroup[d.Group] = kinds
	}
	if _, exists := kinds[d.Type]; exists {
		return false, nil
	}

	kinds[d.Type] = d
	r.ordered = append(r.ordered, d)
	return true, nil
}

// All returns the descriptors in registration order.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Find returns the descriptor for (group, type).
func (r *Registry) Find(group, typ string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byGroup[group][typ]; ok {
		return d, nil
	}
	return nil, errors.ViewableNotFound(group, typ)
}

// Groups returns the registered group names, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]string, 0, len(r.byGroup))
	for g := range r.byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
