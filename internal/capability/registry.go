package capability

import (
	"errors"
	"iter"
	"sync"
)

type registration struct {
	entry   Entry
	handler Handler
}

// Registry maps capability names to handlers. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*registration
	ordered []*registration
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*registration),
	}
}

// Register adds a capability. Registering an existing name fails with
// *DuplicateCapabilityError.
func (r *Registry) Register(name, description string, handler Handler) error {
	if name == "" {
		return errors.New("capability name must not be empty")
	}
	if handler == nil {
		return errors.New("capability handler must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.byName[name]; exists {
		return NewDuplicateCapabilityError(name)
	}

	reg := &registration{
		entry:   Entry{Name: name, Description: description},
		handler: handler,
	}
	r.byName[name] = reg
	r.ordered = append(r.ordered, reg)
	return nil
}

// RegisterTool registers a self-describing tool under its own name.
func (r *Registry) RegisterTool(t Tool) error {
	return r.Register(t.Name(), t.Description(), t)
}

// Lookup returns the handler for name or *UnknownCapabilityError.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byName[name]
	if !ok {
		return nil, NewUnknownCapabilityError(name)
	}
	return reg.handler, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// List yields every entry in registration order. Each iteration reads the
// registry afresh, so the sequence can be ranged over any number of times.
func (r *Registry) List() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		r.mu.RLock()
		snapshot := make([]Entry, len(r.ordered))
		for i, reg := range r.ordered {
			snapshot[i] = reg.entry
		}
		r.mu.RUnlock()

		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// parameters returns the JSON schema of a registered Tool, if it has one.
func (r *Registry) parameters(name string) map[string]any {
	h, err := r.Lookup(name)
	if err != nil {
		return nil
	}
	if t, ok := h.(Tool); ok {
		return t.Parameters()
	}
	return nil
}
