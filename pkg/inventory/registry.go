package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry stores item kinds keyed by KindID and provides numeric handles for
// compact storage. Every stack of a kind shares the registered *Kind.
type Registry struct {
	mu     sync.RWMutex
	kinds  map[KindID]*Kind
	byID   map[RegistryID]KindID
	nextID RegistryID
}

// NewRegistry constructs an empty registry and optionally seeds it with kinds.
func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{
		kinds: make(map[KindID]*Kind, len(kinds)),
		byID:  make(map[RegistryID]KindID, len(kinds)),
	}
	for _, k := range kinds {
		_ = r.Register(k) // ignore duplicates during seed
	}
	return r
}

// Register inserts or updates a kind. The ID must be non-empty. Updating an
// existing kind mutates it in place so live stacks observe the new values.
func (r *Registry) Register(kind Kind) error {
	if kind.ID == "" {
		return errors.New("inventory: kind missing id")
	}
	if kind.Weight < 0 {
		return fmt.Errorf("inventory: kind %s has negative weight", kind.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds == nil {
		r.kinds = make(map[KindID]*Kind)
	}
	if r.byID == nil {
		r.byID = make(map[RegistryID]KindID)
	}

	existing, exists := r.kinds[kind.ID]
	if exists {
		if kind.NumericID == 0 {
			kind.NumericID = existing.NumericID
		} else if existing.NumericID != 0 && existing.NumericID != kind.NumericID {
			return errors.New("inventory: numeric id mismatch for existing kind")
		}
	}

	if kind.NumericID == 0 {
		r.nextID++
		kind.NumericID = r.nextID
	} else {
		if kind.NumericID < 0 {
			return errors.New("inventory: numeric id must be positive")
		}
		if owner, collision := r.byID[kind.NumericID]; collision && owner != kind.ID {
			return errors.New("inventory: numeric id already assigned to another kind")
		}
		if kind.NumericID > r.nextID {
			r.nextID = kind.NumericID
		}
	}

	if exists {
		*existing = kind
	} else {
		k := kind
		r.kinds[kind.ID] = &k
	}
	r.byID[kind.NumericID] = kind.ID
	return nil
}

// Lookup returns the kind for the provided ID, if present.
func (r *Registry) Lookup(id KindID) (*Kind, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[id]
	return k, ok
}

// GetRegistryID returns the numeric registry identifier for a kind.
func (r *Registry) GetRegistryID(id KindID) (RegistryID, bool) {
	k, ok := r.Lookup(id)
	if !ok || k.NumericID == 0 {
		return 0, false
	}
	return k.NumericID, true
}

// LookupByRegistryID returns a kind using its numeric registry ID.
func (r *Registry) LookupByRegistryID(id RegistryID) (*Kind, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	k, exists := r.kinds[key]
	return k, exists
}

// NewItem creates a detached stack of a registered kind.
func (r *Registry) NewItem(id KindID, quantity int) (*Item, error) {
	k, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, id)
	}
	return NewItem(k, quantity), nil
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}

// Export copies registry contents into a slice sorted by numeric ID, suitable
// for sending to clients.
func (r *Registry) Export() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.kinds) == 0 {
		return nil
	}
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, *k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NumericID != out[j].NumericID {
			return out[i].NumericID < out[j].NumericID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Catalog is the YAML layout read by LoadCatalog.
type Catalog struct {
	Kinds []Kind `yaml:"kinds"`
}

// LoadCatalog registers every kind found in a YAML document.
func (r *Registry) LoadCatalog(rd io.Reader) (int, error) {
	var c Catalog
	dec := yaml.NewDecoder(rd)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to parse item catalog: %w", err)
	}
	for i, k := range c.Kinds {
		if err := r.Register(k); err != nil {
			return i, fmt.Errorf("catalog entry %d: %w", i, err)
		}
	}
	return len(c.Kinds), nil
}

// LoadCatalogFile registers every kind found in a YAML file.
func (r *Registry) LoadCatalogFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open item catalog: %w", err)
	}
	defer f.Close()
	return r.LoadCatalog(f)
}
