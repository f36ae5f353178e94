package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Registry holds all configured backend adapters and resolves the one an
// upload policy or a stored asset points at. It must be created via
// NewRegistry and passed explicitly to components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Type]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter is nil")
	}
	st := normalizeType(adapter.Type().String())
	if st == "" {
		return errors.New("storage type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[st]; exists {
		return fmt.Errorf("storage type already registered: %s", st)
	}
	r.adapters[st] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given storage type.
func (r *Registry) Get(storageType Type) (Adapter, bool) {
	st := normalizeType(storageType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[st]
	return adapter, ok
}

// Types returns all registered storage types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Type, 0, len(r.adapters))
	for st := range r.adapters {
		items = append(items, st)
	}
	return items
}

// ParseType validates and normalizes a raw string into a registered Type.
func (r *Registry) ParseType(raw string) (Type, error) {
	st := normalizeType(raw)
	if st == "" {
		return "", fmt.Errorf("unsupported storage type: %s", raw)
	}
	if _, ok := r.Get(st); !ok {
		return "", fmt.Errorf("unsupported storage type: %s", raw)
	}
	return st, nil
}

func normalizeType(raw string) Type {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return Type(normalized)
}
