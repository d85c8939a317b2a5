package cache

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type managed interface {
	Stats() Stats
	Destroy()
}

// Factory owns named cache instances so they can be reported on and torn
// down together at shutdown.
type Factory struct {
	mu     sync.Mutex
	stores map[string]managed
	logger *zap.Logger
}

func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{stores: make(map[string]managed), logger: logger}
}

// Named returns the store registered under name, building it on first use.
// It fails when name already holds a store of another value type.
func Named[T any](f *Factory, name string, build func() (Store[T], error)) (Store[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.stores[name]; ok {
		s, ok := existing.(Store[T])
		if !ok {
			return nil, fmt.Errorf("cache %q already registered with another value type", name)
		}
		return s, nil
	}

	s, err := build()
	if err != nil {
		return nil, fmt.Errorf("failed to build cache %q: %w", name, err)
	}
	f.stores[name] = s
	f.logger.Debug("Cache registered", zap.String("cache", name))
	return s, nil
}

// Destroy stops and forgets one instance. Unknown names are ignored.
func (f *Factory) Destroy(name string) {
	f.mu.Lock()
	s, ok := f.stores[name]
	delete(f.stores, name)
	f.mu.Unlock()

	if ok {
		s.Destroy()
	}
}

// DestroyAll stops every instance.
func (f *Factory) DestroyAll() {
	f.mu.Lock()
	stores := f.stores
	f.stores = make(map[string]managed)
	f.mu.Unlock()

	for name, s := range stores {
		s.Destroy()
		f.logger.Debug("Cache destroyed", zap.String("cache", name))
	}
}

// Stats reports every instance, sorted by registration name.
func (f *Factory) Stats() []Stats {
	f.mu.Lock()
	names := make([]string, 0, len(f.stores))
	for name := range f.stores {
		names = append(names, name)
	}
	stores := make(map[string]managed, len(f.stores))
	for k, v := range f.stores {
		stores[k] = v
	}
	f.mu.Unlock()

	sort.Strings(names)
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		st := stores[name].Stats()
		if st.Name == "" {
			st.Name = name
		}
		out = append(out, st)
	}
	return out
}
