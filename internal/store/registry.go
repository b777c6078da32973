package store

import (
	"fmt"
	"sort"
	"sync"
)

// Builder is a function that creates a store from config
type Builder func(config Config) (Store, error)

// DefaultFactory is the default store factory
type DefaultFactory struct {
	builders map[string]Builder
	mu       sync.RWMutex
}

var globalFactory = &DefaultFactory{builders: make(map[string]Builder)}

// RegisterStoreType registers a new store type with the global factory.
// Backends call it from init.
func RegisterStoreType(storeType string, builder Builder) {
	globalFactory.RegisterStoreType(storeType, builder)
}

// CreateStore creates a store using the global factory
func CreateStore(config Config) (Store, error) {
	return globalFactory.CreateStore(config)
}

// SupportedTypes returns supported store types from the global factory
func SupportedTypes() []string {
	return globalFactory.SupportedTypes()
}

// RegisterStoreType registers a new store type
func (f *DefaultFactory) RegisterStoreType(storeType string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[storeType] = builder
}

// CreateStore creates a store based on the configuration
func (f *DefaultFactory) CreateStore(config Config) (Store, error) {
	f.mu.RLock()
	builder, exists := f.builders[config.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported store type: %s (supported: %v)", config.Type, f.SupportedTypes())
	}

	return builder(config)
}

// SupportedTypes returns a sorted list of supported store types
func (f *DefaultFactory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.builders))
	for storeType := range f.builders {
		types = append(types, storeType)
	}
	sort.Strings(types)
	return types
}
