package harness

import (
	"sort"
	"sync"

	"github.com/zsiec/esfuzz/es"
)

// The registry maps parser names to factories so replay tooling can select a
// parser at runtime. Parser implementations register themselves from an init
// function or from the tool's main, the same way database/sql drivers do.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]es.Factory)
)

// Register makes a parser factory available under the given name. It panics
// if the name is empty, the factory is nil, or the name is already taken:
// these are programmer errors in tool wiring, not runtime conditions.
func Register(name string, factory es.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if name == "" {
		panic("harness: Register with empty name")
	}
	if factory == nil {
		panic("harness: Register with nil factory")
	}
	if _, dup := factories[name]; dup {
		panic("harness: Register called twice for " + name)
	}
	factories[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (es.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Parsers returns the sorted names of all registered factories.
func Parsers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
