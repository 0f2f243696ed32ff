package agents

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dagent/pkg/ports"
)

// Catalog maps agent kinds to factories
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]ports.AgentFactory
}

// NewCatalog creates a catalog with the echo kind registered
func NewCatalog() *Catalog {
	c := &Catalog{factories: make(map[string]ports.AgentFactory)}
	c.factories[EchoKind] = NewEcho
	return c
}

// Register adds a kind to the catalog
func (c *Catalog) Register(kind string, factory ports.AgentFactory) error {
	if kind == "" || factory == nil {
		return fmt.Errorf("kind and factory are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[kind]; exists {
		return fmt.Errorf("agent kind %s already registered", kind)
	}
	c.factories[kind] = factory
	return nil
}

// Factory returns the factory for kind
func (c *Catalog) Factory(kind string) (ports.AgentFactory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds, sorted
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kinds := make([]string, 0, len(c.factories))
	for kind := range c.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
