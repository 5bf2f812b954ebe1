package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// Registry maps provider names to their clients.
type Registry struct {
	clients map[string]types.ProviderClient
	mutex   sync.RWMutex
}

// NewRegistry creates a registry holding the given clients.
func NewRegistry(clients ...types.ProviderClient) (*Registry, error) {
	r := &Registry{clients: make(map[string]types.ProviderClient)}
	for _, c := range clients {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a client. Names must be unique and non-empty.
func (r *Registry) Register(client types.ProviderClient) error {
	if client == nil {
		return fmt.Errorf("provider client is nil")
	}
	name := client.Name()
	if name == "" {
		return fmt.Errorf("provider client has an empty name")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.clients[name] = client
	return nil
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (types.ProviderClient, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, ok := r.clients[name]
	return c, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
