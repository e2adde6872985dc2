package layer

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pdok/videolayer/config"

	"golang.org/x/exp/maps"
)

var ErrUnknownDriver = errors.New("unknown layer driver")

// Factory creates an unopened layer from its config
type Factory func(conf *config.Config) (Layer, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// created layers by name, held weakly
	created = make(map[string]*tracked)
)

type tracked struct {
	lock func() (Layer, bool)
}

// Register makes a layer driver available to Create. Registering a driver twice replaces it.
func Register(driver string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[config.NormalizeKey(driver)] = factory
}

// Drivers returns the registered driver names, sorted
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	drivers := maps.Keys(factories)
	slices.Sort(drivers)
	return drivers
}

// Create creates a layer with the driver named by the key of conf
func Create(conf *config.Config) (Layer, error) {
	if conf == nil {
		return nil, fmt.Errorf("%w: no config", ErrUnknownDriver)
	}
	registryMu.RLock()
	factory, ok := factories[conf.Key()]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, conf.Key())
	}
	return factory(conf)
}

// Find returns a layer created earlier with name, as long as it is still referenced elsewhere
func Find(name string) (Layer, bool) {
	registryMu.RLock()
	entry, ok := created[name]
	registryMu.RUnlock()
	if !ok {
		return nil, false
	}
	if l, ok := entry.lock(); ok {
		return l, true
	}
	// collected, forget it unless the name was taken again meanwhile
	registryMu.Lock()
	defer registryMu.Unlock()
	if created[name] == entry {
		delete(created, name)
	}
	return nil, false
}

func track[T any, P interface {
	*T
	Layer
}](name string, l P) {
	if name == "" {
		return
	}
	o := Observe((*T)(l))
	registryMu.Lock()
	defer registryMu.Unlock()
	created[name] = &tracked{lock: func() (Layer, bool) {
		v, ok := o.Lock()
		if !ok {
			return nil, false
		}
		return P(v), true
	}}
}
