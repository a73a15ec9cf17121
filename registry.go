package bufcodec

import (
	"fmt"
	"sync"
)

// Registry maps type hashes back to type names. Build one at startup and
// register every record type; lookups are then safe from any goroutine.
//
// Two distinct names with the same hash would make records of one type
// decode as the other. Register treats that as a build error and panics.
type Registry struct {
	key Key

	mu    sync.RWMutex
	names map[uint64]string
}

// NewRegistry returns an empty Registry hashing under key.
func NewRegistry(key Key) *Registry {
	return &Registry{
		key:   key,
		names: make(map[uint64]string),
	}
}

// Key returns the key the registry hashes with.
func (reg *Registry) Key() Key { return reg.key }

// Register records name and returns its hash. Registering the same name
// again is a no-op. It panics if a different name already owns the hash.
func (reg *Registry) Register(name string) uint64 {
	return reg.register(name, reg.key.TypeHash(name))
}

func (reg *Registry) register(name string, hash uint64) uint64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if existing, ok := reg.names[hash]; ok && existing != name {
		panic(fmt.Sprintf("bufcodec: type hash collision: %q and %q both hash to %016x", existing, name, hash))
	}
	reg.names[hash] = name
	return hash
}

// Lookup returns the name registered for hash.
func (reg *Registry) Lookup(hash uint64) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	name, ok := reg.names[hash]
	return name, ok
}

// Len returns the number of registered names.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.names)
}

// RegisterType registers TypeNameOf[T]() and returns its hash.
func RegisterType[T any](reg *Registry) uint64 {
	return reg.Register(TypeNameOf[T]())
}
