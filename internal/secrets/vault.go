// Package secrets loads credentials from layered sources and serves them to
// the rest of the process with atomic hot reload.
package secrets

import (
	"fmt"
	"sync"
)

// Source is one named origin of secret values. Later sources in a Vault
// override earlier ones key by key.
type Source struct {
	Name string
	Load func() (map[string]string, error)
}

// Vault merges its sources into an in-memory key/value view.
type Vault struct {
	sources []Source

	mu     sync.RWMutex
	values map[string]string
}

// Open creates a Vault and performs the initial load. Every source must load
// cleanly at startup.
func Open(sources ...Source) (*Vault, error) {
	v := &Vault{sources: sources, values: map[string]string{}}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns the secret for key, or an empty string when absent.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Len reports how many secrets are currently loaded.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.values)
}

// Reload re-reads every source and swaps the merged view in atomically. When
// a source fails the previous values stay in place.
func (v *Vault) Reload() error {
	merged := make(map[string]string)
	for _, src := range v.sources {
		vals, err := src.Load()
		if err != nil {
			return fmt.Errorf("load secrets from %s: %w", src.Name, err)
		}
		for k, val := range vals {
			merged[k] = val
		}
	}

	v.mu.Lock()
	v.values = merged
	v.mu.Unlock()
	return nil
}
