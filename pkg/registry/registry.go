// Package registry implements the Provider Registry (spec component F):
// process-wide lifecycle, lookup, and availability probing over the fixed
// taxonomy of provider kinds, grounded in the teacher's
// internal/resilience.FallbackGroup map-of-named-entries shape generalized
// to one slot per coretypes.ProviderKind.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/providers"
)

// Handle wraps a registered Provider with the bookkeeping the spec's
// "Provider Handle" data model calls for: display name, discovered auth
// environment variable, and whether Init has succeeded yet.
type Handle struct {
	Kind        coretypes.ProviderKind
	DisplayName string
	AuthEnvName string
	Provider    providers.Provider

	mu          sync.Mutex
	initialized bool
	initErr     error
}

// Registry holds exactly one Handle per ProviderKind, created at Register
// time and lazily network-initialized on first use via Get. A single mutex
// guards structural changes (register/shutdown); each handle's own
// Init/Shutdown calls are further guarded by the adapter's internal mutex
// per spec §4.5, so Get only needs to serialize the "am I initialized yet"
// check here.
type Registry struct {
	mu      sync.Mutex
	entries map[coretypes.ProviderKind]*Handle
}

// New constructs an empty Registry. Callers populate it with Register before
// any Get call.
func New() *Registry {
	return &Registry{entries: make(map[coretypes.ProviderKind]*Handle, len(coretypes.AllProviderKinds))}
}

// Register installs p under its own Kind(). Registering the same kind twice
// replaces the prior handle after shutting it down, preserving the
// uniqueness invariant ("get(kind) returns the same handle for the lifetime
// of the process") for everything registered exactly once — the normal
// startup path.
func (r *Registry) Register(displayName, authEnvName string, p providers.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[p.Kind()]; ok {
		existing.Provider.Shutdown()
	}
	r.entries[p.Kind()] = &Handle{
		Kind:        p.Kind(),
		DisplayName: displayName,
		AuthEnvName: authEnvName,
		Provider:    p,
	}
}

// Get returns the initialized Provider for kind, lazily running Init on
// first access. Subsequent calls return the same *Handle's Provider without
// re-initializing, satisfying the registry-uniqueness testable property.
func (r *Registry) Get(ctx context.Context, kind coretypes.ProviderKind) (providers.Provider, error) {
	r.mu.Lock()
	h, ok := r.entries[kind]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("registry: no provider registered for kind %q", kind)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return h.Provider, h.initErr
	}
	h.initErr = h.Provider.Init(ctx)
	h.initialized = true
	if h.initErr != nil {
		slog.Warn("provider init failed", "kind", kind, "error", h.initErr)
	}
	return h.Provider, h.initErr
}

// IsAvailable reports whether kind is registered and its credentials
// validate, without surfacing the error detail Get would return.
func (r *Registry) IsAvailable(ctx context.Context, kind coretypes.ProviderKind) bool {
	p, err := r.Get(ctx, kind)
	if err != nil {
		return false
	}
	return p.ValidateCredentials(ctx)
}

// Kinds returns the provider kinds currently registered, in the stable
// order of coretypes.AllProviderKinds.
func (r *Registry) Kinds() []coretypes.ProviderKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []coretypes.ProviderKind
	for _, k := range coretypes.AllProviderKinds {
		if _, ok := r.entries[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Shutdown tears down every registered handle, releasing HTTP clients and
// clearing initialization state so a subsequent Get would re-initialize
// rather than return stale state (used only in tests and process exit, per
// spec §6 "Exit behaviour").
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.entries {
		h.mu.Lock()
		h.Provider.Shutdown()
		h.initialized = false
		h.initErr = nil
		h.mu.Unlock()
	}
}
