package client

import "sync"

// TenantState is the keyring entry for one tenant.
type TenantState struct {
	Disabled bool
	APIKey   string // optional per-tenant key override
}

// Keyring holds per-tenant credential state. It is read on every
// request and written rarely, so lookups take a read lock only.
// Changes are visible immediately without rebuilding the client.
type Keyring struct {
	mu      sync.RWMutex
	tenants map[string]TenantState
}

// NewKeyring creates an empty Keyring. Unknown tenants are enabled
// with no key override.
func NewKeyring() *Keyring {
	return &Keyring{tenants: make(map[string]TenantState)}
}

// Set replaces the state for a tenant.
func (k *Keyring) Set(tenantID string, state TenantState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tenants[tenantID] = state
}

// Disable blocks a tenant's requests until Enable is called.
func (k *Keyring) Disable(tenantID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	state := k.tenants[tenantID]
	state.Disabled = true
	k.tenants[tenantID] = state
}

// Enable re-admits a tenant's requests.
func (k *Keyring) Enable(tenantID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	state := k.tenants[tenantID]
	state.Disabled = false
	k.tenants[tenantID] = state
}

// Get returns the state for a tenant and whether an entry exists.
func (k *Keyring) Get(tenantID string) (TenantState, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	state, ok := k.tenants[tenantID]
	return state, ok
}
