package memory

import "context"

// Manager is a tenant-scoped view over the Engine. Callers hold one
// per tenant and can only touch that tenant's partitions.
type Manager struct {
	engine   *Engine
	tenantID string
}

// Manager returns a tenant-scoped view.
func (e *Engine) Manager(tenantID string) *Manager {
	return &Manager{engine: e, tenantID: tenantID}
}

// RetrieveContext returns up to k snippets for the tenant's user.
func (m *Manager) RetrieveContext(ctx context.Context, query, userID string, k int) []string {
	return m.engine.RetrieveContext(ctx, query, m.tenantID, userID, k)
}

// AddConversation stores one exchange for the tenant's user.
func (m *Manager) AddConversation(userMsg, aiResp, userID string, metadata map[string]interface{}) {
	m.engine.AddConversation(userMsg, aiResp, m.tenantID, userID, metadata)
}
