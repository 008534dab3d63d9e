package memory

import (
	"github.com/aretw0/introspection"
)

// BackendState exposes internal state for observability.
type BackendState struct {
	Users         int  `json:"users"`
	Notes         int  `json:"notes"`
	RefreshTokens int  `json:"refresh_tokens"`
	AutoConfirm   bool `json:"auto_confirm"`
}

// State implements introspection.Introspectable.
func (b *Backend) State() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BackendState{
		Users:         len(b.byID),
		Notes:         len(b.notes),
		RefreshTokens: len(b.refresh),
		AutoConfirm:   b.config.AutoConfirm,
	}
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string {
	return "memory"
}

// ComponentType implements introspection.Component.
func (t *noteTable) ComponentType() string {
	return "memory"
}

var _ introspection.Introspectable = (*Backend)(nil)
var _ introspection.Component = (*Backend)(nil)
var _ introspection.Component = (*noteTable)(nil)
