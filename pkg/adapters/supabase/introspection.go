package supabase

import (
	"github.com/aretw0/introspection"
)

// BackendState exposes internal state for observability.
type BackendState struct {
	URL             string `json:"url"`
	RefreshMargin   string `json:"refresh_margin"`
	RefreshInterval string `json:"refresh_interval"`
}

// State implements introspection.Introspectable.
func (b *Backend) State() any {
	return BackendState{
		URL:             b.baseURL.String(),
		RefreshMargin:   b.config.RefreshMargin.String(),
		RefreshInterval: b.config.RefreshInterval.String(),
	}
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string {
	return "supabase"
}

// ComponentType implements introspection.Component.
func (t *noteTable) ComponentType() string {
	return "supabase"
}

var _ introspection.Introspectable = (*Backend)(nil)
var _ introspection.Component = (*Backend)(nil)
var _ introspection.Component = (*noteTable)(nil)
