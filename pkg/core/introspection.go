package core

import (
	"github.com/aretw0/introspection"
)

// SessionManagerState exposes internal state for observability.
type SessionManagerState struct {
	Status    SessionState `json:"status"`
	UserID    string       `json:"user_id,omitempty"`
	Observers int          `json:"observers"`
	Busy      bool         `json:"busy"`
}

// State implements introspection.Introspectable.
func (m *SessionManager) State() any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := SessionManagerState{
		Status:    m.state,
		Observers: len(m.observers),
		Busy:      m.busy.Load(),
	}
	if m.session != nil {
		st.UserID = m.session.User.ID
	}
	return st
}

// ComponentType implements introspection.Component.
func (m *SessionManager) ComponentType() string {
	return "session"
}

// NotesState exposes internal state for observability.
type NotesState struct {
	StoreType string `json:"store_type"`
}

// State implements introspection.Introspectable.
func (n *Notes) State() any {
	storeType := "unknown"
	if n.store != nil {
		storeType = "store"
		if comp, ok := n.store.(introspection.Component); ok {
			storeType = comp.ComponentType()
		}
	}
	return NotesState{StoreType: storeType}
}

// ComponentType implements introspection.Component.
func (n *Notes) ComponentType() string {
	return "notes"
}

var _ introspection.Introspectable = (*SessionManager)(nil)
var _ introspection.Component = (*SessionManager)(nil)
var _ introspection.Introspectable = (*Notes)(nil)
var _ introspection.Component = (*Notes)(nil)
