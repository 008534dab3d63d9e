package web

import (
	"time"

	"github.com/aretw0/introspection"
)

// ServerState exposes internal state for observability.
type ServerState struct {
	Browsers        int       `json:"browsers"`
	Authenticated   int       `json:"authenticated"`
	TemplatesDir    string    `json:"templates_dir,omitempty"`
	TemplatesLoaded time.Time `json:"templates_loaded"`
	Reloads         int       `json:"reloads"`
}

// State implements introspection.Introspectable.
func (s *Server) State() any {
	total, authenticated := s.browsers.counts()
	s.templates.mu.RLock()
	defer s.templates.mu.RUnlock()
	return ServerState{
		Browsers:        total,
		Authenticated:   authenticated,
		TemplatesDir:    s.config.TemplatesDir,
		TemplatesLoaded: s.templates.loaded,
		Reloads:         s.templates.reloads,
	}
}

// ComponentType implements introspection.Component.
func (s *Server) ComponentType() string {
	return "web"
}

var _ introspection.Introspectable = (*Server)(nil)
var _ introspection.Component = (*Server)(nil)
