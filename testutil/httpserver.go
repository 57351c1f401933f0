package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/kbukum/fixturekit/fixture"
)

// HTTPServer is a Component backed by httptest.Server.
type HTTPServer struct {
	name    string
	handler http.Handler

	mu sync.RWMutex
	ts *httptest.Server
}

var _ Component = (*HTTPServer)(nil)

// NewHTTPServer creates an unstarted test server for handler.
func NewHTTPServer(name string, handler http.Handler) *HTTPServer {
	return &HTTPServer{name: name, handler: handler}
}

func (s *HTTPServer) Name() string { return s.name }

// Start binds a loopback listener and begins serving.
func (s *HTTPServer) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ts != nil {
		return fmt.Errorf("server %s already started", s.name)
	}
	s.ts = httptest.NewServer(s.handler)
	return nil
}

// Stop closes the server and blocks until outstanding requests finish.
func (s *HTTPServer) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ts == nil {
		return nil
	}
	s.ts.Close()
	s.ts = nil
	return nil
}

// URL returns the base URL, or "" when not started.
func (s *HTTPServer) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ts == nil {
		return ""
	}
	return s.ts.URL
}

// Client returns an HTTP client configured for the server.
func (s *HTTPServer) Client() *http.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ts == nil {
		return http.DefaultClient
	}
	return s.ts.Client()
}

// HTTPServerFixture registers handler as a two-phase fixture yielding a
// started *HTTPServer.
func HTTPServerFixture(name string, handler http.Handler, opts ...fixture.Option) fixture.Definition {
	return ComponentFixture(name, func(context.Context, *fixture.Request) (Component, error) {
		return NewHTTPServer(name, handler), nil
	}, opts...)
}
