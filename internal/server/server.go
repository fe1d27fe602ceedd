package server

import (
	"context"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/wormholehq/wormhole/internal/config"
)

// Server owns the tunnel registry, the pending-request table, and the
// configuration. All tunnel state is in-memory and lost on restart; agents
// reconnect and receive new subdomains.
type Server struct {
	cfg      *config.Settings
	registry *Registry
	pending  *PendingTable
	srv      *http.Server
}

// New creates a Server from validated settings.
func New(cfg *config.Settings) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxTunnels),
		pending:  NewPendingTable(cfg.MaxPending),
	}, nil
}

// Handler returns the root handler: requests whose Host carries a subdomain
// of the base domain are proxied; everything else hits the admin surface.
func (s *Server) Handler() http.Handler {
	admin := http.NewServeMux()
	admin.HandleFunc("/", s.handleIndex)
	admin.HandleFunc("/status", s.handleStatus)
	admin.HandleFunc("/health", s.handleHealth)
	admin.HandleFunc("/tunnel", s.handleTunnelConnect)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub, ok := ExtractSubdomain(r.Host, s.cfg.BaseDomain); ok {
			s.handleProxiedRequest(w, r, sub)
			return
		}
		admin.ServeHTTP(w, r)
	})
}

// Run starts the HTTP listener and blocks until ctx is cancelled or the
// listener fails. Shutdown drains in-flight requests briefly; tunnel state is
// not preserved.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("wormhole server listening on %s (base domain %s)", s.cfg.Addr(), s.cfg.BaseDomain)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		klog.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// Registry exposes the tunnel registry (status surface, tests).
func (s *Server) Registry() *Registry { return s.registry }

// Pending exposes the pending-request table (tests).
func (s *Server) Pending() *PendingTable { return s.pending }
