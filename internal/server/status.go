package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"k8s.io/klog/v2"
)

// StatusResponse is the body of GET /status on the bare base domain.
type StatusResponse struct {
	Status        string       `json:"status"`
	ActiveTunnels int          `json:"active_tunnels"`
	Tunnels       []TunnelInfo `json:"tunnels"`
}

// handleStatus reports the server state and all live tunnels. It never fails.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		ActiveTunnels: s.registry.Len(),
		Tunnels:       s.registry.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		klog.Errorf("write status: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleIndex serves a minimal welcome page on the bare base domain.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>wormhole</title></head>
<body>
<h1>wormhole</h1>
<p>HTTP tunneling service. Active tunnels: %d</p>
<ul>
<li><code>GET /status</code> - server status and active tunnels</li>
<li><code>WS /tunnel</code> - create a new tunnel</li>
<li><code>ANY &lt;subdomain&gt;.%s/*</code> - proxied requests</li>
</ul>
</body>
</html>
`, s.registry.Len(), s.cfg.BaseDomain)
}
