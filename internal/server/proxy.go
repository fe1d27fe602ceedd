package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wormholehq/wormhole/internal/protocol"
)

// handleProxiedRequest forwards one public request through the tunnel for
// subdomain and renders the agent's reply.
func (s *Server) handleProxiedRequest(w http.ResponseWriter, r *http.Request, subdomain string) {
	start := time.Now()

	t, ok := s.registry.Lookup(subdomain)
	if !ok {
		s.logRequest(http.StatusNotFound, r, start)
		http.Error(w, "Tunnel Not Active", http.StatusNotFound)
		return
	}

	maxBody := s.cfg.MaxBodyBytes
	if r.ContentLength > maxBody {
		s.logRequest(http.StatusRequestEntityTooLarge, r, start)
		http.Error(w, ErrPayloadTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logRequest(http.StatusRequestEntityTooLarge, r, start)
			http.Error(w, ErrPayloadTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		s.logRequest(http.StatusBadRequest, r, start)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	requestID := uuid.New().String()
	frame := &protocol.HTTPRequest{
		RequestID:   requestID,
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     flattenHeaders(r.Header, r.Host),
		Body:        protocol.EncodeBody(body),
	}

	handle, err := s.pending.Register(requestID, t, time.Now().Add(s.cfg.Timeout()))
	if err != nil {
		klog.Errorf("register pending: subdomain=%s: %v", subdomain, err)
		s.logRequest(http.StatusBadGateway, r, start)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	if err := t.Send(frame); err != nil {
		s.pending.Cancel(requestID)
		klog.Errorf("dispatch: subdomain=%s: %v: %v", subdomain, ErrDispatchFailed, err)
		s.logRequest(http.StatusBadGateway, r, start)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	t.IncRequestCount()

	resp, err := handle.Await(r.Context())
	switch {
	case err == nil:
		s.renderReply(w, r, resp, start)
	case errors.Is(err, ErrTimeout):
		klog.Warningf("request timeout: subdomain=%s request_id=%s", subdomain, requestID)
		s.logRequest(http.StatusGatewayTimeout, r, start)
		http.Error(w, "Gateway Timeout", http.StatusGatewayTimeout)
	case errors.Is(err, ErrCancelled):
		// public client went away; nothing to write
		klog.V(2).Infof("request cancelled: subdomain=%s request_id=%s", subdomain, requestID)
	default:
		s.logRequest(http.StatusBadGateway, r, start)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
}

func (s *Server) renderReply(w http.ResponseWriter, r *http.Request, resp *protocol.HTTPResponse, start time.Time) {
	body, err := protocol.DecodeBody(resp.Body)
	if err != nil || int64(len(body)) > s.cfg.MaxBodyBytes {
		klog.Errorf("malformed reply: request_id=%s: %v", resp.RequestID, err)
		s.logRequest(http.StatusBadGateway, r, start)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	status := resp.Status
	if status < 100 || status > 599 {
		status = http.StatusBadGateway
	}

	for k, v := range resp.Headers {
		if isHopByHop(k) {
			continue
		}
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
	s.logRequest(status, r, start)
}

func (s *Server) logRequest(status int, r *http.Request, start time.Time) {
	klog.V(1).Infof("%d %s %s host=%s %.2fms", status, r.Method, r.URL.RequestURI(), r.Host, float64(time.Since(start).Microseconds())/1000)
}

// flattenHeaders renders headers as a flat lowercase-name mapping; multi-value
// headers are joined with commas. The original Host travels in the mapping so
// the agent can apply its own policy.
func flattenHeaders(h http.Header, host string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, vv := range h {
		if len(vv) == 0 {
			continue
		}
		out[strings.ToLower(k)] = strings.Join(vv, ", ")
	}
	if host != "" {
		out["host"] = host
	}
	return out
}

// isHopByHop reports whether a reply header has per-connection semantics and
// must not cross the proxy boundary.
func isHopByHop(name string) bool {
	n := strings.ToLower(name)
	switch n {
	case "connection", "keep-alive", "transfer-encoding", "upgrade":
		return true
	}
	return strings.HasPrefix(n, "proxy-")
}
