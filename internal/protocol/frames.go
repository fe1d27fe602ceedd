// Package protocol defines the JSON frames exchanged on the control channel
// between the wormhole server and an agent. Every frame carries a "type"
// discriminator; bodies travel as base64 strings, never raw bytes.
package protocol

import "encoding/base64"

// Frame type discriminators.
const (
	TypeConnected    = "connected"
	TypeHTTPRequest  = "http_request"
	TypeHTTPResponse = "http_response"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Frame is any control-channel message.
type Frame interface {
	FrameType() string
}

// Connected is sent by the server immediately after the agent handshake.
type Connected struct {
	Type      string `json:"type"`
	TunnelID  string `json:"tunnel_id"`
	Subdomain string `json:"subdomain"`
	PublicURL string `json:"public_url"`
}

func (*Connected) FrameType() string { return TypeConnected }

// HTTPRequest is a public request forwarded to the agent. Headers are a flat
// mapping from lowercase name to value; multi-value headers are pre-joined.
type HTTPRequest struct {
	Type        string            `json:"type"`
	RequestID   string            `json:"request_id"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	QueryString string            `json:"query_string"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
}

func (*HTTPRequest) FrameType() string { return TypeHTTPRequest }

// HTTPResponse is the agent's reply to a forwarded request.
type HTTPResponse struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id"`
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
}

func (*HTTPResponse) FrameType() string { return TypeHTTPResponse }

// Ping and Pong are application-level heartbeat frames.
type Ping struct {
	Type string `json:"type"`
}

func (*Ping) FrameType() string { return TypePing }

type Pong struct {
	Type string `json:"type"`
}

func (*Pong) FrameType() string { return TypePong }

// EncodeBody renders a byte string for transport. An empty body encodes to the
// empty string, not an omitted field.
func EncodeBody(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBody is the inverse of EncodeBody.
func DecodeBody(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
