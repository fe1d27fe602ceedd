package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned when the type discriminator names no
	// recognized frame.
	ErrUnknownType = errors.New("protocol: unknown frame type")

	// ErrMissingField is returned when a required field, including the type
	// discriminator itself, is absent.
	ErrMissingField = errors.New("protocol: missing required field")
)

// Encode marshals a frame, stamping its type discriminator.
func Encode(f Frame) ([]byte, error) {
	switch m := f.(type) {
	case *Connected:
		m.Type = TypeConnected
	case *HTTPRequest:
		m.Type = TypeHTTPRequest
	case *HTTPResponse:
		m.Type = TypeHTTPResponse
	case *Ping:
		m.Type = TypePing
	case *Pong:
		m.Type = TypePong
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, f)
	}
	return json.Marshal(f)
}

// Decode parses a frame. Decoding is strict on required fields and the type
// discriminator, and lenient on unknown extra fields so future additions do
// not break older peers.
func Decode(data []byte) (Frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}

	var typ string
	if t, ok := raw["type"]; ok {
		if err := json.Unmarshal(t, &typ); err != nil {
			return nil, fmt.Errorf("protocol: decode type: %w", err)
		}
	}

	switch typ {
	case TypeConnected:
		if err := requireFields(raw, "tunnel_id", "subdomain", "public_url"); err != nil {
			return nil, err
		}
		var f Connected
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("protocol: decode connected: %w", err)
		}
		return &f, nil
	case TypeHTTPRequest:
		if err := requireFields(raw, "request_id", "method", "path", "query_string", "headers", "body"); err != nil {
			return nil, err
		}
		var f HTTPRequest
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("protocol: decode http_request: %w", err)
		}
		return &f, nil
	case TypeHTTPResponse:
		if err := requireFields(raw, "request_id", "status", "headers", "body"); err != nil {
			return nil, err
		}
		var f HTTPResponse
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("protocol: decode http_response: %w", err)
		}
		return &f, nil
	case TypePing:
		return &Ping{Type: TypePing}, nil
	case TypePong:
		return &Pong{Type: TypePong}, nil
	case "":
		return nil, fmt.Errorf("%w: %s", ErrMissingField, "type")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func requireFields(raw map[string]json.RawMessage, names ...string) error {
	for _, n := range names {
		if _, ok := raw[n]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingField, n)
		}
	}
	return nil
}
