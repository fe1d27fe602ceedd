// Package config loads wormhole settings from an optional YAML file and
// WH_-prefixed environment variables. Env overrides file; flags override env
// where a flag exists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Settings is the server configuration. Heartbeat and timeout are kept in
// seconds, the unit the environment and config file use.
type Settings struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	BaseDomain         string  `yaml:"baseDomain"`
	WebsocketHeartbeat float64 `yaml:"websocketHeartbeat"`
	RequestTimeout     float64 `yaml:"requestTimeout"`
	MaxBodyBytes       int64   `yaml:"maxBodyBytes"`
	MaxTunnels         int     `yaml:"maxTunnels"`
	MaxPending         int     `yaml:"maxPending"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Host:               "0.0.0.0",
		Port:               8080,
		BaseDomain:         "localhost",
		WebsocketHeartbeat: 30,
		RequestTimeout:     10.0,
		MaxBodyBytes:       10 << 20,
		MaxTunnels:         512,
		MaxPending:         256,
	}
}

// Load builds Settings from defaults, an optional YAML file at path, and the
// environment.
func Load(path string) (*Settings, error) {
	c := Default()

	if path != "" {
		klog.V(2).Infof("parsing configuration file; path=%q", path)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Settings) applyEnv() error {
	if v := os.Getenv("WH_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("WH_BASE_DOMAIN"); v != "" {
		c.BaseDomain = v
	}
	if v := os.Getenv("WH_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: WH_PORT: %w", err)
		}
		c.Port = n
	}
	if v := os.Getenv("WH_WEBSOCKET_HEARTBEAT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: WH_WEBSOCKET_HEARTBEAT: %w", err)
		}
		c.WebsocketHeartbeat = f
	}
	if v := os.Getenv("WH_REQUEST_TIMEOUT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: WH_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = f
	}
	if v := os.Getenv("WH_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: WH_MAX_BODY_BYTES: %w", err)
		}
		c.MaxBodyBytes = n
	}
	if v := os.Getenv("WH_MAX_TUNNELS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: WH_MAX_TUNNELS: %w", err)
		}
		c.MaxTunnels = n
	}
	if v := os.Getenv("WH_MAX_PENDING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: WH_MAX_PENDING: %w", err)
		}
		c.MaxPending = n
	}
	return nil
}

// Validate checks the settings.
func (c *Settings) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port must be in 1..65535")
	}
	if c.BaseDomain == "" {
		return fmt.Errorf("config: baseDomain must be set")
	}
	if c.WebsocketHeartbeat <= 0 {
		return fmt.Errorf("config: websocketHeartbeat must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: requestTimeout must be greater than 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: maxBodyBytes must be greater than 0")
	}
	return nil
}

// Addr returns the listen address.
func (c *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Heartbeat returns the ping cadence. The liveness deadline is twice this.
func (c *Settings) Heartbeat() time.Duration {
	return time.Duration(c.WebsocketHeartbeat * float64(time.Second))
}

// Timeout returns the public-request reply deadline.
func (c *Settings) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout * float64(time.Second))
}

// PublicURL derives the URL a subdomain is reachable at. TLS termination is
// the edge proxy's business, so the scheme is plain http.
func (c *Settings) PublicURL(subdomain string) string {
	if c.Port == 80 {
		return fmt.Sprintf("http://%s.%s", subdomain, c.BaseDomain)
	}
	return fmt.Sprintf("http://%s.%s:%d", subdomain, c.BaseDomain, c.Port)
}
