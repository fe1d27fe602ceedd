package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// ClientConfig holds the agent-side configuration (server URL, local origin).
type ClientConfig struct {
	ServerURL string `json:"server_url"`
	LocalURL  string `json:"local_url,omitempty"`
}

const clientConfigFile = "client.json"

// ClientConfigDir returns ~/.wormhole.
func ClientConfigDir() string {
	home, _ := homedir.Dir()
	return filepath.Join(home, ".wormhole")
}

// LoadClientConfig loads agent config from ~/.wormhole/client.json and env
// (env overrides).
func LoadClientConfig() (*ClientConfig, error) {
	path := filepath.Join(ClientConfigDir(), clientConfigFile)
	cfg := &ClientConfig{}
	data, err := os.ReadFile(path)
	if err == nil {
		_ = json.Unmarshal(data, cfg)
	}
	if v := os.Getenv("WH_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("WH_LOCAL"); v != "" {
		cfg.LocalURL = v
	}
	return cfg, nil
}

// SaveClientConfig writes agent config to ~/.wormhole/client.json.
func SaveClientConfig(cfg *ClientConfig) error {
	dir := ClientConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, clientConfigFile), data, 0600)
}
