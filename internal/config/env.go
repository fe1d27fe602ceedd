package config

import (
	"os"
	"strings"

	"k8s.io/klog/v2"
)

// LoadDotEnv loads WH_* environment variables from a .env file. Existing env
// vars are not overwritten; missing files are ignored.
func LoadDotEnv(name string) {
	data, err := os.ReadFile(name)
	if err != nil {
		return
	}
	for _, ln := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(ln)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			klog.Warningf("env: malformed line: %s", line)
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		v = strings.Trim(v, "\"'")
		// Only import our own keys to avoid clobbering app env
		if !strings.HasPrefix(k, "WH_") {
			continue
		}
		if os.Getenv(k) == "" {
			_ = os.Setenv(k, v)
		}
	}
}
