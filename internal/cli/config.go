package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	APIBase string `json:"api_base"`
}

// Credentials is what login leaves behind. Key is the hex private key the
// ledger operations are signed with; TRADECTL_KEY overrides it.
type Credentials struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Key       string `json:"key,omitempty"`
}

func DefaultConfig() Config {
	return Config{APIBase: "http://localhost:8080"}
}

// Dir holds config.json and credentials.json.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("TRADECTL_DIR")); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("TRADECTL_HOME")); v != "" {
		return filepath.Join(v, ".tradectl"), nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".tradectl"), nil
}

func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	d, err := Dir()
	if err != nil {
		return Config{}, err
	}
	p := filepath.Join(d, "config.json")
	if b, err := os.ReadFile(p); err == nil {
		var onDisk Config
		if err := json.Unmarshal(b, &onDisk); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", p, err)
		}
		if strings.TrimSpace(onDisk.APIBase) != "" {
			cfg.APIBase = strings.TrimRight(strings.TrimSpace(onDisk.APIBase), "/")
		}
	}

	if v := strings.TrimSpace(os.Getenv("TRADECTL_API_BASE")); v != "" {
		cfg.APIBase = strings.TrimRight(v, "/")
	}

	if cfg.APIBase == "" {
		return Config{}, errors.New("api_base is empty")
	}
	return cfg, nil
}

func LoadCredentials() (Credentials, error) {
	d, err := Dir()
	if err != nil {
		return Credentials{}, err
	}
	p := filepath.Join(d, "credentials.json")
	b, err := os.ReadFile(p)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", p, err)
	}
	return c, nil
}

func SaveCredentials(c Credentials) error {
	d, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d, "credentials.json"), b, 0o600)
}

func (c Credentials) ExpiresAtTime() (time.Time, bool) {
	v := strings.TrimSpace(c.ExpiresAt)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
