package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/buildmedic/internal/pipeline"
)

// Load reads and parses a config from the given YAML file path. After
// parsing, it applies defaults to fields the file leaves unset.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	if cfg.Project.Root == "" {
		cfg.Project.Root = filepath.Dir(path)
	}
	if abs, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = abs
	}
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config found.
// Search order: ./medic.yaml, ~/.medic/config.yaml. With no file anywhere it
// returns a pure-defaults config rooted at the working directory.
func LoadDefault() (*FileConfig, error) {
	candidates := []string{"medic.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".medic", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &FileConfig{}
	applyDefaults(cfg)
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	cfg.Project.Root = wd
	return cfg, nil
}

// applyDefaults fills unset fields. Pointer fields distinguish "absent" from
// an explicit false/zero, so `enabled: false` in the file is respected.
func applyDefaults(cfg *FileConfig) {
	if cfg.Fix.Enabled == nil {
		cfg.Fix.Enabled = boolPtr(true)
	}
	if cfg.Fix.MaxAttempts == nil {
		cfg.Fix.MaxAttempts = intPtr(pipeline.DefaultMaxFixAttempts)
	}
	if cfg.Git.Enabled == nil {
		cfg.Git.Enabled = boolPtr(true)
	}
	if cfg.Git.CommitFixes == nil {
		cfg.Git.CommitFixes = boolPtr(true)
	}
	if cfg.Project.RunTests == nil {
		cfg.Project.RunTests = boolPtr(true)
	}
	if cfg.Project.Timeout == 0 {
		cfg.Project.Timeout = pipeline.DefaultTimeout
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8787"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = "gpt-4o-mini"
	}
	if cfg.Oracle.APIKeyEnv == "" {
		cfg.Oracle.APIKeyEnv = "OPENAI_API_KEY"
	}
}

// APIKey resolves the oracle API key from the configured environment
// variable. Empty means the oracle is disabled.
func (c *FileConfig) APIKey() string {
	return os.Getenv(c.Oracle.APIKeyEnv)
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
