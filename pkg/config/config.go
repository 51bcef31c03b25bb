// Package config provides the handful of environment-driven knobs the
// agent runtime itself needs at process start: the default run-supervisor
// exception policy, its restart backoff, and the debug/log settings
// consumed by pkg/logx. It is not a general configuration framework — the
// runtime has no config-surface concerns of its own beyond these.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalkit/agentrt/pkg/logx"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized at process start.
const (
	EnvRunPolicy    = "AGENTRT_RUN_POLICY"
	EnvRunBackoff   = "AGENTRT_RUN_BACKOFF"
	EnvDebug        = "AGENTRT_DEBUG"
	EnvDebugDomains = "AGENTRT_DEBUG_DOMAINS"
	EnvDebugLogDir  = "AGENTRT_DEBUG_LOG_DIR"
	EnvDebugToFile  = "AGENTRT_DEBUG_TO_FILE"
	EnvConfigFile   = "AGENTRT_CONFIG_FILE"
)

// RunPolicyName is the run supervisor's string-keyed exception policy,
// kept as a plain string here rather than internal/supervisor.Policy so
// this package never needs to import the runtime core.
type RunPolicyName string

const (
	PolicyLogAndStopModule   RunPolicyName = "LogAndStopModule"
	PolicyLogAndRemoveModule RunPolicyName = "LogAndRemoveModule"
	PolicyLogAndRerunModule  RunPolicyName = "LogAndRerunModule"
	PolicyLogAndRerunAll     RunPolicyName = "LogAndRerunAll"
	PolicyLogAndStopAll      RunPolicyName = "LogAndStopAll"
	PolicyRethrowAndStopAll  RunPolicyName = "RethrowAndStopAll"
)

// Config holds the resolved runtime knobs.
type Config struct {
	RunPolicy    RunPolicyName `yaml:"run_policy"`
	RunBackoff   time.Duration `yaml:"run_backoff"`
	Debug        bool          `yaml:"debug"`
	DebugDomains []string      `yaml:"debug_domains"`
	DebugLogDir  string        `yaml:"debug_log_dir"`
	DebugToFile  bool          `yaml:"debug_to_file"`
}

// fileConfig mirrors Config's yaml shape but with string durations, since
// time.Duration does not implement yaml.Unmarshaler on its own.
type fileConfig struct {
	RunPolicy    RunPolicyName `yaml:"run_policy"`
	RunBackoff   string        `yaml:"run_backoff"`
	Debug        bool          `yaml:"debug"`
	DebugDomains []string      `yaml:"debug_domains"`
	DebugLogDir  string        `yaml:"debug_log_dir"`
	DebugToFile  bool          `yaml:"debug_to_file"`
}

// Default returns the runtime's built-in defaults, before any environment
// or file overrides are applied.
func Default() Config {
	return Config{
		RunPolicy:   PolicyLogAndStopModule,
		RunBackoff:  10 * time.Millisecond,
		DebugLogDir: "debug-logs",
	}
}

// Load resolves Config by layering, in increasing precedence: built-in
// defaults, an optional AGENTRT_CONFIG_FILE yaml document, then AGENTRT_*
// environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: loading %s: %w", path, err)
		}
		applyFile(&cfg, fc)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.RunPolicy != "" {
		cfg.RunPolicy = fc.RunPolicy
	}
	if fc.RunBackoff != "" {
		if d, err := time.ParseDuration(fc.RunBackoff); err == nil {
			cfg.RunBackoff = d
		}
	}
	cfg.Debug = fc.Debug || cfg.Debug
	if len(fc.DebugDomains) > 0 {
		cfg.DebugDomains = fc.DebugDomains
	}
	if fc.DebugLogDir != "" {
		cfg.DebugLogDir = fc.DebugLogDir
	}
	cfg.DebugToFile = fc.DebugToFile || cfg.DebugToFile
}

// Apply pushes the debug/log settings onto pkg/logx's global switches. It
// does not touch the run policy or backoff, which callers read directly
// from Config when constructing an Agent and a supervisor.Policy.
func (c Config) Apply() {
	logx.SetDebugConfig(c.Debug, c.DebugToFile, c.DebugLogDir)
	logx.SetDebugDomains(c.DebugDomains)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRunPolicy); v != "" {
		cfg.RunPolicy = RunPolicyName(v)
	}
	if v := os.Getenv(EnvRunBackoff); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunBackoff = d
		}
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv(EnvDebugDomains); v != "" {
		cfg.DebugDomains = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvDebugLogDir); v != "" {
		cfg.DebugLogDir = v
	}
	if v := os.Getenv(EnvDebugToFile); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DebugToFile = b
		}
	}
}
