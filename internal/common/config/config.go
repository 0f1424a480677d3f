// Package config loads and validates the verifier configuration file.
// YAML and JSON are both accepted; decoding is strict so unknown fields
// fail loudly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/common/configtypes"
	"github.com/replayproof/engine/internal/common/yamlutil"
	"github.com/replayproof/engine/internal/contract"
	"github.com/replayproof/engine/internal/record"
	"github.com/replayproof/engine/internal/session"
	"github.com/replayproof/engine/pkg/types"
)

// Type aliases so callers do not need to import configtypes.
type (
	LogConfig     = configtypes.LogConfig
	MetricsConfig = configtypes.MetricsConfig
)

// ReplayConfig configures the replay engine itself.
type ReplayConfig struct {
	// Target is the base URL replayed against when no template matches.
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
	// Timeout bounds each live HTTP call. Zero means 30s.
	Timeout types.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// UseDynamicResponses prefers template routes over live replay.
	UseDynamicResponses *bool `yaml:"useDynamicResponses,omitempty" json:"useDynamicResponses,omitempty"`
	// PreloadTemplates compiles all templates before the first interaction.
	PreloadTemplates bool `yaml:"preloadTemplates,omitempty" json:"preloadTemplates,omitempty"`
	// UnifyAdditions treats added body fields as breaking, like headers.
	UnifyAdditions bool `yaml:"unifyAdditions,omitempty" json:"unifyAdditions,omitempty"`
}

// ContractConfig configures contract import.
type ContractConfig struct {
	// File is the default contract path; the --contract flag overrides it.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
	// SuccessSelection is "firstSuccess" or "preferStatus".
	SuccessSelection string `yaml:"successSelection,omitempty" json:"successSelection,omitempty"`
	// PreferredStatus applies under "preferStatus".
	PreferredStatus int `yaml:"preferredStatus,omitempty" json:"preferredStatus,omitempty"`
}

// SessionsConfig configures session storage.
type SessionsConfig struct {
	// Dir is the file-store directory.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
	// Codec selects the archive format for saved sessions: none, snappy, lz4.
	Codec string `yaml:"codec,omitempty" json:"codec,omitempty"`
	// Redis switches session storage to a shared Redis backend.
	Redis *session.RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// Config is the root verifier configuration.
type Config struct {
	Log        LogConfig             `yaml:"log" json:"log"`
	Tolerances types.ToleranceConfig `yaml:"tolerances" json:"tolerances"`
	Replay     ReplayConfig          `yaml:"replay" json:"replay"`
	Contract   ContractConfig        `yaml:"contract" json:"contract"`
	Sessions   SessionsConfig        `yaml:"sessions" json:"sessions"`
	Recorder   record.Config         `yaml:"recorder" json:"recorder"`
	Metrics    MetricsConfig         `yaml:"metrics" json:"metrics"`
}

// Load reads a configuration file. An empty path returns defaults.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config '%s': %v", types.ErrIO, path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: malformed config '%s': %v", types.ErrInput, path, err)
		}
	case ".json":
		if err := yamlutil.UnmarshalStrictJSON(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: malformed config '%s': %v", types.ErrInput, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension '%s'", types.ErrInput, ext)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid config '%s': %v", types.ErrInput, path, err)
	}

	logger.Debug("Configuration loaded",
		zap.String("path", path),
		zap.String("target", cfg.Replay.Target),
		zap.String("contract", cfg.Contract.File))
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: configtypes.LogLevelInfo,
			Console: configtypes.ConsoleLogConfig{
				Enabled: true,
				Format:  configtypes.LogFormatConsole,
			},
		},
		Tolerances: types.DefaultTolerances(),
		Contract: ContractConfig{
			SuccessSelection: contract.SelectFirstSuccess,
		},
		Sessions: SessionsConfig{
			Dir:   "sessions",
			Codec: session.CodecNone,
		},
		Metrics: MetricsConfig{
			Path:      "/metrics",
			Namespace: "replayproof",
		},
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = configtypes.LogLevelInfo
	}
	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
		c.Log.Console.Format = configtypes.LogFormatConsole
	}
	if c.Contract.SuccessSelection == "" {
		c.Contract.SuccessSelection = contract.SelectFirstSuccess
	}
	if c.Sessions.Dir == "" {
		c.Sessions.Dir = "sessions"
	}
	if c.Sessions.Codec == "" {
		c.Sessions.Codec = session.CodecNone
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "replayproof"
	}
}

func (c *Config) validate() error {
	switch c.Contract.SuccessSelection {
	case contract.SelectFirstSuccess, contract.SelectPreferStatus:
	default:
		return fmt.Errorf("contract.successSelection must be '%s' or '%s', got '%s'",
			contract.SelectFirstSuccess, contract.SelectPreferStatus, c.Contract.SuccessSelection)
	}
	if c.Contract.SuccessSelection == contract.SelectPreferStatus &&
		(c.Contract.PreferredStatus < 200 || c.Contract.PreferredStatus > 299) {
		return fmt.Errorf("contract.preferredStatus must be a 2xx status, got %d", c.Contract.PreferredStatus)
	}

	switch c.Sessions.Codec {
	case session.CodecNone, session.CodecSnappy, session.CodecLZ4:
	default:
		return fmt.Errorf("sessions.codec must be one of none, snappy, lz4; got '%s'", c.Sessions.Codec)
	}

	if c.Tolerances.TimestampDriftSeconds < 0 {
		return fmt.Errorf("tolerances.timestampDriftSeconds must not be negative")
	}
	return nil
}
