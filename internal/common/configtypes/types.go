// Package configtypes holds configuration structures shared between the
// config loader, logger, and the CLI commands.
package configtypes

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

type LogConfig struct {
	Level   string           `yaml:"level" json:"level"`
	Console ConsoleLogConfig `yaml:"console" json:"console"`
	File    FileLogConfig    `yaml:"file" json:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Format  string `yaml:"format" json:"format"`
	Level   string `yaml:"level,omitempty" json:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Path     string         `yaml:"path" json:"path"`
	Format   string         `yaml:"format" json:"format"`
	Level    string         `yaml:"level,omitempty" json:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size" json:"max_size"`
	MaxAge     int  `yaml:"max_age" json:"max_age"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	Compress   bool `yaml:"compress" json:"compress"`
}

// MetricsConfig configures the optional Prometheus scrape endpoint of the
// recording proxy.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Listen    string `yaml:"listen" json:"listen"`
	Path      string `yaml:"path" json:"path"`
	Namespace string `yaml:"namespace" json:"namespace"`
}
