// Package logger builds the zap loggers used across the verifier. Console
// and file outputs are configured independently; file output rotates via
// lumberjack.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/replayproof/engine/internal/common/configtypes"
)

// NewLogger creates a zap logger from config. At least one output must be
// enabled.
func NewLogger(config configtypes.LogConfig) (*zap.Logger, error) {
	globalLevel := parseLogLevel(config.Level)

	var cores []zapcore.Core

	if config.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.Console.Level, globalLevel))
		encoder := createEncoder(config.Console.Format)
		// CLI output goes to stdout; logs belong on stderr so piped report
		// output stays clean.
		writer := zapcore.Lock(os.Stderr)
		cores = append(cores, zapcore.NewCore(encoder, writer, level))
	}

	if config.File.Enabled {
		if config.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.File.Level, globalLevel))
		encoder := createEncoder(config.File.Format)
		writer := createFileWriter(config.File.Path, config.File.Rotation)
		cores = append(cores, zapcore.NewCore(encoder, writer, level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	return zap.New(core), nil
}

// NewCLILogger creates the default console logger for command-line runs.
// verbose lowers the level to debug.
func NewCLILogger(verbose bool) *zap.Logger {
	level := configtypes.LogLevelWarn
	if verbose {
		level = configtypes.LogLevelDebug
	}
	log, err := NewLogger(configtypes.LogConfig{
		Level: level,
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
		},
	})
	if err != nil {
		// Console-only config above cannot fail; keep the signature simple.
		panic(err)
	}
	return log
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case configtypes.LogLevelDebug:
		return zap.DebugLevel
	case configtypes.LogLevelInfo:
		return zap.InfoLevel
	case configtypes.LogLevelWarn:
		return zap.WarnLevel
	case configtypes.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// resolveLogLevel prefers the per-output level, falling back to the global
// one.
func resolveLogLevel(outputLevel string, globalLevel zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLogLevel(outputLevel)
	}
	return globalLevel
}

func createEncoder(format string) zapcore.Encoder {
	if format == configtypes.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == configtypes.LogFormatText {
		// Plain text without color codes (for files)
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func createFileWriter(path string, rotation configtypes.RotationConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	})
}
