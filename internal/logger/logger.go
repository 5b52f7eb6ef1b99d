// Package logger provides process-wide logging for sercha-rag.
// It is backed by zap. The printf-style helpers suit CLI tracing; L returns
// the structured logger for services that log with fields.
// When verbose mode is enabled via the --verbose flag, debug messages are
// written to stderr to help users follow the retrieval pipeline.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	format            = "console"
	level             = zapcore.WarnLevel
	base              = build()
)

// Init sets the minimum level ("debug", "info", "warn", "error") and the
// encoding ("console" or "json").
func Init(lvl, encoding string) error {
	var parsed zapcore.Level
	if lvl == "" {
		lvl = "warn"
	}
	if err := parsed.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
		return fmt.Errorf("parse log level %q: %w", lvl, err)
	}
	switch encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", encoding)
	}

	mu.Lock()
	defer mu.Unlock()
	level = parsed
	if encoding != "" {
		format = encoding
	}
	base = build()
	return nil
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build()
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs a message at debug level.
func Debug(format string, args ...any) {
	L().Sugar().Debugf(format, args...)
}

// Section logs a section header at debug level.
func Section(name string) {
	L().Sugar().Debugf("=== %s ===", name)
}

// Info logs a message at info level.
func Info(format string, args ...any) {
	L().Sugar().Infof(format, args...)
}

// Warn logs a message at warn level.
func Warn(format string, args ...any) {
	L().Sugar().Warnf(format, args...)
}

// Error logs a message at error level.
func Error(format string, args ...any) {
	L().Sugar().Errorf(format, args...)
}

// build assembles a logger from the current state (caller must hold lock).
func build() *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	threshold := level
	if verbose {
		threshold = zapcore.DebugLevel
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(output), threshold)
	return zap.New(core)
}
