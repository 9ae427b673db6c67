// Package telemetry provides the structured, per-subsystem logger used
// throughout the engine, listener, and coordination layer. It wraps
// github.com/ipfs/go-log/v2 (itself a thin convenience layer over
// go.uber.org/zap) so every subsystem gets an independently levelable
// logger by name, the same way the reference stack's database and RPC
// layers each logged under their own name.
package telemetry

import (
	"context"
	"os"

	ipfslog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// Logger is the structured logging interface used across the module.
type Logger interface {
	// Debug logs a message at debug level.
	// keysAndValues are treated as key-value pairs (e.g., "key1", value1, "key2", value2).
	Debug(msg string, keysAndValues ...interface{})
	// Info logs a message at info level.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs a message at error level.
	Error(msg string, keysAndValues ...interface{})
	// Fatal logs a message at fatal level and terminates the process.
	Fatal(msg string, keysAndValues ...interface{})
	// With returns a new logger with the given key-value pair attached to
	// every subsequent entry.
	With(key string, value interface{}) Logger
	// NewSystem returns a new logger scoped to the given subsystem name.
	NewSystem(name string) Logger
}

// NewLogger returns a Logger backed by the named ipfs-go-log subsystem.
func NewLogger(name string) Logger {
	return &subsystemLogger{
		lg: ipfslog.Logger(name).SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

type subsystemLogger struct {
	lg         *zap.SugaredLogger
	commonKVs  []interface{}
	systemName string
}

func (l *subsystemLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.lg.Debugw(msg, keysAndValues...)
}

func (l *subsystemLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Infow(msg, keysAndValues...)
}

func (l *subsystemLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.lg.Warnw(msg, keysAndValues...)
}

func (l *subsystemLogger) Error(msg string, keysAndValues ...interface{}) {
	l.lg.Errorw(msg, keysAndValues...)
}

func (l *subsystemLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.lg.Fatalw(msg, keysAndValues...)
}

func (l *subsystemLogger) With(key string, value interface{}) Logger {
	return &subsystemLogger{
		lg:         l.lg.With(key, value),
		commonKVs:  append(append([]interface{}{}, l.commonKVs...), key, value),
		systemName: l.systemName,
	}
}

func (l *subsystemLogger) NewSystem(name string) Logger {
	full := name
	if l.systemName != "" {
		full = l.systemName + "." + name
	}
	lg := ipfslog.Logger(full)
	return &subsystemLogger{
		lg:         lg.SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar().With(l.commonKVs...),
		systemName: full,
	}
}

type loggerContextKey struct{}

// WithContext attaches the provided logger to the context.
func WithContext(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// FromContext retrieves the logger stored in the context, falling back to a
// noop-named logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return NewLogger("noop")
}

// envVerbosityVar is the verbosity variable named in the spec's external
// interfaces as the RUST_LOG-equivalent: AUTH_EPISODE_LOG_LEVEL. It defaults
// to "info" and accepts the usual ipfs-go-log level names.
const envVerbosityVar = "AUTH_EPISODE_LOG_LEVEL"

func init() {
	level := os.Getenv(envVerbosityVar)
	if level == "" {
		level = "info"
	}
	parsed, err := ipfslog.Parse(level)
	if err != nil {
		parsed = ipfslog.LevelInfo
	}
	ipfslog.SetupLogging(ipfslog.Config{
		Level:  parsed,
		Stderr: true,
	})
}
