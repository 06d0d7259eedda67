package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Logger is a slog.Logger backed by a zap core and tagged with a component.
type Logger struct {
	*slog.Logger
	// base carries every attribute except the component, so a new
	// component replaces the old one instead of repeating the key.
	base      *slog.Logger
	component string
	sync      func() error
}

var defaultLogger atomic.Pointer[Logger]

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or console
	Component string
	// Output defaults to stdout.
	Output io.Writer
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    FormatConsole,
		Component: ComponentApp,
	}
}

// New builds a zap core from cfg and exposes it through slog.
func New(cfg Config) *Logger {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	ws := zapcore.Lock(zapcore.AddSync(out))

	core := zapcore.NewCore(newEncoder(cfg.Format), ws, parseLevel(cfg.Level))
	handler := zapslog.NewHandler(core,
		zapslog.WithCaller(true),
		zapslog.AddStacktraceAt(slog.LevelError),
	)

	return newLogger(slog.New(handler), cfg.Component, ws.Sync)
}

func newLogger(base *slog.Logger, component string, sync func() error) *Logger {
	logger := base
	if component != "" {
		logger = base.With(FieldComponent, component)
	}
	return &Logger{
		Logger:    logger,
		base:      base,
		component: component,
		sync:      sync,
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ValidLevel reports whether level is one New understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if strings.EqualFold(format, FormatJSON) {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		base:      l.baseLogger().With(args...),
		component: l.component,
		sync:      l.sync,
	}
}

// WithComponent returns a new logger tagged with component in place of the
// current one.
func (l *Logger) WithComponent(component string) *Logger {
	return newLogger(l.baseLogger(), component, l.sync)
}

func (l *Logger) baseLogger() *slog.Logger {
	if l.base != nil {
		return l.base
	}
	return l.Logger
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Sync() error {
	if l.sync == nil {
		return nil
	}
	if err := l.sync(); err != nil && !isIgnorableSyncError(err) {
		return err
	}
	return nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	defaultLogger.Store(logger)
	slog.SetDefault(logger.Logger)
}

// Default returns the logger installed by SetDefault, or one wrapping
// slog.Default when none was installed.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return newLogger(slog.Default(), "", nil)
}

// For returns the default logger tagged with component.
func For(component string) *Logger {
	return Default().WithComponent(component)
}
