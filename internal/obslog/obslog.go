// Package obslog holds the process-wide zap logger.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() { global.Store(zap.NewNop()) }

// L returns the global logger. It is a no-op until InitFromEnv or SetLogger.
func L() *zap.Logger { return global.Load() }

// SetLogger replaces the global logger; tests use it with an observer core.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

// Settings selects the sinks and encoding. Stderr is off by default so logs
// do not interleave with the game on the terminal.
type Settings struct {
	Level   zapcore.Level
	Format  string // legacy, console or json
	Stderr  bool
	File    string // empty disables the file sink
	Callers bool
}

// SettingsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE and LOG_CALLER.
func SettingsFromEnv() Settings {
	s := Settings{
		Level:   zapcore.InfoLevel,
		Format:  "legacy",
		Stderr:  envBool("LOG_TO_CONSOLE", false),
		Callers: envBool("LOG_CALLER", false),
	}
	if lvl, err := zapcore.ParseLevel(envOr("LOG_LEVEL", "info")); err == nil {
		s.Level = lvl
	}
	switch f := strings.ToLower(envOr("LOG_FORMAT", "legacy")); f {
	case "json", "console":
		s.Format = f
	}
	if envBool("LOG_TO_FILE", true) {
		s.File = envOr("LOG_FILE", filepath.Join("logs", "termchess.log"))
	}
	return s
}

// InitFromEnv installs a logger built from SettingsFromEnv.
func InitFromEnv() error {
	l, err := Build(SettingsFromEnv())
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// Build wires the configured sinks behind the redacting core. With no sink it returns a no-op logger.
func Build(s Settings) (*zap.Logger, error) {
	var cores []zapcore.Core
	if s.Stderr {
		cores = append(cores, zapcore.NewCore(encoder(s.Format), zapcore.Lock(os.Stderr), s.Level))
	}
	if s.File != "" {
		if dir := filepath.Dir(s.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(s.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder(s.Format), zapcore.AddSync(f), s.Level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if s.Callers || s.Format == "legacy" {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(NewRedactingCore(zapcore.NewTee(cores...)), opts...), nil
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "json":
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	default:
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
		return zapcore.NewConsoleEncoder(cfg)
	}
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	switch strings.ToLower(envOr(k, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}
