package obslog

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

const redacted = "********"

var (
	secretsMu sync.RWMutex
	secrets   []string
)

// RedactSecret registers a value that must never appear in log output.
// Values shorter than 4 characters are ignored.
func RedactSecret(s string) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return
	}
	secretsMu.Lock()
	defer secretsMu.Unlock()
	for _, v := range secrets {
		if v == s {
			return
		}
	}
	secrets = append(secrets, s)
}

func resetSecrets() {
	secretsMu.Lock()
	secrets = nil
	secretsMu.Unlock()
}

// Redact replaces every registered secret in s.
func Redact(s string) string {
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	for _, v := range secrets {
		if strings.Contains(s, v) {
			s = strings.ReplaceAll(s, v, redacted)
		}
	}
	return s
}

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps c so messages and string-valued fields pass through Redact.
func NewRedactingCore(c zapcore.Core) zapcore.Core {
	return &redactingCore{Core: c}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = Redact(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = Redact(f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: Redact(err.Error())}
			}
		case zapcore.StringerType:
			if s, ok := f.Interface.(interface{ String() string }); ok {
				f = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: Redact(s.String())}
			}
		}
		out[i] = f
	}
	return out
}
