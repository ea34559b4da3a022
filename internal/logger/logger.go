package logger

import "chordkv/internal/domain"

// Field is a single structured key:value log attribute.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal structured-logging interface used throughout
// the DHT. Concrete implementations (e.g. the zap adapter) decide how
// fields are encoded and where output goes.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F is a concise constructor for a Field.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FNode serializes a domain.Node into a readable structured field.
// A nil node is logged as such rather than panicking.
func FNode(key string, n *domain.Node) Field {
	if n == nil {
		return Field{Key: key, Val: nil}
	}
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   n.ID.ToHexString(false),
			"addr": n.Addr,
		},
	}
}

// FResource serializes a domain.Resource into a readable structured field.
func FResource(key string, r domain.Resource) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"key":       r.Key.ToHexString(false),
			"rawKey":    r.RawKey,
			"isReplica": r.IsReplica,
			"timestamp": r.Timestamp,
		},
	}
}

// ----------------------------------------------------------------
// NopLogger is a Logger implementation that discards everything. It is
// the zero-value default so any package taking a Logger option works
// without one configured.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger          { return l }
func (l *NopLogger) With(fields ...Field) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
