package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// A Field is a named piece of data added to a log message.
type Field = zap.Field

// String field.
func String(key string, val string) Field {
	return zap.String(key, val)
}

// Strings field.
func Strings(key string, val []string) Field {
	return zap.Strings(key, val)
}

// Stringer field.
func Stringer(key string, val fmt.Stringer) Field {
	return zap.Stringer(key, val)
}

// Bool field.
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Int field.
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int32 field.
func Int32(key string, val int32) Field {
	return zap.Int32(key, val)
}

// Int64 field.
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Uint32 field.
func Uint32(key string, val uint32) Field {
	return zap.Uint32(key, val)
}

// Uint64 field.
func Uint64(key string, val uint64) Field {
	return zap.Uint64(key, val)
}

// Float64 field.
func Float64(key string, val float64) Field {
	return zap.Float64(key, val)
}

// Error field.
func Error(err error) Field {
	return zap.Error(err)
}

// Duration field.
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Time field.
func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

// Any field, for anything without a dedicated constructor.
func Any(key string, val interface{}) Field {
	return zap.Any(key, val)
}
