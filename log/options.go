package log

// Option holds optional configuration applied when creating a Logger.
type Option struct {
	Level Level
}

// WithLevel sets the logger's minimum log level.
func WithLevel(level Level) func(*Option) {
	return func(o *Option) {
		o.Level = level
	}
}
