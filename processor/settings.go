package processor

// Settings are the processor's environment-bound tunables (spec §6),
// loaded via config.Load into a Settings value and applied with
// WithQueueSize/WithMaxDOP.
type Settings struct {
	QueueSize int `env:"NATS_SUBSCRIPTION_QUEUE_SIZE,default=20000"`
	MaxDOP    int `env:"NATS_CONSUMER_MAX_DOP,default=128"`
}

// Options returns the processor Options equivalent to this Settings
// value, for convenient use as New(..., s.Options()...).
func (s Settings) Options() []Option {
	return []Option{WithQueueSize(s.QueueSize), WithMaxDOP(s.MaxDOP)}
}
