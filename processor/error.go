package processor

// Error represents a processor configuration/runtime error, following the
// same `type Error string` sentinel pattern as lock.Error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrAmbiguousStream is returned when a durable binding's subject is
	// captured by zero or more than one stream (spec §4.3.2/§9: "exactly
	// one stream must match"), or when a group's bindings resolve to more
	// than one distinct stream.
	ErrAmbiguousStream = Error("processor: subject must be captured by exactly one stream")
)
