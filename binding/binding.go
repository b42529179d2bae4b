// Package binding adapts a typed, compile-time-registered handler function
// into the Binding interface the processor dispatches work through. It
// replaces the source framework's runtime attribute scan (spec §9) with a
// generic adapter fixed at call time: the payload type is fixed once at
// Bind, and decode picks the matching strategy with a type switch on each
// message.
package binding

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/connectionloops/cloops.nats/errors"
)

// Message wraps a decoded payload together with the raw NATS message it
// came from and a correlation ID generated once per work item. The ID is
// available to the handler only; the processor's own log entries and
// tracing span do not carry it.
type Message[T any] struct {
	Subject       string
	Payload       T
	CorrelationID uuid.UUID
	Raw           *nats.Msg
}

// Result is what a handler returns to tell the dispatcher how to settle
// the message. If Acknowledged is true, ShouldRetry is ignored.
type Result struct {
	Acknowledged bool
	ShouldRetry  bool
	Reply        []byte
	AckOpts      []nats.AckOpt
}

// HandlerFunc is the two-argument, result-returning handler contract: a
// typed message and a cancellation context in, a Result and error out.
// Expressing the contract as a generic function type is this module's
// compile-time substitute for the source framework's runtime signature
// check (spec §9) - a HandlerFunc[T] that doesn't match the contract
// simply fails to compile.
type HandlerFunc[T any] func(ctx context.Context, msg *Message[T]) (Result, error)

// BindingOptions carries the declaration-time attributes of a binding:
// an explicit consumer ID implies durability; the queue group name is
// only meaningful in core (non-JetStream) mode.
type BindingOptions struct {
	ConsumerID     string
	QueueGroupName string
}

// Binding is the boxed, type-erased form of a Bind[T] call: subject,
// declared options, and a closure over the decode+invoke steps. The
// processor and registry packages only ever see Binding, never T.
type Binding interface {
	Subject() string
	ConsumerID() string
	QueueGroupName() string
	Durable() bool
	// EffectiveConsumerID returns ConsumerID if set, else the synthetic
	// "{subject}-{queuegroup}" fallback used to group non-durable
	// bindings (spec §4.4/§6).
	EffectiveConsumerID() string
	// Dispatch decodes msg's payload per T's static type and invokes the
	// bound handler. It never panics on a malformed payload: decode
	// failures are returned as an error for the caller to log and skip.
	Dispatch(ctx context.Context, msg *nats.Msg) (Result, error)
}

type binding[T any] struct {
	subject string
	opts    BindingOptions
	handler HandlerFunc[T]
}

// Bind declares a binding for subject with a typed handler. The returned
// Binding is immutable and safe to share across goroutines; pass it to
// processor.New or registry.Register.
func Bind[T any](subject string, opts BindingOptions, handler HandlerFunc[T]) Binding {
	return &binding[T]{subject: subject, opts: opts, handler: handler}
}

func (b *binding[T]) Subject() string        { return b.subject }
func (b *binding[T]) ConsumerID() string     { return b.opts.ConsumerID }
func (b *binding[T]) QueueGroupName() string { return b.opts.QueueGroupName }
func (b *binding[T]) Durable() bool          { return b.opts.ConsumerID != "" }

func (b *binding[T]) EffectiveConsumerID() string {
	if b.opts.ConsumerID != "" {
		return b.opts.ConsumerID
	}
	return b.subject + "-" + b.opts.QueueGroupName
}

func (b *binding[T]) Dispatch(ctx context.Context, msg *nats.Msg) (Result, error) {
	var payload T
	if err := decode(msg.Data, &payload); err != nil {
		return Result{}, errors.Wrapf(err, "binding: decode payload for subject %s", msg.Subject)
	}

	m := &Message[T]{
		Subject:       msg.Subject,
		Payload:       payload,
		CorrelationID: uuid.New(),
		Raw:           msg,
	}
	return b.handler(ctx, m)
}

// decode implements the wire decode table from spec §6: UTF-8 string,
// five fixed-width little-endian primitives (bool, int32, int64, float32,
// float64), raw byte pass-through, and JSON for everything else. Other
// fixed-width types (int, int16, uint32, ...) are not decoded as binary
// primitives; they fall through to the JSON branch.
func decode(data []byte, target any) error {
	switch v := target.(type) {
	case *string:
		*v = string(data)
		return nil
	case *bool:
		if len(data) < 1 {
			return errors.New("binding: payload too short for bool")
		}
		*v = data[0] != 0
		return nil
	case *int32:
		if len(data) < 4 {
			return errors.New("binding: payload too short for int32")
		}
		*v = int32(binary.LittleEndian.Uint32(data))
		return nil
	case *int64:
		if len(data) < 8 {
			return errors.New("binding: payload too short for int64")
		}
		*v = int64(binary.LittleEndian.Uint64(data))
		return nil
	case *float32:
		if len(data) < 4 {
			return errors.New("binding: payload too short for float32")
		}
		*v = math.Float32frombits(binary.LittleEndian.Uint32(data))
		return nil
	case *float64:
		if len(data) < 8 {
			return errors.New("binding: payload too short for float64")
		}
		*v = math.Float64frombits(binary.LittleEndian.Uint64(data))
		return nil
	case *[]byte:
		*v = append([]byte(nil), data...)
		return nil
	default:
		return decodeJSON(data, target)
	}
}

// decodeJSON decodes data as JSON into target. It first tries a strict
// decode (json.Number so large integers round-trip exactly). If that
// fails with a type mismatch, it retries once against a copy of the
// payload with quoted numeric strings unquoted for exactly the fields
// target declares as numeric - the string-to-number leniency spec §6
// documents for the catch-all wire format (`{"count":"42"}` decoding into
// an int field), modeled on the original's
// NumberHandling.AllowReadingFromString. A string that isn't parseable as
// a number is left alone, so a genuinely non-numeric field mismatch still
// surfaces as a decode error.
func decodeJSON(data []byte, target any) error {
	strictErr := strictDecodeJSON(data, target)
	if strictErr == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if !errors.As(strictErr, &typeErr) {
		return errors.Wrap(strictErr, "binding: decode json payload")
	}

	var raw any
	if err := strictDecodeJSON(data, &raw); err != nil {
		return errors.Wrap(strictErr, "binding: decode json payload")
	}

	targetType := reflect.TypeOf(target)
	if targetType == nil || targetType.Kind() != reflect.Ptr {
		return errors.Wrap(strictErr, "binding: decode json payload")
	}

	reencoded, err := json.Marshal(coerceNumericStrings(targetType.Elem(), raw))
	if err != nil {
		return errors.Wrap(strictErr, "binding: decode json payload")
	}
	if err := strictDecodeJSON(reencoded, target); err != nil {
		return errors.Wrap(strictErr, "binding: decode json payload")
	}
	return nil
}

func strictDecodeJSON(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

// coerceNumericStrings walks v (the generic decode of a JSON payload,
// produced with UseNumber) alongside t (the struct/field type it will be
// re-decoded into), replacing any string that both looks like a complete
// JSON number and lines up with a numeric-kinded field with a json.Number
// holding the same digits - so the second, strict decode accepts it.
func coerceNumericStrings(t reflect.Type, v any) any {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch val := v.(type) {
	case map[string]any:
		if t == nil || t.Kind() != reflect.Struct {
			return val
		}
		out := make(map[string]any, len(val))
		for key, elem := range val {
			fieldType, ok := structFieldType(t, key)
			if !ok {
				out[key] = elem
				continue
			}
			out[key] = coerceNumericStrings(fieldType, elem)
		}
		return out
	case []any:
		var elemType reflect.Type
		if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
			elemType = t.Elem()
		}
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = coerceNumericStrings(elemType, elem)
		}
		return out
	case string:
		if t != nil && isNumericKind(t.Kind()) {
			if _, err := strconv.ParseFloat(val, 64); err == nil {
				return json.Number(val)
			}
		}
		return val
	default:
		return v
	}
}

// structFieldType finds t's field matching jsonKey by its `json` tag name
// (falling back to the Go field name), case-insensitively, mirroring
// encoding/json's own matching rules closely enough for this leniency
// pass.
func structFieldType(t reflect.Type, jsonKey string) (reflect.Type, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			name = strings.Split(tag, ",")[0]
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
		}
		if strings.EqualFold(name, jsonKey) {
			return f.Type, true
		}
	}
	return nil, false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
