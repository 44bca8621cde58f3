// Package codec is the process-wide type conversion registry.
//
// Values travel to the engine through adapters keyed by their concrete Go
// type, and come back through converters keyed by the column's declared
// type. Both directions are transparent to callers: the accessor root
// encodes every bound parameter and decodes every selected column, and
// values with no registered codec pass through untouched.
//
// RegisterDefaults installs the stock codecs (datetime, json, bool, uuid)
// and is invoked by accessor-root construction; it never overrides a codec
// the caller registered first.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the stored text layout for datetime columns, microsecond
// precision included.
const TimeFormat = "2006-01-02 15:04:05.000000"

// timeFormatNoFrac accepts engine-written timestamps (CURRENT_TIMESTAMP
// emits no fractional part).
const timeFormatNoFrac = "2006-01-02 15:04:05"

// AdapterFunc converts an in-memory value to a form the engine stores
// natively (text, integer, real, blob).
type AdapterFunc func(v any) (any, error)

// ConverterFunc converts a stored value back to its in-memory form.
type ConverterFunc func(raw any) (any, error)

var (
	mu         sync.RWMutex
	adapters   = make(map[reflect.Type]AdapterFunc)
	converters = make(map[string]ConverterFunc)
)

// RegisterAdapter installs fn for values sharing sample's concrete type.
// A later registration for the same type replaces the earlier one.
func RegisterAdapter(sample any, fn AdapterFunc) {
	mu.Lock()
	defer mu.Unlock()
	adapters[reflect.TypeOf(sample)] = fn
}

// RegisterConverter installs fn for columns whose declared type normalizes
// to declType. Matching is case-insensitive and ignores any parenthesized
// size and trailing words ("VARCHAR(20) NOT NULL" matches "varchar").
func RegisterConverter(declType string, fn ConverterFunc) {
	mu.Lock()
	defer mu.Unlock()
	converters[Normalize(declType)] = fn
}

// Adapted reports whether a value of sample's concrete type has an adapter.
func Adapted(sample any) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := adapters[reflect.TypeOf(sample)]
	return ok
}

// Converted reports whether the declared type has a converter.
func Converted(declType string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := converters[Normalize(declType)]
	return ok
}

// Normalize reduces a declared type to its registry key: the first word,
// lowercased, with any parenthesized size removed.
func Normalize(declType string) string {
	s := strings.TrimSpace(declType)
	if i := strings.IndexAny(s, " \t("); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Encode applies the adapter registered for v's concrete type. Values
// with no adapter (and nil) pass through unchanged.
func Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	mu.RLock()
	fn, ok := adapters[reflect.TypeOf(v)]
	mu.RUnlock()
	if !ok {
		return v, nil
	}
	return fn(v)
}

// EncodeAll applies Encode to every element of vals, returning a new
// slice. A nil input stays nil.
func EncodeAll(vals []any) ([]any, error) {
	if vals == nil {
		return nil, nil
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		enc, err := Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Decode applies the converter registered for the declared type. NULLs
// and unconverted types pass through unchanged.
func Decode(declType string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	mu.RLock()
	fn, ok := converters[Normalize(declType)]
	mu.RUnlock()
	if !ok {
		return raw, nil
	}
	return fn(raw)
}

var defaultsOnce sync.Once

// RegisterDefaults installs the stock codecs. Codecs already registered
// for the same type keep precedence; repeated calls are no-ops.
func RegisterDefaults() {
	defaultsOnce.Do(func() {
		if !Converted("datetime") {
			RegisterAdapter(time.Time{}, encodeTime)
			RegisterConverter("datetime", decodeTime)
		}
		if !Converted("json") {
			RegisterAdapter(map[string]any{}, encodeJSON)
			RegisterAdapter([]any{}, encodeJSON)
			RegisterConverter("json", decodeJSON)
		}
		if !Converted("bool") {
			RegisterAdapter(false, encodeBool)
			RegisterConverter("bool", decodeBool)
		}
		if !Converted("uuid") {
			RegisterAdapter(uuid.UUID{}, encodeUUID)
			RegisterConverter("uuid", decodeUUID)
		}
	})
}

func encodeTime(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("datetime adapter: got %T, want time.Time", v)
	}
	return t.Format(TimeFormat), nil
}

func decodeTime(raw any) (any, error) {
	s, ok := rawText(raw)
	if !ok {
		return nil, fmt.Errorf("datetime converter: got %T, want text", raw)
	}
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t, nil
	}
	if t, err2 := time.Parse(timeFormatNoFrac, s); err2 == nil {
		return t, nil
	}
	return nil, fmt.Errorf("datetime converter: %w", err)
}

func encodeJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json adapter: %w", err)
	}
	return string(b), nil
}

func decodeJSON(raw any) (any, error) {
	s, ok := rawText(raw)
	if !ok {
		return nil, fmt.Errorf("json converter: got %T, want text", raw)
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("json converter: %w", err)
	}
	return v, nil
}

func encodeBool(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("bool adapter: got %T, want bool", v)
	}
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}

func decodeBool(raw any) (any, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	}
	if s, ok := rawText(raw); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("bool converter: %q", s)
		}
		return b, nil
	}
	return nil, fmt.Errorf("bool converter: got %T", raw)
}

func encodeUUID(v any) (any, error) {
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("uuid adapter: got %T, want uuid.UUID", v)
	}
	return id.String(), nil
}

func decodeUUID(raw any) (any, error) {
	if b, ok := raw.([]byte); ok && len(b) == 16 {
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("uuid converter: %w", err)
		}
		return id, nil
	}
	s, ok := rawText(raw)
	if !ok {
		return nil, fmt.Errorf("uuid converter: got %T, want text", raw)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("uuid converter: %w", err)
	}
	return id, nil
}

// rawText normalizes the driver's two text representations.
func rawText(raw any) (string, bool) {
	switch x := raw.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
