package soa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Wire markers for the two non-numeric limits.
const (
	NoLimitMarker = "no-limit"
	UnknownMarker = "unknown"
)

// LimitKind tells a numeric limit apart from the no-limit and unknown markers.
type LimitKind uint8

const (
	// LimitUnknown is the zero value: a Limit that was never set cannot be evaluated.
	LimitUnknown LimitKind = iota
	LimitNumeric
	LimitNoLimit
)

// Limit is the value of a parameter at one tmaxfrac level.
type Limit struct {
	kind  LimitKind
	value float64
}

// Numeric returns a finite numeric limit.
func Numeric(v float64) Limit {
	return Limit{kind: LimitNumeric, value: v}
}

// NoLimit returns the marker for an unconstrained level.
func NoLimit() Limit {
	return Limit{kind: LimitNoLimit}
}

// Unknown returns the marker for a level without data.
func Unknown() Limit {
	return Limit{}
}

func (l Limit) Kind() LimitKind { return l.kind }
func (l Limit) IsNumeric() bool { return l.kind == LimitNumeric }
func (l Limit) IsNoLimit() bool { return l.kind == LimitNoLimit }
func (l Limit) IsUnknown() bool { return l.kind == LimitUnknown }

// Float returns the numeric value and whether the limit is numeric.
func (l Limit) Float() (float64, bool) {
	return l.value, l.kind == LimitNumeric
}

func (l Limit) String() string {
	switch l.kind {
	case LimitNumeric:
		return FormatNumber(l.value)
	case LimitNoLimit:
		return NoLimitMarker
	default:
		return UnknownMarker
	}
}

// ParseLimit coerces a decoded scalar into a Limit. Numbers and numeric strings become numeric
// limits; "no-limit" and "unknown" (any case) become markers. Anything else is rejected.
func ParseLimit(raw interface{}) (Limit, error) {
	switch v := raw.(type) {
	case float64:
		return numericLimit(v)
	case float32:
		return numericLimit(float64(v))
	case int:
		return Numeric(float64(v)), nil
	case int8:
		return Numeric(float64(v)), nil
	case int16:
		return Numeric(float64(v)), nil
	case int32:
		return Numeric(float64(v)), nil
	case int64:
		return Numeric(float64(v)), nil
	case uint8:
		return Numeric(float64(v)), nil
	case uint16:
		return Numeric(float64(v)), nil
	case uint32:
		return Numeric(float64(v)), nil
	case uint64:
		return Numeric(float64(v)), nil
	case json.Number:
		return parseLimitString(v.String())
	case string:
		return parseLimitString(v)
	case nil:
		return Limit{}, fmt.Errorf("%w: limit is null", ErrInvalidRule)
	default:
		return Limit{}, fmt.Errorf("%w: limit of type %T", ErrInvalidRule, raw)
	}
}

func numericLimit(v float64) (Limit, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Limit{}, fmt.Errorf("%w: limit %v is not finite", ErrInvalidRule, v)
	}
	return Numeric(v), nil
}

func parseLimitString(s string) (Limit, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case NoLimitMarker:
		return NoLimit(), nil
	case UnknownMarker:
		return Unknown(), nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Limit{}, fmt.Errorf("%w: limit %q is neither a number nor a marker", ErrInvalidRule, s)
	}
	return numericLimit(v)
}

// MarshalJSON writes a number or one of the marker strings.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.kind == LimitNumeric {
		return json.Marshal(l.value)
	}
	return json.Marshal(l.String())
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseLimit(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Limit) MarshalYAML() (interface{}, error) {
	if l.kind == LimitNumeric {
		return l.value, nil
	}
	return l.String(), nil
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: limit at line %d is not a scalar", ErrInvalidRule, node.Line)
	}
	var (
		parsed Limit
		err    error
	)
	switch node.ShortTag() {
	case "!!int", "!!float", "!!str":
		parsed, err = parseLimitString(node.Value)
	case "!!null":
		err = fmt.Errorf("%w: limit at line %d is null", ErrInvalidRule, node.Line)
	default:
		err = fmt.Errorf("%w: limit %q at line %d", ErrInvalidRule, node.Value, node.Line)
	}
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

var (
	_ msgpack.CustomEncoder = Limit{}
	_ msgpack.CustomDecoder = (*Limit)(nil)
)

func (l Limit) EncodeMsgpack(enc *msgpack.Encoder) error {
	if l.kind == LimitNumeric {
		return enc.EncodeFloat64(l.value)
	}
	return enc.EncodeString(l.String())
}

func (l *Limit) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	parsed, err := ParseLimit(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
