package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// The wire form of a Value is {"type":"<kind>","value":<payload>}.
//
// Integer payloads are written with strconv and read back through json.Number
// and strconv.ParseInt so that a 64 bit integer never passes through a
// float64. Integers are accepted both as JSON numbers and as numeric strings.
type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot marshal a nil value")
	}

	payload, err := appendPayload(nil, v)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireValue{Type: v.Kind().String(), Value: payload})
}

func UnmarshalValue(data []byte) (Value, error) {
	wire := wireValue{}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	kind, err := ParseKind(wire.Type)
	if err != nil {
		return nil, err
	}

	return DecodePayload(kind, wire.Value)
}

// EncodePayload renders only the payload of v, without the type tag.
func EncodePayload(v Value) (json.RawMessage, error) {
	return appendPayload(nil, v)
}

func appendPayload(b []byte, v Value) ([]byte, error) {
	var err error

	switch x := v.(type) {
	case Boolean:
		b = strconv.AppendBool(b, bool(x))
	case Integer:
		b = strconv.AppendInt(b, int64(x), 10)
	case LongInteger:
		b = strconv.AppendInt(b, int64(x), 10)
	case Double:
		b, err = appendDouble(b, float64(x))
	case String:
		b, err = appendJSON(b, string(x))
	case BinaryBlob:
		b, err = appendBlob(b, x)
	case DateTime:
		b, err = appendJSON(b, formatTime(time.Time(x)))
	case BooleanArray:
		b = appendArray(b, len(x), func(b []byte, i int) ([]byte, error) {
			return strconv.AppendBool(b, x[i]), nil
		})
	case IntegerArray:
		b = appendArray(b, len(x), func(b []byte, i int) ([]byte, error) {
			return strconv.AppendInt(b, int64(x[i]), 10), nil
		})
	case LongIntegerArray:
		b = appendArray(b, len(x), func(b []byte, i int) ([]byte, error) {
			return strconv.AppendInt(b, x[i], 10), nil
		})
	case DoubleArray:
		b, err = appendArrayErr(b, len(x), func(b []byte, i int) ([]byte, error) {
			return appendDouble(b, x[i])
		})
	case StringArray:
		b, err = appendArrayErr(b, len(x), func(b []byte, i int) ([]byte, error) {
			return appendJSON(b, x[i])
		})
	case BinaryBlobArray:
		b, err = appendArrayErr(b, len(x), func(b []byte, i int) ([]byte, error) {
			return appendBlob(b, x[i])
		})
	case DateTimeArray:
		b, err = appendArrayErr(b, len(x), func(b []byte, i int) ([]byte, error) {
			return appendJSON(b, formatTime(x[i]))
		})
	default:
		err = fmt.Errorf("unsupported value type %T", v)
	}

	return b, err
}

func appendArray(b []byte, n int, elem func([]byte, int) ([]byte, error)) []byte {
	b, _ = appendArrayErr(b, n, elem)
	return b
}

func appendArrayErr(b []byte, n int, elem func([]byte, int) ([]byte, error)) ([]byte, error) {
	var err error

	b = append(b, '[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b, err = elem(b, i)
		if err != nil {
			return nil, err
		}
	}

	return append(b, ']'), nil
}

func appendDouble(b []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("double value %v cannot be represented", f)
	}
	return strconv.AppendFloat(b, f, 'g', -1, 64), nil
}

// appendBlob writes a blob as base64. An empty blob is "", never null.
func appendBlob(b []byte, blob []byte) ([]byte, error) {
	if blob == nil {
		blob = []byte{}
	}
	return appendJSON(b, blob)
}

func appendJSON(b []byte, v any) ([]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, encoded...), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodePayload decodes an untagged payload as the given kind.
func DecodePayload(kind Kind, payload json.RawMessage) (Value, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, fmt.Errorf("missing %s value", kind)
	}

	switch kind {
	case KindBoolean:
		var v bool
		err := unmarshalPayload(kind, payload, &v)
		return Boolean(v), err
	case KindInteger:
		var n json.Number
		if err := unmarshalPayload(kind, payload, &n); err != nil {
			return nil, err
		}
		v, err := parseInt(n, 32)
		return Integer(v), err
	case KindLongInteger:
		var n json.Number
		if err := unmarshalPayload(kind, payload, &n); err != nil {
			return nil, err
		}
		v, err := parseInt(n, 64)
		return LongInteger(v), err
	case KindDouble:
		var v float64
		err := unmarshalPayload(kind, payload, &v)
		return Double(v), err
	case KindString:
		var v string
		err := unmarshalPayload(kind, payload, &v)
		return String(v), err
	case KindBinaryBlob:
		var v []byte
		err := unmarshalPayload(kind, payload, &v)
		return BinaryBlob(v), err
	case KindDateTime:
		var s string
		if err := unmarshalPayload(kind, payload, &s); err != nil {
			return nil, err
		}
		t, err := parseTime(s)
		return DateTime(t), err
	case KindBooleanArray:
		v := []bool{}
		err := unmarshalPayload(kind, payload, &v)
		return BooleanArray(v), err
	case KindIntegerArray:
		ns := []json.Number{}
		if err := unmarshalPayload(kind, payload, &ns); err != nil {
			return nil, err
		}
		v := make(IntegerArray, len(ns))
		for i := range ns {
			n, err := parseInt(ns[i], 32)
			if err != nil {
				return nil, err
			}
			v[i] = int32(n)
		}
		return v, nil
	case KindLongIntegerArray:
		ns := []json.Number{}
		if err := unmarshalPayload(kind, payload, &ns); err != nil {
			return nil, err
		}
		v := make(LongIntegerArray, len(ns))
		for i := range ns {
			n, err := parseInt(ns[i], 64)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	case KindDoubleArray:
		v := []float64{}
		err := unmarshalPayload(kind, payload, &v)
		return DoubleArray(v), err
	case KindStringArray:
		v := []string{}
		err := unmarshalPayload(kind, payload, &v)
		return StringArray(v), err
	case KindBinaryBlobArray:
		v := [][]byte{}
		err := unmarshalPayload(kind, payload, &v)
		return BinaryBlobArray(v), err
	case KindDateTimeArray:
		ss := []string{}
		if err := unmarshalPayload(kind, payload, &ss); err != nil {
			return nil, err
		}
		v := make(DateTimeArray, len(ss))
		for i := range ss {
			t, err := parseTime(ss[i])
			if err != nil {
				return nil, err
			}
			v[i] = t
		}
		return v, nil
	}

	return nil, fmt.Errorf("unsupported value type %s", kind)
}

func unmarshalPayload(kind Kind, payload []byte, target any) error {
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("invalid %s value: %w", kind, err)
	}
	return nil
}

func parseInt(n json.Number, bitSize int) (int64, error) {
	v, err := strconv.ParseInt(n.String(), 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid %d bit integer %q: %w", bitSize, n.String(), err)
	}
	return v, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q: %w", s, err)
	}
	return t, nil
}
