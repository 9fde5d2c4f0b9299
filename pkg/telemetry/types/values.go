package types

import (
	"bytes"
	"slices"
	"time"
)

type Boolean bool
type Integer int32
type LongInteger int64
type Double float64
type String string
type BinaryBlob []byte

// DateTime is a point in time. Only the instant is significant, the location
// and monotonic reading are not.
type DateTime time.Time

type BooleanArray []bool
type IntegerArray []int32
type LongIntegerArray []int64
type DoubleArray []float64
type StringArray []string
type BinaryBlobArray [][]byte
type DateTimeArray []time.Time

func (Boolean) Kind() Kind          { return KindBoolean }
func (Integer) Kind() Kind          { return KindInteger }
func (LongInteger) Kind() Kind      { return KindLongInteger }
func (Double) Kind() Kind           { return KindDouble }
func (String) Kind() Kind           { return KindString }
func (BinaryBlob) Kind() Kind       { return KindBinaryBlob }
func (DateTime) Kind() Kind         { return KindDateTime }
func (BooleanArray) Kind() Kind     { return KindBooleanArray }
func (IntegerArray) Kind() Kind     { return KindIntegerArray }
func (LongIntegerArray) Kind() Kind { return KindLongIntegerArray }
func (DoubleArray) Kind() Kind      { return KindDoubleArray }
func (StringArray) Kind() Kind      { return KindStringArray }
func (BinaryBlobArray) Kind() Kind  { return KindBinaryBlobArray }
func (DateTimeArray) Kind() Kind    { return KindDateTimeArray }

func (v Boolean) Native() any          { return bool(v) }
func (v Integer) Native() any          { return int32(v) }
func (v LongInteger) Native() any      { return int64(v) }
func (v Double) Native() any           { return float64(v) }
func (v String) Native() any           { return string(v) }
func (v BinaryBlob) Native() any       { return []byte(v) }
func (v DateTime) Native() any         { return time.Time(v) }
func (v BooleanArray) Native() any     { return []bool(v) }
func (v IntegerArray) Native() any     { return []int32(v) }
func (v LongIntegerArray) Native() any { return []int64(v) }
func (v DoubleArray) Native() any      { return []float64(v) }
func (v StringArray) Native() any      { return []string(v) }
func (v BinaryBlobArray) Native() any  { return [][]byte(v) }
func (v DateTimeArray) Native() any    { return []time.Time(v) }

func (Boolean) telemetryValue()          {}
func (Integer) telemetryValue()          {}
func (LongInteger) telemetryValue()      {}
func (Double) telemetryValue()           {}
func (String) telemetryValue()           {}
func (BinaryBlob) telemetryValue()       {}
func (DateTime) telemetryValue()         {}
func (BooleanArray) telemetryValue()     {}
func (IntegerArray) telemetryValue()     {}
func (LongIntegerArray) telemetryValue() {}
func (DoubleArray) telemetryValue()      {}
func (StringArray) telemetryValue()      {}
func (BinaryBlobArray) telemetryValue()  {}
func (DateTimeArray) telemetryValue()    {}

func (v DateTime) Time() time.Time {
	return time.Time(v)
}

// The array and blob constructors copy their input so that the caller can
// keep using its slices without affecting the value.

func NewBinaryBlob(b []byte) BinaryBlob {
	return BinaryBlob(bytes.Clone(b))
}

func NewDateTime(t time.Time) DateTime {
	return DateTime(t)
}

func NewBooleanArray(v ...bool) BooleanArray {
	return BooleanArray(slices.Clone(v))
}

func NewIntegerArray(v ...int32) IntegerArray {
	return IntegerArray(slices.Clone(v))
}

func NewLongIntegerArray(v ...int64) LongIntegerArray {
	return LongIntegerArray(slices.Clone(v))
}

func NewDoubleArray(v ...float64) DoubleArray {
	return DoubleArray(slices.Clone(v))
}

func NewStringArray(v ...string) StringArray {
	return StringArray(slices.Clone(v))
}

func NewBinaryBlobArray(v ...[]byte) BinaryBlobArray {
	blobs := make(BinaryBlobArray, len(v))
	for i := range v {
		blobs[i] = bytes.Clone(v[i])
	}
	return blobs
}

func NewDateTimeArray(v ...time.Time) DateTimeArray {
	return DateTimeArray(slices.Clone(v))
}

// Native is the set of Go types that map directly onto a Value variant.
type Native interface {
	bool | int32 | int64 | float64 | string | []byte | time.Time |
		[]bool | []int32 | []int64 | []float64 | []string | [][]byte | []time.Time
}

// From tags a native Go value with its telemetry variant.
func From[T Native](v T) Value {
	switch n := any(v).(type) {
	case bool:
		return Boolean(n)
	case int32:
		return Integer(n)
	case int64:
		return LongInteger(n)
	case float64:
		return Double(n)
	case string:
		return String(n)
	case []byte:
		return NewBinaryBlob(n)
	case time.Time:
		return DateTime(n)
	case []bool:
		return NewBooleanArray(n...)
	case []int32:
		return NewIntegerArray(n...)
	case []int64:
		return NewLongIntegerArray(n...)
	case []float64:
		return NewDoubleArray(n...)
	case []string:
		return NewStringArray(n...)
	case [][]byte:
		return NewBinaryBlobArray(n...)
	case []time.Time:
		return NewDateTimeArray(n...)
	}
	// unreachable, the type set of Native is covered above
	return nil
}

// Equal reports whether a and b are the same variant carrying the same payload.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case Boolean:
		return x == b.(Boolean)
	case Integer:
		return x == b.(Integer)
	case LongInteger:
		return x == b.(LongInteger)
	case Double:
		return x == b.(Double)
	case String:
		return x == b.(String)
	case BinaryBlob:
		return bytes.Equal(x, b.(BinaryBlob))
	case DateTime:
		return time.Time(x).Equal(time.Time(b.(DateTime)))
	case BooleanArray:
		return slices.Equal(x, b.(BooleanArray))
	case IntegerArray:
		return slices.Equal(x, b.(IntegerArray))
	case LongIntegerArray:
		return slices.Equal(x, b.(LongIntegerArray))
	case DoubleArray:
		return slices.Equal(x, b.(DoubleArray))
	case StringArray:
		return slices.Equal(x, b.(StringArray))
	case BinaryBlobArray:
		return slices.EqualFunc(x, b.(BinaryBlobArray), bytes.Equal)
	case DateTimeArray:
		return slices.EqualFunc(x, b.(DateTimeArray), time.Time.Equal)
	}

	return false
}
