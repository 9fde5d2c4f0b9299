package types

import (
	"fmt"
	"strings"
)

// Value is a single telemetry value, either a scalar or an array of scalars.
//
// The set of implementations is closed. Use a type switch on the concrete
// variants (Boolean, LongIntegerArray, ...) to access the payload, or Native.
type Value interface {
	Kind() Kind
	Native() any

	telemetryValue()
}

type Kind int

const (
	KindInvalid Kind = iota
	KindBoolean
	KindInteger
	KindLongInteger
	KindDouble
	KindString
	KindBinaryBlob
	KindDateTime
	KindBooleanArray
	KindIntegerArray
	KindLongIntegerArray
	KindDoubleArray
	KindStringArray
	KindBinaryBlobArray
	KindDateTimeArray
)

var kindNames = [...]string{
	KindInvalid:          "invalid",
	KindBoolean:          "boolean",
	KindInteger:          "integer",
	KindLongInteger:      "longinteger",
	KindDouble:           "double",
	KindString:           "string",
	KindBinaryBlob:       "binaryblob",
	KindDateTime:         "datetime",
	KindBooleanArray:     "booleanarray",
	KindIntegerArray:     "integerarray",
	KindLongIntegerArray: "longintegerarray",
	KindDoubleArray:      "doublearray",
	KindStringArray:      "stringarray",
	KindBinaryBlobArray:  "binaryblobarray",
	KindDateTimeArray:    "datetimearray",
}

// Kinds lists every valid kind, scalars first.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames)-1)
	for k := KindBoolean; k <= KindDateTimeArray; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) IsArray() bool {
	return k >= KindBooleanArray && k <= KindDateTimeArray
}

// Element returns the scalar kind of an array kind, or k itself for scalars.
func (k Kind) Element() Kind {
	if k.IsArray() {
		return k - (KindBooleanArray - KindBoolean)
	}
	return k
}

func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k := KindBoolean; k <= KindDateTimeArray; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown value type %q", name)
}
