package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
)

type Semantics int

const (
	Property Semantics = iota
	Datastream
)

func (s Semantics) String() string {
	if s == Datastream {
		return "datastream"
	}
	return "property"
}

// Sample is a value that is expected to arrive at a path.
type Sample struct {
	Path  string
	Value types.Value
}

// Dataset produces the samples that a validation run sends through the
// platform, in the order they are to be validated.
type Dataset interface {
	Name() string
	Interface() string
	Semantics() Semantics
	Samples() ([]Sample, error)
}

const (
	DefaultPrefix  string = "/sensor_1"
	OverflowPrefix string = "/overflow"
)

type dataset struct {
	name          string
	interfaceName string
	semantics     Semantics
	samples       func() ([]Sample, error)
}

func (d dataset) Name() string               { return d.name }
func (d dataset) Interface() string          { return d.interfaceName }
func (d dataset) Semantics() Semantics       { return d.semantics }
func (d dataset) Samples() ([]Sample, error) { return d.samples() }

type DatasetOption func(*dataset)

func AsDatastream() DatasetOption {
	return func(d *dataset) {
		d.semantics = Datastream
	}
}

// AllTypes sends one value of every kind, each to <prefix>/<kind>_endpoint.
func AllTypes(interfaceName, prefix string, options ...DatasetOption) Dataset {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")

	d := &dataset{
		name:          "alltypes",
		interfaceName: interfaceName,
		semantics:     Property,
		samples: func() ([]Sample, error) {
			values := allTypeValues()
			samples := make([]Sample, 0, len(values))

			for _, kind := range types.Kinds() {
				value, ok := values[kind]
				if !ok {
					return nil, fmt.Errorf("no sample value for kind %s", kind)
				}

				samples = append(samples, Sample{
					Path:  fmt.Sprintf("%s/%s_endpoint", prefix, kind),
					Value: value,
				})
			}

			return samples, nil
		},
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// Overflow sends long integers that cannot be represented exactly by a
// double, to make sure that nothing on the way narrows them.
func Overflow(interfaceName, prefix string, options ...DatasetOption) Dataset {
	if prefix == "" {
		prefix = OverflowPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")

	const big int64 = 1 << 55

	d := &dataset{
		name:          "overflow",
		interfaceName: interfaceName,
		semantics:     Property,
		samples: func() ([]Sample, error) {
			return []Sample{
				{Path: prefix + "/longinteger_endpoint", Value: types.LongInteger(big)},
				{Path: prefix + "/longintegerarray_endpoint", Value: types.NewLongIntegerArray(big, big, big, big)},
			}, nil
		},
	}

	for _, option := range options {
		option(d)
	}

	return d
}

func allTypeValues() map[types.Kind]types.Value {
	ts := time.Date(2025, time.March, 12, 10, 42, 7, 0, time.UTC)

	return map[types.Kind]types.Value{
		types.KindBoolean:          types.Boolean(true),
		types.KindInteger:          types.Integer(-42),
		types.KindLongInteger:      types.LongInteger(45543543534),
		types.KindDouble:           types.Double(4.5),
		types.KindString:           types.String("hello"),
		types.KindBinaryBlob:       types.NewBinaryBlob([]byte{0x68, 0x65, 0x6c, 0x6c, 0x6f}),
		types.KindDateTime:         types.NewDateTime(ts),
		types.KindBooleanArray:     types.NewBooleanArray(true, false, true),
		types.KindIntegerArray:     types.NewIntegerArray(1, 2, 3, 4),
		types.KindLongIntegerArray: types.NewLongIntegerArray(45543543534, 45543543535, 45543543536),
		types.KindDoubleArray:      types.NewDoubleArray(1.2, 3.4, 5.6, 7.8),
		types.KindStringArray:      types.NewStringArray("hello", "world"),
		types.KindBinaryBlobArray:  types.NewBinaryBlobArray([]byte("hello"), []byte("world")),
		types.KindDateTimeArray:    types.NewDateTimeArray(ts, ts.Add(time.Hour)),
	}
}
