package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/objects"
	"github.com/google/uuid"
)

type Aggregation int

const (
	aggregationNone Aggregation = iota
	AggregationIndividual
	AggregationObject
	AggregationUnset
)

func (a Aggregation) String() string {
	switch a {
	case AggregationIndividual:
		return "individual"
	case AggregationObject:
		return "object"
	case AggregationUnset:
		return "unset"
	}
	return "none"
}

// Data is the payload of a device event: an individual value, an object or
// the unset of a property.
//
// The zero Data holds nothing and matches none of the Is predicates. It is
// what remains after one of the Take methods has been called.
type Data struct {
	aggregation Aggregation
	individual  types.Value
	object      *objects.Object
}

func Individual(v types.Value) Data {
	return Data{aggregation: AggregationIndividual, individual: v}
}

func Object(o *objects.Object) Data {
	if o == nil {
		o = objects.New()
	}
	return Data{aggregation: AggregationObject, object: o}
}

func Unset() Data {
	return Data{aggregation: AggregationUnset}
}

func (d Data) Aggregation() Aggregation {
	return d.aggregation
}

func (d Data) IsIndividual() bool {
	return d.aggregation == AggregationIndividual
}

func (d Data) IsObject() bool {
	return d.aggregation == AggregationObject
}

func (d Data) IsUnset() bool {
	return d.aggregation == AggregationUnset
}

func (d Data) AsIndividual() (types.Value, bool) {
	if d.aggregation != AggregationIndividual {
		return nil, false
	}
	return d.individual, true
}

func (d Data) AsObject() (*objects.Object, bool) {
	if d.aggregation != AggregationObject {
		return nil, false
	}
	return d.object, true
}

// AsProperty views the data as a property value. An individual value is a set
// property and an unset is a property without a value. ok is false for
// objects, which cannot be properties.
func (d Data) AsProperty() (value types.Value, set bool, ok bool) {
	switch d.aggregation {
	case AggregationIndividual:
		return d.individual, true, true
	case AggregationUnset:
		return nil, false, true
	}
	return nil, false, false
}

// TakeIndividual moves the individual value out of d. d is left empty even
// when it did not hold an individual value.
func (d *Data) TakeIndividual() (types.Value, bool) {
	v, ok := d.AsIndividual()
	*d = Data{}
	return v, ok
}

// TakeObject moves the object out of d. d is left empty even when it did not
// hold an object.
func (d *Data) TakeObject() (*objects.Object, bool) {
	o, ok := d.AsObject()
	*d = Data{}
	return o, ok
}

func (d Data) Equal(other Data) bool {
	if d.aggregation != other.aggregation {
		return false
	}

	switch d.aggregation {
	case AggregationIndividual:
		return types.Equal(d.individual, other.individual)
	case AggregationObject:
		return d.object.Equal(other.object)
	}

	return true
}

func (d Data) String() string {
	switch d.aggregation {
	case AggregationIndividual:
		return describe(d.individual)
	case AggregationObject:
		b, err := d.object.MarshalJSON()
		if err != nil {
			return "object(?)"
		}
		return "object" + string(b)
	}
	return d.aggregation.String()
}

func describe(v types.Value) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%v)", v.Kind(), v.Native())
}

type wireData struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (d Data) MarshalJSON() ([]byte, error) {
	wire := wireData{Kind: d.aggregation.String()}

	var err error

	switch d.aggregation {
	case AggregationIndividual:
		wire.Value, err = types.MarshalValue(d.individual)
	case AggregationObject:
		wire.Value, err = d.object.MarshalJSON()
	case AggregationUnset:
	default:
		err = fmt.Errorf("cannot marshal empty event data")
	}

	if err != nil {
		return nil, err
	}

	return json.Marshal(wire)
}

func (d *Data) UnmarshalJSON(data []byte) error {
	wire := wireData{}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	switch wire.Kind {
	case "individual":
		v, err := types.UnmarshalValue(wire.Value)
		if err != nil {
			return err
		}
		*d = Individual(v)
	case "object":
		o := objects.New()
		if err := o.UnmarshalJSON(wire.Value); err != nil {
			return err
		}
		*d = Object(o)
	case "unset":
		*d = Unset()
	default:
		return fmt.Errorf("unsupported event data kind %q", wire.Kind)
	}

	return nil
}

// DeviceEvent is data received by the device on one of its interfaces.
type DeviceEvent struct {
	ID        string    `json:"id"`
	Interface string    `json:"interface"`
	Path      string    `json:"path"`
	Data      Data      `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDeviceEvent(interfaceName, path string, data Data) DeviceEvent {
	return DeviceEvent{
		ID:        fmt.Sprintf("urn:telemetry:Event:%s", uuid.New().String()),
		Interface: interfaceName,
		Path:      path,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Matches reports whether the event was received on the given interface and path.
func (e DeviceEvent) Matches(interfaceName, path string) bool {
	return e.Interface == interfaceName && e.Path == path
}

func (e DeviceEvent) Validate() error {
	if e.Interface == "" {
		return fmt.Errorf("event missing interface")
	}
	if len(e.Path) < 2 || e.Path[0] != '/' {
		return fmt.Errorf("event has invalid path %q", e.Path)
	}
	if e.Data.Aggregation() == aggregationNone {
		return fmt.Errorf("event missing data")
	}
	return nil
}
