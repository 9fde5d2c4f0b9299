package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/objects"
	"github.com/matryer/is"
)

func TestIndividual(t *testing.T) {
	is := is.New(t)

	d := Individual(types.Integer(7))

	is.True(d.IsIndividual())
	is.True(!d.IsObject())
	is.True(!d.IsUnset())

	v, ok := d.AsIndividual()
	is.True(ok)
	is.Equal(v, types.Integer(7))

	_, ok = d.AsObject()
	is.True(!ok)

	v, set, ok := d.AsProperty()
	is.True(ok)
	is.True(set)
	is.Equal(v, types.Integer(7))
}

func TestObject(t *testing.T) {
	is := is.New(t)

	o := objects.FromEntries(objects.Entry{Key: "name", Value: types.String("light")})
	d := Object(o)

	is.True(d.IsObject())
	is.True(!d.IsIndividual())

	got, ok := d.AsObject()
	is.True(ok)
	is.True(got.Equal(o))

	_, _, ok = d.AsProperty()
	is.True(!ok) // objects are not properties
}

func TestUnset(t *testing.T) {
	is := is.New(t)

	d := Unset()

	is.True(d.IsUnset())
	_, ok := d.AsIndividual()
	is.True(!ok)

	v, set, ok := d.AsProperty()
	is.True(ok)
	is.True(!set)
	is.Equal(v, nil)
}

func TestTakeEmptiesTheData(t *testing.T) {
	is := is.New(t)

	d := Individual(types.Boolean(true))
	v, ok := d.TakeIndividual()
	is.True(ok)
	is.Equal(v, types.Boolean(true))
	is.True(!d.IsIndividual()) // nothing left after take

	d = Individual(types.Boolean(true))
	_, ok = d.TakeObject()
	is.True(!ok)
	is.True(!d.IsIndividual()) // a mismatched take also consumes the data

	d = Object(nil)
	o, ok := d.TakeObject()
	is.True(ok)
	is.True(o.IsEmpty())
	is.Equal(d.Aggregation(), aggregationNone)
}

func TestDataJSON(t *testing.T) {
	is := is.New(t)

	for _, d := range []Data{
		Individual(types.NewLongIntegerArray(1<<55, 1<<55+1)),
		Object(objects.FromEntries(
			objects.Entry{Key: "name", Value: types.String("light")},
			objects.Entry{Key: "id", Value: types.Integer(42)},
		)),
		Unset(),
	} {
		b, err := json.Marshal(d)
		is.NoErr(err)

		decoded := Data{}
		is.NoErr(json.Unmarshal(b, &decoded))
		is.True(decoded.Equal(d))
	}

	b, _ := json.Marshal(Unset())
	is.Equal(string(b), `{"kind":"unset"}`)

	_, err := json.Marshal(Data{})
	is.True(err != nil) // empty data cannot be sent
}

func TestDeviceEvent(t *testing.T) {
	is := is.New(t)

	e := NewDeviceEvent("org.example.ServerProperty", "/sensor_1/integer_endpoint", Individual(types.Integer(1)))

	is.True(strings.HasPrefix(e.ID, "urn:telemetry:Event:"))
	is.True(e.Matches("org.example.ServerProperty", "/sensor_1/integer_endpoint"))
	is.True(!e.Matches("org.example.ServerProperty", "/sensor_1/double_endpoint"))
	is.NoErr(e.Validate())

	is.True(NewDeviceEvent("", "/a", Unset()).Validate() != nil)
	is.True(NewDeviceEvent("org.example.ServerProperty", "a", Unset()).Validate() != nil)
	is.True(NewDeviceEvent("org.example.ServerProperty", "/a", Data{}).Validate() != nil)
}
