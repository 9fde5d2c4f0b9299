package objects

import (
	"encoding/json"
	"maps"
	"slices"
	"testing"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/matryer/is"
)

func TestNameAndIDRecord(t *testing.T) {
	is := is.New(t)

	o := New()
	o.Insert("name", types.String("light"))
	o.Insert("id", types.Integer(42))

	name, ok := o.Get("name")
	is.True(ok)
	is.Equal(name, types.String("light"))

	id, ok := o.Get("id")
	is.True(ok)
	is.Equal(id, types.Integer(42))

	is.Equal(o.Len(), 2)

	b, err := json.Marshal(o)
	is.NoErr(err)
	is.Equal(string(b), `{"name":{"type":"string","value":"light"},"id":{"type":"integer","value":42}}`)
}

func TestInsertReplacesInPlace(t *testing.T) {
	is := is.New(t)

	o := FromEntries(
		Entry{"a", types.Integer(1)},
		Entry{"b", types.Integer(2)},
		Entry{"c", types.Integer(3)},
	)

	previous, replaced := o.Insert("b", types.String("two"))
	is.True(replaced)
	is.Equal(previous, types.Integer(2))

	is.Equal(o.Len(), 3) // keys should be unique
	is.Equal(slices.Collect(o.Keys()), []string{"a", "b", "c"})

	v, _ := o.Get("b")
	is.Equal(v, types.String("two"))

	_, replaced = o.Insert("d", types.Integer(4))
	is.True(!replaced)
	is.Equal(slices.Collect(o.Keys()), []string{"a", "b", "c", "d"})
}

func TestRemove(t *testing.T) {
	is := is.New(t)

	o := FromEntries(
		Entry{"a", types.Integer(1)},
		Entry{"b", types.Integer(2)},
		Entry{"c", types.Integer(3)},
	)

	v, ok := o.Remove("a")
	is.True(ok)
	is.Equal(v, types.Integer(1))

	_, ok = o.Get("a")
	is.True(!ok)
	is.Equal(o.Len(), 2)

	keys := slices.Sorted(o.Keys())
	is.Equal(keys, []string{"b", "c"})

	_, ok = o.Remove("a")
	is.True(!ok) // already removed
}

func TestDrainEmptiesTheObject(t *testing.T) {
	is := is.New(t)

	o := FromEntries(Entry{"a", types.Boolean(true)}, Entry{"b", types.Boolean(false)})

	drained := maps.Collect(o.Drain())
	is.Equal(len(drained), 2)
	is.True(o.IsEmpty())
}

func TestCollect(t *testing.T) {
	is := is.New(t)

	source := FromEntries(Entry{"x", types.Double(1.5)}, Entry{"y", types.Double(2.5)})
	o := Collect(source.All())

	is.True(o.Equal(source))
	is.True(source.Entries()[0].Key == "x")
}

func TestEqualIsOrderSensitive(t *testing.T) {
	is := is.New(t)

	ab := FromEntries(Entry{"a", types.Integer(1)}, Entry{"b", types.Integer(2)})
	ba := FromEntries(Entry{"b", types.Integer(2)}, Entry{"a", types.Integer(1)})

	is.True(!ab.Equal(ba))
	is.True(ab.Equal(FromEntries(Entry{"a", types.Integer(1)}, Entry{"b", types.Integer(2)})))

	var none *Object
	is.True(!ab.Equal(none))
	is.True(none.Equal(nil))
}

func TestUnmarshalKeepsDocumentOrder(t *testing.T) {
	is := is.New(t)

	o := New()
	err := json.Unmarshal([]byte(`{
		"z": {"type":"longinteger","value":36028797018963969},
		"a": {"type":"stringarray","value":["x","y"]},
		"m": {"type":"boolean","value":false}
	}`), o)
	is.NoErr(err)

	is.Equal(slices.Collect(o.Keys()), []string{"z", "a", "m"})

	z, _ := o.Get("z")
	is.Equal(z, types.LongInteger(1<<55+1))
}

func TestUnmarshalDuplicateKeys(t *testing.T) {
	is := is.New(t)

	o := New()
	err := json.Unmarshal([]byte(`{"a":{"type":"integer","value":1},"b":{"type":"integer","value":2},"a":{"type":"integer","value":3}}`), o)
	is.NoErr(err)

	is.Equal(o.Len(), 2)
	is.Equal(slices.Collect(o.Keys()), []string{"a", "b"})

	a, _ := o.Get("a")
	is.Equal(a, types.Integer(3))
}

func TestUnmarshalRejectsNonObjects(t *testing.T) {
	is := is.New(t)

	o := New()
	is.True(json.Unmarshal([]byte(`[1,2]`), o) != nil)
	is.True(json.Unmarshal([]byte(`{"a":1}`), o) != nil) // members must be tagged values
}
