package objects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
)

// Entry is a single named value in an Object.
type Entry struct {
	Key   string
	Value types.Value
}

// Object is an ordered set of uniquely named values, sent or received as one
// unit on an interface with object aggregation.
//
// Objects are small (an interface carries tens of fields), so lookups are a
// linear scan over the entries. Inserting an existing key replaces the value in
// place and keeps its position. Removing a key may reorder the remaining
// entries.
//
// An Object has a single owner and is not safe for concurrent mutation.
type Object struct {
	inner []Entry
}

func New() *Object {
	return &Object{}
}

// WithCapacity returns an empty object with room for n entries.
func WithCapacity(n int) *Object {
	return &Object{inner: make([]Entry, 0, n)}
}

// FromEntries behaves as calling Insert for each entry in turn.
func FromEntries(entries ...Entry) *Object {
	o := WithCapacity(len(entries))
	for _, e := range entries {
		o.Insert(e.Key, e.Value)
	}
	return o
}

// Collect builds an object from a sequence of pairs using Insert semantics.
func Collect(seq iter.Seq2[string, types.Value]) *Object {
	o := New()
	for k, v := range seq {
		o.Insert(k, v)
	}
	return o
}

// Insert adds the value with the given key. If the key is already present its
// value is replaced in place and the previous value is returned.
func (o *Object) Insert(key string, value types.Value) (types.Value, bool) {
	if idx := o.index(key); idx >= 0 {
		previous := o.inner[idx].Value
		o.inner[idx].Value = value
		return previous, true
	}

	o.inner = append(o.inner, Entry{Key: key, Value: value})
	return nil, false
}

func (o *Object) Get(key string) (types.Value, bool) {
	if idx := o.index(key); idx >= 0 {
		return o.inner[idx].Value, true
	}
	return nil, false
}

// Remove deletes the key and returns its value. The last entry is moved into
// the freed position, so the order of the remaining entries is not preserved.
func (o *Object) Remove(key string) (types.Value, bool) {
	idx := o.index(key)
	if idx < 0 {
		return nil, false
	}

	value := o.inner[idx].Value

	last := len(o.inner) - 1
	o.inner[idx] = o.inner[last]
	o.inner[last] = Entry{}
	o.inner = o.inner[:last]

	return value, true
}

func (o *Object) Len() int {
	return len(o.inner)
}

func (o *Object) IsEmpty() bool {
	return len(o.inner) == 0
}

// All iterates the keys and values in their current order.
func (o *Object) All() iter.Seq2[string, types.Value] {
	return func(yield func(string, types.Value) bool) {
		for _, e := range o.inner {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

func (o *Object) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range o.inner {
			if !yield(e.Key) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries in their current order.
func (o *Object) Entries() []Entry {
	entries := make([]Entry, len(o.inner))
	copy(entries, o.inner)
	return entries
}

// Drain hands the entries over to the caller and leaves the object empty.
func (o *Object) Drain() iter.Seq2[string, types.Value] {
	entries := o.inner
	o.inner = nil

	return func(yield func(string, types.Value) bool) {
		for _, e := range entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// Equal reports whether both objects hold equal values under the same keys in
// the same order.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}

	if len(o.inner) != len(other.inner) {
		return false
	}

	for i := range o.inner {
		if o.inner[i].Key != other.inner[i].Key {
			return false
		}
		if !types.Equal(o.inner[i].Value, other.inner[i].Value) {
			return false
		}
	}

	return true
}

func (o *Object) index(key string) int {
	for idx := range o.inner {
		if o.inner[idx].Key == key {
			return idx
		}
	}
	return -1
}

// MarshalJSON renders the object as a JSON object with one tagged value per
// key, in iteration order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	for idx, e := range o.inner {
		if idx > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}

		value, err := types.MarshalValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %q: %w", e.Key, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON reads the members in document order. A key that appears more
// than once keeps its first position and its last value.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to unmarshal object: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("failed to unmarshal object: expected a json object")
	}

	o.inner = nil

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("failed to unmarshal object: %w", err)
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("failed to unmarshal object: unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err = dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to unmarshal object member %q: %w", key, err)
		}

		value, err := types.UnmarshalValue(raw)
		if err != nil {
			return fmt.Errorf("failed to unmarshal object member %q: %w", key, err)
		}

		o.Insert(key, value)
	}

	if _, err = dec.Token(); err != nil {
		return fmt.Errorf("failed to unmarshal object: %w", err)
	}

	return nil
}
