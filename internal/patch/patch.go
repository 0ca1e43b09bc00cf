// Package patch models partial-update payloads: every field records whether the
// client sent it, and whether it sent an explicit null.
package patch

import (
	"bytes"
	"encoding/json"
)

var null = []byte("null")

// Field is a present-or-absent value. A JSON key that is missing leaves Set false;
// a JSON null sets Set and Null.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Of returns a present field holding v.
func Of[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a present field holding an explicit null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), null) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(b, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return null, nil
	}
	return json.Marshal(f.Value)
}

// Present reports whether the field carries a non-null value.
func (f Field[T]) Present() bool {
	return f.Set && !f.Null
}

// Apply writes the value into dst when the field carries a non-null value.
func (f Field[T]) Apply(dst *T) bool {
	if !f.Present() {
		return false
	}
	*dst = f.Value
	return true
}

// ApplyPtr writes into a nullable destination: a value sets it, a null clears it.
func (f Field[T]) ApplyPtr(dst **T) bool {
	if !f.Set {
		return false
	}
	if f.Null {
		*dst = nil
		return true
	}
	v := f.Value
	*dst = &v
	return true
}
