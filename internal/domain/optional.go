package domain

import (
	"bytes"
	"encoding/json"
)

// Optional tells apart a field that was not sent, one sent as null, and one
// sent with a value. Set is false only when the field was absent.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Or returns the new value when set, else cur.
func (o Optional[T]) Or(cur *T) *T {
	if o.Set {
		return o.Value
	}
	return cur
}
