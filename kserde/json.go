package kserde

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errTrailingJSON = errors.New("trailing data after JSON value")

// JSON returns a serde storing T as a single JSON value. Decoding is strict:
// unknown object fields and trailing data are errors, so a record written by
// a newer schema is not silently truncated.
//
// JSON carries no ordering guarantee; use it for values, not for keys that
// are iterated in order.
func JSON[T any]() Serde[T] {
	return Serde[T]{
		Serializer:   encodeJSON[T],
		Deserializer: decodeJSON[T],
	}
}

func encodeJSON[T any](v T) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON[T any](b []byte) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return *new(T), err
	}
	if dec.More() {
		return *new(T), errTrailingJSON
	}
	return v, nil
}
