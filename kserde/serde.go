// Package kserde contains the byte encodings used for stage messages and for
// keys of the keyed storage engine.
//
// Every Serializer in this package is injective. The integer, float, string
// and bytes encodings are additionally order-preserving: comparing two encoded
// values byte-wise gives the same result as comparing the values themselves,
// so they can be used as keys of a kstate.Map when a caller relies on
// ascending iteration.
package kserde

type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

type Serializer[T any] func(T) ([]byte, error)

type Deserializer[T any] func([]byte) (T, error)
