package kserde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float64Serializer uses the usual total-order trick: positive numbers get the
// sign bit set, negative numbers get all bits inverted.
var Float64Serializer = func(data float64) ([]byte, error) {
	bits := math.Float64bits(data)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	res := make([]byte, 8)
	binary.BigEndian.PutUint64(res, bits)
	return res, nil
}

var Float64Deserializer = func(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("float64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	bits := binary.BigEndian.Uint64(data)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

var Float64 = Serde[float64]{
	Serializer:   Float64Serializer,
	Deserializer: Float64Deserializer,
}
