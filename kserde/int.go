package kserde

import (
	"encoding/binary"
	"fmt"
)

// Uint32Serializer serializes uint32 to big-endian bytes
var Uint32Serializer = func(data uint32) ([]byte, error) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, data)
	return buf, nil
}

// Uint32Deserializer deserializes big-endian bytes to uint32
var Uint32Deserializer = func(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("uint32 deserialization requires exactly 4 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

// Uint32 is a SerDe for uint32 values
var Uint32 = Serde[uint32]{
	Serializer:   Uint32Serializer,
	Deserializer: Uint32Deserializer,
}

// Uint64Serializer serializes uint64 to big-endian bytes
var Uint64Serializer = func(data uint64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, data)
	return buf, nil
}

// Uint64Deserializer deserializes big-endian bytes to uint64
var Uint64Deserializer = func(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("uint64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Uint64 is a SerDe for uint64 values
var Uint64 = Serde[uint64]{
	Serializer:   Uint64Serializer,
	Deserializer: Uint64Deserializer,
}

// Int64Serializer serializes int64 to big-endian bytes with the sign bit
// flipped, so negative numbers sort before positive ones.
var Int64Serializer = func(data int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(data)^(1<<63))
	return buf, nil
}

// Int64Deserializer is the inverse of Int64Serializer
var Int64Deserializer = func(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("int64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data) ^ (1 << 63)), nil
}

// Int64 is a SerDe for int64 values
var Int64 = Serde[int64]{
	Serializer:   Int64Serializer,
	Deserializer: Int64Deserializer,
}

// Int32Serializer serializes int32 to big-endian bytes with the sign bit flipped
var Int32Serializer = func(data int32) ([]byte, error) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(data)^(1<<31))
	return buf, nil
}

// Int32Deserializer is the inverse of Int32Serializer
var Int32Deserializer = func(data []byte) (int32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("int32 deserialization requires exactly 4 bytes, got %d", len(data))
	}
	return int32(binary.BigEndian.Uint32(data) ^ (1 << 31)), nil
}

// Int32 is a SerDe for int32 values
var Int32 = Serde[int32]{
	Serializer:   Int32Serializer,
	Deserializer: Int32Deserializer,
}
