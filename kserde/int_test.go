package kserde

import (
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 255, 256, math.MaxUint32} {
		b, err := Uint32Serializer(v)
		assert.NoError(t, err)
		assert.Equal(t, 4, len(b))
		got, err := Uint32Deserializer(b)
		assert.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDeserializerRejectsWrongLength(t *testing.T) {
	_, err := Uint32Deserializer([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = Uint64Deserializer([]byte{1})
	assert.Error(t, err)
	_, err = Int64Deserializer(nil)
	assert.Error(t, err)
	_, err = Int32Deserializer([]byte{1, 2, 3, 4, 5})
	assert.Error(t, err)
	_, err = Float64Deserializer([]byte{0})
	assert.Error(t, err)
}

// assertOrderPreserved checks that sorting the encodings sorts the values.
func assertOrderPreserved[T any](t *testing.T, s Serde[T], sorted []T) {
	t.Helper()
	encoded := make([][]byte, len(sorted))
	for i, v := range sorted {
		b, err := s.Serializer(v)
		assert.NoError(t, err)
		encoded[i] = b
	}
	assert.True(t, slices.IsSortedFunc(encoded, bytes.Compare), "encodings not in ascending order")

	for i, b := range encoded {
		got, err := s.Deserializer(b)
		assert.NoError(t, err)
		assert.Equal(t, sorted[i], got)
	}
}

func TestOrderPreservingEncodings(t *testing.T) {
	t.Run("uint32", func(t *testing.T) {
		assertOrderPreserved(t, Uint32, []uint32{0, 3, 4, 5, 256, 1 << 20, math.MaxUint32})
	})

	t.Run("uint64", func(t *testing.T) {
		assertOrderPreserved(t, Uint64, []uint64{0, 1, 999, 1000, 1 << 40, math.MaxUint64})
	})

	t.Run("int64 across sign", func(t *testing.T) {
		assertOrderPreserved(t, Int64, []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64})
	})

	t.Run("int32 across sign", func(t *testing.T) {
		assertOrderPreserved(t, Int32, []int32{math.MinInt32, -7, 0, 7, math.MaxInt32})
	})

	t.Run("float64 across sign", func(t *testing.T) {
		assertOrderPreserved(t, Float64, []float64{math.Inf(-1), -1337.13, -0.5, 0, 0.5, 1337.13, math.Inf(1)})
	})

	t.Run("strings", func(t *testing.T) {
		assertOrderPreserved(t, String, []string{"", "a", "ab", "b", "世界"})
	})
}

func TestBytesCopies(t *testing.T) {
	in := []byte("key")
	out, err := BytesSerializer(in)
	assert.NoError(t, err)
	in[0] = 'x'
	assert.Equal(t, []byte("key"), out)
}

func TestJSON(t *testing.T) {
	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	serde := JSON[user]()
	b, err := serde.Serializer(user{Name: "alice", Age: 30})
	assert.NoError(t, err)
	assert.Equal(t, `{"name":"alice","age":30}`, string(b))

	got, err := serde.Deserializer(b)
	assert.NoError(t, err)
	assert.Equal(t, user{Name: "alice", Age: 30}, got)

	_, err = serde.Deserializer([]byte("{"))
	assert.Error(t, err)

	_, err = serde.Deserializer([]byte(`{"name":"bob","email":"bob@example.com"}`))
	assert.Error(t, err)

	_, err = serde.Deserializer([]byte(`{"name":"bob"} {"name":"eve"}`))
	assert.IsError(t, err, errTrailingJSON)

	got, err = serde.Deserializer([]byte("{\"name\":\"bob\"}\n"))
	assert.NoError(t, err)
	assert.Equal(t, user{Name: "bob"}, got)
}
