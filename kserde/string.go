package kserde

var StringDeserializer = func(data []byte) (string, error) {
	return string(data), nil
}

var StringSerializer = func(data string) ([]byte, error) {
	return []byte(data), nil
}

var String = Serde[string]{
	Serializer:   StringSerializer,
	Deserializer: StringDeserializer,
}

// BytesSerializer copies the input so stored keys never alias caller memory.
var BytesSerializer = func(data []byte) ([]byte, error) {
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

var BytesDeserializer = func(data []byte) ([]byte, error) {
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

var Bytes = Serde[[]byte]{
	Serializer:   BytesSerializer,
	Deserializer: BytesDeserializer,
}
