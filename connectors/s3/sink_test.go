package s3

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kprocessor"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "cdc/orders/00000000000000000099-00000000000000000009.jsonl", ObjectName("cdc", "orders", 99, 9))
	assert.Equal(t, "orders/00000000000000000000-00000000000000000000.jsonl", ObjectName("", "orders", 0, 0))
}

func TestEncodeLines(t *testing.T) {
	var msgs []kprocessor.Message
	for seq := uint64(0); seq < 3; seq++ {
		msg := kprocessor.Data(seq, kprocessor.Operation{Kind: kprocessor.OpInsert, Key: []byte("k"), New: []byte("v")})
		msg.Source = "src"
		msgs = append(msgs, msg)
	}
	body, err := EncodeLines(msgs)
	assert.NoError(t, err)

	var seqs []uint64
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		msg, err := kprocessor.DecodeMessage(sc.Bytes())
		assert.NoError(t, err)
		assert.Equal(t, "src", msg.Source)
		seqs = append(seqs, msg.Seq)
	}
	assert.Equal(t, []uint64{0, 1, 2}, seqs)
}

func TestSinkBuffersOneTransactionPerSource(t *testing.T) {
	s := NewSink(SinkConfig{Bucket: "b"})
	begin := kprocessor.Begin()
	begin.Source = "src"
	data := kprocessor.Data(0, kprocessor.Operation{Key: []byte("k")})
	data.Source = "src"

	_, err := s.Process(context.Background(), kprocessor.DefaultPortHandle, begin, nil)
	assert.NoError(t, err)
	_, err = s.Process(context.Background(), kprocessor.DefaultPortHandle, data, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(s.pending.Pending("src")))

	_, err = s.Process(context.Background(), kprocessor.DefaultPortHandle, begin, nil)
	assert.IsError(t, err, kprocessor.ErrInvalidLifecycle)
}

func TestInitRequiresBucket(t *testing.T) {
	assert.IsError(t, NewSink(SinkConfig{Endpoint: "localhost:9000"}).Init(nil), ErrInvalidConfig)
	assert.IsError(t, NewSink(SinkConfig{Bucket: "b"}).Init(nil), ErrInvalidConfig)
}
