// Package s3 writes committed transactions to an S3 compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/birdayz/kflow/kcommit"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrInvalidConfig = errors.New("s3: invalid config")

type SinkConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool

	Bucket string
	Prefix string

	// Client replaces the client built from Endpoint and the credentials.
	Client *minio.Client
}

// Sink buffers the data messages of a transaction and writes them as one
// JSON lines object when the transaction commits. Object names derive from
// the commit position, so a redelivered transaction overwrites its object.
type Sink struct {
	cfg     SinkConfig
	client  *minio.Client
	pending *kcommit.Buffer[kprocessor.Message]
}

func NewSink(cfg SinkConfig) *Sink {
	return &Sink{cfg: cfg, pending: kcommit.NewBuffer[kprocessor.Message]()}
}

func (s *Sink) InputPorts() kprocessor.Ports { return kprocessor.DefaultPorts() }

func (s *Sink) Init(sc kprocessor.StageContext) error {
	if s.cfg.Bucket == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}

	client := s.cfg.Client
	if client == nil {
		if s.cfg.Endpoint == "" {
			return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
		}
		var err error
		client, err = minio.New(s.cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(s.cfg.AccessKey, s.cfg.SecretKey, ""),
			Secure: s.cfg.Secure,
		})
		if err != nil {
			return err
		}
	}
	s.client = client

	ctx := context.Background()
	err := client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{})
	if err != nil {
		exists, errBucketExists := client.BucketExists(ctx, s.cfg.Bucket)
		if errBucketExists != nil || !exists {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	} else {
		sc.Logger().Info("Created bucket", "bucket", s.cfg.Bucket)
	}
	return nil
}

// ObjectName returns the name of the object holding the transaction of
// source committed at seq/txid. Names sort by commit position.
func ObjectName(prefix, source string, seq, txid uint64) string {
	return path.Join(prefix, source, fmt.Sprintf("%020d-%020d.jsonl", seq, txid))
}

func (s *Sink) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, sc kprocessor.StageContext) (kprocessor.Control, error) {
	switch msg.Kind {
	case kprocessor.KindBegin:
		return kprocessor.Continue, s.pending.Begin(msg.Source)

	case kprocessor.KindData:
		return kprocessor.Continue, s.pending.Add(msg.Source, msg)

	case kprocessor.KindCommit:
		msgs, err := s.pending.Commit(msg.Source)
		if err != nil || len(msgs) == 0 {
			return kprocessor.Continue, err
		}
		body, err := EncodeLines(msgs)
		if err != nil {
			return kprocessor.Continue, err
		}
		name := ObjectName(s.cfg.Prefix, msg.Source, msg.Seq, msg.TxID)
		_, err = s.client.PutObject(ctx, s.cfg.Bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
			ContentType: "application/x-ndjson",
		})
		if err != nil {
			return kprocessor.Continue, fmt.Errorf("put %s: %w", name, err)
		}
		sc.Logger().Debug("Wrote transaction", "object", name, "bytes", len(body))
	}
	return kprocessor.Continue, nil
}

// EncodeLines renders msgs as JSON lines, one message per line.
func EncodeLines(msgs []kprocessor.Message) ([]byte, error) {
	var buf bytes.Buffer
	for _, msg := range msgs {
		line, err := kprocessor.EncodeMessage(msg)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (s *Sink) Close() error {
	s.pending.Reset()
	return nil
}
