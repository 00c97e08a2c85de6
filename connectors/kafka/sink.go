package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/birdayz/kflow/kprocessor"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Header keys set on produced records.
const (
	HeaderOp     = "kflow-op"
	HeaderSource = "kflow-source"
	HeaderSeq    = "kflow-seq"
)

type SinkConfig struct {
	Brokers []string
	Topic   string

	// CreateTopic creates Topic in Init unless it exists.
	CreateTopic       bool
	Partitions        int32
	ReplicationFactor int16

	// Opts are appended to the client options.
	Opts []kgo.Opt
}

// Sink produces every data message to a topic and flushes at Commit. A
// Commit returns only after all records of its transaction were acknowledged,
// so a failed produce fails the transaction before any checkpoint moves.
type Sink struct {
	cfg    SinkConfig
	client *kgo.Client

	mu       sync.Mutex
	firstErr error
}

func NewSink(cfg SinkConfig) *Sink {
	if cfg.Partitions == 0 {
		cfg.Partitions = 1
	}
	if cfg.ReplicationFactor == 0 {
		cfg.ReplicationFactor = 1
	}
	return &Sink{cfg: cfg}
}

func (s *Sink) InputPorts() kprocessor.Ports { return kprocessor.DefaultPorts() }

func (s *Sink) Init(sc kprocessor.StageContext) error {
	if len(s.cfg.Brokers) == 0 || s.cfg.Topic == "" {
		return fmt.Errorf("%w: brokers and topic are required", ErrInvalidConfig)
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.DefaultProduceTopic(s.cfg.Topic),
	}
	client, err := kgo.NewClient(append(opts, s.cfg.Opts...)...)
	if err != nil {
		return err
	}
	s.client = client

	if s.cfg.CreateTopic {
		if err := createTopic(context.Background(), kadm.NewClient(client), s.cfg); err != nil {
			client.Close()
			return err
		}
		sc.Logger().Info("Created topic", "topic", s.cfg.Topic, "partitions", s.cfg.Partitions)
	}
	return nil
}

func createTopic(ctx context.Context, acl *kadm.Client, cfg SinkConfig) error {
	resp, err := acl.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, cfg.Topic)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Record converts a data message into a record. Deletes become tombstones.
func Record(msg kprocessor.Message) *kgo.Record {
	rec := &kgo.Record{
		Key: msg.Op.Key,
		Headers: []kgo.RecordHeader{
			{Key: HeaderOp, Value: []byte(msg.Op.Kind.String())},
			{Key: HeaderSource, Value: []byte(msg.Source)},
			{Key: HeaderSeq, Value: []byte(strconv.FormatUint(msg.Seq, 10))},
		},
	}
	if msg.Op.Kind != kprocessor.OpDelete {
		rec.Value = msg.Op.New
	}
	return rec
}

func (s *Sink) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext) (kprocessor.Control, error) {
	switch msg.Kind {
	case kprocessor.KindData:
		s.client.Produce(ctx, Record(msg), s.promise)
	case kprocessor.KindCommit:
		if err := s.client.Flush(ctx); err != nil {
			return kprocessor.Continue, err
		}
		if err := s.takeErr(); err != nil {
			return kprocessor.Continue, fmt.Errorf("produce transaction %d of %s: %w", msg.TxID, msg.Source, err)
		}
	}
	return kprocessor.Continue, nil
}

func (s *Sink) promise(_ *kgo.Record, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}

func (s *Sink) takeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.firstErr
	s.firstErr = nil
	return err
}

func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
