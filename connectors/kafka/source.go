// Package kafka connects pipelines to a Kafka topic partition.
//
// The source uses the record offset as sequence id and closes one transaction
// per poll, so a source resumed at from.Next() re-reads exactly the records
// after the last committed transaction.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/twmb/franz-go/pkg/kgo"
)

var ErrInvalidConfig = errors.New("kafka: invalid config")

type SourceConfig struct {
	Brokers   []string
	Topic     string
	Partition int32

	// EndOffset stops the source after the record preceding it was emitted.
	// 0 consumes forever.
	EndOffset int64

	// Decode turns a record into an operation. Default: DecodeRecord.
	Decode func(rec *kgo.Record) (kprocessor.Operation, error)

	// Opts are appended to the client options.
	Opts []kgo.Opt
}

type Source struct {
	cfg SourceConfig
	log *slog.Logger
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.Decode == nil {
		cfg.Decode = DecodeRecord
	}
	return &Source{cfg: cfg}
}

// DecodeRecord maps a record with a value to an insert and a tombstone to a
// delete.
func DecodeRecord(rec *kgo.Record) (kprocessor.Operation, error) {
	if rec.Value == nil {
		return kprocessor.Operation{Kind: kprocessor.OpDelete, Key: rec.Key}, nil
	}
	return kprocessor.Operation{Kind: kprocessor.OpInsert, Key: rec.Key, New: rec.Value}, nil
}

func (s *Source) OutputPorts() kprocessor.Ports { return kprocessor.DefaultPorts() }

func (s *Source) Init(sc kprocessor.StageContext) error {
	if len(s.cfg.Brokers) == 0 || s.cfg.Topic == "" {
		return fmt.Errorf("%w: brokers and topic are required", ErrInvalidConfig)
	}
	s.log = sc.Logger().With("topic", s.cfg.Topic, "partition", s.cfg.Partition)
	return nil
}

func (s *Source) Start(ctx context.Context, fw kprocessor.Forwarder, from kcheckpoint.Position) error {
	start := int64(from.Next())
	if s.cfg.EndOffset > 0 && start >= s.cfg.EndOffset {
		return nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			s.cfg.Topic: {s.cfg.Partition: kgo.NewOffset().At(start)},
		}),
	}
	client, err := kgo.NewClient(append(opts, s.cfg.Opts...)...)
	if err != nil {
		return err
	}
	defer client.Close()

	s.log.Info("Consuming partition", "offset", start)
	for {
		fetches := client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return fmt.Errorf("fetch %s/%d: %w", errs[0].Topic, errs[0].Partition, errs[0].Err)
		}

		records := fetches.Records()
		if s.cfg.EndOffset > 0 {
			records = truncate(records, s.cfg.EndOffset)
		}
		if len(records) > 0 {
			msgs, err := transaction(records, s.cfg.Decode)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				if err := fw.Send(ctx, msg, kprocessor.Broadcast); err != nil {
					return err
				}
			}
		}

		if s.cfg.EndOffset > 0 && len(records) > 0 && records[len(records)-1].Offset+1 >= s.cfg.EndOffset {
			s.log.Info("Reached end offset", "offset", s.cfg.EndOffset)
			return nil
		}
	}
}

func truncate(records []*kgo.Record, end int64) []*kgo.Record {
	for i, rec := range records {
		if rec.Offset >= end {
			return records[:i]
		}
	}
	return records
}

// transaction wraps one poll into Begin, one Data per record and a Commit
// whose position is the last offset.
func transaction(records []*kgo.Record, decode func(*kgo.Record) (kprocessor.Operation, error)) ([]kprocessor.Message, error) {
	msgs := make([]kprocessor.Message, 0, len(records)+2)
	msgs = append(msgs, kprocessor.Begin())
	for _, rec := range records {
		op, err := decode(rec)
		if err != nil {
			return nil, fmt.Errorf("decode offset %d: %w", rec.Offset, err)
		}
		msgs = append(msgs, kprocessor.Data(uint64(rec.Offset), op))
	}
	last := uint64(records[len(records)-1].Offset)
	return append(msgs, kprocessor.Commit(last, last)), nil
}

func (s *Source) Close() error {
	return nil
}
