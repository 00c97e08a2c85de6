// Package redis materializes change events into a Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kcommit"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidConfig = errors.New("redis: invalid config")

type SinkConfig struct {
	// URL is parsed with redis.ParseURL, e.g. "redis://localhost:6379/0".
	URL string
	// Hash is the key of the materialized hash. Checkpoints are kept in
	// Hash + ":checkpoints".
	Hash string

	// Client replaces the client built from URL.
	Client *redis.Client
}

// Sink applies each transaction to a hash with HSET/HDEL and records the
// commit position in the same MULTI/EXEC. Commits at or below the recorded
// position are skipped, so redelivery is harmless. After EXEC the position is
// mirrored into the local checkpoint store, which sources resume from.
type Sink struct {
	cfg     SinkConfig
	client  *redis.Client
	ownsCl  bool
	guard   kcommit.Guard
	pending *kcommit.Buffer[kprocessor.Operation]
}

func NewSink(cfg SinkConfig) *Sink {
	return &Sink{cfg: cfg, pending: kcommit.NewBuffer[kprocessor.Operation]()}
}

func (s *Sink) InputPorts() kprocessor.Ports { return kprocessor.DefaultPorts() }
func (s *Sink) RequiresState() bool          { return true }
func (s *Sink) Durable() bool                { return true }

func (s *Sink) checkpointKey() string {
	return s.cfg.Hash + ":checkpoints"
}

func (s *Sink) Init(sc kprocessor.StageContext) error {
	if s.cfg.Hash == "" {
		return fmt.Errorf("%w: hash is required", ErrInvalidConfig)
	}
	if err := s.guard.Setup(sc); err != nil {
		return err
	}

	client := s.cfg.Client
	if client == nil {
		opts, err := redis.ParseURL(s.cfg.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		client = redis.NewClient(opts)
		s.ownsCl = true
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		if s.ownsCl {
			_ = client.Close()
		}
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.client = client
	return nil
}

// FormatPosition renders pos as stored in the checkpoint hash.
func FormatPosition(pos kcheckpoint.Position) string {
	return strconv.FormatUint(pos.Seq, 10) + ":" + strconv.FormatUint(pos.TxID, 10)
}

// ParsePosition parses a value written by FormatPosition.
func ParsePosition(v string) (kcheckpoint.Position, error) {
	seq, txid, ok := strings.Cut(v, ":")
	if !ok {
		return kcheckpoint.Unknown(), fmt.Errorf("%w: %q", kcheckpoint.ErrInvalidCheckpoint, v)
	}
	s, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return kcheckpoint.Unknown(), fmt.Errorf("%w: %q", kcheckpoint.ErrInvalidCheckpoint, v)
	}
	t, err := strconv.ParseUint(txid, 10, 64)
	if err != nil {
		return kcheckpoint.Unknown(), fmt.Errorf("%w: %q", kcheckpoint.ErrInvalidCheckpoint, v)
	}
	return kcheckpoint.At(s, t), nil
}

func (s *Sink) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, sc kprocessor.StageContext) (kprocessor.Control, error) {
	switch msg.Kind {
	case kprocessor.KindBegin:
		return kprocessor.Continue, s.pending.Begin(msg.Source)
	case kprocessor.KindData:
		return kprocessor.Continue, s.pending.Add(msg.Source, *msg.Op)
	case kprocessor.KindCommit:
		ops, err := s.pending.Commit(msg.Source)
		if err != nil {
			return kprocessor.Continue, err
		}
		if err := s.commit(ctx, msg, ops, sc); err != nil {
			return kprocessor.Continue, fmt.Errorf("commit %s at %d/%d: %w", msg.Source, msg.Seq, msg.TxID, err)
		}
	}
	return kprocessor.Continue, nil
}

func (s *Sink) remotePosition(ctx context.Context, source string) (kcheckpoint.Position, error) {
	v, err := s.client.HGet(ctx, s.checkpointKey(), source).Result()
	if errors.Is(err, redis.Nil) {
		return kcheckpoint.Unknown(), nil
	}
	if err != nil {
		return kcheckpoint.Unknown(), err
	}
	return ParsePosition(v)
}

func (s *Sink) commit(ctx context.Context, msg kprocessor.Message, ops []kprocessor.Operation, sc kprocessor.StageContext) error {
	pos := kcheckpoint.At(msg.Seq, msg.TxID)

	current, err := s.remotePosition(ctx, msg.Source)
	if err != nil {
		return err
	}
	if current.Covers(pos) {
		sc.Logger().Debug("Skipping redelivered transaction", "source", msg.Source, "position", pos)
	} else {
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range ops {
				if op.Kind == kprocessor.OpDelete {
					pipe.HDel(ctx, s.cfg.Hash, string(op.Key))
				} else {
					pipe.HSet(ctx, s.cfg.Hash, string(op.Key), op.New)
				}
			}
			pipe.HSet(ctx, s.checkpointKey(), msg.Source, FormatPosition(pos))
			return nil
		})
		if err != nil {
			return err
		}
	}

	_, err = s.guard.Commit(msg, nil)
	return err
}

func (s *Sink) Close() error {
	s.pending.Reset()
	if s.ownsCl && s.client != nil {
		return s.client.Close()
	}
	return nil
}
