package kcheckpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

// DatabaseName is the kstate database holding all checkpoints.
const DatabaseName = "__checkpoints"

const valueLen = 16

var (
	// ErrRegression is returned when a write would move a checkpoint
	// backwards.
	ErrRegression = errors.New("checkpoint regression")

	// ErrInvalidCheckpoint is returned when a stored checkpoint cannot be
	// decoded.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// Entry is one stored checkpoint.
type Entry struct {
	Stage    string
	Source   string
	Position Position
}

// Store persists one Position per (stage, source) pair. Writes take a
// kstate.RwTxn so that a stage commits its state mutation and its checkpoint
// together.
type Store struct {
	m kstate.Map[string]
}

// Open opens the checkpoint database of env, creating it if needed.
func Open(env *kstate.Env) (*Store, error) {
	m, err := kstate.OpenMap(env, DatabaseName, true, kserde.String)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{m: m}, nil
}

func key(stage, source string) string {
	return stage + "\x00" + source
}

func splitKey(k string) (stage, source string, ok bool) {
	return strings.Cut(k, "\x00")
}

func encode(p Position) []byte {
	b := make([]byte, valueLen)
	binary.BigEndian.PutUint64(b[:8], p.Seq)
	binary.BigEndian.PutUint64(b[8:], p.TxID)
	return b
}

func decode(b []byte) (Position, error) {
	if len(b) != valueLen {
		return Position{}, fmt.Errorf("%w: %d bytes", ErrInvalidCheckpoint, len(b))
	}
	return At(binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])), nil
}

// Read returns the checkpoint of stage for source, or Unknown.
func (s *Store) Read(txn kstate.Txn, stage, source string) (Position, error) {
	raw, ok, err := s.m.Get(txn, key(stage, source))
	if err != nil || !ok {
		return Unknown(), err
	}
	return decode(raw)
}

// Write records pos as the checkpoint of stage for source. Writing a position
// lower than the stored one fails with ErrRegression; rewriting the stored
// position is a no-op.
func (s *Store) Write(txn *kstate.RwTxn, stage, source string, pos Position) error {
	if !pos.IsKnown() {
		return fmt.Errorf("write checkpoint %s/%s: unknown position", stage, source)
	}
	current, err := s.Read(txn, stage, source)
	if err != nil {
		return err
	}
	if pos.Less(current) {
		return fmt.Errorf("%w: %s/%s from %s to %s", ErrRegression, stage, source, current, pos)
	}
	return s.m.Put(txn, key(stage, source), encode(pos))
}

// All returns every stored checkpoint ordered by stage, then source.
func (s *Store) All(txn kstate.Txn) ([]Entry, error) {
	var out []Entry
	for e, err := range s.m.All(txn) {
		if err != nil {
			return nil, err
		}
		stage, source, ok := splitKey(e.Key)
		if !ok {
			return nil, fmt.Errorf("%w: key %q", ErrInvalidCheckpoint, e.Key)
		}
		pos, err := decode(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Stage: stage, Source: source, Position: pos})
	}
	return out, nil
}

// Resume returns the position source has to resume after. When stages is
// non-empty it is the minimum over exactly those stages, and a stage without
// a checkpoint makes the result Unknown. Otherwise it is the minimum over all
// stages that recorded source.
func (s *Store) Resume(txn kstate.Txn, source string, stages ...string) (Position, error) {
	if len(stages) > 0 {
		var min Position
		for i, stage := range stages {
			pos, err := s.Read(txn, stage, source)
			if err != nil {
				return Unknown(), err
			}
			if i == 0 || pos.Less(min) {
				min = pos
			}
		}
		return min, nil
	}

	entries, err := s.All(txn)
	if err != nil {
		return Unknown(), err
	}
	min, found := Unknown(), false
	for _, e := range entries {
		if e.Source != source {
			continue
		}
		if !found || e.Position.Less(min) {
			min, found = e.Position, true
		}
	}
	return min, nil
}
