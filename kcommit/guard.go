// Package kcommit holds the commit bookkeeping shared by durable sinks: the
// buffer of each source's open transaction and the guard that advances a
// stage's checkpoint together with the sink's own writes.
package kcommit

import (
	"errors"
	"fmt"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kstate"
)

// ErrEnvRequired is returned by Init of a durable stage running without a
// storage environment.
var ErrEnvRequired = errors.New("stage requires a storage environment")

// Guard advances the checkpoints of one durable stage. The zero value is
// unusable until Setup succeeded.
type Guard struct {
	stage string
	env   *kstate.Env
	store *kcheckpoint.Store
}

// Setup binds g to the stage and environment of sc.
func (g *Guard) Setup(sc kprocessor.StageContext) error {
	if sc.Env() == nil {
		return fmt.Errorf("%s: %w", sc.StageID(), ErrEnvRequired)
	}
	store, err := kcheckpoint.Open(sc.Env())
	if err != nil {
		return err
	}
	g.stage = sc.StageID()
	g.env = sc.Env()
	g.store = store
	return nil
}

func (g *Guard) Env() *kstate.Env {
	return g.env
}

// Position returns the checkpoint of source.
func (g *Guard) Position(source string) (kcheckpoint.Position, error) {
	var pos kcheckpoint.Position
	err := g.env.View(func(txn *kstate.ReadTxn) error {
		var err error
		pos, err = g.store.Read(txn, g.stage, source)
		return err
	})
	return pos, err
}

// Commit runs apply and advances the checkpoint of msg.Source to the position
// of msg in one transaction. A Commit covered by the stored checkpoint is a
// redelivery: apply is skipped and Commit reports false. apply may be nil.
func (g *Guard) Commit(msg kprocessor.Message, apply func(txn *kstate.RwTxn) error) (bool, error) {
	pos := kcheckpoint.At(msg.Seq, msg.TxID)
	applied := false
	err := g.env.Update(func(txn *kstate.RwTxn) error {
		current, err := g.store.Read(txn, g.stage, msg.Source)
		if err != nil {
			return err
		}
		if current.Covers(pos) {
			return nil
		}
		if apply != nil {
			if err := apply(txn); err != nil {
				return err
			}
		}
		applied = true
		return g.store.Write(txn, g.stage, msg.Source, pos)
	})
	if err != nil {
		return false, fmt.Errorf("commit %s at %s: %w", msg.Source, pos, err)
	}
	return applied, nil
}
