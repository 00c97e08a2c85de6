package kstate

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrNotFound is returned when opening a database that does not exist
	// with create disabled.
	ErrNotFound = errors.New("kstate: database not found")

	// ErrAlreadyExists is returned when two database names resolve to the
	// same registry id.
	ErrAlreadyExists = errors.New("kstate: already exists")

	// ErrIO wraps environment-level failures of the underlying engine.
	ErrIO = errors.New("kstate: io error")

	// ErrCorruption wraps data corruption reported by the underlying engine.
	ErrCorruption = errors.New("kstate: corruption")

	// ErrTxnClosed is returned when a transaction, or a cursor created from
	// it, is used after commit or abort.
	ErrTxnClosed = errors.New("kstate: transaction closed")
)

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pebble.ErrCorruption) {
		return fmt.Errorf("%s: %w: %w", op, ErrCorruption, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIO, err)
}
