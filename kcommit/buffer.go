package kcommit

import (
	"fmt"

	"github.com/birdayz/kflow/kprocessor"
)

// Buffer collects the data of the open transaction of each source. A source
// has at most one open transaction; an overlapping Begin means two copies of
// the source's stream reach the stage unaligned and is rejected.
type Buffer[T any] struct {
	open map[string][]T
}

func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{open: make(map[string][]T)}
}

// Begin opens a transaction of source.
func (b *Buffer[T]) Begin(source string) error {
	if _, ok := b.open[source]; ok {
		return fmt.Errorf("%w: begin of source %s inside its open transaction", kprocessor.ErrInvalidLifecycle, source)
	}
	b.open[source] = []T{}
	return nil
}

// Add appends v to the open transaction of source.
func (b *Buffer[T]) Add(source string, v T) error {
	items, ok := b.open[source]
	if !ok {
		return fmt.Errorf("%w: data of source %s outside a transaction", kprocessor.ErrInvalidLifecycle, source)
	}
	b.open[source] = append(items, v)
	return nil
}

// Pending returns the data buffered for the open transaction of source.
func (b *Buffer[T]) Pending(source string) []T {
	return b.open[source]
}

// Commit closes the open transaction of source and returns its data.
func (b *Buffer[T]) Commit(source string) ([]T, error) {
	items, ok := b.open[source]
	if !ok {
		return nil, fmt.Errorf("%w: commit of source %s without begin", kprocessor.ErrInvalidLifecycle, source)
	}
	delete(b.open, source)
	return items, nil
}

// Reset drops every open transaction.
func (b *Buffer[T]) Reset() {
	clear(b.open)
}
