// Package kstate implements the keyed storage engine: ordered, transactional
// maps and sets over byte-encoded keys, stored in a single pebble database.
//
// An Env holds any number of named databases. Each database owns a 4-byte key
// prefix (its registry id), so iterating one database is a bounded range scan
// in byte order. Transactions follow a single-writer / multi-reader model:
//
//   - ReadTxn is a pebble snapshot. Any number may be open; each sees the
//     state as of its start and is not affected by a concurrently open writer.
//   - RwTxn is an indexed pebble batch. At most one is active; BeginWrite
//     blocks until the current writer commits or aborts.
//
// Handles (Map, Set) are small values holding a registry id and a key serde.
// Copying a handle never copies data.
package kstate

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// DatabaseID is the registry index of an opened database.
type DatabaseID uint32

const (
	// metaDatabase holds the name -> id registry.
	metaDatabase DatabaseID = 0
	// DefaultDatabase is the unnamed database. It always exists.
	DefaultDatabase DatabaseID = 1

	firstNamedDatabase DatabaseID = 2
	prefixLen                     = 4
)

var (
	registryLower = []byte("db/")
	registryUpper = []byte("db0")
)

// Env is a storage environment rooted at one directory.
type Env struct {
	db   *pebble.DB
	dir  string
	sync bool

	// writeMu is held for the lifetime of the active RwTxn.
	writeMu sync.Mutex

	regMu    sync.Mutex
	registry map[string]DatabaseID
	next     DatabaseID
}

type EnvOption func(*envConfig)

type envConfig struct {
	sync    bool
	options *pebble.Options
}

// WithSync controls whether commits are fsynced before returning. Default true.
func WithSync(sync bool) EnvOption {
	return func(c *envConfig) {
		c.sync = sync
	}
}

// WithPebbleOptions overrides the options passed to pebble.Open.
func WithPebbleOptions(opts *pebble.Options) EnvOption {
	return func(c *envConfig) {
		c.options = opts
	}
}

// Open opens or creates the environment stored in dir.
func Open(dir string, opts ...EnvOption) (*Env, error) {
	cfg := envConfig{sync: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.options == nil {
		cfg.options = &pebble.Options{}
	}

	db, err := pebble.Open(dir, cfg.options)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("open %s", dir), err)
	}

	env := &Env{
		db:       db,
		dir:      dir,
		sync:     cfg.sync,
		registry: map[string]DatabaseID{"": DefaultDatabase},
		next:     firstNamedDatabase,
	}
	if err := env.loadRegistry(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return env, nil
}

func (e *Env) Dir() string {
	return e.dir
}

// Close flushes and closes the underlying database. All transactions must
// have ended before Close is called.
func (e *Env) Close() error {
	if err := e.db.Flush(); err != nil {
		_ = e.db.Close()
		return wrapErr("flush", err)
	}
	return wrapErr("close", e.db.Close())
}

func (e *Env) writeOptions() *pebble.WriteOptions {
	if e.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (e *Env) loadRegistry() error {
	lower := registryKey("")
	upper := append(prefixOf(metaDatabase), registryUpper...)
	it := e.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	defer func() { _ = it.Close() }()

	seen := make(map[DatabaseID]string)
	for it.First(); it.Valid(); it.Next() {
		name := string(it.Key()[len(lower):])
		if len(it.Value()) != prefixLen {
			return fmt.Errorf("registry entry %q: %w: id has %d bytes", name, ErrCorruption, len(it.Value()))
		}
		id := DatabaseID(binary.BigEndian.Uint32(it.Value()))
		if other, ok := seen[id]; ok || id < firstNamedDatabase {
			return fmt.Errorf("registry id %d of %q (also %q): %w", id, name, other, ErrAlreadyExists)
		}
		seen[id] = name
		e.registry[name] = id
		if id >= e.next {
			e.next = id + 1
		}
	}
	return wrapErr("load registry", it.Error())
}

// Database resolves the registry id of a named database. The empty name is
// the default database. When the name is unknown and create is false,
// ErrNotFound is returned.
//
// Database does not take the writer lock, so it may be called while a RwTxn
// is open.
func (e *Env) Database(name string, create bool) (DatabaseID, error) {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	if id, ok := e.registry[name]; ok {
		return id, nil
	}
	if !create {
		return 0, fmt.Errorf("database %q: %w", name, ErrNotFound)
	}

	id := e.next
	if err := e.db.Set(registryKey(name), prefixOf(id), pebble.Sync); err != nil {
		return 0, wrapErr(fmt.Sprintf("create database %q", name), err)
	}
	e.registry[name] = id
	e.next++
	return id, nil
}

// BeginRead starts a snapshot-isolated read transaction.
func (e *Env) BeginRead() *ReadTxn {
	return &ReadTxn{snap: e.db.NewSnapshot()}
}

// BeginWrite starts the read-write transaction, blocking while another one is
// active.
func (e *Env) BeginWrite() *RwTxn {
	e.writeMu.Lock()
	return &RwTxn{env: e, batch: e.db.NewIndexedBatch()}
}

// View runs fn inside a read transaction.
func (e *Env) View(fn func(txn *ReadTxn) error) error {
	txn := e.BeginRead()
	defer txn.Close()
	return fn(txn)
}

// Update runs fn inside a read-write transaction. The transaction commits when
// fn returns nil and aborts otherwise.
func (e *Env) Update(fn func(txn *RwTxn) error) error {
	txn := e.BeginWrite()
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}

func prefixOf(id DatabaseID) []byte {
	p := make([]byte, prefixLen)
	binary.BigEndian.PutUint32(p, uint32(id))
	return p
}

func registryKey(name string) []byte {
	k := append(prefixOf(metaDatabase), registryLower...)
	return append(k, name...)
}
