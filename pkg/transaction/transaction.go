// Package transaction provides the unit of work of one controller
// operation. A Tx collects persistent writes in a lazily opened store
// transaction and in-memory mutations as undo hooks; Rollback restores both.
package transaction

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/storage"
)

// ErrDone is returned when a committed or rolled back Tx is used
var ErrDone = errors.New("transaction is done")

// Manager hands out transactions on one store
type Manager struct {
	store storage.Store
}

// NewManager creates a transaction manager
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// Store returns the underlying store
func (m *Manager) Store() storage.Store { return m.store }

// Begin starts a transaction. The store transaction is opened on the
// first write, so read-only operations never take the store's writer slot.
func (m *Manager) Begin() *Tx {
	return &Tx{store: m.store}
}

// Tx is a single unit of work. It is not safe for concurrent use.
type Tx struct {
	store    storage.Store
	stx      storage.StoreTx
	dirty    bool
	done     bool
	undo     []func()
	onCommit []func()
}

func (t *Tx) storeTx() (storage.StoreTx, error) {
	if t.done {
		return nil, ErrDone
	}
	if t.stx == nil {
		stx, err := t.store.Begin()
		if err != nil {
			return nil, err
		}
		t.stx = stx
	}
	return t.stx, nil
}

// Put persists v under bucket/key
func (t *Tx) Put(bucket, key string, v any) error {
	stx, err := t.storeTx()
	if err != nil {
		return err
	}
	t.dirty = true
	if err := stx.Put(bucket, key, v); err != nil {
		return fmt.Errorf("failed to persist %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes bucket/key
func (t *Tx) Delete(bucket, key string) error {
	stx, err := t.storeTx()
	if err != nil {
		return err
	}
	t.dirty = true
	if err := stx.Delete(bucket, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// OnRollback registers the undo of an in-memory mutation. Undo hooks run
// in reverse registration order.
func (t *Tx) OnRollback(fn func()) {
	t.dirty = true
	t.undo = append(t.undo, fn)
}

// OnCommit registers fn to run after a successful commit
func (t *Tx) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// IsDirty reports whether the transaction holds uncommitted changes
func (t *Tx) IsDirty() bool { return t.dirty && !t.done }

// Commit commits the store transaction. If the store commit fails the
// transaction stays open so Rollback can restore in-memory state.
func (t *Tx) Commit() error {
	if t.done {
		return ErrDone
	}
	if t.stx != nil {
		stx := t.stx
		t.stx = nil
		if err := stx.Commit(); err != nil {
			return err
		}
	}
	t.done = true
	t.undo = nil
	for _, fn := range t.onCommit {
		fn()
	}
	return nil
}

// Rollback discards the store transaction and runs the undo hooks
func (t *Tx) Rollback() error {
	if t.done {
		return ErrDone
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.onCommit = nil
	if t.stx != nil {
		stx := t.stx
		t.stx = nil
		if err := stx.Rollback(); err != nil {
			return fmt.Errorf("failed to roll back store transaction: %w", err)
		}
	}
	return nil
}
