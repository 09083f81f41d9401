package transaction

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*storage.MemStore
	commitErr error
}

func (s *failingStore) Begin() (storage.StoreTx, error) {
	stx, err := s.MemStore.Begin()
	if err != nil {
		return nil, err
	}
	return &failingTx{StoreTx: stx, err: s.commitErr}, nil
}

type failingTx struct {
	storage.StoreTx
	err error
}

func (t *failingTx) Commit() error {
	t.StoreTx.Rollback()
	return t.err
}

func TestCommitPersistsAndRunsHooks(t *testing.T) {
	store := storage.NewMemStore()
	tx := NewManager(store).Begin()
	assert.False(t, tx.IsDirty())

	committed := false
	tx.OnCommit(func() { committed = true })
	require.NoError(t, tx.Put(storage.BucketNodes, "n1", map[string]string{"name": "alpha"}))
	assert.True(t, tx.IsDirty())

	require.NoError(t, tx.Commit())
	assert.True(t, committed)
	assert.False(t, tx.IsDirty())
	assert.Equal(t, 1, store.Len(storage.BucketNodes))
	assert.ErrorIs(t, tx.Commit(), ErrDone)
}

func TestRollbackRunsUndoInReverse(t *testing.T) {
	store := storage.NewMemStore()
	tx := NewManager(store).Begin()

	var order []int
	tx.OnRollback(func() { order = append(order, 1) })
	tx.OnRollback(func() { order = append(order, 2) })
	require.NoError(t, tx.Put(storage.BucketNodes, "n1", "x"))

	require.NoError(t, tx.Rollback())
	assert.Equal(t, []int{2, 1}, order)
	assert.Equal(t, 0, store.Len(storage.BucketNodes))
}

func TestReadOnlyTxNeverOpensStore(t *testing.T) {
	store := storage.NewMemStore()
	mgr := NewManager(store)

	tx := mgr.Begin()
	require.NoError(t, tx.Commit())

	// A second writer would block if the first left the store open
	tx = mgr.Begin()
	require.NoError(t, tx.Put(storage.BucketNodes, "n1", "x"))
	require.NoError(t, tx.Commit())
}

func TestFailedCommitCanBeRolledBack(t *testing.T) {
	boom := errors.New("disk full")
	store := &failingStore{MemStore: storage.NewMemStore(), commitErr: boom}
	tx := NewManager(store).Begin()

	value := "new"
	tx.OnRollback(func() { value = "old" })
	require.NoError(t, tx.Put(storage.BucketNodes, "n1", "x"))

	err := tx.Commit()
	assert.ErrorIs(t, err, boom)
	assert.True(t, tx.IsDirty())

	require.NoError(t, tx.Rollback())
	assert.Equal(t, "old", value)
	assert.Equal(t, 0, store.Len(storage.BucketNodes))
}
