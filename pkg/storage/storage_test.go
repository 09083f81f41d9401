package storage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]Store{
		"bolt":   bolt,
		"memory": NewMemStore(),
	}
}

func TestCommitMakesRecordsVisible(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tx, err := s.Begin()
			require.NoError(t, err)
			require.NoError(t, tx.Put(BucketNodes, "k1", record{Name: "alpha", Count: 1}))
			require.NoError(t, tx.Put(BucketNodes, "k2", record{Name: "bravo", Count: 2}))
			require.NoError(t, tx.Commit())

			var got record
			found, err := s.Get(BucketNodes, "k1", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "alpha", got.Name)

			var keys []string
			err = s.ForEach(BucketNodes, func(key string, value []byte) error {
				var r record
				require.NoError(t, json.Unmarshal(value, &r))
				keys = append(keys, key)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"k1", "k2"}, keys)
		})
	}
}

func TestRollbackDiscardsRecords(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tx, err := s.Begin()
			require.NoError(t, err)
			require.NoError(t, tx.Put(BucketRscDfns, "r1", record{Name: "r1"}))
			require.NoError(t, tx.Rollback())

			var got record
			found, err := s.Get(BucketRscDfns, "r1", &got)
			require.NoError(t, err)
			assert.False(t, found)

			// The writer slot is free again
			tx, err = s.Begin()
			require.NoError(t, err)
			require.NoError(t, tx.Commit())
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tx, err := s.Begin()
			require.NoError(t, err)
			require.NoError(t, tx.Put(BucketStorPools, "sp", record{Name: "pool1"}))
			require.NoError(t, tx.Commit())

			tx, err = s.Begin()
			require.NoError(t, err)
			require.NoError(t, tx.Delete(BucketStorPools, "sp"))
			require.NoError(t, tx.Commit())

			found, err := s.Get(BucketStorPools, "sp", &record{})
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestUnknownBucketAndFinishedTx(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tx, err := s.Begin()
			require.NoError(t, err)
			err = tx.Put("nope", "k", record{})
			assert.True(t, errors.Is(err, ErrUnknownBucket))
			require.NoError(t, tx.Commit())

			assert.ErrorIs(t, tx.Put(BucketNodes, "k", record{}), ErrTxDone)
			assert.ErrorIs(t, tx.Commit(), ErrTxDone)
			assert.ErrorIs(t, tx.Rollback(), ErrTxDone)
		})
	}
}

func TestBoltStoreReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	require.NoError(t, err)
	tx, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Put(BucketObjProt, "/sys/controller/nodes", record{Name: "prot"}))
	require.NoError(t, tx.Commit())
	require.NoError(t, s.Close())

	s, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer s.Close()

	var got record
	found, err := s.Get(BucketObjProt, "/sys/controller/nodes", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "prot", got.Name)
}
