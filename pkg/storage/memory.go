package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. It keeps the encoded records so a
// reload sees exactly what a BoltStore would return.
type MemStore struct {
	mu      sync.RWMutex
	writer  sync.Mutex
	buckets map[string]map[string][]byte
	closed  bool
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	s := &MemStore{buckets: make(map[string]map[string][]byte)}
	for _, b := range Buckets {
		s.buckets[b] = make(map[string][]byte)
	}
	return s
}

func (s *MemStore) Begin() (StoreTx, error) {
	s.writer.Lock()
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		s.writer.Unlock()
		return nil, fmt.Errorf("failed to begin transaction: store closed")
	}
	return &memTx{store: s}, nil
}

func (s *MemStore) Get(bucket, key string, v any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	data, ok := b[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (s *MemStore) ForEach(bucket string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	b, ok := s.buckets[bucket]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	values := make(map[string][]byte, len(b))
	for k, v := range b {
		values[k] = v
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of records in a bucket
func (s *MemStore) Len(bucket string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[bucket])
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type memOp struct {
	bucket string
	key    string
	data   []byte // nil deletes
}

// memTx buffers operations and applies them on Commit
type memTx struct {
	store *MemStore
	ops   []memOp
	done  bool
}

func (t *memTx) Put(bucket, key string, v any) error {
	if t.done {
		return ErrTxDone
	}
	if !knownBucket(bucket) {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", bucket, key, err)
	}
	t.ops = append(t.ops, memOp{bucket: bucket, key: key, data: data})
	return nil
}

func (t *memTx) Delete(bucket, key string) error {
	if t.done {
		return ErrTxDone
	}
	if !knownBucket(bucket) {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	t.ops = append(t.ops, memOp{bucket: bucket, key: key})
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.store.writer.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		if op.data == nil {
			delete(t.store.buckets[op.bucket], op.key)
		} else {
			t.store.buckets[op.bucket][op.key] = op.data
		}
	}
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.ops = nil
	t.store.writer.Unlock()
	return nil
}
