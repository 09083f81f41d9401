package storage

import "errors"

// Bucket names. Each bucket holds the JSON record of one object kind,
// keyed by the object's UUID.
const (
	BucketNodes        = "nodes"
	BucketRscDfns      = "rsc_dfns"
	BucketVolDfns      = "vol_dfns"
	BucketResources    = "resources"
	BucketVolumes      = "volumes"
	BucketStorPoolDfns = "stor_pool_dfns"
	BucketStorPools    = "stor_pools"
	BucketNodeConns    = "node_conns"
	BucketRscConns     = "rsc_conns"
	BucketVolConns     = "vol_conns"
	BucketObjProt      = "obj_prot"
)

// Buckets lists every bucket in load order: parents before children
var Buckets = []string{
	BucketObjProt,
	BucketNodes,
	BucketRscDfns,
	BucketVolDfns,
	BucketStorPoolDfns,
	BucketStorPools,
	BucketResources,
	BucketVolumes,
	BucketNodeConns,
	BucketRscConns,
	BucketVolConns,
}

var (
	// ErrUnknownBucket is returned for a bucket name outside Buckets
	ErrUnknownBucket = errors.New("unknown bucket")
	// ErrTxDone is returned when a finished transaction is used
	ErrTxDone = errors.New("transaction already committed or rolled back")
)

// Store is the controller's persistence engine
type Store interface {
	// Begin starts a write transaction. Only one write transaction is
	// active at a time; Begin blocks until the previous one finished.
	Begin() (StoreTx, error)

	// Get decodes the record stored under key into v. It returns false
	// if there is no such record.
	Get(bucket, key string, v any) (bool, error)

	// ForEach calls fn for every record of a bucket in key order
	ForEach(bucket string, fn func(key string, value []byte) error) error

	Close() error
}

// StoreTx is a write transaction. Changes become visible on Commit.
type StoreTx interface {
	// Put stores v, JSON-encoded, under key
	Put(bucket, key string, v any) error
	Delete(bucket, key string) error
	Commit() error
	Rollback() error
}

func knownBucket(name string) bool {
	for _, b := range Buckets {
		if b == name {
			return true
		}
	}
	return false
}
