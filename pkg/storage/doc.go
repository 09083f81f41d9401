/*
Package storage provides the controller's persistence engine.

A Store holds one bucket per object kind. Records are the JSON-encoded
types.*Data structs keyed by the object's UUID; object protections are
keyed by their path. Writes go through a StoreTx obtained from Begin, and
become visible atomically on Commit.

# Implementations

BoltStore:
  - File: <dataDir>/burrow.db
  - Buckets are created on open
  - Begin maps to a bolt read-write transaction, so write transactions
    are serialized by bolt itself
  - Get and ForEach run in their own read transactions

MemStore:
  - Same bucket layout, records kept encoded in memory
  - Operations are buffered in the transaction and applied on Commit
  - Used for tests and for a controller started with store kind "memory"

# Buckets

	nodes           types.NodeData
	rsc_dfns        types.RscDfnData
	vol_dfns        types.VolDfnData
	resources       types.RscData
	volumes         types.VolData
	stor_pool_dfns  types.StorPoolDfnData
	stor_pools      types.StorPoolData
	node_conns      types.NodeConnData
	rsc_conns       types.RscConnData
	vol_conns       types.VolConnData
	obj_prot        security.ProtectionData

Buckets lists them parents first, which is the order the controller
loads them in.

# Usage

	tx, err := store.Begin()
	if err != nil {
		return err
	}
	if err := tx.Put(storage.BucketNodes, node.UUID().String(), node.Data()); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()

Callers normally do not use StoreTx directly; pkg/transaction opens it
lazily on the first write of a controller operation.
*/
package storage
