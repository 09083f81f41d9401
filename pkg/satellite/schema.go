package satellite

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-memdb"
)

// Tables of the local state
const (
	tableNode        = "node"
	tableRscDfn      = "rsc_dfn"
	tableVolDfn      = "vol_dfn"
	tableResource    = "resource"
	tableVolume      = "volume"
	tableStorPoolDfn = "stor_pool_dfn"
	tableStorPool    = "stor_pool"
)

const (
	indexID     = "id"
	indexKey    = "key"
	indexParent = "parent"
)

var tables = []string{
	tableNode,
	tableRscDfn,
	tableVolDfn,
	tableResource,
	tableVolume,
	tableStorPoolDfn,
	tableStorPool,
}

// record is one row of a local table. Data holds the types.*Data value the
// controller sent. Records are replaced, never modified in place, because
// read transactions may still hold them.
type record struct {
	// ID is the object's UUID in string form
	ID string
	// Key is the natural key, e.g. NODE/RSC for a resource
	Key string
	// Parent is the key of the owning object, empty for top-level objects
	Parent string
	Data   any
	// Tombstone marks an object the controller no longer sends
	Tombstone bool
}

func newSchema() *memdb.DBSchema {
	schema := &memdb.DBSchema{Tables: make(map[string]*memdb.TableSchema, len(tables))}
	for _, name := range tables {
		schema.Tables[name] = &memdb.TableSchema{
			Name: name,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.UUIDFieldIndex{Field: "ID"},
				},
				indexKey: {
					Name:    indexKey,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
				indexParent: {
					Name:         indexParent,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Parent"},
				},
			},
		}
	}
	return schema
}

// Natural keys. Names are case-insensitive, so keys are upper case.

func nameKey(name string) string { return strings.ToUpper(name) }

func rscKey(node, rsc string) string { return nameKey(node) + "/" + nameKey(rsc) }

func volDfnKey(rsc string, nr int) string { return fmt.Sprintf("%s/%d", nameKey(rsc), nr) }

func volKey(node, rsc string, nr int) string { return fmt.Sprintf("%s/%d", rscKey(node, rsc), nr) }

func storPoolKey(node, sp string) string { return nameKey(node) + "/" + nameKey(sp) }
