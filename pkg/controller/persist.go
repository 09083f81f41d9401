package controller

import (
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// Protection paths of individual objects
func nodePath(name types.NodeName) string { return "/nodes/" + name.Key() }
func rscDfnPath(name types.ResourceName) string { return "/rscdfns/" + name.Key() }
func storPoolDfnPath(name types.StorPoolName) string { return "/storpooldfns/" + name.Key() }

func rscPath(node types.NodeName, rsc types.ResourceName) string {
	return "/resources/" + node.Key() + "/" + rsc.Key()
}

func put(tx *transaction.Tx, bucket string, id uuid.UUID, v any) error {
	if err := tx.Put(bucket, id.String(), v); err != nil {
		return persistenceFailure(err)
	}
	return nil
}

func del(tx *transaction.Tx, bucket string, id uuid.UUID) error {
	if err := tx.Delete(bucket, id.String()); err != nil {
		return persistenceFailure(err)
	}
	return nil
}

func putProt(tx *transaction.Tx, prot *security.ObjectProtection) error {
	if err := tx.Put(storage.BucketObjProt, prot.Path(), prot.Data()); err != nil {
		return persistenceFailure(err)
	}
	return nil
}

func delProt(tx *transaction.Tx, path string) error {
	if err := tx.Delete(storage.BucketObjProt, path); err != nil {
		return persistenceFailure(err)
	}
	return nil
}

// newProtection creates and persists the protection of a new object
func (c *Controller) newProtection(tx *transaction.Tx, accCtx *security.AccessContext, path string) (*security.ObjectProtection, error) {
	prot := c.policy.NewObjectProtection(accCtx, path)
	if err := putProt(tx, prot); err != nil {
		return nil, err
	}
	return prot, nil
}

func putNode(tx *transaction.Tx, n *types.Node) error {
	return put(tx, storage.BucketNodes, n.UUID(), n.Data())
}

func putRscDfn(tx *transaction.Tx, d *types.ResourceDefinition) error {
	return put(tx, storage.BucketRscDfns, d.UUID(), d.Data())
}

func putVolDfn(tx *transaction.Tx, vd *types.VolumeDefinition) error {
	return put(tx, storage.BucketVolDfns, vd.UUID(), vd.Data())
}

func putRsc(tx *transaction.Tx, r *types.Resource) error {
	return put(tx, storage.BucketResources, r.UUID(), r.Data())
}

func putVol(tx *transaction.Tx, v *types.Volume) error {
	return put(tx, storage.BucketVolumes, v.UUID(), v.Data())
}

func putStorPoolDfn(tx *transaction.Tx, d *types.StorPoolDefinition) error {
	return put(tx, storage.BucketStorPoolDfns, d.UUID(), d.Data())
}

func putStorPool(tx *transaction.Tx, sp *types.StorPool) error {
	return put(tx, storage.BucketStorPools, sp.UUID(), sp.Data())
}

func putNodeConn(tx *transaction.Tx, nc *types.NodeConnection) error {
	return put(tx, storage.BucketNodeConns, nc.UUID(), nc.Data())
}

func putRscConn(tx *transaction.Tx, rc *types.ResourceConnection) error {
	return put(tx, storage.BucketRscConns, rc.UUID(), rc.Data())
}

func putVolConn(tx *transaction.Tx, vc *types.VolumeConnection) error {
	return put(tx, storage.BucketVolConns, vc.UUID(), vc.Data())
}
