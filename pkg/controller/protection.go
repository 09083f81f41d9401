package controller

import (
	"fmt"
	"strings"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
)

// ACLSpec edits one entry of the access control list at Path. An empty
// Access removes the role's entry.
type ACLSpec struct {
	Path   string `yaml:"path"`
	Role   string `yaml:"role"`
	Access string `yaml:"access"`
}

// SetProtectionACL grants or revokes a role's access to a protected object.
// The caller needs CONTROL on the object.
func (c *Controller) SetProtectionACL(accCtx *security.AccessContext, client *peer.Peer, spec ACLSpec) *apicallrc.ApiCallRc {
	call := c.protectionCall("SetProtectionACL", accCtx, client, spec.Path)
	call.objRefs["Role"] = spec.Role
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		prot, err := c.protectionAt(spec.Path)
		if err != nil {
			return err
		}
		role, err := security.NewRole(spec.Role)
		if err != nil {
			return fail(KindInvalidName, apicallrc.ObjProtModFailInvalidArg, "Invalid role name '%s'", spec.Role).wrap(err)
		}

		var access security.AccessType
		if spec.Access != "" {
			if access, err = security.ParseAccessType(spec.Access); err != nil {
				return fail(KindInvalidProperty, apicallrc.ObjProtModFailInvalidArg, "Invalid access type '%s'", spec.Access).wrap(err)
			}
		}

		before := prot.Data()
		if spec.Access == "" {
			err = prot.DelACLEntry(accCtx, role)
		} else {
			err = prot.AddACLEntry(accCtx, role, access)
		}
		if err != nil {
			return err
		}
		tx.OnRollback(func() { c.restoreProtection(prot, before) })
		if err := putProt(tx, prot); err != nil {
			return err
		}

		msg := fmt.Sprintf("Granted %s access to '%s' on '%s'", access, role, prot.Path())
		if spec.Access == "" {
			msg = fmt.Sprintf("Revoked the access of '%s' on '%s'", role, prot.Path())
		}
		rc.AddEntry(apicallrc.ObjProtModified, msg)
		return nil
	})
}

// SetProtectionOwner changes the owner role of a protected object. The
// caller needs CONTROL on the object.
func (c *Controller) SetProtectionOwner(accCtx *security.AccessContext, client *peer.Peer, path, owner string) *apicallrc.ApiCallRc {
	call := c.protectionCall("SetProtectionOwner", accCtx, client, path)
	call.objRefs["Role"] = owner
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		prot, err := c.protectionAt(path)
		if err != nil {
			return err
		}
		role, err := security.NewRole(owner)
		if err != nil {
			return fail(KindInvalidName, apicallrc.ObjProtModFailInvalidArg, "Invalid role name '%s'", owner).wrap(err)
		}

		before := prot.Data()
		if err := prot.SetOwner(accCtx, role); err != nil {
			return err
		}
		tx.OnRollback(func() { c.restoreProtection(prot, before) })
		if err := putProt(tx, prot); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.ObjProtModified, fmt.Sprintf("Owner of '%s' set to '%s'", prot.Path(), role))
		return nil
	})
}

func (c *Controller) protectionCall(name string, accCtx *security.AccessContext, client *peer.Peer, path string) apiCall {
	return apiCall{
		name:    name,
		op:      apicallrc.MaskMod,
		obj:     apicallrc.MaskObjProt,
		accCtx:  accCtx,
		client:  client,
		locks:   protectionLocks(path),
		objRefs: map[string]string{"ObjProt": path},
	}
}

func (c *Controller) restoreProtection(prot *security.ObjectProtection, data security.ProtectionData) {
	if err := prot.Restore(data); err != nil {
		c.logger.Error().Err(err).Str("path", prot.Path()).Msg("Failed to undo protection change")
	}
}

// protectionLocks returns the write locks of the collection owning path.
// Resource protections belong to both the node and the definition.
func protectionLocks(path string) LockSpec {
	switch {
	case path == NodesPath || strings.HasPrefix(path, "/nodes/"):
		return LockSpec{Nodes: ModeWrite}
	case path == RscDfnsPath || strings.HasPrefix(path, "/rscdfns/"):
		return LockSpec{RscDfns: ModeWrite}
	case path == StorPoolDfnsPath || strings.HasPrefix(path, "/storpooldfns/"):
		return LockSpec{StorPoolDfns: ModeWrite}
	case strings.HasPrefix(path, "/resources/"):
		return LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite}
	}
	return LockSpec{}
}

// protectionAt resolves a protection path. The caller holds the locks
// returned by protectionLocks.
func (c *Controller) protectionAt(path string) (*security.ObjectProtection, error) {
	notFound := fail(KindNotFound, apicallrc.ObjProtModFailNotFound, "Protected object '%s' not found", path)

	switch path {
	case NodesPath:
		return c.state.nodesProt, nil
	case RscDfnsPath:
		return c.state.rscDfnsProt, nil
	case StorPoolDfnsPath:
		return c.state.storPoolDfnsProt, nil
	}

	kind, rest, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if !ok || rest == "" {
		return nil, notFound
	}
	switch kind {
	case "nodes":
		if n := c.state.nodes[strings.ToUpper(rest)]; n != nil {
			return n.ObjectProtection(), nil
		}
	case "rscdfns":
		if d := c.state.rscDfns[strings.ToUpper(rest)]; d != nil {
			return d.ObjectProtection(), nil
		}
	case "storpooldfns":
		if d := c.state.storPoolDfns[strings.ToUpper(rest)]; d != nil {
			return d.ObjectProtection(), nil
		}
	case "resources":
		nodeKey, rscKey, ok := strings.Cut(rest, "/")
		if !ok {
			return nil, notFound
		}
		n := c.state.nodes[strings.ToUpper(nodeKey)]
		if n == nil {
			return nil, notFound
		}
		name, err := types.NewResourceName(rscKey)
		if err != nil {
			return nil, notFound
		}
		if r := n.Resource(name); r != nil {
			return r.ObjectProtection(), nil
		}
	}
	return nil, notFound
}
