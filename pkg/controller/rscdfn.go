package controller

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// VolDfnSpec describes a volume definition. A nil VolNr or Minor is
// allocated automatically.
type VolDfnSpec struct {
	VolNr   *int              `yaml:"vol_nr"`
	Minor   *int              `yaml:"minor"`
	SizeKiB uint64            `yaml:"size_kib"`
	Props   map[string]string `yaml:"props"`
}

// RscDfnSpec describes a resource definition to create. A nil Port is
// allocated automatically, an empty Secret is generated.
type RscDfnSpec struct {
	Name      string            `yaml:"name"`
	Port      *int              `yaml:"port"`
	Secret    string            `yaml:"secret"`
	Transport string            `yaml:"transport"`
	Props     map[string]string `yaml:"props"`
	VolDfns   []VolDfnSpec      `yaml:"volume_definitions"`
}

// CreateResourceDefinition creates a resource definition and its volume definitions
func (c *Controller) CreateResourceDefinition(accCtx *security.AccessContext, client *peer.Peer, spec RscDfnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateResourceDefinition",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskRscDfn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite},
		objRefs: map[string]string{"RscDfn": spec.Name},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewResourceName(spec.Name)
		if err != nil {
			return err
		}
		if c.state.rscDfn(name) != nil {
			return fail(KindAlreadyExists, apicallrc.RscDfnCrtFailExists, "Resource definition '%s' already exists", name)
		}

		used := c.state.usedPorts()
		var port types.TCPPort
		if spec.Port != nil {
			if port, err = types.NewTCPPort(*spec.Port); err != nil {
				return err
			}
			if other, taken := used[port]; taken {
				return fail(KindAlreadyExists, apicallrc.RscDfnCrtFailExistsPort, "TCP port %d is already in use", port).
					withCause("The port is used by resource definition '%s'", other.Name())
			}
		} else {
			var ok bool
			if port, ok = allocatePort(used); !ok {
				return fail(KindExhausted, 0, "No free TCP port in range %d-%d", PortRangeMin, PortRangeMax)
			}
		}
		transport, ok := types.ParseTransportType(spec.Transport)
		if !ok {
			return fail(KindInvalidProperty, 0, "Invalid transport type '%s'", spec.Transport).
				withCorrection("Use one of IP, RDMA, RoCE")
		}
		secret := spec.Secret
		if secret == "" {
			if secret, err = c.newSecret(); err != nil {
				return fail(KindInternal, 0, "Failed to generate the shared secret").wrap(err)
			}
		}

		prot, err := c.newProtection(tx, accCtx, rscDfnPath(name))
		if err != nil {
			return err
		}
		rd := types.NewResourceDefinition(uuid.New(), name, port, secret, transport, prot)
		if len(spec.Props) > 0 {
			if err := rd.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		key := name.Key()
		c.state.rscDfns[key] = rd
		tx.OnRollback(func() {
			delete(c.state.rscDfns, key)
			rd.MarkRemoved()
		})
		if err := putRscDfn(tx, rd); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.RscDfnCreated, fmt.Sprintf("Resource definition '%s' created", name)).
			Details = fmt.Sprintf("Resource definition '%s' UUID is %s, port %d", name, rd.UUID(), port)

		vds, err := c.createVolDfns(tx, rd, spec.VolDfns)
		if err != nil {
			return err
		}
		for _, vd := range vds {
			addVolDfnCreated(rc, vd)
		}
		c.publish(tx, events.EventRscDfnCreated, fmt.Sprintf("Resource definition %s created", name),
			map[string]string{"rsc_dfn": name.String()})
		return nil
	})
}

func addVolDfnCreated(rc *apicallrc.ApiCallRc, vd *types.VolumeDefinition) {
	rc.Add(&apicallrc.RcEntry{
		ReturnCode: apicallrc.VlmDfnCreated,
		Message:    fmt.Sprintf("Volume definition %d of '%s' created", vd.Number(), vd.ResourceDefinition().Name()),
		Details:    fmt.Sprintf("Minor %d, size %d KiB, UUID %s", vd.Minor(), vd.SizeKiB(), vd.UUID()),
		ObjRefs: map[string]string{
			"RscDfn": vd.ResourceDefinition().Name().String(),
			"VlmNr":  fmt.Sprint(int(vd.Number())),
		},
	})
}

// createVolDfns creates volume definitions in rd. Requires the rscDfns write lock.
func (c *Controller) createVolDfns(tx *transaction.Tx, rd *types.ResourceDefinition, specs []VolDfnSpec) ([]*types.VolumeDefinition, error) {
	const code = apicallrc.MaskError | apicallrc.MaskCrt | apicallrc.MaskVlmDfn

	usedMinors := c.state.usedMinors()
	taken := make(map[types.VolumeNumber]bool, len(specs))
	created := make([]*types.VolumeDefinition, 0, len(specs))
	for _, spec := range specs {
		var (
			nr  types.VolumeNumber
			err error
		)
		if spec.VolNr != nil {
			if nr, err = types.NewVolumeNumber(*spec.VolNr); err != nil {
				return nil, err
			}
			if rd.VolumeDefinition(nr) != nil || taken[nr] {
				return nil, fail(KindAlreadyExists, apicallrc.VlmDfnCrtFailExists,
					"Volume definition %d of '%s' already exists", nr, rd.Name())
			}
		} else {
			var ok bool
			if nr, ok = allocateVolumeNumber(rd, taken); !ok {
				return nil, fail(KindExhausted, code|apicallrc.FailPoolExhausted, "No free volume number in '%s'", rd.Name())
			}
		}

		var minor types.MinorNumber
		if spec.Minor != nil {
			if minor, err = types.NewMinorNumber(*spec.Minor); err != nil {
				return nil, err
			}
			if other, used := usedMinors[minor]; used {
				return nil, fail(KindAlreadyExists, apicallrc.VlmDfnCrtFailExistsMinor, "Minor number %d is already in use", minor).
					withCause("The minor number is used by volume definition %d of '%s'", other.Number(), other.ResourceDefinition().Name())
			}
		} else {
			var ok bool
			if minor, ok = allocateMinor(usedMinors); !ok {
				return nil, fail(KindExhausted, code|apicallrc.FailPoolExhausted, "No free minor number")
			}
		}
		if spec.SizeKiB == 0 {
			return nil, fail(KindValueOutOfRange, 0, "Volume size of volume definition %d must not be zero", nr)
		}

		vd := types.NewVolumeDefinition(uuid.New(), rd, nr, minor, spec.SizeKiB)
		if len(spec.Props) > 0 {
			if err := vd.Props().Replace(spec.Props); err != nil {
				return nil, err
			}
		}
		vd.Link()
		tx.OnRollback(vd.Unlink)
		if err := putVolDfn(tx, vd); err != nil {
			return nil, err
		}
		usedMinors[minor] = vd
		taken[nr] = true
		created = append(created, vd)
	}
	return created, nil
}

// DeleteResourceDefinition deletes a resource definition. A definition
// without resources is removed at once; otherwise it and all its resources
// are marked for deletion until the satellites confirm.
func (c *Controller) DeleteResourceDefinition(accCtx *security.AccessContext, client *peer.Peer, rscName string) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteResourceDefinition",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskRscDfn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite},
		objRefs: map[string]string{"RscDfn": rscName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewResourceName(rscName)
		if err != nil {
			return err
		}
		rd := c.state.rscDfn(name)
		if rd == nil {
			rc.AddEntry(apicallrc.RscDfnDelWarnNotFound, fmt.Sprintf("Resource definition '%s' not found", name))
			return nil
		}
		if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessControl); err != nil {
			return err
		}
		if rd.IsDeleted() {
			rc.AddEntry(apicallrc.RscDfnMarkedForDeletion, fmt.Sprintf("Resource definition '%s' is already marked for deletion", name))
			return nil
		}

		if rd.ResourceCount() == 0 {
			if err := c.removeRscDfn(tx, rd); err != nil {
				return err
			}
			rc.AddEntry(apicallrc.RscDfnDeleted, fmt.Sprintf("Resource definition '%s' deleted", name))
			c.publish(tx, events.EventRscDfnDeleted, fmt.Sprintf("Resource definition %s deleted", name),
				map[string]string{"rsc_dfn": name.String()})
			return nil
		}

		old := rd.MarkDeleted()
		tx.OnRollback(func() { rd.SetFlags(old) })
		if err := putRscDfn(tx, rd); err != nil {
			return err
		}
		for _, r := range rd.Resources() {
			if err := c.markResourceDeleted(tx, r); err != nil {
				return err
			}
		}
		c.pushRscDfn(tx, rc, call, rd)
		rc.AddEntry(apicallrc.RscDfnMarkedForDeletion, fmt.Sprintf("Resource definition '%s' marked for deletion", name))
		return nil
	})
}

// removeRscDfn physically removes a resource definition without resources
func (c *Controller) removeRscDfn(tx *transaction.Tx, rd *types.ResourceDefinition) error {
	vds := rd.VolumeDefinitions()
	key := rd.Name().Key()
	tx.OnRollback(func() {
		c.state.rscDfns[key] = rd
		rd.Reinstate()
		for _, vd := range vds {
			vd.Link()
		}
	})

	for _, vd := range vds {
		vd.Unlink()
		if err := del(tx, storage.BucketVolDfns, vd.UUID()); err != nil {
			return err
		}
	}
	delete(c.state.rscDfns, key)
	rd.MarkRemoved()
	if err := del(tx, storage.BucketRscDfns, rd.UUID()); err != nil {
		return err
	}
	return delProt(tx, rscDfnPath(rd.Name()))
}
