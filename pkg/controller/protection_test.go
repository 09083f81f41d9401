package controller

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetProtectionACLSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	c := openController(t, store)
	ctx := c.SystemContext()

	rc := c.SetProtectionACL(ctx, nil, ACLSpec{Path: NodesPath, Role: "public", Access: "change"})
	require.Len(t, rc.Entries, 1)
	assert.Equal(t, apicallrc.ObjProtModified, rc.Entries[0].ReturnCode)
	require.False(t, c.CreateNode(ctx, nil, satelliteSpec("alpha", "10.0.0.1")).HasErrors())
	rc = c.SetProtectionOwner(ctx, nil, "/nodes/alpha", "operator")
	require.False(t, rc.HasErrors(), "%v", rc.Entries)
	require.NoError(t, store.Close())

	store, err = storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()
	reloaded := openController(t, store)

	acl := reloaded.State().NodesProtection().ACL()
	assert.Equal(t, security.AccessChange, acl[security.PublicRole])
	assert.Equal(t, security.AccessControl, acl[security.SystemRole])
	alpha := reloaded.State().Node(nodeName(t, "alpha"))
	require.NotNil(t, alpha)
	assert.Equal(t, security.Role("OPERATOR"), alpha.ObjectProtection().Owner())

	rc = reloaded.CreateNode(security.NewPublicContext(), nil, satelliteSpec("beta", "10.0.0.2"))
	assert.False(t, rc.HasErrors(), "%v", rc.Entries)
}

func TestSetProtectionACLRevoke(t *testing.T) {
	f := newFixture(t)
	public := security.NewPublicContext()

	f.mustSucceed(t, f.c.SetProtectionACL(f.ctx, nil, ACLSpec{Path: RscDfnsPath, Role: "PUBLIC", Access: "CHANGE"}))
	f.mustSucceed(t, f.c.CreateResourceDefinition(public, nil, RscDfnSpec{Name: "r1"}))

	f.mustSucceed(t, f.c.SetProtectionACL(f.ctx, nil, ACLSpec{Path: RscDfnsPath, Role: "PUBLIC"}))
	assert.NotContains(t, f.c.State().RscDfnsProtection().ACL(), security.PublicRole)

	rc := f.c.CreateResourceDefinition(public, nil, RscDfnSpec{Name: "r2"})
	require.Len(t, rc.Entries, 1)
	assert.Equal(t, apicallrc.FailAccDenied, apicallrc.Low(rc.Entries[0].ReturnCode))
}

func TestSetProtectionACLFailures(t *testing.T) {
	tests := []struct {
		name   string
		accCtx *security.AccessContext
		spec   ACLSpec
		want   uint64
	}{
		{
			name: "unknown path",
			spec: ACLSpec{Path: "/nodes/ghost", Role: "PUBLIC", Access: "VIEW"},
			want: apicallrc.ObjProtModFailNotFound,
		},
		{
			name: "malformed path",
			spec: ACLSpec{Path: "/volumes", Role: "PUBLIC", Access: "VIEW"},
			want: apicallrc.ObjProtModFailNotFound,
		},
		{
			name: "invalid role",
			spec: ACLSpec{Path: NodesPath, Role: "9lives", Access: "VIEW"},
			want: apicallrc.ObjProtModFailInvalidArg,
		},
		{
			name: "invalid access type",
			spec: ACLSpec{Path: NodesPath, Role: "PUBLIC", Access: "ROOT"},
			want: apicallrc.ObjProtModFailInvalidArg,
		},
		{
			name:   "caller lacks control",
			accCtx: security.NewPublicContext(),
			spec:   ACLSpec{Path: NodesPath, Role: "PUBLIC", Access: "CONTROL"},
			want:   apicallrc.ObjProtModFailAccDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			accCtx := tt.accCtx
			if accCtx == nil {
				accCtx = f.ctx
			}
			before := f.store.Len(storage.BucketObjProt)

			rc := f.c.SetProtectionACL(accCtx, nil, tt.spec)
			require.Len(t, rc.Entries, 1)
			assert.Equal(t, tt.want, rc.Entries[0].ReturnCode)
			assert.Equal(t, tt.spec.Path, rc.Entries[0].ObjRefs["ObjProt"])
			assert.NotContains(t, f.c.State().NodesProtection().ACL(), security.PublicRole)
			assert.Equal(t, before, f.store.Len(storage.BucketObjProt))
		})
	}
}

func TestSetProtectionFailedCommitRestoresACL(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("alpha", "10.0.0.1")))
	prot := f.c.State().Node(nodeName(t, "alpha")).ObjectProtection()
	before := prot.Data()

	f.store.set(errors.New("disk full"), nil)
	rc := f.c.SetProtectionACL(f.ctx, nil, ACLSpec{Path: "/nodes/ALPHA", Role: "PUBLIC", Access: "USE"})
	require.Len(t, rc.Entries, 1)
	assert.Equal(t, apicallrc.MaskError|apicallrc.MaskMod|apicallrc.MaskObjProt|apicallrc.FailPersistence, rc.Entries[0].ReturnCode)
	assert.Equal(t, before, prot.Data())

	rc = f.c.SetProtectionOwner(f.ctx, nil, "/nodes/ALPHA", "OPERATOR")
	require.Len(t, rc.Entries, 1)
	assert.True(t, rc.Entries[0].IsError())
	assert.Equal(t, security.SystemRole, prot.Owner())
	f.store.set(nil, nil)
}

func TestSetProtectionOwner(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	public := security.NewPublicContext()

	path := rscPath(nodeName(t, "alpha"), rscName(t, "r1"))
	f.mustSucceed(t, f.c.SetProtectionOwner(f.ctx, nil, path, "PUBLIC"))

	r := f.c.State().Node(nodeName(t, "alpha")).Resource(rscName(t, "r1"))
	require.NotNil(t, r)
	assert.Equal(t, security.PublicRole, r.ObjectProtection().Owner())
	assert.Equal(t, security.AccessControl, r.ObjectProtection().QueryAccess(public))

	// The new owner controls the object and may hand it back
	f.mustSucceed(t, f.c.SetProtectionOwner(public, nil, path, "SYSTEM"))
	rc := f.c.SetProtectionOwner(public, nil, path, "PUBLIC")
	require.Len(t, rc.Entries, 1)
	assert.Equal(t, apicallrc.ObjProtModFailAccDenied, rc.Entries[0].ReturnCode)
}

func TestProtectionLocks(t *testing.T) {
	tests := []struct {
		path string
		want LockSpec
	}{
		{NodesPath, LockSpec{Nodes: ModeWrite}},
		{"/nodes/ALPHA", LockSpec{Nodes: ModeWrite}},
		{RscDfnsPath, LockSpec{RscDfns: ModeWrite}},
		{"/rscdfns/R1", LockSpec{RscDfns: ModeWrite}},
		{StorPoolDfnsPath, LockSpec{StorPoolDfns: ModeWrite}},
		{"/storpooldfns/DFLTSTORPOOL", LockSpec{StorPoolDfns: ModeWrite}},
		{"/resources/ALPHA/R1", LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite}},
		{"/volumes/X", LockSpec{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, protectionLocks(tt.path))
		})
	}
}
