package apicallrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeComposition(t *testing.T) {
	tests := []struct {
		name      string
		code      uint64
		severity  uint64
		operation uint64
		object    uint64
		low       uint64
	}{
		{"node created", NodeCreated, MaskInfo, MaskCrt, MaskNode, Created},
		{"node exists", NodeCrtFailExistsNode, MaskError, MaskCrt, MaskNode, FailExists},
		{"rsc node id", RscCrtFailExistsNodeID, MaskError, MaskCrt, MaskRsc, FailExistsNodeID},
		{"storpool dfn in use", StorPoolDfnDelFailInUse, MaskError, MaskDel, MaskStorPoolDfn, FailInUse},
		{"rsc not connected", RscCrtWarnNotConnected, MaskWarn, MaskCrt, MaskRsc, WarnNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.severity, Severity(tt.code))
			assert.Equal(t, tt.operation, Operation(tt.code))
			assert.Equal(t, tt.object, Object(tt.code))
			assert.Equal(t, tt.low, Low(tt.code))
		})
	}
}

func TestApiCallRc(t *testing.T) {
	rc := New()
	rc.AddEntry(NodeCreated, "node created")
	assert.False(t, rc.HasErrors())

	warn := rc.AddEntry(NodeCrtWarnNotConnected, "satellite not connected")
	assert.True(t, warn.IsWarning())
	assert.False(t, warn.IsError())
	assert.False(t, rc.HasErrors())

	other := New()
	other.AddEntry(NodeCrtFailExistsNode, "exists")
	rc.Merge(other)

	assert.True(t, rc.HasErrors())
	assert.True(t, rc.Has(NodeCrtFailExistsNode))
	assert.Equal(t, []uint64{NodeCreated, NodeCrtWarnNotConnected, NodeCrtFailExistsNode}, rc.Codes())
	assert.Contains(t, rc.Entries[2].String(), "ERROR")
}
