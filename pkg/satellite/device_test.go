package satellite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localResource(flags types.Flags, vols ...types.VolData) LocalResource {
	return LocalResource{
		Resource: types.RscData{NodeName: "alpha", RscName: "R1", Flags: flags},
		Volumes:  vols,
	}
}

func TestDirDeviceManager(t *testing.T) {
	base := filepath.Join(t.TempDir(), "devices")
	d, err := NewDirDeviceManager(base)
	require.NoError(t, err)
	ctx := context.Background()

	rsc := localResource(0, types.VolData{VolNr: 0}, types.VolData{VolNr: 1})
	require.NoError(t, d.Deploy(ctx, rsc))
	assert.DirExists(t, d.Path("r1", 0))
	assert.DirExists(t, d.Path("r1", 1))
	assert.Equal(t, filepath.Join(base, "r1", "vol1"), d.Path("R1", 1))

	rsc.Volumes[1].Flags = types.FlagDelete
	require.NoError(t, d.Deploy(ctx, rsc))
	assert.DirExists(t, d.Path("r1", 0))
	assert.NoDirExists(t, d.Path("r1", 1))

	require.NoError(t, d.Remove(ctx, rsc))
	assert.NoDirExists(t, filepath.Join(base, "r1"))
	assert.NoError(t, d.Remove(ctx, rsc), "removing twice is fine")
}

func TestDirDeviceManagerDiskless(t *testing.T) {
	d, err := NewDirDeviceManager(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Deploy(ctx, localResource(0, types.VolData{VolNr: 0})))
	require.NoError(t, d.Deploy(ctx, localResource(types.FlagDiskless, types.VolData{VolNr: 0})))
	assert.NoDirExists(t, d.Path("r1", 0))
}

func TestDirDeviceManagerCancelled(t *testing.T) {
	d, err := NewDirDeviceManager(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = d.Deploy(ctx, localResource(0, types.VolData{VolNr: 0}))
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(d.Path("r1", 0))
	assert.True(t, os.IsNotExist(statErr))
}
