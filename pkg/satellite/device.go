package satellite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

const (
	// DefaultDevicePath is the base directory of the directory device manager
	DefaultDevicePath = "/var/lib/burrow/devices"
)

// DeviceManager applies the local resources to the node's storage
type DeviceManager interface {
	// Deploy brings the devices of rsc in line with it. Volumes carrying
	// the DELETE flag are removed.
	Deploy(ctx context.Context, rsc LocalResource) error

	// Remove removes every device of rsc
	Remove(ctx context.Context, rsc LocalResource) error
}

// NoopDeviceManager accepts every change without touching the node
type NoopDeviceManager struct{}

func (NoopDeviceManager) Deploy(context.Context, LocalResource) error { return nil }
func (NoopDeviceManager) Remove(context.Context, LocalResource) error { return nil }

// DirDeviceManager backs every volume with a directory below basePath
type DirDeviceManager struct {
	basePath string
}

// NewDirDeviceManager creates a directory device manager
func NewDirDeviceManager(basePath string) (*DirDeviceManager, error) {
	if basePath == "" {
		basePath = DefaultDevicePath
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create devices directory: %w", err)
	}

	return &DirDeviceManager{
		basePath: basePath,
	}, nil
}

// Deploy creates the directories of the resource's volumes and removes
// those of volumes marked for deletion. Diskless resources have none.
func (d *DirDeviceManager) Deploy(ctx context.Context, rsc LocalResource) error {
	if rsc.Diskless() {
		return d.Remove(ctx, rsc)
	}
	for _, v := range rsc.Volumes {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := d.Path(rsc.Resource.RscName, v.VolNr)
		if v.Flags.IsSet(types.FlagDelete) {
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to remove volume directory: %w", err)
			}
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create volume directory: %w", err)
		}
	}
	return nil
}

// Remove removes the resource directory and all volumes in it
func (d *DirDeviceManager) Remove(_ context.Context, rsc LocalResource) error {
	path := d.resourcePath(rsc.Resource.RscName)

	// Already removed
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove resource directory: %w", err)
	}
	return nil
}

// Path returns the directory backing volume volNr of resource rsc
func (d *DirDeviceManager) Path(rsc string, volNr int) string {
	return filepath.Join(d.resourcePath(rsc), fmt.Sprintf("vol%d", volNr))
}

func (d *DirDeviceManager) resourcePath(rsc string) string {
	return filepath.Join(d.basePath, strings.ToLower(rsc))
}
