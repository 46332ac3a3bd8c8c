//go:build unit

package driver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakePCI(t *testing.T, root, addr, vendor, device string) {
	t.Helper()
	dir := filepath.Join(root, addr)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor"), []byte(vendor+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "device"), []byte(device+"\n"), 0644))
}

func TestScanPCI(t *testing.T) {
	root := t.TempDir()
	writeFakePCI(t, root, "0000:00:02.0", "0x8086", "0x1234")
	writeFakePCI(t, root, "0000:00:04.0", "0x0666", "0x1994")
	writeFakePCI(t, root, "0000:00:05.0", "0x0666", "0x1993")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0000:00:06.0"), 0755))

	devices, err := ScanPCI(root)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "0000:00:04.0", devices[0].Address)
	assert.Equal(t, uint32(VendorID), devices[0].Vendor)
	assert.Equal(t, uint32(DeviceID), devices[0].Device)
}

func TestScanPCIMissingRoot(t *testing.T) {
	_, err := ScanPCI(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResourcePath(t *testing.T) {
	assert.Equal(t, "/sys/bus/pci/devices/0000:00:04.0/resource0", ResourcePath("0000:00:04.0"))
}

func TestLoggerDefaultsToNop(t *testing.T) {
	require.NotNil(t, Logger())
	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}
