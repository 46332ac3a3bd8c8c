package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/device"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// Rig is a probed device running on fake hardware
type Rig struct {
	Device   *device.Device
	Hardware *FakeHardware
	Platform *FakePlatform
}

// NewRig probes a device on fake hardware with interrupts delivered
// synchronously. The device is removed when the test ends.
func NewRig(t testing.TB, opts device.Options) *Rig {
	t.Helper()

	mem := NewFakePlatform()
	hw := NewFakeHardware(mem)
	if opts.Name == "" {
		opts.Name = "doom-test"
	}
	dev, err := device.Probe(hw, mem, opts)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	hw.OnInterrupt(func() { dev.HandleInterrupt() })
	t.Cleanup(func() {
		dev.Remove()
		hw.Settle()
	})
	return &Rig{Device: dev, Hardware: hw, Platform: mem}
}

// Session opens a session that is closed when the test ends
func (r *Rig) Session(t testing.TB) *device.Session {
	t.Helper()
	s, err := r.Device.Open()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Surface creates a surface and binds it as destination
func Surface(t testing.TB, s *device.Session, width, height uint32) *dma.Buffer {
	t.Helper()
	buf, err := s.CreateSurface(width, height)
	if err != nil {
		t.Fatalf("create surface %dx%d: %v", width, height, err)
	}
	t.Cleanup(buf.Release)
	if err := s.Bind(command.SlotDst, buf); err != nil {
		t.Fatalf("bind surface: %v", err)
	}
	return buf
}

// Fills returns n valid fill commands for a surface of the given size
func Fills(n int, width, height uint16) []command.Raw {
	cmds := make([]command.Raw, n)
	for i := range cmds {
		cmds[i] = command.FillRect{
			X: uint16(i) % width, Y: uint16(i/int(width)) % height,
			Width: 1, Height: 1,
			Color: uint8(i),
		}
	}
	return cmds
}

// SkipIfNoDevice skips the test unless an accelerator is present and
// returns its PCI address
func SkipIfNoDevice(t *testing.T) string {
	t.Helper()

	devs, err := driver.ScanPCI(driver.PCIDevicesRoot)
	if err != nil || len(devs) == 0 {
		t.Skip("No accelerator available")
	}
	return devs[0].Address
}

// TempFile creates a temporary file with given content
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, content, 0644)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

// MakeRandomBytes creates deterministic pseudo-random test data
func MakeRandomBytes(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*17 + 11) % 256)
	}
	return data
}
