package driver

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Registers is the device register window the core drives
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// MMIO is a register window backed by a mapped PCI BAR
type MMIO struct {
	mem  []byte
	path string
}

// PCIDevicesRoot is where sysfs lists PCI functions
const PCIDevicesRoot = "/sys/bus/pci/devices"

// ResourcePath returns the sysfs BAR0 resource file of a PCI device
func ResourcePath(pciAddr string) string {
	return filepath.Join(PCIDevicesRoot, pciAddr, "resource0")
}

// OpenMMIO maps the first size bytes of a PCI resource file
func OpenMMIO(path string, size int) (*MMIO, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, wrapSyscallError(err, "opening registers "+path)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, wrapSyscallError(err, "mapping registers "+path)
	}
	return &MMIO{mem: mem, path: path}, nil
}

func (m *MMIO) reg(offset uint32) *uint32 {
	if int(offset)+4 > len(m.mem) || offset%4 != 0 {
		panic("driver: register offset out of range")
	}
	return (*uint32)(unsafe.Pointer(&m.mem[offset]))
}

// Read32 reads a 32-bit register
func (m *MMIO) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(m.reg(offset))
}

// Write32 writes a 32-bit register
func (m *MMIO) Write32(offset uint32, value uint32) {
	atomic.StoreUint32(m.reg(offset), value)
}

// Path returns the mapped resource path
func (m *MMIO) Path() string {
	return m.path
}

// Close unmaps the register window
func (m *MMIO) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	if err != nil {
		return NewErrorWithCause(StatusDriverOperationFailed, "unmapping registers", err)
	}
	return nil
}

// PCIDevice describes a matching device found in sysfs
type PCIDevice struct {
	Address string
	Vendor  uint32
	Device  uint32
}

// ScanPCI lists PCI devices under root matching the accelerator ids
func ScanPCI(root string) ([]PCIDevice, error) {
	if root == "" {
		root = PCIDevicesRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, NewErrorWithCause(StatusNotFound, "reading "+root, err)
	}

	var devices []PCIDevice
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		vendor, err := readHexFile(filepath.Join(dir, "vendor"))
		if err != nil {
			continue
		}
		device, err := readHexFile(filepath.Join(dir, "device"))
		if err != nil {
			continue
		}
		if vendor == VendorID && device == DeviceID {
			devices = append(devices, PCIDevice{
				Address: entry.Name(),
				Vendor:  vendor,
				Device:  device,
			})
		}
	}
	return devices, nil
}

func readHexFile(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
