package driver

// PCI identification of the accelerator
const (
	VendorID   = 0x0666
	DeviceID   = 0x1994
	DriverName = "harddoom2"
)

// Memory layout constants
const (
	PageSize         = 4096
	PageShift        = 12
	RegisterSpace    = 0x2000
	DmaAddressBits   = 40
	MaxDevices       = 256
	DefaultRingSize  = 4096
	CommandWordBytes = 32
)

// Register offsets within BAR0
const (
	RegEnable       = 0x0000 // per-unit enable bitmask (RW)
	RegReset        = 0x0004 // unit reset strobe (W)
	RegIntr         = 0x0008 // interrupt status, write 1 to clear (RW)
	RegIntrEnable   = 0x000c // interrupt enable mask (RW)
	RegCmdPT        = 0x0040 // command ring page table handle (W)
	RegCmdSize      = 0x0044 // command ring capacity in words (W)
	RegCmdReadIdx   = 0x0048 // hardware fetch index (RW)
	RegCmdWriteIdx  = 0x004c // software write index, the doorbell (RW)
	RegFECodeAddr   = 0x0100 // microcode load address (W)
	RegFECodeWindow = 0x0104 // microcode data window, auto-increment (W)
)

// Enable bits
const (
	EnableFetchCmd = 1 << 0
	EnableFE       = 1 << 1
	EnableXY       = 1 << 2
	EnableTex      = 1 << 3
	EnableFlat     = 1 << 4
	EnableFuzz     = 1 << 5
	EnableOG       = 1 << 6
	EnableSW       = 1 << 7
	EnableAll      = 0xff
)

// ResetAll resets every functional unit and flushes internal FIFOs
const ResetAll = 0x0fffffff

// Interrupt bits
const (
	IntrFence          = 1 << 0
	IntrPongSync       = 1 << 1
	IntrPongAsync      = 1 << 2
	IntrFEError        = 1 << 4
	IntrCmdOverflow    = 1 << 5
	IntrSurfDstOverflw = 1 << 6
	IntrSurfSrcOverflw = 1 << 7
	IntrPageFaultBase  = 1 << 8 // one bit per TLB, 9 TLBs
	IntrMask           = 0x0001fff7
)

// IntrPageFault returns the page fault bit of the given TLB
func IntrPageFault(tlb uint) uint32 {
	return IntrPageFaultBase << tlb
}

// IntrErrorMask covers every interrupt that disables the device
const IntrErrorMask = IntrMask &^ (IntrFence | IntrPongSync | IntrPongAsync)

// Page table entry encoding
const (
	PteValid    = 1 << 0
	PteWritable = 1 << 1
	PteAddrMask = 0xfffffff0
	PteShift    = 4
)

// EncodePTE builds a page table entry for a page at the given bus address
func EncodePTE(addr uint64, writable bool) uint32 {
	pte := uint32(addr>>PageShift)<<PteShift | PteValid
	if writable {
		pte |= PteWritable
	}
	return pte
}

// DecodePTE returns the bus address and flags of a page table entry
func DecodePTE(pte uint32) (addr uint64, valid, writable bool) {
	addr = uint64(pte&PteAddrMask) >> PteShift << PageShift
	return addr, pte&PteValid != 0, pte&PteWritable != 0
}

// TableHandle encodes a page table bus address the way the device expects it
func TableHandle(addr uint64) uint32 {
	return uint32(addr >> 8)
}

// TableAddr decodes a page table handle back into a bus address
func TableAddr(handle uint32) uint64 {
	return uint64(handle) << 8
}

// IOCTL magic of the control surface
const DoomIoctlMagic = 'D'

// IOCTL command numbers
const (
	IoctlCreateSurface = 0
	IoctlCreateBuffer  = 1
	IoctlSetup         = 2
)

// IOCTL direction flags for _IOC macro
const (
	IocNone  = 0
	IocWrite = 1
	IocRead  = 2
)

// IOCTL size/direction encoding constants
const (
	IocNrBits   = 8
	IocTypeBits = 8
	IocSizeBits = 14
	IocDirBits  = 2

	IocNrShift   = 0
	IocTypeShift = IocNrShift + IocNrBits
	IocSizeShift = IocTypeShift + IocTypeBits
	IocDirShift  = IocSizeShift + IocSizeBits
)

// Ioc creates an IOCTL command number
func Ioc(dir, iocType, nr, size int) uint32 {
	return uint32((dir << IocDirShift) |
		(iocType << IocTypeShift) |
		(nr << IocNrShift) |
		(size << IocSizeShift))
}

// IoW creates a write IOCTL (data flows from user to kernel)
func IoW(iocType, nr, size int) uint32 {
	return Ioc(IocWrite, iocType, nr, size)
}

// IoR creates a read IOCTL (data flows from kernel to user)
func IoR(iocType, nr, size int) uint32 {
	return Ioc(IocRead, iocType, nr, size)
}

// IoWR creates a read-write IOCTL
func IoWR(iocType, nr, size int) uint32 {
	return Ioc(IocRead|IocWrite, iocType, nr, size)
}
