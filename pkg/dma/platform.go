// Package dma builds scatter-gather buffers the accelerator addresses through
// per-buffer page tables.
package dma

import (
	"sync"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"golang.org/x/sys/unix"
)

// PageSize is the device page size
const PageSize = driver.PageSize

// Mem is a block of DMA-reachable memory: a host view plus its bus address
type Mem struct {
	Buf  []byte
	Addr uint64
}

// Platform is the DMA address space the allocator draws from
type Platform interface {
	// Alloc returns zeroed, page-aligned memory of at least size bytes
	Alloc(size int) (Mem, error)
	Free(m Mem)
}

// HostPlatform hands out locked anonymous pages with bus addresses taken
// from a linear IOVA window of the configured width. Freed ranges are kept
// per size and reused before the window grows.
type HostPlatform struct {
	mu          sync.Mutex
	limit       uint64
	next        uint64
	spare       map[int][]uint64
	outstanding int64
}

// NewHostPlatform creates a platform whose addresses fit in addrBits
func NewHostPlatform(addrBits uint) *HostPlatform {
	if addrBits == 0 || addrBits > 64 {
		addrBits = driver.DmaAddressBits
	}
	limit := uint64(1)<<addrBits - 1
	if addrBits == 64 {
		limit = ^uint64(0)
	}
	return &HostPlatform{
		limit: limit,
		next:  PageSize, // bus address 0 is never handed out
		spare: make(map[int][]uint64),
	}
}

// Alloc maps and locks a page-aligned region and assigns it an IOVA
func (p *HostPlatform) Alloc(size int) (Mem, error) {
	if size <= 0 {
		return Mem{}, driver.Errorf(driver.StatusInvalidArgument, "dma alloc of %d bytes", size)
	}
	aligned := alignUp(size)

	data, err := unix.Mmap(-1, 0, aligned,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return Mem{}, driver.NewErrorWithCause(driver.StatusResourceExhausted, "mmap failed", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return Mem{}, driver.NewErrorWithCause(driver.StatusResourceExhausted, "mlock failed", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	addr, ok := p.reserve(aligned)
	if !ok {
		unix.Munmap(data)
		return Mem{}, driver.NewError(driver.StatusResourceExhausted, "dma address space exhausted")
	}
	p.outstanding += int64(aligned)
	return Mem{Buf: data, Addr: addr}, nil
}

// reserve takes an IOVA range of size bytes, preferring a freed one
func (p *HostPlatform) reserve(size int) (uint64, bool) {
	if free := p.spare[size]; len(free) > 0 {
		addr := free[len(free)-1]
		p.spare[size] = free[:len(free)-1]
		return addr, true
	}
	addr := p.next
	if addr+uint64(size)-1 > p.limit {
		return 0, false
	}
	p.next += uint64(size)
	return addr, true
}

// unreserve returns an IOVA range. The top of the window shrinks back;
// other ranges wait for an allocation of the same size.
func (p *HostPlatform) unreserve(addr uint64, size int) {
	if addr+uint64(size) == p.next {
		p.next = addr
		return
	}
	p.spare[size] = append(p.spare[size], addr)
}

// Free unmaps memory returned by Alloc
func (p *HostPlatform) Free(m Mem) {
	if len(m.Buf) == 0 {
		return
	}
	if err := unix.Munmap(m.Buf); err != nil {
		driver.Logger().Warn("dma: munmap failed", "addr", m.Addr, "err", err)
		return
	}
	p.mu.Lock()
	p.unreserve(m.Addr, len(m.Buf))
	p.outstanding -= int64(len(m.Buf))
	p.mu.Unlock()
}

// Outstanding returns the number of bytes currently allocated
func (p *HostPlatform) Outstanding() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func alignUp(size int) int {
	return (size + PageSize - 1) &^ (PageSize - 1)
}
