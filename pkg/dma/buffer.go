package dma

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// PteSize is the size of one device page table entry
const PteSize = 4

// PageCount returns the number of pages backing size bytes
func PageCount(size uint32) int {
	return int((uint64(size) + PageSize - 1) / PageSize)
}

// Allocator creates buffers for one device
type Allocator struct {
	platform Platform
	live     atomic.Int64
}

// NewAllocator creates an allocator drawing from the given platform
func NewAllocator(platform Platform) *Allocator {
	return &Allocator{platform: platform}
}

// Platform returns the underlying DMA platform
func (a *Allocator) Platform() Platform {
	return a.platform
}

// Live returns the number of buffers allocated and not yet freed
func (a *Allocator) Live() int64 {
	return a.live.Load()
}

// Buffer is a DMA buffer addressed by the device through its page table
type Buffer struct {
	alloc  *Allocator
	size   uint32
	width  uint32
	height uint32

	// table holds one PTE per entry of pages. The block is page rounded;
	// entries is the count in use and always equals len(pages).
	table   Mem
	entries int
	pages   []Mem

	refs  atomic.Int32
	mu    sync.Mutex
	freed bool
}

var errFreed = driver.NewError(driver.StatusInvalidArgument, "buffer already freed")

// Allocate creates a buffer of size bytes. Width and height are only set for
// surfaces. On failure nothing allocated so far is kept.
func (a *Allocator) Allocate(size, width, height uint32) (*Buffer, error) {
	n := PageCount(size)
	b := &Buffer{
		alloc:  a,
		size:   size,
		width:  width,
		height: height,
	}

	var rb Rollback
	defer rb.Run()

	if n > 0 {
		table, err := a.platform.Alloc(n * PteSize)
		if err != nil {
			driver.Logger().Debug("dma: page table allocation failed", "pages", n, "err", err)
			return nil, driver.NewErrorWithCause(driver.StatusResourceExhausted, "allocating page table", err)
		}
		b.table = table
		rb.Add(func() {
			a.platform.Free(b.table)
			b.table = Mem{}
		})
	}

	b.pages = make([]Mem, 0, n)
	rb.Add(func() { b.pages = nil })

	for i := 0; i < n; i++ {
		page, err := a.platform.Alloc(PageSize)
		if err != nil {
			driver.Logger().Debug("dma: page allocation failed", "page", i, "pages", n, "err", err)
			return nil, driver.NewErrorWithCause(driver.StatusResourceExhausted, "allocating buffer page", err)
		}
		b.pages = append(b.pages, page)
		b.entries++
		b.putEntry(i, driver.EncodePTE(page.Addr, true))
		rb.Add(b.dropLastPage)
	}

	rb.Commit()
	b.refs.Store(1)
	a.live.Add(1)
	return b, nil
}

func (b *Buffer) putEntry(i int, pte uint32) {
	binary.LittleEndian.PutUint32(b.table.Buf[i*PteSize:], pte)
}

func (b *Buffer) dropLastPage() {
	last := len(b.pages) - 1
	b.putEntry(last, 0)
	b.alloc.platform.Free(b.pages[last])
	b.pages = b.pages[:last]
	b.entries--
}

// Free releases every page, the page array and the page table. Calling it
// again after the buffer is drained does nothing.
func (b *Buffer) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.free()
}

func (b *Buffer) free() {
	if b.freed {
		return
	}
	b.freed = true
	for len(b.pages) > 0 {
		b.dropLastPage()
	}
	b.pages = nil
	if b.table.Buf != nil {
		b.alloc.platform.Free(b.table)
		b.table = Mem{}
	}
	b.alloc.live.Add(-1)
}

// Acquire takes an additional reference. A buffer that has already been
// freed cannot be revived.
func (b *Buffer) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		refs := b.refs.Load()
		if b.freed || refs <= 0 {
			return errFreed
		}
		if b.refs.CompareAndSwap(refs, refs+1) {
			return nil
		}
	}
}

// Freed reports whether the buffer's memory has been released
func (b *Buffer) Freed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freed
}

// Release drops a reference and frees the buffer when it was the last one
func (b *Buffer) Release() {
	switch refs := b.refs.Add(-1); {
	case refs == 0:
		b.Free()
	case refs < 0:
		panic("dma: buffer released too many times")
	}
}

// Close drops the creator's reference
func (b *Buffer) Close() error {
	b.Release()
	return nil
}

// Refs returns the current reference count
func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

// Allocator returns the allocator that owns the buffer
func (b *Buffer) Allocator() *Allocator {
	return b.alloc
}

// Size returns the buffer size in bytes
func (b *Buffer) Size() uint32 {
	return b.size
}

// Width returns the surface width, zero for plain buffers
func (b *Buffer) Width() uint32 {
	return b.width
}

// Height returns the surface height, zero for plain buffers
func (b *Buffer) Height() uint32 {
	return b.height
}

// IsSurface reports whether the buffer carries surface geometry
func (b *Buffer) IsSurface() bool {
	return b.width != 0 && b.height != 0
}

// PageCount returns the number of pages currently backing the buffer
func (b *Buffer) PageCount() int {
	return len(b.pages)
}

// TableEntries returns the number of entries the page table holds
func (b *Buffer) TableEntries() int {
	return b.entries
}

// Entry returns the i-th page table entry
func (b *Buffer) Entry(i int) uint32 {
	return binary.LittleEndian.Uint32(b.table.Buf[i*PteSize:])
}

// Page returns the host view of the i-th page
func (b *Buffer) Page(i int) []byte {
	return b.pages[i].Buf[:PageSize]
}

// TableAddr returns the bus address of the page table
func (b *Buffer) TableAddr() uint64 {
	return b.table.Addr
}

// Handle returns the page table handle the device uses to reach the buffer
func (b *Buffer) Handle() uint32 {
	return driver.TableHandle(b.table.Addr)
}

// Lock takes the buffer's byte-access lock
func (b *Buffer) Lock() {
	b.mu.Lock()
}

// Unlock releases the buffer's byte-access lock
func (b *Buffer) Unlock() {
	b.mu.Unlock()
}

// ReadAt copies bytes out of the buffer
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if off < 0 {
		return 0, driver.NewError(driver.StatusInvalidArgument, "negative offset")
	}
	if b.freed {
		return 0, errFreed
	}
	n := b.copyAt(p, off, false)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies bytes into the buffer. Writes are clamped at the buffer size.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if off < 0 {
		return 0, driver.NewError(driver.StatusInvalidArgument, "negative offset")
	}
	if b.freed {
		return 0, errFreed
	}
	n := b.copyAt(p, off, true)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (b *Buffer) copyAt(p []byte, off int64, write bool) int {
	size := int64(b.size)
	n := 0
	for n < len(p) && off < size {
		page := b.pages[off/PageSize].Buf
		in := int(off % PageSize)
		chunk := PageSize - in
		if rest := int(size - off); rest < chunk {
			chunk = rest
		}
		if rest := len(p) - n; rest < chunk {
			chunk = rest
		}
		if write {
			copy(page[in:in+chunk], p[n:n+chunk])
		} else {
			copy(p[n:n+chunk], page[in:in+chunk])
		}
		n += chunk
		off += int64(chunk)
	}
	return n
}

// CopyFrom fills the buffer from r starting at off until r is drained or the
// buffer is full. A source failing partway is a transfer fault; the count of
// bytes already stored is returned with it.
func (b *Buffer) CopyFrom(r io.Reader, off int64) (int64, error) {
	var total int64
	chunk := make([]byte, PageSize)
	for off < int64(b.size) {
		want := int64(len(chunk))
		if rest := int64(b.size) - off; rest < want {
			want = rest
		}
		n, err := r.Read(chunk[:want])
		if n > 0 {
			if _, werr := b.WriteAt(chunk[:n], off); werr != nil {
				return total, werr
			}
			total += int64(n)
			off += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			if total == 0 {
				return 0, driver.NewErrorWithCause(driver.StatusTransferFault, "copying into buffer", err)
			}
			return total, driver.NewErrorWithCause(driver.StatusTransferFault, "copy into buffer interrupted", err)
		}
	}
	return total, nil
}
