package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// FakePlatform implements dma.Platform over ordinary heap memory with
// linearly assigned bus addresses
type FakePlatform struct {
	mu          sync.Mutex
	next        uint64
	pages       map[uint64][]byte
	blocks      int
	allocs      int
	outstanding int64
	failAfter   int
}

// NewFakePlatform creates an empty fake address space
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		next:      dma.PageSize,
		pages:     make(map[uint64][]byte),
		failAfter: -1,
	}
}

// FailAfter lets n more allocations succeed and makes the next one fail
func (p *FakePlatform) FailAfter(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAfter = n
}

// Alloc returns zeroed page-aligned memory
func (p *FakePlatform) Alloc(size int) (dma.Mem, error) {
	if size <= 0 {
		return dma.Mem{}, driver.Errorf(driver.StatusInvalidArgument, "fake alloc of %d bytes", size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failAfter == 0 {
		p.failAfter = -1
		return dma.Mem{}, driver.NewError(driver.StatusResourceExhausted, "fake allocation failure")
	}
	if p.failAfter > 0 {
		p.failAfter--
	}

	aligned := (size + dma.PageSize - 1) &^ (dma.PageSize - 1)
	buf := make([]byte, aligned)
	addr := p.next
	p.next += uint64(aligned)
	for off := 0; off < aligned; off += dma.PageSize {
		p.pages[addr+uint64(off)] = buf[off : off+dma.PageSize]
	}
	p.blocks++
	p.allocs++
	p.outstanding += int64(aligned)
	return dma.Mem{Buf: buf, Addr: addr}, nil
}

// Free releases memory returned by Alloc
func (p *FakePlatform) Free(m dma.Mem) {
	if len(m.Buf) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for off := 0; off < len(m.Buf); off += dma.PageSize {
		delete(p.pages, m.Addr+uint64(off))
	}
	p.blocks--
	p.outstanding -= int64(len(m.Buf))
}

// Resolve returns n bytes of memory at a bus address, or nil when the range
// is not mapped or crosses a page boundary
func (p *FakePlatform) Resolve(addr uint64, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := addr &^ uint64(dma.PageSize-1)
	page, ok := p.pages[base]
	off := int(addr - base)
	if !ok || off+n > len(page) {
		return nil
	}
	return page[off : off+n]
}

// Outstanding returns the number of bytes still allocated
func (p *FakePlatform) Outstanding() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Blocks returns the number of live allocations
func (p *FakePlatform) Blocks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocks
}

// Allocs returns the number of successful allocations so far
func (p *FakePlatform) Allocs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocs
}

// FakeHardware implements driver.Registers for a simulated accelerator. A
// write of the command write index makes it fetch the published words
// through the ring's page table in the background.
type FakeHardware struct {
	mu        sync.Mutex
	regs      map[uint32]uint32
	mem       *FakePlatform
	irq       func()
	irqCh     chan struct{}
	held      bool
	pending   bool
	fault     uint32
	executed  []command.Word
	doorbells int
	microcode []uint32
	wg        sync.WaitGroup
}

// NewFakeHardware creates a device whose DMA goes through mem
func NewFakeHardware(mem *FakePlatform) *FakeHardware {
	return &FakeHardware{
		regs:  make(map[uint32]uint32),
		mem:   mem,
		irqCh: make(chan struct{}, 1),
	}
}

// OnInterrupt installs the interrupt callback
func (h *FakeHardware) OnInterrupt(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.irq = fn
}

// Read32 reads a register
func (h *FakeHardware) Read32(offset uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regs[offset]
}

// Write32 writes a register
func (h *FakeHardware) Write32(offset uint32, value uint32) {
	h.mu.Lock()
	run := false
	switch offset {
	case driver.RegIntr:
		h.regs[offset] &^= value
	case driver.RegFECodeWindow:
		h.microcode = append(h.microcode, value)
	case driver.RegCmdWriteIdx:
		h.regs[offset] = value
		h.doorbells++
		if h.held {
			h.pending = true
		} else {
			run = true
		}
	default:
		h.regs[offset] = value
	}
	h.mu.Unlock()

	if run {
		h.wg.Add(1)
		go h.process()
	}
}

// Hold stops command processing until Resume
func (h *FakeHardware) Hold() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.held = true
}

// Resume restarts command processing
func (h *FakeHardware) Resume() {
	h.mu.Lock()
	h.held = false
	run := h.pending
	h.pending = false
	h.mu.Unlock()

	if run {
		h.wg.Add(1)
		go h.process()
	}
}

// InjectFault raises interrupt bits right away
func (h *FakeHardware) InjectFault(bits uint32) {
	h.mu.Lock()
	fire := h.raise(bits)
	h.mu.Unlock()
	h.deliver(fire)
}

// FailNextBatch makes the next batch raise bits instead of executing
func (h *FakeHardware) FailNextBatch(bits uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fault = bits
}

// Settle waits for background processing to finish
func (h *FakeHardware) Settle() {
	h.wg.Wait()
}

// Executed returns every word the device has executed
func (h *FakeHardware) Executed() []command.Word {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]command.Word(nil), h.executed...)
}

// Doorbells returns the number of write index updates
func (h *FakeHardware) Doorbells() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doorbells
}

// Microcode returns the words loaded through the microcode window
func (h *FakeHardware) Microcode() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint32(nil), h.microcode...)
}

// Interrupts returns an interrupt source signalled on every delivered
// interrupt
func (h *FakeHardware) Interrupts() driver.InterruptSource {
	return &fakeIRQ{ch: h.irqCh, done: make(chan struct{})}
}

func (h *FakeHardware) process() {
	defer h.wg.Done()

	h.mu.Lock()
	fire := h.raise(h.drain())
	h.mu.Unlock()
	h.deliver(fire)
}

// drain executes the published words and returns the interrupts raised
func (h *FakeHardware) drain() uint32 {
	size := h.regs[driver.RegCmdSize]
	if h.regs[driver.RegEnable] == 0 || size == 0 {
		return 0
	}
	if h.fault != 0 {
		bits := h.fault
		h.fault = 0
		return bits
	}

	var raised uint32
	for read := h.regs[driver.RegCmdReadIdx]; read != h.regs[driver.RegCmdWriteIdx]; read = (read + 1) % size {
		w, ok := h.fetch(read)
		if !ok {
			return raised | driver.IntrPageFault(0)
		}
		h.executed = append(h.executed, w)
		h.regs[driver.RegCmdReadIdx] = (read + 1) % size
		if w.Flags()&command.FlagPingSync != 0 {
			raised |= driver.IntrPongSync
		}
	}
	return raised
}

// fetch reads the command word at a ring index through the page table
func (h *FakeHardware) fetch(idx uint32) (command.Word, bool) {
	table := driver.TableAddr(h.regs[driver.RegCmdPT])
	off := uint64(idx) * command.WordSize
	page := off / dma.PageSize

	entry := h.mem.Resolve(table+page*dma.PteSize, dma.PteSize)
	if entry == nil {
		return command.Word{}, false
	}
	addr, valid, _ := driver.DecodePTE(binary.LittleEndian.Uint32(entry))
	if !valid {
		return command.Word{}, false
	}
	data := h.mem.Resolve(addr+off%dma.PageSize, command.WordSize)
	if data == nil {
		return command.Word{}, false
	}
	return command.WordFromBytes(data), true
}

// raise latches interrupt bits and reports whether any is enabled
func (h *FakeHardware) raise(bits uint32) func() {
	if bits == 0 {
		return nil
	}
	h.regs[driver.RegIntr] |= bits
	if bits&h.regs[driver.RegIntrEnable] == 0 {
		return nil
	}
	if h.irq != nil {
		return h.irq
	}
	return func() {}
}

func (h *FakeHardware) deliver(fn func()) {
	if fn == nil {
		return
	}
	select {
	case h.irqCh <- struct{}{}:
	default:
	}
	fn()
}

type fakeIRQ struct {
	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

func (f *fakeIRQ) Wait() (uint32, error) {
	select {
	case <-f.ch:
		return 1, nil
	case <-f.done:
		return 0, driver.NewError(driver.StatusDeviceClosed, "interrupt source closed")
	}
}

func (f *fakeIRQ) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}
