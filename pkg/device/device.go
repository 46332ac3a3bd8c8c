package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// Options configure device bring-up
type Options struct {
	Name      string
	RingSize  uint32
	Microcode []uint32
}

// Device is one probed accelerator. The device lock serializes resource
// binding, compilation, ring publication and the wait for completion.
type Device struct {
	id    atomic.Int32
	name  string
	regs  driver.Registers
	alloc *dma.Allocator
	ring  *ring

	mu      sync.Mutex
	removed bool
	batches uint64

	enabled atomic.Bool
	fences  completions
	log     *slog.Logger
}

// Probe brings up a device: command ring, microcode, reset, interrupt
// masks, ring registers and finally the enable bits. On failure everything
// acquired so far is released.
func Probe(regs driver.Registers, platform dma.Platform, opts Options) (*Device, error) {
	if regs == nil || platform == nil {
		return nil, driver.NewError(driver.StatusInvalidArgument, "probe: registers and platform required")
	}
	size := opts.RingSize
	if size == 0 {
		size = driver.DefaultRingSize
	}

	var rb dma.Rollback
	defer rb.Run()

	d := &Device{
		name:  opts.Name,
		regs:  regs,
		alloc: dma.NewAllocator(platform),
	}
	d.id.Store(-1)
	d.log = driver.Logger().With("device", d.name)

	r, err := newRing(d.alloc, size)
	if err != nil {
		return nil, fmt.Errorf("probe %s: command ring: %w", d.name, err)
	}
	rb.Add(r.release)
	d.ring = r

	if len(opts.Microcode) > 0 {
		regs.Write32(driver.RegFECodeAddr, 0)
		for _, w := range opts.Microcode {
			regs.Write32(driver.RegFECodeWindow, w)
		}
	}

	regs.Write32(driver.RegReset, driver.ResetAll)
	regs.Write32(driver.RegIntr, driver.IntrMask)
	regs.Write32(driver.RegIntrEnable, driver.IntrMask&^(driver.IntrFence|driver.IntrPongAsync))
	rb.Add(func() { regs.Write32(driver.RegIntrEnable, 0) })

	regs.Write32(driver.RegCmdPT, r.buf.Handle())
	regs.Write32(driver.RegCmdSize, r.size)
	regs.Write32(driver.RegCmdReadIdx, 0)
	regs.Write32(driver.RegCmdWriteIdx, 0)

	regs.Write32(driver.RegEnable, driver.EnableAll)
	d.enabled.Store(true)

	rb.Commit()
	d.log.Info("device probed", "ring_words", r.size, "microcode_words", len(opts.Microcode))
	return d, nil
}

// Remove disables the device, fails every waiter and releases the ring.
// Waiters are failed before the device lock is taken so that a batch stuck
// in the hardware cannot block removal.
func (d *Device) Remove() {
	d.disable(driver.NewError(driver.StatusDeviceClosed, "device removed"))

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return
	}
	d.removed = true
	d.ring.release()
	d.log.Info("device removed", "batches", d.batches)
}

// disable stops the hardware and resolves every pending fence with err
func (d *Device) disable(err error) {
	d.enabled.Store(false)
	d.regs.Write32(driver.RegEnable, 0)
	d.regs.Write32(driver.RegIntrEnable, 0)
	d.fences.fail(err)
}

// HandleInterrupt services one interrupt. It acknowledges the pending bits,
// resolves the oldest fence on a sync pong, and on any enabled error bit
// disables the device. It never takes the device lock. It reports whether
// any bit was pending.
func (d *Device) HandleInterrupt() bool {
	intr := d.regs.Read32(driver.RegIntr)
	if intr == 0 {
		return false
	}
	d.regs.Write32(driver.RegIntr, intr)

	if intr&driver.IntrPongSync != 0 {
		d.fences.complete()
	}
	if errs := intr & d.regs.Read32(driver.RegIntrEnable) & driver.IntrErrorMask; errs != 0 {
		d.log.Error("device fault", "intr", fmt.Sprintf("0x%05x", errs))
		d.disable(driver.Errorf(driver.StatusDeviceFault, "device %s: fault 0x%05x", d.name, errs))
	}
	return true
}

// ServeInterrupts dispatches interrupts from src until ctx is done or src
// fails. src is closed when ctx is cancelled.
func (d *Device) ServeInterrupts(ctx context.Context, src driver.InterruptSource) error {
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()

	for {
		if _, err := src.Wait(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("device %s: interrupt source: %w", d.name, err)
		}
		d.HandleInterrupt()
	}
}

// submit compiles cmds into one batch behind a SETUP word, publishes it and
// waits for it to complete. The batch is clamped to the ring capacity and to
// the free space; an invalid command after the first truncates the batch.
// It returns the number of raw command bytes accepted.
func (d *Device) submit(rs *command.ResourceSet, cmds []command.Raw) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return 0, driver.NewError(driver.StatusDeviceClosed, "submit: device removed")
	}
	if !d.enabled.Load() {
		return 0, driver.Errorf(driver.StatusDeviceFault, "submit: device %s disabled", d.name)
	}
	if len(cmds) == 0 {
		return 0, nil
	}

	limit := min(len(cmds), int(d.ring.size)-2)
	free := int(d.ring.free(d.regs.Read32(driver.RegCmdReadIdx)))
	if free < 2 {
		return 0, ErrRingFull
	}
	limit = min(limit, free-1)

	setup, err := command.SetupWord(rs)
	if err != nil {
		return 0, err
	}
	words := make([]command.Word, 1, limit+1)
	words[0] = setup
	for i := 0; i < limit; i++ {
		w, err := command.Compile(rs, cmds[i])
		if err != nil {
			if i == 0 {
				return 0, err
			}
			d.log.Debug("batch truncated", "accepted", i, "err", err)
			break
		}
		words = append(words, w)
	}
	last := len(words) - 1
	words[last] = words[last].WithFlags(command.FlagPingSync)

	d.batches++
	f, err := d.fences.arm(d.batches)
	if err != nil {
		return 0, err
	}
	write, err := d.ring.push(words)
	if err != nil {
		d.disable(driver.NewErrorWithCause(driver.StatusTransferFault, "ring write", err))
		return 0, err
	}
	d.regs.Write32(driver.RegCmdWriteIdx, write)

	if err := f.wait(); err != nil {
		return 0, err
	}
	d.log.Debug("batch done", "batch", f.batch, "commands", last)
	return last * command.RawSize, nil
}

// Open starts a session on the device
func (d *Device) Open() (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return nil, driver.NewError(driver.StatusDeviceClosed, "open: device removed")
	}
	return &Session{dev: d, resources: command.NewResourceSet(d.alloc)}, nil
}

// ID returns the registry id, or -1 when unregistered
func (d *Device) ID() int {
	return int(d.id.Load())
}

// Name returns the configured device name
func (d *Device) Name() string {
	return d.name
}

// Allocator returns the DMA allocator of the device
func (d *Device) Allocator() *dma.Allocator {
	return d.alloc
}

// Enabled reports whether the device accepts work
func (d *Device) Enabled() bool {
	return d.enabled.Load()
}

// RingSize returns the number of command words in the ring
func (d *Device) RingSize() uint32 {
	return d.ring.size
}

// Batches returns the number of batches submitted
func (d *Device) Batches() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// InFlight returns the number of batches waiting for completion
func (d *Device) InFlight() int {
	return d.fences.inflight()
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (ring %d words, enabled %t)", d.name, d.ring.size, d.enabled.Load())
}
