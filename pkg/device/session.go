package device

import (
	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// Surface and buffer limits
const (
	MaxSurfaceDim   = 2048
	SurfaceAlign    = 64
	MaxBufferSize   = MaxSurfaceDim * MaxSurfaceDim
	MaxSurfaceBytes = MaxSurfaceDim * MaxSurfaceDim
)

// Session is one client context on a device. It owns the resource set that
// every batch it submits is compiled against.
type Session struct {
	dev       *Device
	resources *command.ResourceSet
	closed    bool
}

// HandleTable resolves the buffer handles carried by SETUP control records
type HandleTable interface {
	Lookup(handle int32) (*dma.Buffer, error)
}

// Device returns the device the session runs on
func (s *Session) Device() *Device {
	return s.dev
}

// CreateSurface allocates a width x height 8-bit surface. The width must be a
// multiple of 64.
func (s *Session) CreateSurface(width, height uint32) (*dma.Buffer, error) {
	if uint64(width)*uint64(height) > MaxSurfaceBytes {
		return nil, driver.Errorf(driver.StatusOverflow, "create surface: %dx%d too large", width, height)
	}
	if width < 1 || width > MaxSurfaceDim || height < 1 || height > MaxSurfaceDim {
		return nil, driver.Errorf(driver.StatusInvalidArgument, "create surface: %dx%d out of range", width, height)
	}
	if width%SurfaceAlign != 0 {
		return nil, driver.Errorf(driver.StatusInvalidArgument, "create surface: width %d not a multiple of %d", width, SurfaceAlign)
	}
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.dev.alloc.Allocate(width*height, width, height)
}

// CreateBuffer allocates an untyped buffer for textures, flats and tables
func (s *Session) CreateBuffer(size uint32) (*dma.Buffer, error) {
	if size < 1 || size > MaxBufferSize {
		return nil, driver.Errorf(driver.StatusInvalidArgument, "create buffer: size %d out of range", size)
	}
	if err := s.live(); err != nil {
		return nil, err
	}
	return s.dev.alloc.Allocate(size, 0, 0)
}

// Setup binds one buffer per slot, nil unbinding it. Slots are bound in order
// and the first failure stops the walk, so earlier slots keep their new
// binding.
func (s *Session) Setup(bufs [command.SlotCount]*dma.Buffer) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.closed {
		return ErrSessionDone
	}
	for i, buf := range bufs {
		if err := s.resources.Bind(command.Slot(i), buf); err != nil {
			return err
		}
	}
	return nil
}

// Bind binds a single slot
func (s *Session) Bind(slot command.Slot, buf *dma.Buffer) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.closed {
		return ErrSessionDone
	}
	return s.resources.Bind(slot, buf)
}

// Bound returns the buffer bound to a slot
func (s *Session) Bound(slot command.Slot) *dma.Buffer {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.resources.Get(slot)
}

// Submit runs a batch of commands and returns the number of raw command
// bytes the device accepted. Fewer bytes than submitted means the batch was
// clamped to the ring or truncated at an invalid command.
func (s *Session) Submit(cmds []command.Raw) (int, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	return s.dev.submit(s.resources, cmds)
}

// Write submits raw command records. A malformed record ends the batch the
// same way an invalid command does.
func (s *Session) Write(p []byte) (int, error) {
	if len(p) < command.RawSize {
		return 0, driver.Errorf(driver.StatusInvalidArgument, "write: %d bytes is less than one command", len(p))
	}
	cmds, err := command.DecodeAll(p)
	if len(cmds) == 0 {
		return 0, err
	}
	return s.Submit(cmds)
}

// Ioctl dispatches a control record. Create requests return the new buffer;
// SETUP resolves its handles through handles, with a negative handle
// unbinding the slot.
func (s *Session) Ioctl(code uint32, arg []byte, handles HandleTable) (*dma.Buffer, error) {
	switch code {
	case driver.IoctlCreateSurfaceCode:
		req, err := driver.UnmarshalCreateSurfaceRequest(arg)
		if err != nil {
			return nil, err
		}
		return s.CreateSurface(req.Width, req.Height)

	case driver.IoctlCreateBufferCode:
		req, err := driver.UnmarshalCreateBufferRequest(arg)
		if err != nil {
			return nil, err
		}
		return s.CreateBuffer(req.Size)

	case driver.IoctlSetupCode:
		req, err := driver.UnmarshalSetupRequest(arg)
		if err != nil {
			return nil, err
		}
		var bufs [command.SlotCount]*dma.Buffer
		for i, h := range req.Handles {
			if h < 0 {
				continue
			}
			if handles == nil {
				return nil, driver.NewError(driver.StatusInvalidArgument, "setup: no handle table")
			}
			buf, err := handles.Lookup(h)
			if err != nil {
				return nil, err
			}
			bufs[i] = buf
		}
		return nil, s.Setup(bufs)

	default:
		return nil, driver.Errorf(driver.StatusInvalidArgument, "unknown control code 0x%08x", code)
	}
}

// Close unbinds every slot. Buffers stay alive while other references exist.
func (s *Session) Close() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.resources.Clear()
	return nil
}

func (s *Session) live() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.closed {
		return ErrSessionDone
	}
	if s.dev.removed {
		return driver.NewError(driver.StatusDeviceClosed, "device removed")
	}
	return nil
}
