package driver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// InterruptSource delivers device interrupt events
type InterruptSource interface {
	// Wait blocks until the next interrupt and returns the event count
	Wait() (uint32, error)
	Close() error
}

// UIO is an interrupt source backed by a /dev/uioN character device. The
// file goes through the runtime poller so Close unblocks a pending Wait.
type UIO struct {
	f    *os.File
	path string
}

// OpenUIO opens a UIO device for interrupt delivery
func OpenUIO(path string) (*UIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrapSyscallError(err, "opening interrupt source "+path)
	}
	return &UIO{f: f, path: path}, nil
}

// Wait unmasks the interrupt line and blocks until it fires
func (u *UIO) Wait() (uint32, error) {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	if _, err := u.f.Write(buf[:]); err != nil {
		return 0, wrapSyscallError(err, "unmasking interrupt")
	}

	n, err := io.ReadFull(u.f, buf[:])
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return 0, NewErrorWithCause(StatusDeviceClosed, "waiting for interrupt", err)
		}
		return 0, wrapSyscallError(err, fmt.Sprintf("waiting for interrupt (%d bytes read)", n))
	}
	return binary.NativeEndian.Uint32(buf[:]), nil
}

// Close closes the interrupt source
func (u *UIO) Close() error {
	if err := u.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return NewErrorWithCause(StatusDriverOperationFailed, "closing interrupt source", err)
	}
	return nil
}

// Path returns the device path
func (u *UIO) Path() string {
	return u.path
}
