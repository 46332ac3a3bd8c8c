package driver

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents a driver operation status code
type Status int

// Status codes reported by the driver core
const (
	StatusSuccess               Status = 0
	StatusInvalidArgument       Status = 1
	StatusResourceExhausted     Status = 2
	StatusOverflow              Status = 3
	StatusDeviceFault           Status = 4
	StatusTransferFault         Status = 5
	StatusNotFound              Status = 6
	StatusDeviceClosed          Status = 7
	StatusDriverOperationFailed Status = 8
)

var statusMessages = map[Status]string{
	StatusSuccess:               "success",
	StatusInvalidArgument:       "invalid argument",
	StatusResourceExhausted:     "resource exhausted",
	StatusOverflow:              "overflow",
	StatusDeviceFault:           "device fault",
	StatusTransferFault:         "transfer fault",
	StatusNotFound:              "not found",
	StatusDeviceClosed:          "device closed",
	StatusDriverOperationFailed: "driver operation failed",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Errno returns the errno a control surface should report for the status
func (s Status) Errno() unix.Errno {
	switch s {
	case StatusSuccess:
		return 0
	case StatusInvalidArgument:
		return unix.EINVAL
	case StatusResourceExhausted:
		return unix.ENOMEM
	case StatusOverflow:
		return unix.EOVERFLOW
	case StatusDeviceFault:
		return unix.EIO
	case StatusTransferFault:
		return unix.EFAULT
	case StatusNotFound:
		return unix.ENOENT
	case StatusDeviceClosed:
		return unix.ENODEV
	default:
		return unix.EIO
	}
}

// DoomError represents an error from the driver core
type DoomError struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *DoomError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *DoomError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *DoomError) Is(target error) bool {
	var doomErr *DoomError
	if errors.As(target, &doomErr) {
		return e.Status == doomErr.Status
	}
	return false
}

// Sentinels for errors.Is comparisons. Matching is by status only.
var (
	ErrInvalidArgument   = &DoomError{Status: StatusInvalidArgument}
	ErrResourceExhausted = &DoomError{Status: StatusResourceExhausted}
	ErrOverflow          = &DoomError{Status: StatusOverflow}
	ErrDeviceFault       = &DoomError{Status: StatusDeviceFault}
	ErrTransferFault     = &DoomError{Status: StatusTransferFault}
	ErrNotFound          = &DoomError{Status: StatusNotFound}
	ErrDeviceClosed      = &DoomError{Status: StatusDeviceClosed}
)

// NewError creates a new DoomError with the given status
func NewError(status Status, context string) *DoomError {
	return &DoomError{
		Status:  status,
		Context: context,
	}
}

// Errorf creates a new DoomError with a formatted context
func Errorf(status Status, format string, args ...any) *DoomError {
	return NewError(status, fmt.Sprintf(format, args...))
}

// NewErrorWithCause creates a new DoomError with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *DoomError {
	return &DoomError{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// StatusOf extracts the status from an error chain
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var doomErr *DoomError
	if errors.As(err, &doomErr) {
		return doomErr.Status
	}
	return StatusDriverOperationFailed
}

// ErrnoToStatus converts a Linux errno to a driver status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.ENOMEM, unix.ENOBUFS:
		return StatusResourceExhausted
	case unix.EINVAL:
		return StatusInvalidArgument
	case unix.EOVERFLOW:
		return StatusOverflow
	case unix.EIO:
		return StatusDeviceFault
	case unix.EFAULT:
		return StatusTransferFault
	case unix.ENOENT:
		return StatusNotFound
	case unix.ENODEV:
		return StatusDeviceClosed
	default:
		return StatusDriverOperationFailed
	}
}

// StatusFromErrno creates a DoomError from an errno
func StatusFromErrno(errno unix.Errno, context string) *DoomError {
	return &DoomError{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}

// wrapSyscallError converts a syscall failure into a DoomError
func wrapSyscallError(err error, context string) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return StatusFromErrno(errno, context)
	}
	return NewErrorWithCause(StatusDriverOperationFailed, context, err)
}
