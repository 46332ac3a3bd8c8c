package driver

import (
	"encoding/binary"
	"fmt"
)

// Control surface request records. These are the packed little-endian
// layouts handed over by the ioctl layer; the core only decodes them.

// CreateSurfaceRequest: 8 bytes
//
//	uint32_t width;   // offset 0
//	uint32_t height;  // offset 4
type CreateSurfaceRequest struct {
	Width  uint32
	Height uint32
}

// CreateBufferRequest: 4 bytes
//
//	uint32_t size;    // offset 0
type CreateBufferRequest struct {
	Size uint32
}

// SetupSlots is the number of buffer slots carried by a setup request
const SetupSlots = 7

// NoBuffer marks an empty slot in a setup request
const NoBuffer int32 = -1

// SetupRequest: 28 bytes
//
//	int32_t fd[7];    // dst, src, texture, flat, colormap, translation, tranmap
type SetupRequest struct {
	Handles [SetupSlots]int32
}

// Packed sizes of the request records
const (
	SizeOfCreateSurfaceRequest = 8
	SizeOfCreateBufferRequest  = 4
	SizeOfSetupRequest         = 4 * SetupSlots
)

// IOCTL command codes
var (
	IoctlCreateSurfaceCode = IoW(DoomIoctlMagic, IoctlCreateSurface, SizeOfCreateSurfaceRequest)
	IoctlCreateBufferCode  = IoW(DoomIoctlMagic, IoctlCreateBuffer, SizeOfCreateBufferRequest)
	IoctlSetupCode         = IoW(DoomIoctlMagic, IoctlSetup, SizeOfSetupRequest)
)

// IoctlName returns a printable name for a control surface command code
func IoctlName(code uint32) string {
	switch code {
	case IoctlCreateSurfaceCode:
		return "DOOM_IOCTL_CREATE_SURFACE"
	case IoctlCreateBufferCode:
		return "DOOM_IOCTL_CREATE_BUFFER"
	case IoctlSetupCode:
		return "DOOM_IOCTL_SETUP"
	default:
		return fmt.Sprintf("UNKNOWN DOOM COMMAND 0x%08x", code)
	}
}

func shortRecord(name string, got, want int) error {
	return Errorf(StatusTransferFault, "%s: short record (%d of %d bytes)", name, got, want)
}

// Marshal packs the request
func (r CreateSurfaceRequest) Marshal() []byte {
	p := make([]byte, SizeOfCreateSurfaceRequest)
	binary.LittleEndian.PutUint32(p[0:4], r.Width)
	binary.LittleEndian.PutUint32(p[4:8], r.Height)
	return p
}

// UnmarshalCreateSurfaceRequest decodes a packed create-surface request
func UnmarshalCreateSurfaceRequest(p []byte) (CreateSurfaceRequest, error) {
	if len(p) < SizeOfCreateSurfaceRequest {
		return CreateSurfaceRequest{}, shortRecord("create surface", len(p), SizeOfCreateSurfaceRequest)
	}
	return CreateSurfaceRequest{
		Width:  binary.LittleEndian.Uint32(p[0:4]),
		Height: binary.LittleEndian.Uint32(p[4:8]),
	}, nil
}

// Marshal packs the request
func (r CreateBufferRequest) Marshal() []byte {
	p := make([]byte, SizeOfCreateBufferRequest)
	binary.LittleEndian.PutUint32(p[0:4], r.Size)
	return p
}

// UnmarshalCreateBufferRequest decodes a packed create-buffer request
func UnmarshalCreateBufferRequest(p []byte) (CreateBufferRequest, error) {
	if len(p) < SizeOfCreateBufferRequest {
		return CreateBufferRequest{}, shortRecord("create buffer", len(p), SizeOfCreateBufferRequest)
	}
	return CreateBufferRequest{Size: binary.LittleEndian.Uint32(p[0:4])}, nil
}

// Marshal packs the request
func (r SetupRequest) Marshal() []byte {
	p := make([]byte, SizeOfSetupRequest)
	for i, h := range r.Handles {
		binary.LittleEndian.PutUint32(p[i*4:(i+1)*4], uint32(h))
	}
	return p
}

// UnmarshalSetupRequest decodes a packed setup request
func UnmarshalSetupRequest(p []byte) (SetupRequest, error) {
	var r SetupRequest
	if len(p) < SizeOfSetupRequest {
		return r, shortRecord("setup", len(p), SizeOfSetupRequest)
	}
	for i := range r.Handles {
		r.Handles[i] = int32(binary.LittleEndian.Uint32(p[i*4 : (i+1)*4]))
	}
	return r, nil
}
