//go:build unit

package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoctlCodes(t *testing.T) {
	// _IOW('D', nr, size)
	assert.Equal(t, uint32(0x40084400), IoctlCreateSurfaceCode)
	assert.Equal(t, uint32(0x40044401), IoctlCreateBufferCode)
	assert.Equal(t, uint32(0x401c4402), IoctlSetupCode)

	assert.Equal(t, "DOOM_IOCTL_SETUP", IoctlName(IoctlSetupCode))
	assert.Contains(t, IoctlName(0x1234), "UNKNOWN")
}

func TestCreateSurfaceRequest(t *testing.T) {
	p := CreateSurfaceRequest{Width: 640, Height: 480}.Marshal()
	require.Len(t, p, SizeOfCreateSurfaceRequest)
	assert.Equal(t, []byte{0x80, 0x02, 0, 0, 0xe0, 0x01, 0, 0}, p)

	req, err := UnmarshalCreateSurfaceRequest(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(640), req.Width)
	assert.Equal(t, uint32(480), req.Height)
}

func TestSetupRequestNegativeHandles(t *testing.T) {
	in := SetupRequest{Handles: [SetupSlots]int32{3, NoBuffer, 5, NoBuffer, NoBuffer, NoBuffer, 9}}
	p := in.Marshal()
	require.Len(t, p, SizeOfSetupRequest)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, p[4:8])

	out, err := UnmarshalSetupRequest(p)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestShortRequests(t *testing.T) {
	_, err := UnmarshalCreateSurfaceRequest(make([]byte, 4))
	assert.ErrorIs(t, err, ErrTransferFault)

	_, err = UnmarshalCreateBufferRequest(nil)
	assert.ErrorIs(t, err, ErrTransferFault)

	_, err = UnmarshalSetupRequest(make([]byte, SizeOfSetupRequest-1))
	assert.ErrorIs(t, err, ErrTransferFault)
}
