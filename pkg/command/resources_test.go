//go:build unit

package command_test

import (
	"testing"

	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"github.com/emergingrobotics/go-harddoom/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem   *testutil.FakePlatform
	alloc *dma.Allocator
	rs    *command.ResourceSet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)
	f := &fixture{mem: mem, alloc: alloc, rs: command.NewResourceSet(alloc)}
	t.Cleanup(f.rs.Clear)
	return f
}

func (f *fixture) surface(t *testing.T, w, h uint32) *dma.Buffer {
	t.Helper()
	buf, err := f.alloc.Allocate(w*h, w, h)
	require.NoError(t, err)
	t.Cleanup(buf.Release)
	return buf
}

func (f *fixture) buffer(t *testing.T, size uint32) *dma.Buffer {
	t.Helper()
	buf, err := f.alloc.Allocate(size, 0, 0)
	require.NoError(t, err)
	t.Cleanup(buf.Release)
	return buf
}

func (f *fixture) bind(t *testing.T, slot command.Slot, buf *dma.Buffer) {
	t.Helper()
	require.NoError(t, f.rs.Bind(slot, buf))
}

func TestBindTakesReference(t *testing.T) {
	f := newFixture(t)
	a := f.surface(t, 64, 64)
	b := f.surface(t, 64, 64)

	f.bind(t, command.SlotDst, a)
	assert.Equal(t, int32(2), a.Refs())
	assert.Same(t, a, f.rs.Dst())
	assert.Equal(t, command.SlotDst.Bit(), f.rs.Mask())

	f.bind(t, command.SlotDst, b)
	assert.Equal(t, int32(1), a.Refs())
	assert.Equal(t, int32(2), b.Refs())

	f.bind(t, command.SlotDst, nil)
	assert.Equal(t, int32(1), b.Refs())
	assert.Nil(t, f.rs.Dst())
	assert.Zero(t, f.rs.Mask())
}

func TestBoundBufferOutlivesCreator(t *testing.T) {
	f := newFixture(t)
	buf, err := f.alloc.Allocate(1000, 0, 0)
	require.NoError(t, err)

	f.bind(t, command.SlotTexture, buf)
	buf.Release()
	assert.Equal(t, 2, f.mem.Blocks(), "bound buffer freed early")

	f.rs.Clear()
	assert.Equal(t, 0, f.mem.Blocks())
	assert.Equal(t, int64(0), f.alloc.Live())
}

func TestBindRejectsFreedBuffer(t *testing.T) {
	f := newFixture(t)
	buf, err := f.alloc.Allocate(64*64, 64, 64)
	require.NoError(t, err)
	buf.Release()

	err = f.rs.Bind(command.SlotDst, buf)
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
	assert.Nil(t, f.rs.Dst())
	assert.Zero(t, f.rs.Mask())
	assert.Equal(t, int32(0), buf.Refs())
}

func TestBindRejects(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)

	tests := []struct {
		name string
		slot command.Slot
		buf  *dma.Buffer
	}{
		{"invalid slot", command.SlotCount, nil},
		{"negative slot", command.Slot(-1), nil},
		{"other device", command.SlotDst, other.surface(t, 64, 64)},
		{"plain buffer as dst", command.SlotDst, f.buffer(t, 4096)},
		{"plain buffer as src", command.SlotSrc, f.buffer(t, 4096)},
		{"empty surface as dst", command.SlotDst, f.surface(t, 64, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.rs.Bind(tt.slot, tt.buf)
			assert.ErrorIs(t, err, driver.ErrInvalidArgument)
			assert.Zero(t, f.rs.Mask())
		})
	}
}

func TestSlotNames(t *testing.T) {
	assert.Equal(t, "dst surface", command.SlotDst.String())
	assert.Equal(t, "tranmap", command.SlotTranmap.String())
	assert.Equal(t, "slot(9)", command.Slot(9).String())
	assert.Equal(t, uint32(1<<6), command.SlotTranmap.Bit())
}
