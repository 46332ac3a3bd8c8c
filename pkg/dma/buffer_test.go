//go:build unit

package dma_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"github.com/emergingrobotics/go-harddoom/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageCount(t *testing.T) {
	tests := []struct {
		size uint32
		want int
	}{
		{0, 0},
		{1, 1},
		{4096, 1},
		{4097, 2},
		{8192, 2},
		{2048 * 2048, 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dma.PageCount(tt.size), "size %d", tt.size)
	}
}

func TestAllocateMapsEveryPage(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(3*dma.PageSize+1, 0, 0)
	require.NoError(t, err)
	defer buf.Release()

	require.Equal(t, 4, buf.PageCount())
	require.Equal(t, 4, buf.TableEntries())
	require.Equal(t, buf.PageCount(), buf.TableEntries())
	assert.False(t, buf.IsSurface())
	assert.Equal(t, int32(1), buf.Refs())
	assert.Equal(t, int64(1), alloc.Live())
	assert.Equal(t, uint32(buf.TableAddr()>>8), buf.Handle())

	for i := 0; i < buf.PageCount(); i++ {
		addr, valid, writable := driver.DecodePTE(buf.Entry(i))
		assert.True(t, valid, "entry %d", i)
		assert.True(t, writable, "entry %d", i)
		page := mem.Resolve(addr, dma.PageSize)
		require.NotNil(t, page, "entry %d", i)
		page[0] = byte(i + 1)
		assert.Equal(t, byte(i+1), buf.Page(i)[0], "entry %d does not map page %d", i, i)
	}
}

func TestAllocateZeroSize(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.PageCount())
	assert.Equal(t, 0, mem.Blocks())

	buf.Release()
	assert.Equal(t, int64(0), alloc.Live())
}

func TestAllocateFailureLeavesNothing(t *testing.T) {
	const pages = 5
	tests := []struct {
		name      string
		failAfter int
	}{
		{"page table", 0},
		{"first page", 1},
		{"middle page", 3},
		{"last page", pages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := testutil.NewFakePlatform()
			alloc := dma.NewAllocator(mem)

			mem.FailAfter(tt.failAfter)
			buf, err := alloc.Allocate(pages*dma.PageSize, 0, 0)

			require.Error(t, err)
			assert.Nil(t, buf)
			assert.ErrorIs(t, err, driver.ErrResourceExhausted)
			assert.Equal(t, 0, mem.Blocks())
			assert.Equal(t, int64(0), mem.Outstanding())
			assert.Equal(t, int64(0), alloc.Live())
		})
	}
}

func TestFreeIsIdempotent(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(2*dma.PageSize, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, mem.Blocks())

	buf.Free()
	assert.Equal(t, 0, mem.Blocks())
	assert.Equal(t, 0, buf.PageCount())
	assert.Equal(t, int64(0), alloc.Live())

	buf.Free()
	assert.Equal(t, 0, mem.Blocks())
	assert.Equal(t, int64(0), alloc.Live())
	assert.Equal(t, 0, buf.TableEntries())
}

func TestFreedBufferCannotBeUsed(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(2*dma.PageSize, 64, 128)
	require.NoError(t, err)
	buf.Release()
	require.True(t, buf.Freed())

	assert.ErrorIs(t, buf.Acquire(), driver.ErrInvalidArgument)
	assert.Equal(t, int32(0), buf.Refs())

	n, err := buf.ReadAt(make([]byte, 16), 0)
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
	assert.Zero(t, n)
	n, err = buf.WriteAt([]byte{1, 2, 3}, 100)
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
	assert.Zero(t, n)

	explicit, err := alloc.Allocate(100, 0, 0)
	require.NoError(t, err)
	explicit.Free()
	assert.ErrorIs(t, explicit.Acquire(), driver.ErrInvalidArgument)
	assert.Equal(t, int32(1), explicit.Refs())
}

func TestReferenceCounting(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(100, 0, 0)
	require.NoError(t, err)

	require.NoError(t, buf.Acquire())
	assert.Equal(t, int32(2), buf.Refs())

	buf.Release()
	assert.Equal(t, 2, mem.Blocks(), "freed while still referenced")

	require.NoError(t, buf.Close())
	assert.Equal(t, 0, mem.Blocks())
	assert.Panics(t, buf.Release)
}

func TestReadWriteRoundTrip(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(8192, 0, 0)
	require.NoError(t, err)
	defer buf.Release()

	data := testutil.MakeRandomBytes(8192)
	n, err := buf.WriteAt(data, 0)
	require.NoError(t, err)
	require.Equal(t, 8192, n)

	got := make([]byte, 8192)
	n, err = buf.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, 8192, n)
	assert.Equal(t, data, got)

	// spans the page boundary
	mid := make([]byte, 100)
	_, err = buf.ReadAt(mid, dma.PageSize-50)
	require.NoError(t, err)
	assert.Equal(t, data[dma.PageSize-50:dma.PageSize+50], mid)
}

func TestWriteAtClampsToSize(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(10, 0, 0)
	require.NoError(t, err)
	defer buf.Release()

	n, err := buf.WriteAt([]byte("0123456789abc"), 0)
	assert.Equal(t, 10, n)
	assert.ErrorIs(t, err, io.ErrShortWrite)

	p := make([]byte, 4)
	n, err = buf.ReadAt(p, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte("89"), p[:n])

	_, err = buf.WriteAt(p, -1)
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
}

func TestCopyFrom(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(3*dma.PageSize, 0, 0)
	require.NoError(t, err)
	defer buf.Release()

	data := testutil.MakeRandomBytes(2*dma.PageSize + 7)
	n, err := buf.CopyFrom(iotest.OneByteReader(bytes.NewReader(data)), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got := make([]byte, len(data))
	_, err = buf.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyFromFailingSource(t *testing.T) {
	mem := testutil.NewFakePlatform()
	alloc := dma.NewAllocator(mem)

	buf, err := alloc.Allocate(dma.PageSize, 0, 0)
	require.NoError(t, err)
	defer buf.Release()

	boom := errors.New("boom")
	_, err = buf.CopyFrom(iotest.ErrReader(boom), 0)
	assert.ErrorIs(t, err, driver.ErrTransferFault)
	assert.ErrorIs(t, err, boom)

	r := io.MultiReader(bytes.NewReader([]byte("abc")), iotest.ErrReader(boom))
	n, err := buf.CopyFrom(r, 0)
	assert.Equal(t, int64(3), n)
	assert.ErrorIs(t, err, driver.ErrTransferFault)
}
