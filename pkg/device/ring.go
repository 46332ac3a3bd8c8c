package device

import (
	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// ring is the command buffer the hardware fetches from. One slot always
// stays empty so that read == write means empty.
type ring struct {
	buf   *dma.Buffer
	size  uint32
	write uint32
}

func newRing(alloc *dma.Allocator, size uint32) (*ring, error) {
	if size < 4 {
		return nil, driver.Errorf(driver.StatusInvalidArgument, "ring size %d too small", size)
	}
	buf, err := alloc.Allocate(size*command.WordSize, 0, 0)
	if err != nil {
		return nil, err
	}
	return &ring{buf: buf, size: size}, nil
}

// used returns the number of words not yet fetched by the hardware
func (r *ring) used(read uint32) uint32 {
	return (r.write + r.size - read%r.size) % r.size
}

// free returns how many more words fit without overcommitting
func (r *ring) free(read uint32) uint32 {
	return r.size - 1 - r.used(read)
}

// put stores a word at a ring index. The byte offset is scaled by the word
// size so that index i never aliases another slot.
func (r *ring) put(idx uint32, w command.Word) error {
	var p [command.WordSize]byte
	w.MarshalTo(p[:])
	_, err := r.buf.WriteAt(p[:], int64(idx%r.size)*command.WordSize)
	return err
}

// push appends words and returns the new write index
func (r *ring) push(words []command.Word) (uint32, error) {
	idx := r.write
	for _, w := range words {
		if err := r.put(idx, w); err != nil {
			return r.write, err
		}
		idx = (idx + 1) % r.size
	}
	r.write = idx
	return idx, nil
}

func (r *ring) release() {
	r.buf.Release()
}
