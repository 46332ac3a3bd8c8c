package command

import (
	"fmt"

	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// Slot names one of the buffer bindings a drawing command can consume
type Slot int

// Slots in the order the control surface and the SETUP word use them
const (
	SlotDst Slot = iota
	SlotSrc
	SlotTexture
	SlotFlat
	SlotColormap
	SlotTranslation
	SlotTranmap
	SlotCount
)

var slotNames = [SlotCount]string{
	SlotDst:         "dst surface",
	SlotSrc:         "src surface",
	SlotTexture:     "texture",
	SlotFlat:        "flat",
	SlotColormap:    "colormap",
	SlotTranslation: "translation",
	SlotTranmap:     "tranmap",
}

// String returns the slot name
func (s Slot) String() string {
	if s.Valid() {
		return slotNames[s]
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Valid reports whether s names an existing slot
func (s Slot) Valid() bool {
	return s >= 0 && s < SlotCount
}

// Bit returns the presence bit of the slot in the SETUP word
func (s Slot) Bit() uint32 {
	return 1 << uint(s)
}

// isSurface reports whether the slot must hold a surface
func (s Slot) isSurface() bool {
	return s == SlotDst || s == SlotSrc
}

// ResourceSet is the set of buffers bound to a session. It is not safe for
// concurrent use; callers serialize through the device lock.
type ResourceSet struct {
	alloc *dma.Allocator
	slots [SlotCount]*dma.Buffer
	mask  uint32
}

// NewResourceSet creates an empty set accepting buffers from alloc
func NewResourceSet(alloc *dma.Allocator) *ResourceSet {
	return &ResourceSet{alloc: alloc}
}

// Bind replaces the buffer in a slot. A nil buffer empties the slot.
func (rs *ResourceSet) Bind(slot Slot, buf *dma.Buffer) error {
	if !slot.Valid() {
		return driver.Errorf(driver.StatusInvalidArgument, "bind: invalid slot %d", int(slot))
	}
	if buf != nil {
		if buf.Allocator() != rs.alloc {
			return driver.Errorf(driver.StatusInvalidArgument, "bind %s: buffer belongs to another device", slot)
		}
		if slot.isSurface() && (buf.Size() == 0 || !buf.IsSurface()) {
			return driver.Errorf(driver.StatusInvalidArgument, "bind %s: not a non-empty surface", slot)
		}
		if err := buf.Acquire(); err != nil {
			return fmt.Errorf("bind %s: %w", slot, err)
		}
	}

	if old := rs.slots[slot]; old != nil {
		old.Release()
	}
	rs.slots[slot] = buf
	if buf != nil {
		rs.mask |= slot.Bit()
	} else {
		rs.mask &^= slot.Bit()
	}
	return nil
}

// Clear empties every slot
func (rs *ResourceSet) Clear() {
	for s := Slot(0); s < SlotCount; s++ {
		rs.Bind(s, nil)
	}
}

// Get returns the buffer bound to a slot, or nil
func (rs *ResourceSet) Get(slot Slot) *dma.Buffer {
	if !slot.Valid() {
		return nil
	}
	return rs.slots[slot]
}

// Mask returns the presence bits of the bound slots
func (rs *ResourceSet) Mask() uint32 {
	return rs.mask
}

func (rs *ResourceSet) Dst() *dma.Buffer         { return rs.slots[SlotDst] }
func (rs *ResourceSet) Src() *dma.Buffer         { return rs.slots[SlotSrc] }
func (rs *ResourceSet) Texture() *dma.Buffer     { return rs.slots[SlotTexture] }
func (rs *ResourceSet) Flat() *dma.Buffer        { return rs.slots[SlotFlat] }
func (rs *ResourceSet) Colormap() *dma.Buffer    { return rs.slots[SlotColormap] }
func (rs *ResourceSet) Translation() *dma.Buffer { return rs.slots[SlotTranslation] }
func (rs *ResourceSet) Tranmap() *dma.Buffer     { return rs.slots[SlotTranmap] }
