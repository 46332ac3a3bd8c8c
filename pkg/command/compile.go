package command

import (
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// Limits checked by the compiler
const (
	FuzzPositions = 56
	TranmapSize   = 65536
	LutShift      = 8 // colormaps and translations are 256-byte tables
)

func invalid(k Kind, format string, args ...any) error {
	return driver.Errorf(driver.StatusInvalidArgument, k.String()+": "+format, args...)
}

// surface returns the bound surface of a slot
func surface(rs *ResourceSet, slot Slot, k Kind) (*dma.Buffer, error) {
	buf := rs.Get(slot)
	if buf == nil {
		return nil, invalid(k, "%s not bound", slot)
	}
	if buf.Size() == 0 || !buf.IsSurface() {
		return nil, invalid(k, "%s is not a surface", slot)
	}
	return buf, nil
}

// bound returns the buffer of a slot that must be bound
func bound(rs *ResourceSet, slot Slot, k Kind) (*dma.Buffer, error) {
	buf := rs.Get(slot)
	if buf == nil {
		return nil, invalid(k, "%s not bound", slot)
	}
	return buf, nil
}

func rectInside(buf *dma.Buffer, x, y, w, h uint16) bool {
	return w > 0 && h > 0 &&
		uint32(x)+uint32(w) <= buf.Width() &&
		uint32(y)+uint32(h) <= buf.Height()
}

func pointInside(buf *dma.Buffer, x, y uint16) bool {
	return uint32(x) < buf.Width() && uint32(y) < buf.Height()
}

// lutIndex checks an index into a table of 256-byte entries
func lutIndex(rs *ResourceSet, slot Slot, idx uint16, k Kind) error {
	buf, err := bound(rs, slot, k)
	if err != nil {
		return err
	}
	if uint32(idx) >= buf.Size()>>LutShift {
		return invalid(k, "%s index %d out of range", slot, idx)
	}
	return nil
}

func flatIndex(rs *ResourceSet, idx uint16, k Kind) error {
	flat, err := bound(rs, SlotFlat, k)
	if err != nil {
		return err
	}
	if int(idx) >= flat.PageCount() {
		return invalid(k, "flat index %d out of range (%d flats)", idx, flat.PageCount())
	}
	return nil
}

// remaps validates the optional remapping stages and returns the hardware flags
func remaps(rs *ResourceSet, flags RawFlags, colormapIdx, translationIdx uint16, ins *Instruction, k Kind) error {
	if flags&^(RawTranslate|RawColormap|RawTranmap) != 0 {
		return invalid(k, "unknown flags 0x%x", uint16(flags))
	}
	if flags&RawTranslate != 0 {
		if err := lutIndex(rs, SlotTranslation, translationIdx, k); err != nil {
			return err
		}
		ins.Flags |= FlagTranslate
		ins.TranslationIdx = uint32(translationIdx)
	}
	if flags&RawColormap != 0 {
		if err := lutIndex(rs, SlotColormap, colormapIdx, k); err != nil {
			return err
		}
		ins.Flags |= FlagColormap
		ins.ColormapIdx = uint32(colormapIdx)
	}
	if flags&RawTranmap != 0 {
		tranmap, err := bound(rs, SlotTranmap, k)
		if err != nil {
			return err
		}
		if tranmap.Size() != TranmapSize {
			return invalid(k, "tranmap has %d bytes, want %d", tranmap.Size(), TranmapSize)
		}
		ins.Flags |= FlagTranmap
	}
	return nil
}

// Compile validates a raw command against the bound resources and packs it.
// An invalid command yields no word at all.
func Compile(rs *ResourceSet, cmd Raw) (Word, error) {
	if cmd == nil {
		return Word{}, driver.NewError(driver.StatusInvalidArgument, "compile: nil command")
	}
	k := cmd.Kind()
	dst, err := surface(rs, SlotDst, k)
	if err != nil {
		return Word{}, err
	}

	var ins Instruction
	switch c := cmd.(type) {
	case CopyRect:
		src, err := surface(rs, SlotSrc, k)
		if err != nil {
			return Word{}, err
		}
		if !rectInside(src, c.SrcX, c.SrcY, c.Width, c.Height) {
			return Word{}, invalid(k, "source rectangle %dx%d at (%d,%d) outside %dx%d surface",
				c.Width, c.Height, c.SrcX, c.SrcY, src.Width(), src.Height())
		}
		if !rectInside(dst, c.DstX, c.DstY, c.Width, c.Height) {
			return Word{}, invalid(k, "destination rectangle %dx%d at (%d,%d) outside %dx%d surface",
				c.Width, c.Height, c.DstX, c.DstY, dst.Width(), dst.Height())
		}
		ins = Instruction{
			Type: TypeCopyRect,
			X0:   uint32(c.DstX), Y0: uint32(c.DstY),
			X1: uint32(c.SrcX), Y1: uint32(c.SrcY),
			Width: uint32(c.Width), Height: uint32(c.Height),
		}
		if src == dst {
			ins.Flags |= FlagInterlock
		}

	case FillRect:
		if !rectInside(dst, c.X, c.Y, c.Width, c.Height) {
			return Word{}, invalid(k, "rectangle %dx%d at (%d,%d) outside %dx%d surface",
				c.Width, c.Height, c.X, c.Y, dst.Width(), dst.Height())
		}
		ins = Instruction{
			Type: TypeFillRect,
			X0:   uint32(c.X), Y0: uint32(c.Y),
			Width: uint32(c.Width), Height: uint32(c.Height),
			Color: uint32(c.Color),
		}

	case DrawLine:
		if !pointInside(dst, c.AX, c.AY) || !pointInside(dst, c.BX, c.BY) {
			return Word{}, invalid(k, "endpoints (%d,%d)-(%d,%d) outside %dx%d surface",
				c.AX, c.AY, c.BX, c.BY, dst.Width(), dst.Height())
		}
		ins = Instruction{
			Type: TypeDrawLine,
			X0:   uint32(c.AX), Y0: uint32(c.AY),
			X1: uint32(c.BX), Y1: uint32(c.BY),
			Color: uint32(c.Color),
		}

	case DrawBackground:
		if !rectInside(dst, c.X, c.Y, c.Width, c.Height) {
			return Word{}, invalid(k, "rectangle %dx%d at (%d,%d) outside %dx%d surface",
				c.Width, c.Height, c.X, c.Y, dst.Width(), dst.Height())
		}
		if err := flatIndex(rs, c.FlatIdx, k); err != nil {
			return Word{}, err
		}
		ins = Instruction{
			Type: TypeDrawBackground,
			X0:   uint32(c.X), Y0: uint32(c.Y),
			Width: uint32(c.Width), Height: uint32(c.Height),
			FlatIdx: uint32(c.FlatIdx),
		}

	case DrawColumn:
		if c.Y0 > c.Y1 || !pointInside(dst, c.X, c.Y0) || !pointInside(dst, c.X, c.Y1) {
			return Word{}, invalid(k, "column x=%d y=%d..%d outside %dx%d surface",
				c.X, c.Y0, c.Y1, dst.Width(), dst.Height())
		}
		texture, err := bound(rs, SlotTexture, k)
		if err != nil {
			return Word{}, err
		}
		if c.TextureOffset >= texture.Size() {
			return Word{}, invalid(k, "texture offset %d beyond %d-byte texture", c.TextureOffset, texture.Size())
		}
		ins = Instruction{
			Type: TypeDrawColumn,
			X0:   uint32(c.X), Y0: uint32(c.Y0), Y1: uint32(c.Y1),
			TextureOffset: c.TextureOffset,
			UStart:        uint32(c.UStart), UStep: uint32(c.UStep),
		}
		if err := remaps(rs, c.Flags, c.ColormapIdx, c.TranslationIdx, &ins, k); err != nil {
			return Word{}, err
		}

	case DrawFuzz:
		if c.FuzzPos >= FuzzPositions {
			return Word{}, invalid(k, "fuzz position %d out of range", c.FuzzPos)
		}
		if !(c.FuzzStart <= c.Y0 && c.Y0 <= c.Y1 && c.Y1 <= c.FuzzEnd) {
			return Word{}, invalid(k, "fuzz range %d..%d does not contain %d..%d",
				c.FuzzStart, c.FuzzEnd, c.Y0, c.Y1)
		}
		if !pointInside(dst, c.X, c.Y0) || !pointInside(dst, c.X, c.FuzzEnd) {
			return Word{}, invalid(k, "column x=%d y=%d..%d outside %dx%d surface",
				c.X, c.FuzzStart, c.FuzzEnd, dst.Width(), dst.Height())
		}
		if err := lutIndex(rs, SlotColormap, c.ColormapIdx, k); err != nil {
			return Word{}, err
		}
		ins = Instruction{
			Type: TypeDrawFuzz,
			X0:   uint32(c.X), Y0: uint32(c.Y0), Y1: uint32(c.Y1),
			FuzzStart: uint32(c.FuzzStart), FuzzEnd: uint32(c.FuzzEnd),
			FuzzPos:     uint32(c.FuzzPos),
			ColormapIdx: uint32(c.ColormapIdx),
		}

	case DrawSpan:
		if c.X0 > c.X1 || !pointInside(dst, c.X0, c.Y) || !pointInside(dst, c.X1, c.Y) {
			return Word{}, invalid(k, "span y=%d x=%d..%d outside %dx%d surface",
				c.Y, c.X0, c.X1, dst.Width(), dst.Height())
		}
		if err := flatIndex(rs, c.FlatIdx, k); err != nil {
			return Word{}, err
		}
		ins = Instruction{
			Type: TypeDrawSpan,
			X0:   uint32(c.X0), X1: uint32(c.X1), Y0: uint32(c.Y),
			FlatIdx: uint32(c.FlatIdx),
			UStart:  uint32(c.UStart), VStart: uint32(c.VStart),
			UStep: uint32(c.UStep), VStep: uint32(c.VStep),
		}
		if err := remaps(rs, c.Flags, c.ColormapIdx, c.TranslationIdx, &ins, k); err != nil {
			return Word{}, err
		}

	default:
		return Word{}, invalid(k, "unsupported command %T", cmd)
	}

	return Pack(ins)
}

// SetupWord describes the bound resources to the hardware. It is emitted once
// at the head of every batch.
func SetupWord(rs *ResourceSet) (Word, error) {
	ins := Instruction{
		Type:     TypeSetup,
		SlotMask: rs.Mask(),
	}
	for s := Slot(0); s < SlotCount; s++ {
		if buf := rs.Get(s); buf != nil {
			ins.Handles[s] = buf.Handle()
		}
	}
	if dst := rs.Dst(); dst != nil {
		ins.DstStride = dst.Width() >> 6
	}
	if src := rs.Src(); src != nil {
		ins.SrcStride = src.Width() >> 6
	}
	return Pack(ins)
}
