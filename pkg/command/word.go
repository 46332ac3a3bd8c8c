// Package command compiles drawing commands into hardware instruction words.
package command

import (
	"encoding/binary"
	"fmt"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// WordCount is the number of 32-bit fields in an instruction
const WordCount = 8

// WordSize is the size of an instruction in ring memory
const WordSize = WordCount * 4

// Word is one packed hardware instruction
type Word [WordCount]uint32

// Type is the hardware instruction type
type Type uint32

// Instruction types
const (
	TypeSetup          Type = 1
	TypeCopyRect       Type = 2
	TypeFillRect       Type = 3
	TypeDrawLine       Type = 4
	TypeDrawBackground Type = 5
	TypeDrawColumn     Type = 6
	TypeDrawFuzz       Type = 7
	TypeDrawSpan       Type = 8
)

var typeNames = map[Type]string{
	TypeSetup:          "SETUP",
	TypeCopyRect:       "COPY_RECT",
	TypeFillRect:       "FILL_RECT",
	TypeDrawLine:       "DRAW_LINE",
	TypeDrawBackground: "DRAW_BACKGROUND",
	TypeDrawColumn:     "DRAW_COLUMN",
	TypeDrawFuzz:       "DRAW_FUZZ",
	TypeDrawSpan:       "DRAW_SPAN",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE(%d)", uint32(t))
}

// Flags are per-instruction hardware flags
type Flags uint32

const (
	FlagPingSync  Flags = 1 << 0 // raise PONG_SYNC once executed
	FlagInterlock Flags = 1 << 1 // wait for earlier writes to the source surface
	FlagTranslate Flags = 1 << 2
	FlagColormap  Flags = 1 << 3
	FlagTranmap   Flags = 1 << 4
)

// Instruction is the unpacked form of a Word. Which fields are meaningful
// depends on Type; see layouts.
type Instruction struct {
	Type  Type
	Flags Flags

	// SETUP only
	SlotMask  uint32
	DstStride uint32 // destination width / 64
	SrcStride uint32 // source width / 64
	Handles   [SlotCount]uint32

	X0, Y0 uint32
	X1, Y1 uint32
	Width  uint32
	Height uint32

	Color          uint32
	FlatIdx        uint32
	ColormapIdx    uint32
	TranslationIdx uint32
	TextureOffset  uint32

	FuzzStart uint32
	FuzzEnd   uint32
	FuzzPos   uint32

	UStart, VStart uint32
	UStep, VStep   uint32
}

// field places one Instruction member in the packed word
type field struct {
	name  string
	word  int
	shift uint
	bits  uint
	ref   func(*Instruction) *uint32
}

func (f field) mask() uint32 {
	if f.bits == 32 {
		return ^uint32(0)
	}
	return 1<<f.bits - 1
}

// Every field position is defined here and nowhere else.
var (
	fType      = field{"type", 0, 0, 5, func(i *Instruction) *uint32 { return (*uint32)(&i.Type) }}
	fFlags     = field{"flags", 0, 5, 8, func(i *Instruction) *uint32 { return (*uint32)(&i.Flags) }}
	fSlotMask  = field{"slot mask", 0, 13, 7, func(i *Instruction) *uint32 { return &i.SlotMask }}
	fDstStride = field{"dst stride", 0, 20, 6, func(i *Instruction) *uint32 { return &i.DstStride }}
	fSrcStride = field{"src stride", 0, 26, 6, func(i *Instruction) *uint32 { return &i.SrcStride }}

	fX0 = field{"x0", 1, 0, 11, func(i *Instruction) *uint32 { return &i.X0 }}
	fY0 = field{"y0", 1, 11, 11, func(i *Instruction) *uint32 { return &i.Y0 }}
	fX1 = field{"x1", 2, 0, 11, func(i *Instruction) *uint32 { return &i.X1 }}
	fY1 = field{"y1", 2, 11, 11, func(i *Instruction) *uint32 { return &i.Y1 }}

	fWidth  = field{"width", 3, 0, 12, func(i *Instruction) *uint32 { return &i.Width }}
	fHeight = field{"height", 3, 12, 12, func(i *Instruction) *uint32 { return &i.Height }}
	// word 3 carries the fuzz range or the texture offset for column commands
	fFuzzStart = field{"fuzz start", 3, 0, 11, func(i *Instruction) *uint32 { return &i.FuzzStart }}
	fFuzzEnd   = field{"fuzz end", 3, 12, 11, func(i *Instruction) *uint32 { return &i.FuzzEnd }}
	fTexOffset = field{"texture offset", 3, 0, 22, func(i *Instruction) *uint32 { return &i.TextureOffset }}

	fColor   = field{"color", 4, 0, 8, func(i *Instruction) *uint32 { return &i.Color }}
	fFuzzPos = field{"fuzz pos", 4, 8, 6, func(i *Instruction) *uint32 { return &i.FuzzPos }}
	fFlatIdx = field{"flat index", 4, 14, 10, func(i *Instruction) *uint32 { return &i.FlatIdx }}

	fColormapIdx    = field{"colormap index", 5, 0, 14, func(i *Instruction) *uint32 { return &i.ColormapIdx }}
	fTranslationIdx = field{"translation index", 5, 14, 14, func(i *Instruction) *uint32 { return &i.TranslationIdx }}

	fUStart = field{"u start", 6, 0, 16, func(i *Instruction) *uint32 { return &i.UStart }}
	fVStart = field{"v start", 6, 16, 16, func(i *Instruction) *uint32 { return &i.VStart }}
	fUStep  = field{"u step", 7, 0, 16, func(i *Instruction) *uint32 { return &i.UStep }}
	fVStep  = field{"v step", 7, 16, 16, func(i *Instruction) *uint32 { return &i.VStep }}
)

func handleField(s Slot) field {
	return field{fmt.Sprintf("%s handle", s), 1 + int(s), 0, 32,
		func(i *Instruction) *uint32 { return &i.Handles[s] }}
}

var layouts = map[Type][]field{
	TypeSetup: {fType, fFlags, fSlotMask, fDstStride, fSrcStride,
		handleField(SlotDst), handleField(SlotSrc), handleField(SlotTexture), handleField(SlotFlat),
		handleField(SlotColormap), handleField(SlotTranslation), handleField(SlotTranmap)},
	TypeCopyRect:       {fType, fFlags, fX0, fY0, fX1, fY1, fWidth, fHeight},
	TypeFillRect:       {fType, fFlags, fX0, fY0, fWidth, fHeight, fColor},
	TypeDrawLine:       {fType, fFlags, fX0, fY0, fX1, fY1, fColor},
	TypeDrawBackground: {fType, fFlags, fX0, fY0, fWidth, fHeight, fFlatIdx},
	TypeDrawColumn: {fType, fFlags, fX0, fY0, fY1, fTexOffset,
		fColormapIdx, fTranslationIdx, fUStart, fUStep},
	TypeDrawFuzz: {fType, fFlags, fX0, fY0, fY1, fFuzzStart, fFuzzEnd, fFuzzPos, fColormapIdx},
	TypeDrawSpan: {fType, fFlags, fX0, fX1, fY0, fFlatIdx, fColormapIdx, fTranslationIdx,
		fUStart, fVStart, fUStep, fVStep},
}

// Pack encodes an instruction. Values that do not fit their field are
// rejected rather than truncated.
func Pack(ins Instruction) (Word, error) {
	var w Word
	layout, ok := layouts[ins.Type]
	if !ok {
		return w, driver.Errorf(driver.StatusInvalidArgument, "pack: unknown instruction type %d", uint32(ins.Type))
	}
	for _, f := range layout {
		v := *f.ref(&ins)
		if v&^f.mask() != 0 {
			return Word{}, driver.Errorf(driver.StatusInvalidArgument,
				"pack %s: %s value %d exceeds %d bits", ins.Type, f.name, v, f.bits)
		}
		w[f.word] |= v << f.shift
	}
	return w, nil
}

// Unpack decodes a word. Fields not used by the word's type are left zero.
func Unpack(w Word) (Instruction, error) {
	var ins Instruction
	t := Type(w[0] & fType.mask())
	layout, ok := layouts[t]
	if !ok {
		return ins, driver.Errorf(driver.StatusInvalidArgument, "unpack: unknown instruction type %d", uint32(t))
	}
	for _, f := range layout {
		*f.ref(&ins) = w[f.word] >> f.shift & f.mask()
	}
	return ins, nil
}

// Type returns the instruction type of a packed word
func (w Word) Type() Type {
	return Type(w[0] & fType.mask())
}

// Flags returns the flags of a packed word
func (w Word) Flags() Flags {
	return Flags(w[0] >> fFlags.shift & fFlags.mask())
}

// WithFlags returns a copy of the word with extra flags set
func (w Word) WithFlags(f Flags) Word {
	w[0] |= (uint32(f) & fFlags.mask()) << fFlags.shift
	return w
}

// MarshalTo writes the word in ring memory byte order
func (w Word) MarshalTo(p []byte) {
	for i, v := range w {
		binary.LittleEndian.PutUint32(p[i*4:], v)
	}
}

// WordFromBytes reads a word stored in ring memory byte order
func WordFromBytes(p []byte) Word {
	var w Word
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	return w
}
