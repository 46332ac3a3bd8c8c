package command

import "fmt"

// Kind is the type tag of a raw command record
type Kind uint32

// Raw command type tags as submitted by callers
const (
	KindCopyRect       Kind = 0
	KindFillRect       Kind = 1
	KindDrawLine       Kind = 2
	KindDrawBackground Kind = 3
	KindDrawColumn     Kind = 4
	KindDrawFuzz       Kind = 5
	KindDrawSpan       Kind = 6
)

var kindNames = map[Kind]string{
	KindCopyRect:       "copy rect",
	KindFillRect:       "fill rect",
	KindDrawLine:       "draw line",
	KindDrawBackground: "draw background",
	KindDrawColumn:     "draw column",
	KindDrawFuzz:       "draw fuzz",
	KindDrawSpan:       "draw span",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// RawFlags select the optional remapping stages of column and span commands
type RawFlags uint16

const (
	RawTranslate RawFlags = 1 << 0
	RawColormap  RawFlags = 1 << 1
	RawTranmap   RawFlags = 1 << 2
)

// Raw is an abstract drawing command before validation
type Raw interface {
	Kind() Kind
}

// CopyRect copies a rectangle from the source to the destination surface
type CopyRect struct {
	DstX, DstY uint16
	SrcX, SrcY uint16
	Width      uint16
	Height     uint16
}

// FillRect fills a rectangle of the destination with a color
type FillRect struct {
	X, Y          uint16
	Width, Height uint16
	Color         uint8
}

// DrawLine draws a line between two points of the destination
type DrawLine struct {
	AX, AY uint16
	BX, BY uint16
	Color  uint8
}

// DrawBackground tiles a flat over a rectangle of the destination
type DrawBackground struct {
	X, Y          uint16
	Width, Height uint16
	FlatIdx       uint16
}

// DrawColumn draws a textured vertical column
type DrawColumn struct {
	Flags          RawFlags
	X              uint16
	Y0, Y1         uint16
	UStart, UStep  uint16
	TextureOffset  uint32
	ColormapIdx    uint16
	TranslationIdx uint16
}

// DrawFuzz draws a column with the fuzz effect
type DrawFuzz struct {
	X           uint16
	Y0, Y1      uint16
	FuzzStart   uint16
	FuzzEnd     uint16
	FuzzPos     uint16
	ColormapIdx uint16
}

// DrawSpan draws a textured horizontal span from a flat
type DrawSpan struct {
	Flags          RawFlags
	X0, X1         uint16
	Y              uint16
	UStart, VStart uint16
	UStep, VStep   uint16
	FlatIdx        uint16
	ColormapIdx    uint16
	TranslationIdx uint16
}

func (CopyRect) Kind() Kind       { return KindCopyRect }
func (FillRect) Kind() Kind       { return KindFillRect }
func (DrawLine) Kind() Kind       { return KindDrawLine }
func (DrawBackground) Kind() Kind { return KindDrawBackground }
func (DrawColumn) Kind() Kind     { return KindDrawColumn }
func (DrawFuzz) Kind() Kind       { return KindDrawFuzz }
func (DrawSpan) Kind() Kind       { return KindDrawSpan }
