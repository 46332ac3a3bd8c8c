//go:build unit

package command

import (
	"testing"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackFillRect(t *testing.T) {
	w, err := Pack(Instruction{
		Type: TypeFillRect,
		X0:   10, Y0: 20,
		Width: 30, Height: 40,
		Color: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, Word{3, 10 | 20<<11, 0, 30 | 40<<12, 7, 0, 0, 0}, w)
	assert.Equal(t, TypeFillRect, w.Type())
	assert.Equal(t, Flags(0), w.Flags())
}

func TestPackSetup(t *testing.T) {
	ins := Instruction{
		Type:      TypeSetup,
		SlotMask:  SlotDst.Bit() | SlotTexture.Bit(),
		DstStride: 10,
	}
	ins.Handles[SlotDst] = 0x1234
	ins.Handles[SlotTexture] = 0xabcdef

	w, err := Pack(ins)
	require.NoError(t, err)
	assert.Equal(t, uint32(1|0b101<<13|10<<20), w[0])
	assert.Equal(t, uint32(0x1234), w[1])
	assert.Equal(t, uint32(0), w[2])
	assert.Equal(t, uint32(0xabcdef), w[3])

	back, err := Unpack(w)
	require.NoError(t, err)
	assert.Equal(t, ins, back)
}

func TestPackRejectsOverflow(t *testing.T) {
	tests := []struct {
		name string
		ins  Instruction
	}{
		{"x0 past 11 bits", Instruction{Type: TypeFillRect, X0: 2048, Width: 1, Height: 1}},
		{"width past 12 bits", Instruction{Type: TypeFillRect, Width: 4096, Height: 1}},
		{"fuzz pos past 6 bits", Instruction{Type: TypeDrawFuzz, FuzzPos: 64}},
		{"flags past 8 bits", Instruction{Type: TypeDrawLine, Flags: 0x100}},
		{"stride past 6 bits", Instruction{Type: TypeSetup, DstStride: 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pack(tt.ins)
			assert.ErrorIs(t, err, driver.ErrInvalidArgument)
		})
	}
}

func TestPackUnknownType(t *testing.T) {
	_, err := Pack(Instruction{Type: 0})
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)

	_, err = Unpack(Word{31})
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
}

func TestUnpackKeepsOnlyTypeFields(t *testing.T) {
	tests := []Instruction{
		{Type: TypeCopyRect, Flags: FlagInterlock, X0: 1, Y0: 2, X1: 3, Y1: 4, Width: 5, Height: 6},
		{Type: TypeDrawLine, X0: 2047, Y0: 2047, X1: 0, Y1: 1, Color: 255},
		{Type: TypeDrawBackground, X0: 64, Y0: 8, Width: 2048, Height: 2048, FlatIdx: 1023},
		{Type: TypeDrawColumn, Flags: FlagColormap | FlagTranslate, X0: 9, Y0: 10, Y1: 100,
			TextureOffset: 1<<22 - 1, ColormapIdx: 3, TranslationIdx: 4, UStart: 0xffff, UStep: 0x100},
		{Type: TypeDrawFuzz, X0: 5, Y0: 10, Y1: 20, FuzzStart: 0, FuzzEnd: 199, FuzzPos: 55, ColormapIdx: 6},
		{Type: TypeDrawSpan, Flags: FlagTranmap, X0: 0, X1: 319, Y0: 100, FlatIdx: 7,
			UStart: 1, VStart: 2, UStep: 3, VStep: 4},
	}
	for _, ins := range tests {
		t.Run(ins.Type.String(), func(t *testing.T) {
			w, err := Pack(ins)
			require.NoError(t, err)
			back, err := Unpack(w)
			require.NoError(t, err)
			assert.Equal(t, ins, back)
		})
	}
}

func TestColumnTextureOffsetSharesWordWithFuzzRange(t *testing.T) {
	w, err := Pack(Instruction{Type: TypeDrawColumn, TextureOffset: 0x3fffff})
	require.NoError(t, err)

	ins, err := Unpack(w)
	require.NoError(t, err)
	assert.Zero(t, ins.FuzzStart)
	assert.Zero(t, ins.Width)
	assert.Equal(t, uint32(0x3fffff), ins.TextureOffset)
}

func TestWithFlags(t *testing.T) {
	w, err := Pack(Instruction{Type: TypeFillRect, Width: 1, Height: 1})
	require.NoError(t, err)

	w = w.WithFlags(FlagPingSync)
	assert.Equal(t, uint32(3|1<<5), w[0])
	assert.Equal(t, FlagPingSync, w.Flags())
	assert.Equal(t, TypeFillRect, w.Type())
}

func TestWordBytes(t *testing.T) {
	w := Word{1, 2, 3, 4, 5, 6, 7, 0x80000000}
	var p [WordSize]byte
	w.MarshalTo(p[:])

	assert.Equal(t, []byte{1, 0, 0, 0}, p[0:4])
	assert.Equal(t, []byte{0, 0, 0, 0x80}, p[28:32])
	assert.Equal(t, w, WordFromBytes(p[:]))
}
