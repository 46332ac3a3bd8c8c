//go:build unit

package command

import (
	"testing"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFillRect(t *testing.T) {
	p := make([]byte, RawSize)
	le.PutUint32(p[0:4], uint32(KindFillRect))
	le.PutUint16(p[4:6], 10)
	le.PutUint16(p[6:8], 256)
	le.PutUint16(p[8:10], 2038)
	le.PutUint16(p[10:12], 1)
	p[12] = 0x42

	cmd, err := Decode(p)
	require.NoError(t, err)
	assert.Equal(t, FillRect{X: 10, Y: 256, Width: 2038, Height: 1, Color: 0x42}, cmd)
}

func TestEncodeDecodeEveryKind(t *testing.T) {
	cmds := []Raw{
		CopyRect{DstX: 1, DstY: 2, SrcX: 3, SrcY: 4, Width: 5, Height: 6},
		FillRect{X: 1, Y: 2, Width: 3, Height: 4, Color: 5},
		DrawLine{AX: 1, AY: 2, BX: 3, BY: 4, Color: 5},
		DrawBackground{X: 1, Y: 2, Width: 3, Height: 4, FlatIdx: 5},
		DrawColumn{Flags: RawColormap, X: 1, Y0: 2, Y1: 3, UStart: 4, UStep: 5,
			TextureOffset: 0x12345, ColormapIdx: 6, TranslationIdx: 7},
		DrawFuzz{X: 1, Y0: 2, Y1: 3, FuzzStart: 0, FuzzEnd: 9, FuzzPos: 10, ColormapIdx: 11},
		DrawSpan{Flags: RawTranslate | RawTranmap, X0: 1, X1: 2, Y: 3, UStart: 4, VStart: 5,
			UStep: 6, VStep: 7, FlatIdx: 8, ColormapIdx: 9, TranslationIdx: 10},
	}
	for _, cmd := range cmds {
		t.Run(cmd.Kind().String(), func(t *testing.T) {
			p, err := Encode(cmd)
			require.NoError(t, err)
			assert.Equal(t, uint32(cmd.Kind()), le.Uint32(p[:4]))

			back, err := Decode(p[:])
			require.NoError(t, err)
			assert.Equal(t, cmd, back)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode(make([]byte, RawSize-1))
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)

	p := make([]byte, RawSize)
	p[0] = 7
	_, err = Decode(p)
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
}

func TestDecodeAllStopsAtBadRecord(t *testing.T) {
	fill, err := Encode(FillRect{Width: 1, Height: 1})
	require.NoError(t, err)

	var data []byte
	data = append(data, fill[:]...)
	data = append(data, fill[:]...)
	bad := make([]byte, RawSize)
	bad[0] = 0xff
	data = append(data, bad...)
	data = append(data, fill[:]...)

	cmds, err := DecodeAll(data)
	assert.Len(t, cmds, 2)
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
}

func TestDecodeAllIgnoresTrailingBytes(t *testing.T) {
	fill, err := Encode(FillRect{Width: 1, Height: 1})
	require.NoError(t, err)

	cmds, err := DecodeAll(append(fill[:], 1, 2, 3))
	require.NoError(t, err)
	assert.Len(t, cmds, 1)
}
