package command

import (
	"encoding/binary"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// RawSize is the size of one raw command record. Every record starts with a
// little-endian uint32 kind; the rest is kind specific and zero padded.
const RawSize = 32

var le = binary.LittleEndian

// Decode parses a single raw command record
func Decode(p []byte) (Raw, error) {
	if len(p) < RawSize {
		return nil, driver.Errorf(driver.StatusInvalidArgument, "decode: short record (%d bytes)", len(p))
	}
	switch kind := Kind(le.Uint32(p[0:4])); kind {
	case KindCopyRect:
		// uint16 dst_x, dst_y, src_x, src_y, width, height; // offsets 4..15
		return CopyRect{
			DstX:   le.Uint16(p[4:6]),
			DstY:   le.Uint16(p[6:8]),
			SrcX:   le.Uint16(p[8:10]),
			SrcY:   le.Uint16(p[10:12]),
			Width:  le.Uint16(p[12:14]),
			Height: le.Uint16(p[14:16]),
		}, nil
	case KindFillRect:
		// uint16 x, y, width, height; uint8 color; // offsets 4..12
		return FillRect{
			X:      le.Uint16(p[4:6]),
			Y:      le.Uint16(p[6:8]),
			Width:  le.Uint16(p[8:10]),
			Height: le.Uint16(p[10:12]),
			Color:  p[12],
		}, nil
	case KindDrawLine:
		// uint16 ax, ay, bx, by; uint8 color; // offsets 4..12
		return DrawLine{
			AX:    le.Uint16(p[4:6]),
			AY:    le.Uint16(p[6:8]),
			BX:    le.Uint16(p[8:10]),
			BY:    le.Uint16(p[10:12]),
			Color: p[12],
		}, nil
	case KindDrawBackground:
		// uint16 x, y, width, height, flat_idx; // offsets 4..13
		return DrawBackground{
			X:       le.Uint16(p[4:6]),
			Y:       le.Uint16(p[6:8]),
			Width:   le.Uint16(p[8:10]),
			Height:  le.Uint16(p[10:12]),
			FlatIdx: le.Uint16(p[12:14]),
		}, nil
	case KindDrawColumn:
		// uint16 flags, x, y0, y1, ustart, ustep;  // offsets 4..15
		// uint32 texture_offset;                   // offset 16
		// uint16 colormap_idx, translation_idx;    // offsets 20..23
		return DrawColumn{
			Flags:          RawFlags(le.Uint16(p[4:6])),
			X:              le.Uint16(p[6:8]),
			Y0:             le.Uint16(p[8:10]),
			Y1:             le.Uint16(p[10:12]),
			UStart:         le.Uint16(p[12:14]),
			UStep:          le.Uint16(p[14:16]),
			TextureOffset:  le.Uint32(p[16:20]),
			ColormapIdx:    le.Uint16(p[20:22]),
			TranslationIdx: le.Uint16(p[22:24]),
		}, nil
	case KindDrawFuzz:
		// uint16 x, y0, y1, fuzz_start, fuzz_end, fuzz_pos, colormap_idx; // offsets 4..17
		return DrawFuzz{
			X:           le.Uint16(p[4:6]),
			Y0:          le.Uint16(p[6:8]),
			Y1:          le.Uint16(p[8:10]),
			FuzzStart:   le.Uint16(p[10:12]),
			FuzzEnd:     le.Uint16(p[12:14]),
			FuzzPos:     le.Uint16(p[14:16]),
			ColormapIdx: le.Uint16(p[16:18]),
		}, nil
	case KindDrawSpan:
		// uint16 flags, x0, x1, y, ustart, vstart, ustep, vstep;   // offsets 4..19
		// uint16 flat_idx, colormap_idx, translation_idx;          // offsets 20..25
		return DrawSpan{
			Flags:          RawFlags(le.Uint16(p[4:6])),
			X0:             le.Uint16(p[6:8]),
			X1:             le.Uint16(p[8:10]),
			Y:              le.Uint16(p[10:12]),
			UStart:         le.Uint16(p[12:14]),
			VStart:         le.Uint16(p[14:16]),
			UStep:          le.Uint16(p[16:18]),
			VStep:          le.Uint16(p[18:20]),
			FlatIdx:        le.Uint16(p[20:22]),
			ColormapIdx:    le.Uint16(p[22:24]),
			TranslationIdx: le.Uint16(p[24:26]),
		}, nil
	default:
		return nil, driver.Errorf(driver.StatusInvalidArgument, "decode: unknown command kind %d", uint32(kind))
	}
}

// DecodeAll parses consecutive records. Trailing bytes that do not form a
// whole record are ignored. On a malformed record the commands decoded so far
// are returned together with the error.
func DecodeAll(p []byte) ([]Raw, error) {
	cmds := make([]Raw, 0, len(p)/RawSize)
	for off := 0; off+RawSize <= len(p); off += RawSize {
		cmd, err := Decode(p[off : off+RawSize])
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// Encode packs a raw command into its record form
func Encode(cmd Raw) ([RawSize]byte, error) {
	var p [RawSize]byte
	le.PutUint32(p[0:4], uint32(cmd.Kind()))
	switch c := cmd.(type) {
	case CopyRect:
		le.PutUint16(p[4:6], c.DstX)
		le.PutUint16(p[6:8], c.DstY)
		le.PutUint16(p[8:10], c.SrcX)
		le.PutUint16(p[10:12], c.SrcY)
		le.PutUint16(p[12:14], c.Width)
		le.PutUint16(p[14:16], c.Height)
	case FillRect:
		le.PutUint16(p[4:6], c.X)
		le.PutUint16(p[6:8], c.Y)
		le.PutUint16(p[8:10], c.Width)
		le.PutUint16(p[10:12], c.Height)
		p[12] = c.Color
	case DrawLine:
		le.PutUint16(p[4:6], c.AX)
		le.PutUint16(p[6:8], c.AY)
		le.PutUint16(p[8:10], c.BX)
		le.PutUint16(p[10:12], c.BY)
		p[12] = c.Color
	case DrawBackground:
		le.PutUint16(p[4:6], c.X)
		le.PutUint16(p[6:8], c.Y)
		le.PutUint16(p[8:10], c.Width)
		le.PutUint16(p[10:12], c.Height)
		le.PutUint16(p[12:14], c.FlatIdx)
	case DrawColumn:
		le.PutUint16(p[4:6], uint16(c.Flags))
		le.PutUint16(p[6:8], c.X)
		le.PutUint16(p[8:10], c.Y0)
		le.PutUint16(p[10:12], c.Y1)
		le.PutUint16(p[12:14], c.UStart)
		le.PutUint16(p[14:16], c.UStep)
		le.PutUint32(p[16:20], c.TextureOffset)
		le.PutUint16(p[20:22], c.ColormapIdx)
		le.PutUint16(p[22:24], c.TranslationIdx)
	case DrawFuzz:
		le.PutUint16(p[4:6], c.X)
		le.PutUint16(p[6:8], c.Y0)
		le.PutUint16(p[8:10], c.Y1)
		le.PutUint16(p[10:12], c.FuzzStart)
		le.PutUint16(p[12:14], c.FuzzEnd)
		le.PutUint16(p[14:16], c.FuzzPos)
		le.PutUint16(p[16:18], c.ColormapIdx)
	case DrawSpan:
		le.PutUint16(p[4:6], uint16(c.Flags))
		le.PutUint16(p[6:8], c.X0)
		le.PutUint16(p[8:10], c.X1)
		le.PutUint16(p[10:12], c.Y)
		le.PutUint16(p[12:14], c.UStart)
		le.PutUint16(p[14:16], c.VStart)
		le.PutUint16(p[16:18], c.UStep)
		le.PutUint16(p[18:20], c.VStep)
		le.PutUint16(p[20:22], c.FlatIdx)
		le.PutUint16(p[22:24], c.ColormapIdx)
		le.PutUint16(p[24:26], c.TranslationIdx)
	default:
		return p, driver.Errorf(driver.StatusInvalidArgument, "encode: unsupported command %T", cmd)
	}
	return p, nil
}
