package ot

import "fmt"

// LookupFormat identifies which of the six on-wire encodings a Lookup
// Table uses. Shared by morx's class tables and non-contextual
// subtables; GSUB does not use this type (its own lookup concept,
// LookupList, is unrelated and handled in gsub.go).
type LookupFormat uint16

const (
	LookupSimpleArray       LookupFormat = 0
	LookupSegmentSingle     LookupFormat = 2
	LookupSegmentArray      LookupFormat = 4
	LookupSingleTable       LookupFormat = 6
	LookupTrimmedArray      LookupFormat = 8
	LookupExtendedTrimmed   LookupFormat = 10
)

// LookupTable is a decoded glyph-ID-to-value mapping in one of the six
// formats described by the Apple AAT specification. Every format
// resolves to the same Value(glyphID) accessor; which format backs a
// given table is exposed via Format() for diagnostics.
type LookupTable struct {
	format LookupFormat
	data   binarySegm // the lookup table, starting at its format field

	// format 0
	simple binarySegm // packed uint16 per glyph, glyph 0..n-1

	// format 2/4/6: binary-searched segments
	segments    binarySegm
	segCount    int
	segRecSize  int // unitSize from the binary-search header: 6 for formats 2/4, 4 for format 6
	segFormat   LookupFormat

	// format 8/10: trimmed array
	firstGlyph GlyphIndex
	glyphCount int
	values     binarySegm
	unitSize   int // format 10 only; format 8 implies 2
}

// parseLookupTable decodes a Lookup Table. b must start at
// the table's own format field.
func parseLookupTable(b binarySegm) (*LookupTable, error) {
	if len(b) < 2 {
		return nil, newDecodeError(ErrTruncation, Tag(0), "lookup table format field")
	}
	format, _ := b.u16(0)
	lt := &LookupTable{format: LookupFormat(format), data: b}
	switch lt.format {
	case LookupSimpleArray:
		lt.simple = b.tail(2)
		return lt, nil
	case LookupSegmentSingle, LookupSegmentArray, LookupSingleTable:
		// binary-search header: unitSize, nUnits, searchRange,
		// entrySelector, rangeShift.
		if len(b) < 12 {
			return nil, newDecodeError(ErrTruncation, Tag(0), "lookup table binary-search header")
		}
		unitSize, _ := b.u16(2)
		nUnits, _ := b.u16(4)
		lt.segFormat = lt.format
		lt.segCount = int(nUnits)
		lt.segRecSize = int(unitSize)
		segBytes, err := checkedMulInt(lt.segCount, lt.segRecSize)
		if err != nil {
			return nil, newDecodeError(ErrStructural, Tag(0), "lookup table: nUnits*unitSize overflow")
		}
		segs, err := b.view(12, segBytes)
		if err != nil {
			return nil, newDecodeError(ErrTruncation, Tag(0), "lookup table segment array")
		}
		lt.segments = segs
		// format 4's values array is addressed relative to the start of
		// the lookup table (b), via each segment's valuesOffset field.
		if lt.format == LookupSegmentArray {
			lt.values = b
		}
		return lt, nil
	case LookupTrimmedArray:
		if len(b) < 6 {
			return nil, newDecodeError(ErrTruncation, Tag(0), "trimmed array header")
		}
		fg, _ := b.u16(2)
		gc, _ := b.u16(4)
		lt.firstGlyph = GlyphIndex(fg)
		lt.glyphCount = int(gc)
		lt.unitSize = 2
		vBytes, err := checkedMulInt(lt.glyphCount, 2)
		if err != nil {
			return nil, newDecodeError(ErrStructural, Tag(0), "trimmed array: glyphCount too large")
		}
		vals, err := b.view(6, vBytes)
		if err != nil {
			return nil, newDecodeError(ErrTruncation, Tag(0), "trimmed array values")
		}
		lt.values = vals
		return lt, nil
	case LookupExtendedTrimmed:
		if len(b) < 8 {
			return nil, newDecodeError(ErrTruncation, Tag(0), "extended trimmed array header")
		}
		unitSize, _ := b.u16(2)
		fg, _ := b.u16(4)
		gc, _ := b.u16(6)
		if unitSize != 1 && unitSize != 2 && unitSize != 4 && unitSize != 8 {
			return nil, newDecodeError(ErrStructural, Tag(0), fmt.Sprintf("extended trimmed array: bad unitSize %d", unitSize))
		}
		lt.unitSize = int(unitSize)
		lt.firstGlyph = GlyphIndex(fg)
		lt.glyphCount = int(gc)
		vBytes, err := checkedMulInt(lt.glyphCount, lt.unitSize)
		if err != nil {
			return nil, newDecodeError(ErrStructural, Tag(0), "extended trimmed array: glyphCount too large")
		}
		vals, err := b.view(8, vBytes)
		if err != nil {
			return nil, newDecodeError(ErrTruncation, Tag(0), "extended trimmed array values")
		}
		lt.values = vals
		return lt, nil
	default:
		return nil, newDecodeError(ErrUnsupported, Tag(0), fmt.Sprintf("lookup table format %d", format))
	}
}

// Format reports which of the six on-wire encodings backs this table.
func (lt *LookupTable) Format() LookupFormat { return lt.format }

// Value looks up the 16-bit value associated with glyph ID g; ok is false
// if the format is unsupported at construction time (never reached: parse
// errors are returned from parseLookupTable) or if g has no entry.
func (lt *LookupTable) Value(g GlyphIndex) (uint16, bool) {
	switch lt.format {
	case LookupSimpleArray:
		v, err := lt.simple.u16(int(g) * 2)
		if err != nil {
			return 0, false
		}
		return v, true
	case LookupSegmentSingle:
		return lt.lookupSegmentSingle(g)
	case LookupSegmentArray:
		return lt.lookupSegmentArray(g)
	case LookupSingleTable:
		return lt.lookupSingleTable(g)
	case LookupTrimmedArray, LookupExtendedTrimmed:
		if g < lt.firstGlyph || int(g-lt.firstGlyph) >= lt.glyphCount {
			return 0, false
		}
		idx := int(g - lt.firstGlyph)
		return lt.readTrimmed(idx)
	default:
		return 0, false
	}
}

func (lt *LookupTable) readTrimmed(idx int) (uint16, bool) {
	off := idx * lt.unitSize
	switch lt.unitSize {
	case 1:
		if off >= len(lt.values) {
			return 0, false
		}
		return uint16(lt.values[off]), true
	case 2:
		v, err := lt.values.u16(off)
		return v, err == nil
	case 4:
		v, err := lt.values.u32(off)
		return uint16(v), err == nil
	case 8:
		hi, err1 := lt.values.u32(off)
		_, err2 := lt.values.u32(off + 4)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return uint16(hi), true
	}
	return 0, false
}

// lookupSegmentSingle implements format 2: binary-searched segments
// (lastGlyph, firstGlyph, value); every glyph in range maps to the same
// value.
func (lt *LookupTable) lookupSegmentSingle(g GlyphIndex) (uint16, bool) {
	const recSize = 6
	lo, hi := 0, lt.segCount-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		rec, err := lt.segments.view(mid*recSize, recSize)
		if err != nil {
			return 0, false
		}
		last, _ := rec.u16(0)
		first, _ := rec.u16(2)
		switch {
		case g < GlyphIndex(first):
			hi = mid - 1
		case g > GlyphIndex(last):
			lo = mid + 1
		default:
			v, _ := rec.u16(4)
			return v, true
		}
	}
	return 0, false
}

// lookupSegmentArray implements format 4: binary-searched segments
// (lastGlyph, firstGlyph, valuesOffset); value is read from a parallel
// array at valuesOffset (relative to the lookup table's own start),
// indexed by glyphId - firstGlyph.
func (lt *LookupTable) lookupSegmentArray(g GlyphIndex) (uint16, bool) {
	const recSize = 6
	lo, hi := 0, lt.segCount-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		rec, err := lt.segments.view(mid*recSize, recSize)
		if err != nil {
			return 0, false
		}
		last, _ := rec.u16(0)
		first, _ := rec.u16(2)
		switch {
		case g < GlyphIndex(first):
			hi = mid - 1
		case g > GlyphIndex(last):
			lo = mid + 1
		default:
			valuesOffset, _ := rec.u16(4)
			idx := int(g - GlyphIndex(first))
			v, err := lt.values.u16(int(valuesOffset) + idx*2)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

// lookupSingleTable implements format 6: binary-searched singletons
// (glyph, value).
func (lt *LookupTable) lookupSingleTable(g GlyphIndex) (uint16, bool) {
	const recSize = 4
	lo, hi := 0, lt.segCount-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		rec, err := lt.segments.view(mid*recSize, recSize)
		if err != nil {
			return 0, false
		}
		glyph, _ := rec.u16(0)
		switch {
		case g < GlyphIndex(glyph):
			hi = mid - 1
		case g > GlyphIndex(glyph):
			lo = mid + 1
		default:
			v, _ := rec.u16(2)
			return v, true
		}
	}
	return 0, false
}
