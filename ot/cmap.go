package ot

import "fmt"

// CMapTable is the decoded 'cmap' table: a header of encoding records, each
// pointing at a format-specific subtable. Only format 4 is interpreted;
// every other format is recognized, but GlyphIndexOf and Enumerate do not
// use it; no error value names the unsupported format. The enum of formats is deliberately non-exhaustive (spec's cmap formats
// 0/6/10/12/13/14 are reserved slots an extension may fill in later without
// breaking callers that already switch on CMapFormat).
type CMapTable struct {
	tableBase
	version uint16
	records []cmapEncodingRecord
	// best is the encoding record this decoder prefers for GlyphIndexOf,
	// chosen as the first record whose subtable is format 4.
	best *cmapSubtable
}

type cmapEncodingRecord struct {
	PlatformID     uint16
	EncodingID     uint16
	SubtableOffset uint32
}

// CMapFormat identifies a cmap subtable's format. Only CMapFormat4 is
// decoded; every other recognized format reports itself through
// CMapFormat, and a table with no format-4 subtable makes GlyphIndexOf
// return (0, false).
type CMapFormat uint16

const (
	CMapFormat0  CMapFormat = 0
	CMapFormat2  CMapFormat = 2
	CMapFormat4  CMapFormat = 4
	CMapFormat6  CMapFormat = 6
	CMapFormat10 CMapFormat = 10
	CMapFormat12 CMapFormat = 12
	CMapFormat13 CMapFormat = 13
	CMapFormat14 CMapFormat = 14
)

type cmapSubtable struct {
	format  CMapFormat
	data    binarySegm // the subtable, starting at its format field
	format4 *cmapFormat4
}

// cmapFormat4 holds the parsed segment arrays of a format 4 subtable, kept
// as typed views over the subtable's own bytes — nothing here is copied.
type cmapFormat4 struct {
	segCount  int
	endCode   binarySegm // segCount uint16s
	startCode binarySegm // segCount uint16s
	idDelta   binarySegm // segCount int16s
	idRange   binarySegm // segCount uint16s
	glyphIDs  binarySegm // tail array of uint16s
}

func newCMapTable(tag Tag, b binarySegm, offset, size uint32) *CMapTable {
	t := &CMapTable{}
	t.tableBase = tableBase{data: b, name: tag, offset: offset, length: size}
	t.self = t
	return t
}

// parseCMap decodes the 'cmap' table header and its encoding records.
// Each subtable is parsed lazily (only format 4's segment arrays are
// actually decoded; other formats are merely recognized).
func parseCMap(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if len(b) < 4 {
		ec.addError(tag, "Header", "cmap table too small for header", SeverityCritical, offset)
		return nil, newDecodeError(ErrTruncation, tag, "header")
	}
	t := newCMapTable(tag, b, offset, size)
	version, _ := b.u16(0)
	n, _ := b.u16(2)
	t.version = version
	numTables := int(n)
	if numTables > MaxRecordMapCount {
		ec.addError(tag, "EncodingRecords", fmt.Sprintf("numTables %d exceeds maximum", numTables), SeverityCritical, offset)
		return nil, newDecodeError(ErrStructural, tag, "numTables too large")
	}
	recs, err := b.view(4, numTables*8)
	if err != nil {
		ec.addError(tag, "EncodingRecords", "truncated encoding record array", SeverityCritical, offset)
		return nil, newDecodeError(ErrTruncation, tag, "encoding records")
	}
	t.records = make([]cmapEncodingRecord, numTables)
	for i := 0; i < numTables; i++ {
		rb := recs[i*8 : i*8+8]
		plat, _ := rb.u16(0)
		enc, _ := rb.u16(2)
		off, _ := rb.u32(4)
		t.records[i] = cmapEncodingRecord{PlatformID: plat, EncodingID: enc, SubtableOffset: off}
		sub, serr := t.parseSubtable(off)
		if serr != nil {
			ec.addWarning(tag, fmt.Sprintf("encoding record %d: %v", i, serr), off)
			continue
		}
		if t.best == nil && sub.format == CMapFormat4 {
			t.best = sub
		}
	}
	if t.best == nil {
		ec.addWarning(tag, "no format-4 subtable present; GlyphIndexOf will report no mapping", offset)
	}
	return t, nil
}

// parseSubtable resolves a subtable at a byte offset relative to the
// cmap table's own start, and decodes it if it is format 4.
func (t *CMapTable) parseSubtable(subOffset uint32) (*cmapSubtable, error) {
	data := t.data.tail(int(subOffset))
	if len(data) < 2 {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "subtable format field")
	}
	format, _ := data.u16(0)
	sub := &cmapSubtable{format: CMapFormat(format), data: data}
	if sub.format != CMapFormat4 {
		return sub, nil
	}
	f4, err := parseCMapFormat4(data)
	if err != nil {
		return sub, err
	}
	sub.format4 = f4
	return sub, nil
}

// parseCMapFormat4 decodes a format 4 subtable's fixed header and the five
// parallel segCount-long arrays. It validates the two structural
// invariants a well-formed format 4 subtable must hold: endCode[segCount-1]
// == 0xFFFF, and the reserved pad word is 0.
func parseCMapFormat4(b binarySegm) (*cmapFormat4, error) {
	if len(b) < 14 {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4 header")
	}
	length, _ := b.u16(2)
	segCountX2, _ := b.u16(6)
	segCount := int(segCountX2) / 2
	if segCount == 0 {
		return nil, newDecodeError(ErrStructural, T("cmap"), "format 4: segCount is 0")
	}
	if int(length) > len(b) {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4: declared length exceeds subtable bytes")
	}
	const headerSize = 14
	arraysSize, err := checkedMulInt(segCount, 2)
	if err != nil {
		return nil, newDecodeError(ErrStructural, T("cmap"), "format 4: segCount too large")
	}
	endCode, err := b.view(headerSize, arraysSize)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4: endCode array")
	}
	padOffset := headerSize + arraysSize
	pad, err := b.u16(padOffset)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4: reserved pad")
	}
	if pad != 0 {
		return nil, newDecodeError(ErrStructural, T("cmap"), "format 4: reservedPad != 0")
	}
	startCode, err := b.view(padOffset+2, arraysSize)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4: startCode array")
	}
	idDelta, err := b.view(padOffset+2+arraysSize, arraysSize)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4: idDelta array")
	}
	idRange, err := b.view(padOffset+2+2*arraysSize, arraysSize)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("cmap"), "format 4: idRangeOffset array")
	}
	lastEnd, _ := endCode.u16((segCount - 1) * 2)
	if lastEnd != 0xFFFF {
		return nil, newDecodeError(ErrStructural, T("cmap"), "format 4: endCode[segCount-1] != 0xFFFF")
	}
	glyphIDs := b.tail(padOffset + 2 + 3*arraysSize)
	return &cmapFormat4{
		segCount:  segCount,
		endCode:   endCode,
		startCode: startCode,
		idDelta:   idDelta,
		idRange:   idRange,
		glyphIDs:  glyphIDs,
	}, nil
}

// GlyphIndexOf maps a Unicode code point to a glyph ID using the subtable
// preferred at parse time (the first format-4 encoding record found).
// Code points above 0xFFFF have no mapping in format 4 and yield
// (0, false). An unmapped but in-range code point yields (0, true) — the
// .notdef glyph — distinct from (0, false), "no subtable available to
// even attempt a lookup."
func (t *CMapTable) GlyphIndexOf(c rune) (GlyphIndex, bool) {
	if t == nil || t.best == nil || t.best.format4 == nil {
		return 0, false
	}
	if c < 0 || c > 0xFFFF {
		return 0, false
	}
	gid, err := t.best.format4.lookup(uint16(c))
	if err != nil {
		return 0, false
	}
	return gid, true
}

// lookup implements the exact algorithm of the OpenType specification: binary search for
// the smallest i with endCode[i] >= c, then resolve through idDelta/
// idRangeOffset, with the in-place pointer-arithmetic trick for a non-zero
// idRangeOffset translated into a direct index into glyphIdArray.
func (f *cmapFormat4) lookup(c uint16) (GlyphIndex, error) {
	i, ok := f.findSegment(c)
	if !ok {
		return 0, nil // no segment covers c -> .notdef
	}
	startCode, _ := f.startCode.u16(i * 2)
	if startCode > c {
		return 0, nil // c falls in the gap before this segment -> .notdef
	}
	delta, _ := f.idDelta.u16(i * 2)
	ro, _ := f.idRange.u16(i * 2)
	if ro == 0 {
		return GlyphIndex(uint16(c) + delta), nil
	}
	// gidIndex = ro/2 - (segCount - i) + (c - startCode[i])
	gidIndex := int(ro)/2 - (f.segCount - i) + int(c-startCode)
	if gidIndex < 0 {
		return 0, newDecodeError(ErrStructural, T("cmap"), "format 4: negative glyphIdArray index")
	}
	gid, err := f.glyphIDs.u16(gidIndex * 2)
	if err != nil {
		return 0, newDecodeError(ErrTruncation, T("cmap"), "format 4: glyphIdArray index out of range")
	}
	if gid == 0 {
		return 0, nil
	}
	return GlyphIndex(uint16(gid) + delta), nil
}

// findSegment returns the smallest index i with endCode[i] >= c, by binary
// search (endCode is guaranteed non-decreasing by construction).
func (f *cmapFormat4) findSegment(c uint16) (int, bool) {
	lo, hi := 0, f.segCount-1
	result := -1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		end, err := f.endCode.u16(mid * 2)
		if err != nil {
			return 0, false
		}
		if end >= c {
			result = mid
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	if result < 0 {
		return 0, false
	}
	return result, true
}

// Enumerate walks every segment and yields (codePoint, glyphID) pairs for
// every code point with a defined mapping — the streaming counterpart to
// GlyphIndexOf demanded by the OpenType specification and exercised by the invariant
// that both forms agree.
func (t *CMapTable) Enumerate(yield func(c rune, gid GlyphIndex) bool) {
	if t == nil || t.best == nil || t.best.format4 == nil {
		return
	}
	f := t.best.format4
	for i := 0; i < f.segCount; i++ {
		startCode, _ := f.startCode.u16(i * 2)
		endCode, _ := f.endCode.u16(i * 2)
		if startCode == 0xFFFF && endCode == 0xFFFF {
			continue // terminal sentinel segment, never a real mapping
		}
		for c := uint32(startCode); c <= uint32(endCode); c++ {
			gid, err := f.lookup(uint16(c))
			if err != nil || gid == 0 {
				continue
			}
			if !yield(rune(c), gid) {
				return
			}
			if c == 0xFFFF { // guard against uint32 wraparound at the loop edge
				break
			}
		}
	}
}

// Format reports which cmap format backs GlyphIndexOf, or (0, false)
// if no format-4 subtable was found among the encoding records.
func (t *CMapTable) Format() (CMapFormat, bool) {
	if t == nil || t.best == nil {
		return 0, false
	}
	return t.best.format, true
}

// EncodingRecordCount returns the number of encoding records in the cmap
// header, regardless of whether any are interpretable.
func (t *CMapTable) EncodingRecordCount() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}
