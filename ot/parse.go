package ot

import (
	"fmt"
	"math"
)

// Code comments often cite passages from the OpenType specification
// version 1.9 and the Apple TrueType Reference Manual's chapter on
// 'morx'; see https://docs.microsoft.com/en-us/typography/opentype/spec/
// and https://developer.apple.com/fonts/TrueType-Reference-Manual/.

// ---------------------------------------------------------------------------

// Maximum reasonable counts for OpenType table structures.
// These limits prevent malicious fonts from claiming unreasonably large counts
// that could lead to excessive memory allocation or out-of-bounds reads.
const (
	MaxScriptCount    = 50   // Scripts: typically < 10
	MaxFeatureCount   = 500  // Features: typically < 200
	MaxTagListCount   = 100  // Tag lists
	MaxRecordMapCount = 1000 // Generic tag record maps
	MaxChainCount     = 64   // morx chains
	MaxSubtableCount  = 256  // morx subtables per chain
)

// ---------------------------------------------------------------------------

// Checked arithmetic operations to prevent integer overflow.

func checkedMulInt(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > 0 && b > 0 && a > math.MaxInt/b {
		return 0, fmt.Errorf("integer overflow: %d * %d", a, b)
	}
	if a < 0 && b < 0 && a < math.MaxInt/b {
		return 0, fmt.Errorf("integer overflow: %d * %d", a, b)
	}
	if (a < 0 && b > 0 && a < math.MinInt/b) || (a > 0 && b < 0 && b < math.MinInt/a) {
		return 0, fmt.Errorf("integer overflow: %d * %d", a, b)
	}
	return a * b, nil
}

func checkedAddInt(a, b int) (int, error) {
	if b > 0 && a > math.MaxInt-b {
		return 0, fmt.Errorf("integer overflow: %d + %d", a, b)
	}
	if b < 0 && a < math.MinInt-b {
		return 0, fmt.Errorf("integer overflow: %d + %d", a, b)
	}
	return a + b, nil
}

func checkedMulUint32(a, b uint32) (uint32, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint32/b {
		return 0, fmt.Errorf("integer overflow: %d * %d", a, b)
	}
	return a * b, nil
}

func checkedAddUint32(a, b uint32) (uint32, error) {
	if a > math.MaxUint32-b {
		return 0, fmt.Errorf("integer overflow: %d + %d", a, b)
	}
	return a + b, nil
}

// ---------------------------------------------------------------------------

// errFontFormat produces a user-level error for font parsing.
func errFontFormat(message string) error {
	return fmt.Errorf("OpenType font format: %s", message)
}

// ---------------------------------------------------------------------------

// Parse parses a single OpenType font (not a collection) from a byte
// slice: reads the Offset Table, walks the (tag-sorted) table directory,
// and dispatches each table's bytes to parseTable. For a TTC collection
// buffer, use OpenCollection and Collection.Get instead; Parse treats the
// whole buffer as one font's table directory starting at byte 0.
//
// An ot.Font needs ongoing access to the font's byte-data after Parse
// returns. Its elements are assumed immutable while the Font remains in
// use.
func Parse(font []byte, opts ...ParseOption) (*Font, error) {
	return parseAt(binarySegm(font), 0, opts...)
}

// parseAt parses the table directory starting at byte dirOffset within
// src. For a standalone font, dirOffset is 0 and src is the whole file;
// for a member of a TTC collection, dirOffset is that member's entry in
// the collection header and src is the whole collection buffer — table
// record offsets are always absolute from the start of src, per the
// OpenType spec, in both cases.
func parseAt(src binarySegm, dirOffset uint32, opts ...ParseOption) (*Font, error) {
	dir := src.tail(int(dirOffset))
	if len(dir) < 12 {
		return nil, errFontFormat("font too small for an offset table")
	}
	fontType, _ := dir.u32(0)
	tableCount, _ := dir.u16(4)
	h := FontHeader{FontType: fontType, TableCount: tableCount}
	tracer().Debugf("header = %v, tag = %x|%s", h, h.FontType, Tag(h.FontType).String())

	ec := &errorCollector{}

	if !(h.FontType == 0x4f54544f || // OTTO
		h.FontType == 0x00010000 || // TrueType
		h.FontType == 0x74727565) { // 'true'
		ec.addError(T(""), "Header", fmt.Sprintf("font type not supported: %x", h.FontType), SeverityCritical, dirOffset)
		return nil, errFontFormat(fmt.Sprintf("font type not supported: %x", h.FontType))
	}
	otf := &Font{Header: &h, tables: make(map[Tag]Table), parseOptions: opts}

	tableRecordsSize, err := checkedMulInt(16, int(h.TableCount))
	if err != nil {
		ec.addError(T(""), "TableRecords", fmt.Sprintf("table count too large: %v", err), SeverityCritical, dirOffset+12)
		return nil, errFontFormat(fmt.Sprintf("table count too large: %v", err))
	}
	buf, err := dir.view(12, tableRecordsSize)
	if err != nil {
		ec.addError(T(""), "TableRecords", "table record entries", SeverityCritical, dirOffset+12)
		return nil, errFontFormat("table record entries")
	}
	for b, prevTag := buf, Tag(0); len(b) > 0; b = b[16:] {
		tag := MakeTag(b)
		if tag < prevTag {
			ec.addError(T(""), "TableRecords", "table order", SeverityCritical, 12)
			return nil, errFontFormat("table order")
		}
		prevTag = tag
		off, size := u32(b[8:12]), u32(b[12:16])
		if off&3 != 0 { // "all tables must begin on four byte boundaries"; checksums ignored
			ec.addError(tag, "Offset", "invalid table offset", SeverityCritical, off)
			return nil, errFontFormat("invalid table offset")
		}
		tableEnd, err := checkedAddUint32(off, size)
		if err != nil {
			ec.addError(tag, "Size", fmt.Sprintf("size calculation overflow: %v", err), SeverityCritical, off)
			return nil, errFontFormat(fmt.Sprintf("table %s: size calculation overflow: %v", tag, err))
		}
		if off > uint32(len(src)) || tableEnd > uint32(len(src)) {
			ec.addError(tag, "Bounds", fmt.Sprintf("bounds [%d:%d] exceed font size %d", off, tableEnd, len(src)), SeverityCritical, off)
			return nil, errFontFormat(fmt.Sprintf("table %s: bounds [%d:%d] exceed font size %d",
				tag, off, tableEnd, len(src)))
		}
		otf.tables[tag], err = parseTable(tag, src[off:tableEnd], off, size, ec)
		if err != nil {
			return nil, err
		}
	}

	// Wire up cross-table shortcuts and dependent fields, mirroring the
	// order of dependency: maxp.NumGlyphs feeds loca's glyph count; head's
	// IndexToLocFormat selects loca's offset width; hhea.NumberOfHMetrics
	// feeds hmtx's metric-array split.
	var numGlyphs int
	if maxpTable, ok := otf.tables[T("maxp")]; ok {
		maxp := maxpTable.Self().AsMaxP()
		numGlyphs = maxp.NumGlyphs
	}
	if hh, ok := otf.tables[T("hhea")]; ok {
		hhead := hh.Self().AsHHea()
		otf.HHea = hhead
		if mx, ok := otf.tables[T("hmtx")]; ok {
			hmtx := mx.Self().AsHMtx()
			if err := hmtx.parseAll(numGlyphs, hhead.NumberOfHMetrics); err != nil {
				ec.addWarning(T("hmtx"), err.Error(), 0)
			}
			otf.HMtx = hmtx
		}
	}
	var headTable *HeadTable
	if he, ok := otf.tables[T("head")]; ok {
		headTable = he.Self().AsHead()
	}
	if lo, ok := otf.tables[T("loca")]; ok {
		loca := lo.Self().AsLoca()
		if headTable != nil && headTable.IndexToLocFormat == 1 {
			loca.inx2loc = longLocaVersion
		}
		loca.locCnt = numGlyphs + 1 // loca has numGlyphs+1 entries
		otf.Loca = loca
	}
	if gl, ok := otf.tables[T("glyf")]; ok {
		glyf := gl.Self().AsGlyf()
		glyf.loca = otf.Loca
		otf.Glyf = glyf
	}
	if cm, ok := otf.tables[T("cmap")]; ok {
		otf.CMap = cm.Self().AsCMap()
	}
	if os2, ok := otf.tables[T("OS/2")]; ok {
		otf.OS2 = os2.Self().AsOS2()
	}
	if mx, ok := otf.tables[T("morx")]; ok {
		otf.Morx = mx.Self().AsMorx()
	}
	if gs, ok := otf.tables[T("GSUB")]; ok {
		otf.GSub = gs.Self().AsGSub()
	}

	otf.parseErrors = ec.errors
	otf.parseWarnings = ec.warnings
	return otf, nil
}

// parseTable dispatches a table's raw bytes to its decoder based on tag.
// Tags this decoder does not interpret are still exposed via the table
// directory as an uninterpreted generic Table.
func parseTable(t Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	switch t {
	case T("cmap"):
		return parseCMap(t, b, offset, size, ec)
	case T("head"):
		return parseHead(t, b, offset, size, ec)
	case T("glyf"):
		return newGlyfTable(t, b, offset, size), nil
	case T("loca"):
		return newLocaTable(t, b, offset, size), nil
	case T("maxp"):
		return parseMaxP(t, b, offset, size, ec)
	case T("hhea"):
		return parseHHea(t, b, offset, size, ec)
	case T("hmtx"):
		return parseHMtx(t, b, offset, size, ec)
	case T("OS/2"):
		return parseOS2(t, b, offset, size, ec)
	case T("morx"):
		return parseMorx(t, b, offset, size, ec)
	case T("GSUB"):
		return parseGSubHeader(t, b, offset, size, ec)
	}
	tracer().Infof("font contains table (%s), will not be interpreted", t)
	ec.addWarning(t, "table not interpreted", offset)
	return newTable(t, b, offset, size), nil
}

// --- Head table --------------------------------------------------------

func parseHead(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if size < 54 {
		ec.addError(tag, "Size", fmt.Sprintf("head table too small: %d bytes (need 54)", size), SeverityCritical, offset)
		return nil, errFontFormat("size of head table")
	}
	t := newHeadTable(tag, b, offset, size)
	t.Flags, _ = b.u16(16)
	t.UnitsPerEm, _ = b.u16(18)
	t.IndexToLocFormat, _ = b.u16(50) // 0: short loca offsets, 1: long
	if t.IndexToLocFormat != 0 && t.IndexToLocFormat != 1 {
		ec.addError(tag, "IndexToLocFormat", fmt.Sprintf("invalid value: %d (must be 0 or 1)", t.IndexToLocFormat), SeverityCritical, offset)
		return nil, errFontFormat("invalid head.IndexToLocFormat")
	}
	return t, nil
}

// --- MaxP table ----------------------------------------------------------

func parseMaxP(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if size < 6 {
		ec.addError(tag, "Size", "maxp table too small", SeverityCritical, offset)
		return nil, errFontFormat("size of maxp table")
	}
	t := newMaxPTable(tag, b, offset, size)
	n, _ := b.u16(4)
	t.NumGlyphs = int(n)
	if size >= 32 {
		d, _ := b.u16(30) // maxComponentDepth, version-1.0 extension
		t.MaxComponentDepth = int(d)
	}
	return t, nil
}

// --- HHea table ------------------------------------------------------------

func parseHHea(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if size < 36 {
		ec.addError(tag, "Size", fmt.Sprintf("hhea table too small: %d bytes (need 36)", size), SeverityCritical, offset)
		return nil, errFontFormat("hhea table incomplete")
	}
	t := newHHeaTable(tag, b, offset, size)
	a, _ := b.i16(4)
	d, _ := b.i16(6)
	lg, _ := b.i16(8)
	t.Ascender, t.Descender, t.LineGap = a, d, lg
	n, _ := b.u16(34)
	t.NumberOfHMetrics = int(n)
	return t, nil
}

// --- HMtx table ------------------------------------------------------------

func parseHMtx(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	return newHMtxTable(tag, b, offset, size), nil
}

// --- OS/2 table ------------------------------------------------------------

// parseOS2 decodes the version 0-5 field set of table 'OS/2', treating
// each version-gated tail field as an Option[T] that is None once the
// declared table size runs out — the same "stop reading, return what you
// have" approach as the Rust original's Option<T>-returning Stream::read
// (original_source/src/os_2.rs), ported as an explicit length check
// rather than relying on implicit short-read semantics.
func parseOS2(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if size < 78 {
		ec.addError(tag, "Size", fmt.Sprintf("OS/2 table too small: %d bytes (need 78)", size), SeverityCritical, offset)
		return nil, errFontFormat("size of OS/2 table")
	}
	t := newOS2Table(tag, b, offset, size)
	t.Version, _ = b.u16(0)
	t.XAvgCharWidth, _ = b.i16(2)
	t.WeightClass, _ = b.u16(4)
	t.WidthClass, _ = b.u16(6)
	t.FsType, _ = b.u16(8)
	t.YSubscriptXSize, _ = b.i16(10)
	t.YSubscriptYSize, _ = b.i16(12)
	t.YSubscriptXOffset, _ = b.i16(14)
	t.YSubscriptYOffset, _ = b.i16(16)
	t.YSuperscriptXSize, _ = b.i16(18)
	t.YSuperscriptYSize, _ = b.i16(20)
	t.YSuperscriptXOffset, _ = b.i16(22)
	t.YSuperscriptYOffset, _ = b.i16(24)
	t.YStrikeoutSize, _ = b.i16(26)
	t.YStrikeoutPosition, _ = b.i16(28)
	t.FamilyClass, _ = b.i16(30)
	copy(t.Panose[:], b[32:42])
	t.UnicodeRange1, _ = b.u32(42)
	t.UnicodeRange2, _ = b.u32(46)
	t.UnicodeRange3, _ = b.u32(50)
	t.UnicodeRange4, _ = b.u32(54)
	vid, _ := b.u32(58)
	t.VendID = Tag(vid)
	t.FsSelection, _ = b.u16(62)
	t.FirstCharIndex, _ = b.u16(64)
	t.LastCharIndex, _ = b.u16(66)

	readI16 := func(off int) Option[int16] {
		if int(size) < off+2 {
			return None[int16]()
		}
		v, err := b.i16(off)
		if err != nil {
			return None[int16]()
		}
		return Some(v)
	}
	readU16 := func(off int) Option[uint16] {
		if int(size) < off+2 {
			return None[uint16]()
		}
		v, err := b.u16(off)
		if err != nil {
			return None[uint16]()
		}
		return Some(v)
	}
	readU32 := func(off int) Option[uint32] {
		if int(size) < off+4 {
			return None[uint32]()
		}
		v, err := b.u32(off)
		if err != nil {
			return None[uint32]()
		}
		return Some(v)
	}
	t.TypoAscender = readI16(68)
	t.TypoDescender = readI16(70)
	t.TypoLineGap = readI16(72)
	t.WinAscent = readU16(74)
	t.WinDescent = readU16(76)
	t.CodePageRange1 = readU32(78)
	t.CodePageRange2 = readU32(82)
	t.XHeight = readI16(86)
	t.CapHeight = readI16(88)
	t.DefaultChar = readU16(90)
	t.BreakChar = readU16(92)
	t.MaxContext = readU16(94)
	t.LowerOpticalPointSize = readU16(96)
	t.UpperOpticalPointSize = readU16(98)
	return t, nil
}
