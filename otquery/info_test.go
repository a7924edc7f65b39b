package otquery

import (
	"encoding/binary"
	"testing"

	"github.com/npillmayer/opentype/ot"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/stretchr/testify/suite"
)

// --- Test Suite Preparation ------------------------------------------------

type InfoTestEnviron struct {
	suite.Suite
	otf *ot.Font
}

// listen for 'go test' command --> run test methods
func TestInfoFunctions(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tyse.fonts")
	defer teardown()
	suite.Run(t, new(InfoTestEnviron))
}

// run once, before test suite methods
func (env *InfoTestEnviron) SetupSuite() {
	env.T().Log("Setting up test suite")
	tracing.Select("tyse.fonts").SetTraceLevel(tracing.LevelError)
	otf, err := ot.Parse(buildTinyFont())
	env.Require().NoError(err, "expected synthetic test font to parse")
	env.otf = otf
	tracing.Select("tyse.fonts").SetTraceLevel(tracing.LevelInfo)
}

// run once, after test suite methods
func (env *InfoTestEnviron) TearDownSuite() {
	env.T().Log("Tearing down test suite")
}

// --- Tests -----------------------------------------------------------------

func (env *InfoTestEnviron) TestHeadInfo() {
	h, ok := HeadInfo(env.otf)
	env.Require().True(ok, "expected to decode table 'head'")

	headTable := env.otf.Table(ot.T("head")).Self().AsHead()
	env.Require().NotNil(headTable, "expected parsed HeadTable")

	env.Equal(headTable.Flags, h.Flags, "expected matching Flags")
	env.Equal(headTable.UnitsPerEm, h.UnitsPerEm, "expected matching UnitsPerEm")
	env.Equal(int16(headTable.IndexToLocFormat), h.IndexToLocFormat, "expected matching IndexToLocFormat")
	env.Equal(uint32(0x5F0F3CF5), h.MagicNumber, "expected OpenType head magic number")
}

func (env *InfoTestEnviron) TestMaxPInfo() {
	m, ok := MaxPInfo(env.otf)
	env.Require().True(ok, "expected to decode table 'maxp'")

	maxpTable := env.otf.Table(ot.T("maxp")).Self().AsMaxP()
	env.Require().NotNil(maxpTable, "expected parsed MaxPTable")

	env.Equal(uint16(maxpTable.NumGlyphs), m.NumGlyphs, "expected matching numGlyphs")
	env.True(m.HasExtendedProfile, "expected version 1.0 maxp to carry the TrueType profile fields")
}

func (env *InfoTestEnviron) TestFontMetrics() {
	m := FontMetrics(env.otf)
	env.EqualValues(1000, m.UnitsPerEm, "expected unitsPerEm from 'head'")
	env.EqualValues(800, m.Ascent, "expected ascender from 'hhea'")
}

func (env *InfoTestEnviron) TestGlyphLookupRoundtrip() {
	gid := GlyphIndex(env.otf, 'A')
	env.EqualValues(1, gid, "expected 'A' to map to glyph 1 via cmap format 4")

	cp := CodePointForGlyph(env.otf, gid)
	env.Equal('A', cp, "expected reverse lookup to recover the code-point")

	env.EqualValues(0, GlyphIndex(env.otf, 'Z'), "expected unmapped code-point to fall back to .notdef")
}

func (env *InfoTestEnviron) TestGlyphMetrics() {
	gm := GlyphMetrics(env.otf, 1)
	env.EqualValues(600, gm.Advance, "expected advance width from 'hmtx'")
	env.False(gm.BBox.IsEmpty(), "expected glyph 1 to carry a non-empty bounding box")
}

func (env *InfoTestEnviron) TestNamesRange() {
	family, _ := FamilyName(env.otf)
	env.Equal("Test", family)
}

// --- Helpers ----------------------------------------------------------

// FamilyName mirrors the root package's FamilyName helper without importing
// it (that would create an import cycle, since the root package imports
// otquery).
func FamilyName(otf *ot.Font) (family, subfamily string) {
	for nameID, value := range NamesRange(otf) {
		switch nameID {
		case 1:
			family = value
		case 2:
			subfamily = value
		}
	}
	return
}

// buildTinyFont assembles a minimal, valid single-glyph-outline TrueType
// font in memory: head, maxp, hhea, hmtx, cmap (format 4, one segment
// mapping 'A'), loca (short), glyf (one two-point contour for glyph 1,
// empty .notdef and glyph 2), and name (family "Test"). It exists purely
// to exercise the otquery accessors without depending on an external font
// file.
func buildTinyFont() []byte {
	be := binary.BigEndian

	head := make([]byte, 54)
	be.PutUint16(head[0:], 1)              // majorVersion
	be.PutUint16(head[2:], 0)              // minorVersion
	be.PutUint32(head[4:], 0x00010000)     // fontRevision
	be.PutUint32(head[12:], 0x5F0F3CF5)    // magicNumber
	be.PutUint16(head[18:], 1000)          // unitsPerEm
	be.PutUint16(head[44:], 0)             // macStyle
	be.PutUint16(head[46:], 8)             // lowestRecPPEM
	be.PutUint16(head[48:], 2)             // fontDirectionHint
	be.PutUint16(head[50:], 0)             // indexToLocFormat: short
	be.PutUint16(head[52:], 0)             // glyphDataFormat

	maxp := make([]byte, 32)
	be.PutUint32(maxp[0:], 0x00010000) // version 1.0
	be.PutUint16(maxp[4:], 3)          // numGlyphs

	hhea := make([]byte, 36)
	be.PutUint16(hhea[0:], 1)
	be.PutUint16(hhea[4:], 800)              // ascender
	be.PutUint16(hhea[6:], uint16(int16(-200))) // descender
	be.PutUint16(hhea[10:], 600)             // advanceWidthMax
	be.PutUint16(hhea[34:], 3)               // numberOfHMetrics

	hmtx := make([]byte, 12)
	for i := 0; i < 3; i++ {
		be.PutUint16(hmtx[i*4:], 600)
		be.PutUint16(hmtx[i*4+2:], 10)
	}

	// glyf: glyph 0 (.notdef) empty, glyph 1 a two-point single contour,
	// glyph 2 empty.
	glyph1 := make([]byte, 20)
	be.PutUint16(glyph1[0:], 1) // numberOfContours
	be.PutUint16(glyph1[2:], 0) // xMin
	be.PutUint16(glyph1[4:], 0) // yMin
	be.PutUint16(glyph1[6:], 15) // xMax
	be.PutUint16(glyph1[8:], 23) // yMax
	be.PutUint16(glyph1[10:], 1) // endPtsOfContours[0]
	be.PutUint16(glyph1[12:], 0) // instructionLength
	glyph1[14] = 0x37            // flags[0]: on-curve, x-short+pos, y-short+pos
	glyph1[15] = 0x37            // flags[1]
	glyph1[16] = 10              // xCoord[0]
	glyph1[17] = 5               // xCoord[1]
	glyph1[18] = 20              // yCoord[0]
	glyph1[19] = 3               // yCoord[1]

	glyf := append([]byte{}, glyph1...)

	locaVals := []uint16{0, 0, uint16(len(glyph1) / 2), uint16(len(glyph1) / 2)}
	loca := make([]byte, len(locaVals)*2)
	for i, v := range locaVals {
		be.PutUint16(loca[i*2:], v)
	}

	// cmap format 4: a single segment mapping 'A' (0x41) to glyph 1, plus
	// the mandatory 0xFFFF terminator segment.
	const segCount = 2
	cmapSub := make([]byte, 14+segCount*2+2+segCount*2+segCount*2+segCount*2)
	be.PutUint16(cmapSub[0:], 4)                 // format
	be.PutUint16(cmapSub[2:], uint16(len(cmapSub)))
	be.PutUint16(cmapSub[6:], segCount*2) // segCountX2
	be.PutUint16(cmapSub[8:], 4)          // searchRange
	be.PutUint16(cmapSub[10:], 1)         // entrySelector
	be.PutUint16(cmapSub[12:], 0)         // rangeShift
	endCodes := cmapSub[14:]
	be.PutUint16(endCodes[0:], 0x41)
	be.PutUint16(endCodes[2:], 0xFFFF)
	startCodes := cmapSub[14+segCount*2+2:]
	be.PutUint16(startCodes[0:], 0x41)
	be.PutUint16(startCodes[2:], 0xFFFF)
	idDeltas := cmapSub[14+segCount*2+2+segCount*2:]
	be.PutUint16(idDeltas[0:], uint16(int16(1-0x41)))
	be.PutUint16(idDeltas[2:], 1)
	idRangeOffsets := cmapSub[14+segCount*2+2+segCount*2+segCount*2:]
	be.PutUint16(idRangeOffsets[0:], 0)
	be.PutUint16(idRangeOffsets[2:], 0)

	cmap := make([]byte, 4+8+len(cmapSub))
	be.PutUint16(cmap[2:], 1)     // numTables
	be.PutUint16(cmap[4:], 3)     // platformID: Windows
	be.PutUint16(cmap[6:], 1)     // encodingID: BMP
	be.PutUint32(cmap[8:], 12)    // offset to subtable
	copy(cmap[12:], cmapSub)

	// name: one Family (nameID 1) record, "Test", Windows/BMP/en-US.
	familyUTF16 := make([]byte, 0, 8)
	for _, r := range "Test" {
		familyUTF16 = append(familyUTF16, byte(r>>8), byte(r))
	}
	name := make([]byte, 6+12+len(familyUTF16))
	be.PutUint16(name[2:], 1)                       // count
	be.PutUint16(name[4:], uint16(6+12))             // stringOffset
	rec := name[6:]
	be.PutUint16(rec[0:], 3)                        // platformID
	be.PutUint16(rec[2:], 1)                        // encodingID
	be.PutUint16(rec[4:], 0x409)                    // languageID
	be.PutUint16(rec[6:], 1)                        // nameID: Family
	be.PutUint16(rec[8:], uint16(len(familyUTF16)))
	be.PutUint16(rec[10:], 0) // offset within string storage
	copy(name[18:], familyUTF16)

	return assembleSFNT(map[string][]byte{
		"cmap": cmap,
		"glyf": glyf,
		"head": head,
		"hhea": hhea,
		"hmtx": hmtx,
		"loca": loca,
		"maxp": maxp,
		"name": name,
	})
}

// assembleSFNT builds a well-formed sfnt table directory and payload from
// a tag-to-bytes map, padding every table to a 4-byte boundary as required
// by the OpenType specification.
func assembleSFNT(tables map[string][]byte) []byte {
	be := binary.BigEndian
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	// table directory records must be sorted by tag
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j-1] > tags[j]; j-- {
			tags[j-1], tags[j] = tags[j], tags[j-1]
		}
	}

	n := len(tags)
	dirSize := 12 + 16*n
	offset := uint32(dirSize)
	type rec struct {
		tag    string
		off    uint32
		length uint32
	}
	recs := make([]rec, 0, n)
	var payload []byte
	for _, tag := range tags {
		data := tables[tag]
		recs = append(recs, rec{tag: tag, off: offset, length: uint32(len(data))})
		payload = append(payload, data...)
		pad := (4 - len(data)%4) % 4
		for i := 0; i < pad; i++ {
			payload = append(payload, 0)
		}
		offset += uint32(len(data) + pad)
	}

	out := make([]byte, dirSize)
	be.PutUint32(out[0:], 0x00010000)
	be.PutUint16(out[4:], uint16(n))
	for i, r := range recs {
		base := 12 + i*16
		copy(out[base:], []byte(r.tag))
		be.PutUint32(out[base+8:], r.off)
		be.PutUint32(out[base+12:], r.length)
	}
	return append(out, payload...)
}
