package otquery

import (
	"github.com/npillmayer/opentype/ot"
	"golang.org/x/image/font/sfnt"
)

// --- Font Information -------------------------------------------------

// FontSupportsScript returns a tuple (script-tag, language-tag) for a given input
// of a script tag and a language tag. If the language has no special support in the
// font, DFLT will be returned. If the script has no support in the font,
// DFLT will be returned for the script.
//
// GSUB decoding is headers-only (no substitution execution), so this only
// consults the ScriptList/LangSysRecords structure, never lookup contents.
func FontSupportsScript(otf *ot.Font, scr ot.Tag, lang ot.Tag) (ot.Tag, ot.Tag) {
	if otf == nil || otf.GSub == nil {
		return ot.DFLT, ot.DFLT
	}
	loc, ok := otf.GSub.Script(scr)
	if !ok {
		tracer().Infof("cannot find script %s in font", scr.String())
		return ot.DFLT, ot.DFLT
	}
	tracer().Debugf("script %s is contained in GSUB", scr.String())
	if ot.HasLangSys(loc, lang) {
		return scr, lang
	}
	return scr, ot.DFLT
}

// FontMetrics retrieves selected metrics of a font.
func FontMetrics(otf *ot.Font) FontMetricsInfo {
	metrics := FontMetricsInfo{}
	if table := otf.Table(ot.T("hhea")); table != nil {
		if hhea := table.Self().AsHHea(); hhea != nil {
			metrics.Ascent = sfnt.Units(hhea.Ascender)
			metrics.Descent = sfnt.Units(hhea.Descender)
			metrics.LineGap = sfnt.Units(hhea.LineGap)
			metrics.MaxAdvance = sfnt.Units(hhea.AdvanceWidthMax)
		}
	}
	if metrics.Ascent == 0 && metrics.Descent == 0 {
		if table := otf.Table(ot.T("OS/2")); table != nil {
			if os2 := table.Self().AsOS2(); os2 != nil {
				tracer().Debugf("OS/2")
				if os2.TypoAscender.IsSome() {
					a := sfnt.Units(os2.TypoAscender.MustUnwrap())
					if a > metrics.Ascent {
						tracer().Debugf("override of ascent: %d -> %d", metrics.Ascent, a)
						metrics.Ascent = a
					}
				}
				if os2.TypoDescender.IsSome() {
					d := sfnt.Units(os2.TypoDescender.MustUnwrap())
					if d < metrics.Descent {
						tracer().Debugf("override of descent: %d -> %d", metrics.Descent, d)
						metrics.Descent = d
					}
				}
			}
		}
	}
	head := otf.Table(ot.T("head")).Self().AsHead() // Head is a required table
	metrics.UnitsPerEm = sfnt.Units(head.UnitsPerEm)
	return metrics
}

// --- Glyph Routines --------------------------------------------------------

// GlyphIndex returns the glyph index for a give code-point.
// If the code-point cannot be found, 0 is returned.
//
// From the OpenType specification: character codes that do not correspond to any glyph in
// the font should be mapped to glyph index 0. The glyph at this location must be a special
// glyph representing a missing character, commonly known as '.notdef'.
func GlyphIndex(otf *ot.Font, codepoint rune) ot.GlyphIndex {
	if otf == nil || otf.CMap == nil {
		return 0
	}
	gid, ok := otf.CMap.GlyphIndexOf(codepoint)
	if !ok {
		return 0
	}
	return gid
}

// CodePointForGlyph returns the code-point for a given glyph index.
//
// This is an inefficient operation: All code-points contained in the font's CMap
// are enumerated sequentially until one maps to the given glyph.
// If the glyph index does not correspond to a code-point, 0 is returned.
func CodePointForGlyph(otf *ot.Font, gid ot.GlyphIndex) rune {
	if gid == 0 || otf == nil || otf.CMap == nil {
		return 0
	}
	var found rune
	otf.CMap.Enumerate(func(c rune, g ot.GlyphIndex) bool {
		if g == gid {
			found = c
			return false
		}
		return true
	})
	return found
}

// GlyphMetrics retrieves metrics for a given glyph.
func GlyphMetrics(otf *ot.Font, gid ot.GlyphIndex) GlyphMetricsInfo {
	metrics := GlyphMetricsInfo{}
	//
	// table HMtx: advance width and left side bearing
	hmtx := otf.Table(ot.T("hmtx")).Self().AsHMtx() // required table in OpenType
	if hmtx != nil {
		if aw, lsb, ok := hmtx.HMetrics(gid); ok {
			metrics.Advance = sfnt.Units(aw)
			metrics.LSB = sfnt.Units(lsb)
		}
	}
	//
	// table glyf: bounding box
	if glyf := otf.Table(ot.T("glyf")); glyf != nil {
		if lo := otf.Table(ot.T("loca")); lo != nil {
			loca := lo.Self().AsLoca()
			loc := loca.IndexToLocation(gid)
			b := glyf.Binary()[loc:]
			if len(b) >= 10 {
				metrics.BBox = BoundingBox{
					MinX: sfnt.Units(i16(b[2:])),
					MinY: sfnt.Units(i16(b[4:])),
					MaxX: sfnt.Units(i16(b[6:])),
					MaxY: sfnt.Units(i16(b[8:])),
				}
			}
		}
	}
	// RSB calculation: rsb = aw - (lsb + xMax - xMin)
	// If a glyph has no contours, xMax/xMin are not defined. The left side bearing indicated
	// in the 'hmtx' table for such glyphs should be zero.
	if !metrics.BBox.IsEmpty() { // leave RSB for empty bboxes
		metrics.RSB = metrics.Advance - (metrics.LSB + metrics.BBox.Dx())
	}
	return metrics
}

// --- Helpers ----------------------------------------------------------

// func i32(b []byte) int32 {
// 	return int32(b[0])<<24 | int32(b[1])<<16 | int32(b[2])<<8 | int32(b[3])<<0
// }
