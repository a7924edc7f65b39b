package ot

import "fmt"

const markFilteringSetFlag = 0x0010 // USE_MARK_FILTERING_SET bit of lookupFlag

// GSubHeader is the headers-only decoding of 'GSUB': ScriptList,
// FeatureList, and LookupList are exposed as records and headers, but
// substitution execution is out of scope.
type GSubHeader struct {
	tableBase
	MajorVersion            uint16
	MinorVersion            uint16
	scriptList              tagRecordMap16
	featureList             tagRecordMap16
	lookupList              binarySegm // the LookupList sub-table, starting at its own count field
	lookupCount             int
	FeatureVariationsOffset Option[uint32] // present iff (major,minor) == (1,1)
}

func newGSubHeader(tag Tag, b binarySegm, offset, size uint32) *GSubHeader {
	t := &GSubHeader{}
	t.tableBase = tableBase{data: b, name: tag, offset: offset, length: size}
	t.self = t
	return t
}

// parseGSubHeader decodes the GSUB table header
// (majorVersion, minorVersion, scriptListOffset, featureListOffset,
// lookupListOffset, featureVariationsOffset?) and the three list headers.
func parseGSubHeader(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if len(b) < 10 {
		ec.addError(tag, "Header", "GSUB table too small for header", SeverityCritical, offset)
		return nil, newDecodeError(ErrTruncation, tag, "header")
	}
	major, _ := b.u16(0)
	minor, _ := b.u16(2)
	scriptOff, _ := b.u16(4)
	featureOff, _ := b.u16(6)
	lookupOff, _ := b.u16(8)

	t := newGSubHeader(tag, b, offset, size)
	t.MajorVersion, t.MinorVersion = major, minor
	t.FeatureVariationsOffset = None[uint32]()
	if major == 1 && minor == 1 {
		if len(b) < 14 {
			ec.addWarning(tag, "version 1.1 header truncated before featureVariationsOffset", offset)
		} else {
			fvOff, _ := b.u32(10)
			t.FeatureVariationsOffset = Some(fvOff)
		}
	}

	scriptBytes := b.tail(int(scriptOff))
	t.scriptList = parseTagRecordMap16(scriptBytes, 0, scriptBytes, "ScriptList", "Script")

	featureBytes := b.tail(int(featureOff))
	t.featureList = parseTagRecordMap16(featureBytes, 0, featureBytes, "FeatureList", "Feature")

	lookupBytes := b.tail(int(lookupOff))
	if len(lookupBytes) < 2 {
		ec.addWarning(tag, "LookupList truncated", offset)
	} else {
		n, err := lookupBytes.u16(0)
		if err != nil {
			ec.addWarning(tag, "LookupList count unreadable", offset)
		} else {
			t.lookupList = lookupBytes
			t.lookupCount = int(n)
		}
	}
	return t, nil
}

// Scripts returns every tag in the ScriptList, in on-disk order.
func (g *GSubHeader) Scripts() []Tag {
	if g == nil {
		return nil
	}
	return g.scriptList.Tags()
}

// Script looks up a script record by tag; ScriptList is guaranteed
// alphabetically sorted, so this is O(log n).
func (g *GSubHeader) Script(tag Tag) (NavLocation, bool) {
	if g == nil {
		return nil, false
	}
	link := g.scriptList.LookupTag(tag)
	if link.IsNull() {
		return nil, false
	}
	return link.Jump(), true
}

// Features returns every tag in the FeatureList, in on-disk order.
func (g *GSubHeader) Features() []Tag {
	if g == nil {
		return nil
	}
	return g.featureList.Tags()
}

// Feature looks up a feature record by tag; FeatureList is guaranteed
// alphabetically sorted, so this is O(log n).
func (g *GSubHeader) Feature(tag Tag) (NavLocation, bool) {
	if g == nil {
		return nil, false
	}
	link := g.featureList.LookupTag(tag)
	if link.IsNull() {
		return nil, false
	}
	return link.Jump(), true
}

// HasLangSys reports whether the Script table found at loc declares a
// LangSys record for lang, or has a DefaultLangSys and lang is the zero
// tag. Script tables list their LangSysRecords tag-sorted, so the search
// is a binary search once past the small fixed header.
func HasLangSys(loc NavLocation, lang Tag) bool {
	if loc == nil || loc.Size() < 4 {
		return false
	}
	defaultLangSysOffset := loc.U16(0)
	langSysCount := loc.U16(2)
	if lang == 0 {
		return defaultLangSysOffset != 0
	}
	b := binarySegm(loc.Bytes())
	lo, hi := 0, int(langSysCount)
	for lo < hi {
		mid := (lo + hi) / 2
		recOff := 4 + mid*6
		tagBytes, err := b.view(recOff, 4)
		if err != nil {
			return false
		}
		v, _ := tagBytes.u32(0)
		t := Tag(v)
		switch {
		case t == lang:
			return true
		case t < lang:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// LookupCount returns the number of lookups in the LookupList. LookupList
// does not guarantee tag order (it isn't even tag-keyed), so only O(1)
// index access is offered.
func (g *GSubHeader) LookupCount() int {
	if g == nil {
		return 0
	}
	return g.lookupCount
}

// GSubLookup is one lookup sub-record's header: its type, flags, the
// offsets of its (uninterpreted) subtables, and an optional mark-filtering
// set index. Subtable contents are not decoded — substitution execution is
// out of scope.
type GSubLookup struct {
	LookupType       uint16
	LookupFlag       uint16
	SubtableOffsets  []uint16
	MarkFilteringSet Option[uint16]
}

// Lookup decodes the i-th entry of the LookupList by index.
func (g *GSubHeader) Lookup(i int) (*GSubLookup, error) {
	if g == nil || i < 0 || i >= g.lookupCount {
		return nil, newDecodeError(ErrStructural, T("GSUB"), fmt.Sprintf("lookup index %d out of range", i))
	}
	off, err := g.lookupList.u16(2 + i*2)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("GSUB"), "LookupList offset array")
	}
	lb := g.lookupList.tail(int(off))
	if len(lb) < 6 {
		return nil, newDecodeError(ErrTruncation, T("GSUB"), "lookup table header")
	}
	lookupType, _ := lb.u16(0)
	lookupFlag, _ := lb.u16(2)
	subCount, _ := lb.u16(4)
	if lookupType < 1 || lookupType > 8 {
		tracer().Infof("GSUB lookup %d has unusual lookupType %d", i, lookupType)
	}
	offs, err := lb.view(6, int(subCount)*2)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("GSUB"), "subtable offset array")
	}
	subtableOffsets := make([]uint16, subCount)
	for j := 0; j < int(subCount); j++ {
		v, _ := offs.u16(j * 2)
		subtableOffsets[j] = v
	}
	lookup := &GSubLookup{LookupType: lookupType, LookupFlag: lookupFlag, SubtableOffsets: subtableOffsets}
	lookup.MarkFilteringSet = None[uint16]()
	if lookupFlag&markFilteringSetFlag != 0 {
		mfsOff := 6 + int(subCount)*2
		if v, err := lb.u16(mfsOff); err == nil {
			lookup.MarkFilteringSet = Some(v)
		}
	}
	return lookup, nil
}
