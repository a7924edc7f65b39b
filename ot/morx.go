package ot

import "fmt"

// Extended State Table entry widths, per subtable type:
// 4 bytes for Rearrangement (newState, flags), 8 bytes for Contextual
// (newState, flags, markIndex, currentIndex). Ligature and Insertion are
// "wider structures"; their exact widths (6 and 8 bytes respectively) are
// taken from the Apple AAT 'morx' chapter, since the OpenType spec leaves them
// unspecified beyond "wider."
const (
	rearrangementEntrySize = 4
	contextualEntrySize    = 8
	ligatureEntrySize      = 6
	insertionEntrySize     = 8
)

// MorxSubtableType is the low byte of a morx subtable's coverage field,
// selecting one of five state-machine subtable shapes.
type MorxSubtableType int

const (
	MorxRearrangement  MorxSubtableType = 0
	MorxContextual     MorxSubtableType = 1
	MorxLigature       MorxSubtableType = 2
	MorxNoncontextual  MorxSubtableType = 4
	MorxInsertion      MorxSubtableType = 5
)

func (t MorxSubtableType) String() string {
	switch t {
	case MorxRearrangement:
		return "Rearrangement"
	case MorxContextual:
		return "Contextual"
	case MorxLigature:
		return "Ligature"
	case MorxNoncontextual:
		return "Non-contextual"
	case MorxInsertion:
		return "Insertion"
	default:
		return "Unsupported"
	}
}

// MorxTable is the decoded 'morx' (Extended Glyph Metamorphosis) table: a
// header followed by a list of chains.
type MorxTable struct {
	tableBase
	Version uint16
	Chains  []MorxChain
}

func newMorxTable(tag Tag, b binarySegm, offset, size uint32) *MorxTable {
	t := &MorxTable{}
	t.tableBase = tableBase{data: b, name: tag, offset: offset, length: size}
	t.self = t
	return t
}

// MorxChain is one metamorphosis chain: a default feature-flag mask, a
// feature-toggle record list, and a list of subtables applied in order.
type MorxChain struct {
	DefaultFlags uint32
	Length       uint32
	Features     []MorxFeature
	Subtables    []*MorxSubtable
}

// MorxFeature is a single feature-toggle record within a chain.
type MorxFeature struct {
	FeatureType    uint16
	FeatureSetting uint16
	EnableFlags    uint32
	DisableFlags   uint32
}

// MorxSubtable is a decoded metamorphosis subtable: its header plus a
// type-specific payload. Exactly one of StateTable / NonContextual is
// non-nil, depending on Type.
type MorxSubtable struct {
	Length          uint32
	Coverage        uint32
	Type            MorxSubtableType
	SubFeatureFlags uint32

	StateTable    *ExtendedStateTable // Rearrangement, Contextual, Ligature, Insertion
	NonContextual *LookupTable        // Non-contextual only
}

// ExtendedStateTable is the (class lookup, 2D state array, entry table)
// triple described by the Apple AAT specification. The three regions may
// appear in any order in memory; region boundaries are derived from the
// set of declared offsets rather than assumed.
type ExtendedStateTable struct {
	NClasses   int
	ClassTable *LookupTable
	stateArray binarySegm // state_count x NClasses, entries are uint16 entry indices
	entryTable binarySegm // entryCount x entryWidth
	entryWidth int
	stateCount int
}

// parseMorx decodes the 'morx' table header and every chain it contains.
func parseMorx(tag Tag, b binarySegm, offset, size uint32, ec *errorCollector) (Table, error) {
	if len(b) < 8 {
		ec.addError(tag, "Header", "morx table too small for header", SeverityCritical, offset)
		return nil, newDecodeError(ErrTruncation, tag, "header")
	}
	t := newMorxTable(tag, b, offset, size)
	version, _ := b.u16(0)
	nChains, _ := b.u32(4)
	t.Version = version
	if version != 2 && version != 3 {
		ec.addWarning(tag, fmt.Sprintf("unexpected morx version %d (expected 2 or 3)", version), offset)
	}
	if nChains > MaxChainCount {
		ec.addError(tag, "ChainCount", fmt.Sprintf("nChains %d exceeds maximum %d", nChains, MaxChainCount), SeverityCritical, offset)
		return nil, newDecodeError(ErrStructural, tag, "nChains too large")
	}
	cursor := 8
	for i := uint32(0); i < nChains; i++ {
		chain, consumed, err := parseMorxChain(b.tail(cursor), ec)
		if err != nil {
			ec.addWarning(tag, fmt.Sprintf("chain %d: %v", i, err), uint32(cursor))
			break
		}
		t.Chains = append(t.Chains, chain)
		cursor += consumed
	}
	return t, nil
}

// parseMorxChain decodes one chain starting at b[0], returning the chain
// and the number of bytes to advance (chain.Length, validated to be a
// multiple of 4).
func parseMorxChain(b binarySegm, ec *errorCollector) (MorxChain, int, error) {
	if len(b) < 16 {
		return MorxChain{}, 0, newDecodeError(ErrTruncation, T("morx"), "chain header")
	}
	defaultFlags, _ := b.u32(0)
	chainLength, _ := b.u32(4)
	nFeatureEntries, _ := b.u32(8)
	nSubtables, _ := b.u32(12)
	if chainLength%4 != 0 {
		return MorxChain{}, 0, newDecodeError(ErrStructural, T("morx"), "chainLength not a multiple of 4")
	}
	if int(chainLength) > len(b) {
		return MorxChain{}, 0, newDecodeError(ErrTruncation, T("morx"), "chainLength exceeds available bytes")
	}
	if nFeatureEntries > MaxRecordMapCount || nSubtables > MaxSubtableCount {
		return MorxChain{}, 0, newDecodeError(ErrStructural, T("morx"), "chain feature/subtable count too large")
	}
	chain := MorxChain{DefaultFlags: defaultFlags, Length: chainLength}

	cursor := 16
	for i := uint32(0); i < nFeatureEntries; i++ {
		fb, err := b.view(cursor, 12)
		if err != nil {
			return MorxChain{}, 0, newDecodeError(ErrTruncation, T("morx"), "feature record")
		}
		ft, _ := fb.u16(0)
		fs, _ := fb.u16(2)
		enable, _ := fb.u32(4)
		disable, _ := fb.u32(8)
		chain.Features = append(chain.Features, MorxFeature{
			FeatureType: ft, FeatureSetting: fs, EnableFlags: enable, DisableFlags: disable,
		})
		cursor += 12
	}

	for i := uint32(0); i < nSubtables; i++ {
		if cursor+12 > int(chainLength) {
			ec.addWarning(T("morx"), fmt.Sprintf("subtable %d: declared past chainLength", i), uint32(cursor))
			break
		}
		sub, consumed, err := parseMorxSubtable(b.tail(cursor))
		if err != nil {
			ec.addWarning(T("morx"), fmt.Sprintf("subtable %d: %v", i, err), uint32(cursor))
			break
		}
		chain.Subtables = append(chain.Subtables, sub)
		cursor += consumed
	}
	return chain, int(chainLength), nil
}

// parseMorxSubtable decodes one subtable header and dispatches to the
// type-specific payload decoder. Returns the subtable and the number of
// bytes (subtable.Length) to advance by.
func parseMorxSubtable(b binarySegm) (*MorxSubtable, int, error) {
	if len(b) < 12 {
		return nil, 0, newDecodeError(ErrTruncation, T("morx"), "subtable header")
	}
	length, _ := b.u32(0)
	coverage, _ := b.u32(4)
	subFeatureFlags, _ := b.u32(8)
	if length < 12 || int(length) > len(b) {
		return nil, 0, newDecodeError(ErrStructural, T("morx"), "subtable length out of bounds")
	}
	subType := MorxSubtableType(coverage & 0xFF)
	payload, err := b.view(12, int(length)-12)
	if err != nil {
		return nil, 0, newDecodeError(ErrTruncation, T("morx"), "subtable payload")
	}
	st := &MorxSubtable{Length: length, Coverage: coverage, Type: subType, SubFeatureFlags: subFeatureFlags}
	switch subType {
	case MorxRearrangement:
		est, err := parseExtendedStateTable(payload, rearrangementEntrySize)
		if err != nil {
			return nil, 0, err
		}
		st.StateTable = est
	case MorxContextual:
		est, err := parseExtendedStateTable(payload, contextualEntrySize)
		if err != nil {
			return nil, 0, err
		}
		st.StateTable = est
	case MorxLigature:
		est, err := parseExtendedStateTable(payload, ligatureEntrySize)
		if err != nil {
			return nil, 0, err
		}
		st.StateTable = est
	case MorxInsertion:
		est, err := parseExtendedStateTable(payload, insertionEntrySize)
		if err != nil {
			return nil, 0, err
		}
		st.StateTable = est
	case MorxNoncontextual:
		lt, err := parseLookupTable(payload)
		if err != nil {
			return nil, 0, err
		}
		st.NonContextual = lt
	default:
		return nil, 0, newDecodeError(ErrUnsupported, T("morx"), fmt.Sprintf("subtable type byte %d", subType))
	}
	return st, int(length), nil
}

// parseExtendedStateTable decodes the (nClasses, classTableOffset,
// stateArrayOffset, entryTableOffset) header and its three referenced
// regions. The three regions may appear in any order in memory, so each
// region's end is derived as the next-greater offset among the three (or
// the payload end, whichever is smaller) rather than assumed from a
// canonical ordering — functionally the same technique as the Rust
// original's `make_rank` helper.
func parseExtendedStateTable(b binarySegm, entryWidth int) (*ExtendedStateTable, error) {
	if len(b) < 8 {
		return nil, newDecodeError(ErrTruncation, T("morx"), "extended state table header")
	}
	nClasses, _ := b.u32(0)
	classOff, _ := b.u32(4)
	var stateOff, entryOff uint32
	if len(b) < 16 {
		return nil, newDecodeError(ErrTruncation, T("morx"), "extended state table header")
	}
	stateOff, _ = b.u32(8)
	entryOff, _ = b.u32(12)
	if nClasses == 0 {
		return nil, newDecodeError(ErrStructural, T("morx"), "nClasses is 0")
	}
	payloadEnd := uint32(len(b))
	offsets := [3]uint32{classOff, stateOff, entryOff}
	regionEnd := func(idx int) uint32 {
		end := payloadEnd
		for i, o := range offsets {
			if i != idx && o > offsets[idx] && o < end {
				end = o
			}
		}
		return end
	}

	classEnd := regionEnd(0)
	if classOff > payloadEnd || classEnd < classOff {
		return nil, newDecodeError(ErrStructural, T("morx"), "class table offset out of bounds")
	}
	classBytes, err := b.view(int(classOff), int(classEnd-classOff))
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("morx"), "class table region")
	}
	classTable, err := parseLookupTable(classBytes)
	if err != nil {
		return nil, err
	}

	stateEnd := regionEnd(1)
	if stateOff > payloadEnd || stateEnd < stateOff {
		return nil, newDecodeError(ErrStructural, T("morx"), "state array offset out of bounds")
	}
	stateArray, err := b.view(int(stateOff), int(stateEnd-stateOff))
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("morx"), "state array region")
	}

	entryEnd := regionEnd(2)
	if entryOff > payloadEnd || entryEnd < entryOff {
		return nil, newDecodeError(ErrStructural, T("morx"), "entry table offset out of bounds")
	}
	entryTable, err := b.view(int(entryOff), int(entryEnd-entryOff))
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("morx"), "entry table region")
	}

	rowWidth, err := checkedMulInt(int(nClasses), 2)
	if err != nil {
		return nil, newDecodeError(ErrStructural, T("morx"), "nClasses too large")
	}
	stateCount := 0
	if rowWidth > 0 {
		stateCount = len(stateArray) / rowWidth
	}

	return &ExtendedStateTable{
		NClasses:   int(nClasses),
		ClassTable: classTable,
		stateArray: stateArray,
		entryTable: entryTable,
		entryWidth: entryWidth,
		stateCount: stateCount,
	}, nil
}

// EntryIndex returns the entry-table index referenced by state_array[state][class].
func (est *ExtendedStateTable) EntryIndex(state, class int) (int, error) {
	if est == nil {
		return 0, newDecodeError(ErrStructural, T("morx"), "nil state table")
	}
	if class < 0 || class >= est.NClasses {
		return 0, newDecodeError(ErrStructural, T("morx"), fmt.Sprintf("class %d out of range [0,%d)", class, est.NClasses))
	}
	if state < 0 || state >= est.stateCount {
		return 0, newDecodeError(ErrStructural, T("morx"), fmt.Sprintf("state %d out of range [0,%d)", state, est.stateCount))
	}
	off := state*est.NClasses*2 + class*2
	v, err := est.stateArray.u16(off)
	if err != nil {
		return 0, newDecodeError(ErrTruncation, T("morx"), "state array read")
	}
	return int(v), nil
}

// Entry returns the raw bytes of entry index i, and the state index that
// its newStateByteOffset field resolves to. newStateByteOffset is a byte
// offset into the state array and must be a multiple of 2*NClasses; a
// violation is reported as an ErrInvariant DecodeError rather than
// silently truncated.
func (est *ExtendedStateTable) Entry(i int) (entry binarySegm, newState int, err error) {
	if est == nil {
		return nil, 0, newDecodeError(ErrStructural, T("morx"), "nil state table")
	}
	off := i * est.entryWidth
	entry, ferr := est.entryTable.view(off, est.entryWidth)
	if ferr != nil {
		return nil, 0, newDecodeError(ErrTruncation, T("morx"), fmt.Sprintf("entry %d out of range", i))
	}
	newStateByteOffset, _ := entry.u16(0)
	rowWidth := est.NClasses * 2
	if rowWidth == 0 || int(newStateByteOffset)%rowWidth != 0 {
		return entry, 0, newDecodeError(ErrInvariant, T("morx"), "newStateByteOffset not a multiple of 2*nClasses")
	}
	return entry, int(newStateByteOffset) / rowWidth, nil
}

// StateCount returns the number of rows in the state array.
func (est *ExtendedStateTable) StateCount() int {
	if est == nil {
		return 0
	}
	return est.stateCount
}
