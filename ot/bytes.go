package ot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Reading bytes from a font's binary representation.
//
// This is the zero-copy core: every decoded value is either a primitive
// read off a bounded byte slice, or a view that borrows from it. Nothing
// here ever copies bulk table data; "decoding" a table produces typed
// accessors over the same underlying buffer the caller supplied.

var errBufferBounds = errors.New("internal inconsistency: buffer bounds error")

func u16(b []byte) uint16 {
	_ = b[1] // Bounds check hint to compiler
	return uint16(b[0])<<8 | uint16(b[1])<<0
}

func u32(b []byte) uint32 {
	_ = b[3] // Bounds check hint to compiler
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])<<0
}

// --- Locations, i.e. byte segments/slices -----------------------------------

// NavLocation is a position at a byte within a font's binary data.
// It represents the start of a segment/slice of binary data.
//
// It is the client's responsibility to interpret the structure and impose
// it onto the NavLocation's bytes. If an error occurred somewhere along a
// chain of navigation calls, the finally resulting NavLocation may be of
// size 0.
type NavLocation interface {
	Size() int                  // size in bytes
	Bytes() []byte               // return as a byte slice
	Slice(int, int) NavLocation // return a sub-segment of this location
	U16(int) uint16             // convenience access to 16 bit data at byte index
	U32(int) uint32             // convenience access to 32 bit data at byte index
	Glyphs() []GlyphIndex       // convenience conversion to slice of glyphs
}

// binarySegm is a segment of byte data, the basic Byte Reader/Byte View
// type. We use it throughout this module to navigate the font's binary
// data without ever allocating a copy of it.
type binarySegm []byte

func (b binarySegm) Size() int {
	return len(b)
}

func (b binarySegm) Bytes() []byte {
	return b
}

// Slice returns a sub-segment of this location.
func (b binarySegm) Slice(from int, to int) NavLocation {
	if from < 0 {
		from = 0
	}
	if to > len(b) {
		to = len(b)
	}
	if from > to {
		return binarySegm{}
	}
	return b[from:to]
}

func (b binarySegm) Reader() io.Reader {
	return bytes.NewReader(b)
}

func (b binarySegm) U16(i int) uint16 {
	n, err := b.u16(i)
	if err != nil {
		return 0
	}
	return n
}

func (b binarySegm) U32(i int) uint32 {
	n, err := b.u32(i)
	if err != nil {
		return 0
	}
	return n
}

// Glyphs interprets this segment as a tightly-packed array of 16-bit glyph
// indices, e.g. cmap's trailing glyphIdArray.
func (b binarySegm) Glyphs() []GlyphIndex {
	n := len(b) / 2
	glyphs := make([]GlyphIndex, n)
	for i := 0; i < n; i++ {
		glyphs[i] = GlyphIndex(b[2*i])<<8 | GlyphIndex(b[2*i+1])
	}
	return glyphs
}

// view returns n bytes at the given offset as a sub-slice of b. Any read
// that would exceed b's bounds fails cleanly instead of panicking; b is
// never advanced or mutated by a failed read.
func (b binarySegm) view(offset, n int) (binarySegm, error) {
	if offset < 0 || n < 0 || offset+n > len(b) {
		return nil, errBufferBounds
	}
	return b[offset : offset+n], nil
}

// u16 returns the uint16 in b at the relative offset i.
func (b binarySegm) u16(i int) (uint16, error) {
	buf, err := b.view(i, 2)
	if err != nil {
		return 0, err
	}
	return u16(buf), nil
}

// u32 returns the uint32 in b at the relative offset i.
func (b binarySegm) u32(i int) (uint32, error) {
	buf, err := b.view(i, 4)
	if err != nil {
		return 0, err
	}
	return u32(buf), nil
}

// i16 returns the signed int16 at relative offset i.
func (b binarySegm) i16(i int) (int16, error) {
	n, err := b.u16(i)
	if err != nil {
		return 0, err
	}
	return int16(n), nil
}

// fixed reads a Fixed (16.16 signed fixed-point) value at offset i.
func (b binarySegm) fixed(i int) (Fixed, error) {
	n, err := b.u32(i)
	if err != nil {
		return 0, err
	}
	return Fixed(int32(n)), nil
}

// f2dot14 reads an F2DOT14 (2.14 signed fixed-point) value at offset i.
func (b binarySegm) f2dot14(i int) (F2Dot14, error) {
	n, err := b.u16(i)
	if err != nil {
		return 0, err
	}
	return F2Dot14(int16(n)), nil
}

// longDateTime reads a LONGDATETIME (signed 64-bit seconds since
// 1904-01-01 00:00:00 UTC) value at offset i.
func (b binarySegm) longDateTime(i int) (int64, error) {
	buf, err := b.view(i, 8)
	if err != nil {
		return 0, err
	}
	hi := u32(buf[:4])
	lo := u32(buf[4:])
	return int64(uint64(hi)<<32 | uint64(lo)), nil
}

// tail returns everything from offset i to the end of b.
func (b binarySegm) tail(i int) binarySegm {
	if i < 0 || i > len(b) {
		return binarySegm{}
	}
	return b[i:]
}

// --- Fixed-point numeric types -----------------------------------------

// Fixed is a 32-bit signed 16.16 fixed-point value.
type Fixed int32

// Float64 converts a Fixed to a double.
func (f Fixed) Float64() float64 {
	return float64(f) / 65536.0
}

// F2Dot14 is a 16-bit signed 2.14 fixed-point value, used for scaling
// components of composite glyphs.
type F2Dot14 int16

// Float64 converts an F2Dot14 to a double.
func (f F2Dot14) Float64() float64 {
	return float64(f) / 16384.0
}

// --- Ranges of glyphs --------------------------------------------------

// GlyphRange is a type frequently used by sub-tables of layout tables
// (GPOS and GSUB). If an input glyph g is contained in the range, an
// index and true is returned, false otherwise.
//
// Match is defensive: it never assumes the underlying records are sorted
// and never panics on a malformed range, even though callers that DO know
// their data is sorted (e.g. tag lookup) may use a faster binary search
// instead.
type GlyphRange interface {
	Match(g GlyphIndex) (int, bool)
	ByteSize() int
}

type glyphRangeRecords struct {
	count    int
	data     binarySegm
	byteSize int
}

func (r *glyphRangeRecords) Match(g GlyphIndex) (int, bool) {
	if r.count <= 0 {
		return 0, false
	}
	const recSize = 6
	for i := 0; i < r.count; i++ {
		from, err := r.data.u16(i * recSize)
		if err != nil {
			return 0, false
		}
		to, err := r.data.u16(i*recSize + 2)
		if err != nil {
			return 0, false
		}
		startIndex, err := r.data.u16(i*recSize + 4)
		if err != nil {
			return 0, false
		}
		if GlyphIndex(from) <= g && g <= GlyphIndex(to) {
			return int(startIndex) + int(g-GlyphIndex(from)), true
		}
	}
	return 0, false
}

func (r *glyphRangeRecords) ByteSize() int {
	return r.byteSize
}

// --- Tag list ----------------------------------------------------------

type tagList struct {
	Count int
	base  binarySegm
}

// parseTagList parses a uint16-count-prefixed array of 4-byte tags.
func parseTagList(b binarySegm) tagList {
	if len(b) < 2 {
		return tagList{}
	}
	count := int(u16(b))
	if count > MaxTagListCount {
		tracer().Errorf("tag list count %d exceeds maximum %d", count, MaxTagListCount)
		return tagList{}
	}
	requiredSize := 2 + count*4
	if requiredSize > len(b) {
		tracer().Errorf("tag list: count %d requires %d bytes, have %d", count, requiredSize, len(b))
		return tagList{}
	}
	return tagList{Count: count, base: b[2:]}
}

func (l tagList) Tag(i int) Tag {
	if i < 0 || (i+1)*4 > len(l.base) {
		return Tag(0)
	}
	n, err := l.base.u32(i * 4)
	if err != nil {
		return Tag(0)
	}
	return Tag(n)
}

// --- Link ----------------------------------------------------------------

// NavLink represents an offset-based indirection between one structure and
// another: a zero offset is NULL (IsNull), any other offset is resolved
// against a base segment by Jump. Out-of-bounds offsets resolve to an
// empty (size-0) NavLocation rather than panicking.
type NavLink interface {
	Base() NavLocation
	Jump() NavLocation
	IsNull() bool
	Name() string
}

// parseLink16 parses a 16-bit offset field at offset within b, relative to
// base.
func parseLink16(b binarySegm, offset int, base binarySegm, target string) (NavLink, error) {
	if len(b) < offset+2 {
		return link16{}, errBufferBounds
	}
	n, _ := b.u16(offset)
	if n > 0 && int(n) > len(base) {
		return link16{}, fmt.Errorf("offset16 to %s out of bounds: %d > %d", target, n, len(base))
	}
	return link16{target: target, base: base, offset: n}, nil
}

func makeLink16(offset uint16, base binarySegm, target string) NavLink {
	return link16{target: target, base: base, offset: offset}
}

type link16 struct {
	target string
	base   binarySegm
	offset uint16
}

func (l16 link16) IsNull() bool {
	return l16.offset == 0 || len(l16.base) == 0
}

func (l16 link16) Name() string {
	return l16.target
}

func (l16 link16) Base() NavLocation {
	return l16.base
}

func (l16 link16) Jump() NavLocation {
	if l16.offset > uint16(len(l16.base)) {
		tracer().Debugf("offset16 link to %s out of table bounds (%d > %d)", l16.target, l16.offset, len(l16.base))
		return binarySegm{}
	}
	return l16.base[l16.offset:]
}

// parseLink32 parses a 32-bit offset field at offset within b, relative to
// base.
func parseLink32(b binarySegm, offset int, base binarySegm, target string) (NavLink, error) {
	if len(b) < offset+4 {
		return link32{}, errBufferBounds
	}
	n, _ := b.u32(offset)
	if n > 0 && int(n) > len(base) {
		return link32{}, fmt.Errorf("offset32 to %s out of bounds: %d > %d", target, n, len(base))
	}
	return link32{target: target, base: base, offset: n}, nil
}

func makeLink32(offset uint32, base binarySegm, target string) NavLink {
	return link32{target: target, base: base, offset: offset}
}

type link32 struct {
	target string
	base   binarySegm
	offset uint32
}

func (l32 link32) IsNull() bool {
	return l32.offset == 0 || len(l32.base) == 0
}

func (l32 link32) Name() string {
	return l32.target
}

func (l32 link32) Base() NavLocation {
	return l32.base
}

func (l32 link32) Jump() NavLocation {
	if l32.offset > uint32(len(l32.base)) {
		tracer().Debugf("offset32 link to %s out of table bounds (%d > %d)", l32.target, l32.offset, len(l32.base))
		return binarySegm{}
	}
	return l32.base[l32.offset:]
}

// --- Typed Fixed-Size Arrays -----------------------------------------------

// array is a Typed Fixed-Size Array: a linear sequence of equal-sized
// records over a byte segment. Get parses the i-th element on demand;
// nothing is copied or pre-decoded.
type array struct {
	name       string
	target     string
	recordSize int
	length     int
	loc        binarySegm
}

// viewArray wraps the whole of b as an array of records of recordSize
// bytes each; len(b) need not be an exact multiple (trailing bytes, as in
// cmap's glyphIdArray, are simply inaccessible via Get).
func viewArray(b binarySegm, recordSize int) array {
	if recordSize <= 0 {
		return array{}
	}
	n := b.Size() / recordSize
	return array{recordSize: recordSize, length: n, loc: b}
}

// parseArray16 reads a uint16 count at offset within b, followed by count
// records of recordSize bytes.
func parseArray16(b binarySegm, offset int, recordSize int, name, target string) (array, error) {
	if len(b) < offset+2 {
		return array{name: name, target: target}, errBufferBounds
	}
	n, err := b.u16(offset)
	if err != nil {
		return array{}, err
	}
	headerSize := offset + 2
	requiredSize := headerSize + int(n)*recordSize
	if requiredSize > len(b) {
		return array{}, fmt.Errorf("array16 %s: count %d * recordSize %d requires %d bytes, have %d",
			name, n, recordSize, requiredSize, len(b))
	}
	return array{
		name:       name,
		target:     target,
		recordSize: recordSize,
		length:     int(n),
		loc:        b[headerSize:requiredSize],
	}, nil
}

func (a array) Name() string { return a.name }

// Size of array a in bytes.
func (a array) Size() int { return a.length * a.recordSize }

// Len returns the number of entries in the array.
func (a array) Len() int { return a.length }

// Get returns the i-th record as a byte location. An out-of-range index
// yields an empty location rather than panicking.
func (a array) Get(i int) NavLocation {
	if i < 0 || i >= a.length {
		return binarySegm{}
	}
	b, err := a.loc.view(i*a.recordSize, a.recordSize)
	if err != nil {
		return binarySegm{}
	}
	return b
}

// BinarySearch performs a binary search over a's records using cmp, which
// must report <0/0/>0 when comparing the i-th record against the sought
// key. It returns the matching index and true, or (0, false) if cmp never
// reports equality. It does not assume a is sorted beyond what cmp itself
// implies, and it never panics on an empty or malformed array.
func (a array) BinarySearch(cmp func(rec NavLocation) int) (int, bool) {
	lo, hi := 0, a.length-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		rec := a.Get(mid)
		if rec.Size() == 0 {
			return 0, false
		}
		c := cmp(rec)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return 0, false
}

// --- Tag record map ----------------------------------------------------

// tagRecordMap16 interprets a byte segment as `count uint16` followed by
// `count` records of (tag Tag, offset16) — the layout shared by
// ScriptList and FeatureList. Record lookups by tag are binary search
// because both lists are specified to be tag-sorted; Get by index is
// always available regardless of order.
type tagRecordMap16 struct {
	name    string
	target  string
	base    binarySegm
	records array
}

// parseTagRecordMap16 reads a uint16 count at offset within b, followed by
// count (tag, offset16) records, each resolved against base.
func parseTagRecordMap16(b binarySegm, offset int, base binarySegm, name, target string) tagRecordMap16 {
	if len(b) < offset+2 {
		tracer().Errorf("buffer too small for tag record map %s", name)
		return tagRecordMap16{}
	}
	n, err := b.u16(offset)
	if err != nil {
		return tagRecordMap16{}
	}
	var maxCount int
	switch name {
	case "ScriptList":
		maxCount = MaxScriptCount
	case "FeatureList":
		maxCount = MaxFeatureCount
	default:
		maxCount = MaxRecordMapCount
	}
	if int(n) > maxCount {
		tracer().Errorf("tag record map %s: count %d exceeds maximum %d", name, n, maxCount)
		return tagRecordMap16{}
	}
	const recordSize = 6 // Tag (4 bytes) + offset16 (2 bytes)
	records, err := parseArray16(b, offset, recordSize, name, target)
	if err != nil {
		tracer().Errorf("tag record map %s: %v", name, err)
		return tagRecordMap16{}
	}
	return tagRecordMap16{name: name, target: target, base: base, records: records}
}

// LookupTag performs a binary search by tag (ScriptList/FeatureList are
// specified to be sorted); it returns a null link if no record matches.
func (m tagRecordMap16) LookupTag(tag Tag) NavLink {
	if len(m.base) == 0 {
		return link16{}
	}
	idx, ok := m.records.BinarySearch(func(rec NavLocation) int {
		rtag := MakeTag(rec.Bytes()[:4])
		switch {
		case rtag < tag:
			return -1
		case rtag > tag:
			return 1
		default:
			return 0
		}
	})
	if !ok {
		return link16{}
	}
	_, link := m.Get(idx)
	return link
}

// Tags returns all tags used as keys, in record order.
func (m tagRecordMap16) Tags() []Tag {
	tags := make([]Tag, 0, m.records.length)
	for i := 0; i < m.records.length; i++ {
		b := m.records.Get(i)
		tags = append(tags, MakeTag(b.Bytes()[:4]))
	}
	return tags
}

func (m tagRecordMap16) Name() string { return m.name }
func (m tagRecordMap16) Len() int     { return m.records.length }

// Get returns the tag and link of the i-th record, in on-disk order.
func (m tagRecordMap16) Get(i int) (Tag, NavLink) {
	b := m.records.Get(i)
	if b.Size() == 0 {
		return 0, link16{}
	}
	tag := MakeTag(b.Bytes()[:4])
	link, err := parseLink16(b.Bytes(), 4, m.base, m.target)
	if err != nil {
		return 0, link16{}
	}
	return tag, link
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
