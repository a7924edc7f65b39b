package ot

import "fmt"

// magic 'ttcf', the leading four bytes of a TrueType/OpenType Collection
// file.
const ttcMagic = 0x74746366

// Collection is a parsed OpenType Font Collection (.ttc): a shared byte
// buffer plus an array of offsets, each locating one font's table
// directory within that buffer. Every Font returned by Get borrows from
// the same buffer; none of them copy bulk data.
type Collection struct {
	data         binarySegm
	MajorVersion uint16
	MinorVersion uint16
	offsets      []uint32
	// present only for version 2 collections (DSIG fields); recorded but
	// not interpreted, matching how DSIG is treated everywhere else in
	// this decoder.
	dsigTag    uint32
	dsigLength uint32
	dsigOffset uint32
}

// IsCollection reports whether buffer begins with the 'ttcf' magic, i.e.
// whether Parse should be routed through OpenCollection instead.
func IsCollection(buffer []byte) bool {
	if len(buffer) < 4 {
		return false
	}
	return u32(buffer[:4]) == ttcMagic
}

// OpenCollection parses a TTC header: magic, (majorVersion, minorVersion,
// numFonts, offsets[numFonts]). It does not parse any individual font's
// table directory; call Get for that.
func OpenCollection(buffer []byte) (*Collection, error) {
	b := binarySegm(buffer)
	if len(b) < 16 {
		return nil, newDecodeError(ErrTruncation, Tag(0), "TTC header")
	}
	magic, _ := b.u32(0)
	if magic != ttcMagic {
		return nil, newDecodeError(ErrStructural, Tag(0), "not a TTC collection (bad magic)")
	}
	major, _ := b.u16(4)
	minor, _ := b.u16(6)
	numFonts, _ := b.u32(8)
	if numFonts == 0 {
		return nil, newDecodeError(ErrStructural, Tag(0), "TTC: numFonts is 0")
	}
	if numFonts > MaxRecordMapCount {
		return nil, newDecodeError(ErrStructural, Tag(0), fmt.Sprintf("TTC: numFonts %d exceeds maximum", numFonts))
	}
	offsetsSize, err := checkedMulInt(int(numFonts), 4)
	if err != nil {
		return nil, newDecodeError(ErrStructural, Tag(0), "TTC: numFonts too large")
	}
	offsetBytes, err := b.view(12, offsetsSize)
	if err != nil {
		return nil, newDecodeError(ErrTruncation, Tag(0), "TTC: offset table")
	}
	c := &Collection{data: b, MajorVersion: major, MinorVersion: minor}
	c.offsets = make([]uint32, numFonts)
	for i := 0; i < int(numFonts); i++ {
		off, _ := offsetBytes.u32(i * 4)
		if int(off) > len(b) {
			return nil, newDecodeError(ErrStructural, Tag(0), fmt.Sprintf("TTC: font %d offset out of bounds", i))
		}
		c.offsets[i] = off
	}
	if major == 2 {
		dsigOff := 12 + offsetsSize
		if dsigBuf, err := b.view(dsigOff, 12); err == nil {
			tag, _ := dsigBuf.u32(0)
			length, _ := dsigBuf.u32(4)
			offset, _ := dsigBuf.u32(8)
			c.dsigTag, c.dsigLength, c.dsigOffset = tag, length, offset
		}
	}
	return c, nil
}

// NumFonts returns the number of fonts in the collection.
func (c *Collection) NumFonts() int {
	if c == nil {
		return 0
	}
	return len(c.offsets)
}

// Get parses and returns the i-th font in the collection. Each call
// re-parses that font's table directory from the shared buffer; Fonts
// returned by different calls share the same backing bytes but are
// otherwise independent.
func (c *Collection) Get(i int, opts ...ParseOption) (*Font, error) {
	if c == nil || i < 0 || i >= len(c.offsets) {
		return nil, newDecodeError(ErrStructural, Tag(0), fmt.Sprintf("TTC: font index %d out of range", i))
	}
	return parseAt(c.data, c.offsets[i], opts...)
}
