package otquery

import (
	"encoding/binary"

	"github.com/npillmayer/opentype/ot"
)

// StatAxis is one design axis declared in a font's 'STAT' table.
type StatAxis struct {
	Tag      ot.Tag
	NameID   uint16
	Ordering uint16
}

// AxisValueFormat identifies which of the four STAT AxisValueTable layouts
// a given axis-value entry uses.
type AxisValueFormat uint16

const (
	AxisValueFormat1 AxisValueFormat = 1
	AxisValueFormat2 AxisValueFormat = 2
	AxisValueFormat3 AxisValueFormat = 3
	AxisValueFormat4 AxisValueFormat = 4
)

// AxisValueEntry is a decoded STAT AxisValueTable, normalized across all
// four formats. AxisIndices has one entry for formats 1-3 (the single axis
// the entry applies to) and one entry per contributing axis for format 4.
// Value/RangeMin/RangeMax/LinkedValue are populated only for the formats
// that declare them (2 has a range, 3 has a linked value, 4 has neither).
type AxisValueEntry struct {
	Format      AxisValueFormat
	AxisIndices []uint16
	Flags       uint16
	ValueNameID uint16
	Value       float64
	RangeMin    float64
	RangeMax    float64
	LinkedValue float64
}

// StatInfo is a decoded view of a font's 'STAT' (style attributes) table.
type StatInfo struct {
	DesignAxes          []StatAxis
	AxisValues          []AxisValueEntry
	ElidedFallbackNameID uint16
}

const statHeaderSize = 20

// FontStyleAttributes decodes the 'STAT' table, if present.
//
// AxisValueTable format 4's unknown-id-count caveat: format 4 entries
// contribute one AxisIndices value per axis named in the table itself, not
// per DesignAxes entry, so AxisIndices for a format-4 entry may reference
// fewer axes than DesignAxes has — callers must not assume a 1:1
// correspondence to DesignAxes' own ordering.
func FontStyleAttributes(otf *ot.Font) (StatInfo, bool) {
	var info StatInfo
	if otf == nil {
		return info, false
	}
	table := otf.Table(ot.T("STAT"))
	if table == nil {
		return info, false
	}
	b := table.Binary()
	if len(b) < statHeaderSize {
		return info, false
	}
	designAxisSize := int(binary.BigEndian.Uint16(b[4:6]))
	designAxisCount := int(binary.BigEndian.Uint16(b[6:8]))
	designAxesOffset := int(binary.BigEndian.Uint32(b[8:12]))
	axisValueCount := int(binary.BigEndian.Uint16(b[12:14]))
	offsetToAxisValueOffsets := int(binary.BigEndian.Uint32(b[14:18]))
	info.ElidedFallbackNameID = binary.BigEndian.Uint16(b[18:20])

	if designAxisSize < 8 {
		return info, false
	}
	info.DesignAxes = make([]StatAxis, 0, designAxisCount)
	for i := 0; i < designAxisCount; i++ {
		start := designAxesOffset + i*designAxisSize
		end := start + 8
		if end > len(b) {
			break
		}
		rec := b[start:end]
		info.DesignAxes = append(info.DesignAxes, StatAxis{
			Tag:      ot.MakeTag(rec[0:4]),
			NameID:   binary.BigEndian.Uint16(rec[4:6]),
			Ordering: binary.BigEndian.Uint16(rec[6:8]),
		})
	}

	info.AxisValues = make([]AxisValueEntry, 0, axisValueCount)
	for i := 0; i < axisValueCount; i++ {
		offStart := offsetToAxisValueOffsets + i*2
		if offStart+2 > len(b) {
			break
		}
		rel := int(binary.BigEndian.Uint16(b[offStart : offStart+2]))
		tableStart := offsetToAxisValueOffsets + rel
		entry, ok := parseAxisValueTable(b, tableStart)
		if !ok {
			continue
		}
		info.AxisValues = append(info.AxisValues, entry)
	}
	return info, true
}

func parseAxisValueTable(b []byte, start int) (AxisValueEntry, bool) {
	var e AxisValueEntry
	if start+2 > len(b) {
		return e, false
	}
	format := AxisValueFormat(binary.BigEndian.Uint16(b[start : start+2]))
	switch format {
	case AxisValueFormat1:
		if start+12 > len(b) {
			return e, false
		}
		rec := b[start:]
		e = AxisValueEntry{
			Format:      format,
			AxisIndices: []uint16{binary.BigEndian.Uint16(rec[2:4])},
			Flags:       binary.BigEndian.Uint16(rec[4:6]),
			ValueNameID: binary.BigEndian.Uint16(rec[6:8]),
			Value:       fixedAt(rec, 8),
		}
	case AxisValueFormat2:
		if start+20 > len(b) {
			return e, false
		}
		rec := b[start:]
		e = AxisValueEntry{
			Format:      format,
			AxisIndices: []uint16{binary.BigEndian.Uint16(rec[2:4])},
			Flags:       binary.BigEndian.Uint16(rec[4:6]),
			ValueNameID: binary.BigEndian.Uint16(rec[6:8]),
			Value:       fixedAt(rec, 8),
			RangeMin:    fixedAt(rec, 12),
			RangeMax:    fixedAt(rec, 16),
		}
	case AxisValueFormat3:
		if start+16 > len(b) {
			return e, false
		}
		rec := b[start:]
		e = AxisValueEntry{
			Format:      format,
			AxisIndices: []uint16{binary.BigEndian.Uint16(rec[2:4])},
			Flags:       binary.BigEndian.Uint16(rec[4:6]),
			ValueNameID: binary.BigEndian.Uint16(rec[6:8]),
			Value:       fixedAt(rec, 8),
			LinkedValue: fixedAt(rec, 12),
		}
	case AxisValueFormat4:
		if start+8 > len(b) {
			return e, false
		}
		rec := b[start:]
		axisCount := int(binary.BigEndian.Uint16(rec[2:4]))
		e = AxisValueEntry{
			Format:      format,
			Flags:       binary.BigEndian.Uint16(rec[4:6]),
			ValueNameID: binary.BigEndian.Uint16(rec[6:8]),
			AxisIndices: make([]uint16, 0, axisCount),
		}
		for i := 0; i < axisCount; i++ {
			avStart := 8 + i*6
			if start+avStart+6 > len(b) {
				break
			}
			av := rec[avStart : avStart+6]
			e.AxisIndices = append(e.AxisIndices, binary.BigEndian.Uint16(av[0:2]))
		}
	default:
		return e, false
	}
	return e, true
}
