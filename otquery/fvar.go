package otquery

import (
	"encoding/binary"

	"github.com/npillmayer/opentype/ot"
)

// VariationAxis describes one design axis declared in a font's 'fvar'
// table: its tag, its minimum/default/maximum coordinate, and the name ID
// of its display string.
type VariationAxis struct {
	Tag               ot.Tag
	Min, Default, Max float64
	Flags             uint16
	NameID            uint16
}

// NamedInstance describes one preset combination of axis coordinates,
// e.g. "Condensed Bold", as declared in a font's 'fvar' table.
type NamedInstance struct {
	SubfamilyNameID  uint16
	Coordinates      []float64 // one value per axis, in VariationInfo.Axes order
	PostScriptNameID uint16    // 0 if absent
}

// VariationInfo is a decoded view of a font's 'fvar' table.
type VariationInfo struct {
	Axes      []VariationAxis
	Instances []NamedInstance
}

const (
	fvarHeaderSize     = 16
	fvarAxisRecordSize = 20
)

// FontVariations decodes the 'fvar' table, if present. Fonts without
// variation axes (the common case for the fonts this decoder targets)
// report (zero value, false).
func FontVariations(otf *ot.Font) (VariationInfo, bool) {
	var info VariationInfo
	if otf == nil {
		return info, false
	}
	table := otf.Table(ot.T("fvar"))
	if table == nil {
		return info, false
	}
	b := table.Binary()
	if len(b) < fvarHeaderSize {
		return info, false
	}
	axesArrayOffset := int(binary.BigEndian.Uint16(b[4:6]))
	axisCount := int(binary.BigEndian.Uint16(b[8:10]))
	axisSize := int(binary.BigEndian.Uint16(b[10:12]))
	instanceCount := int(binary.BigEndian.Uint16(b[12:14]))
	instanceSize := int(binary.BigEndian.Uint16(b[14:16]))
	if axisSize < fvarAxisRecordSize {
		return info, false
	}

	info.Axes = make([]VariationAxis, 0, axisCount)
	for i := 0; i < axisCount; i++ {
		start := axesArrayOffset + i*axisSize
		end := start + fvarAxisRecordSize
		if end > len(b) {
			break
		}
		rec := b[start:end]
		axis := VariationAxis{
			Tag:     ot.MakeTag(rec[0:4]),
			Min:     fixedAt(rec, 4),
			Default: fixedAt(rec, 8),
			Max:     fixedAt(rec, 12),
			Flags:   binary.BigEndian.Uint16(rec[16:18]),
			NameID:  binary.BigEndian.Uint16(rec[18:20]),
		}
		info.Axes = append(info.Axes, axis)
	}

	instancesOffset := axesArrayOffset + axisCount*axisSize
	info.Instances = make([]NamedInstance, 0, instanceCount)
	for i := 0; i < instanceCount; i++ {
		start := instancesOffset + i*instanceSize
		end := start + instanceSize
		if end > len(b) || instanceSize < 4+4*len(info.Axes) {
			break
		}
		rec := b[start:end]
		inst := NamedInstance{
			SubfamilyNameID: binary.BigEndian.Uint16(rec[0:2]),
			Coordinates:     make([]float64, len(info.Axes)),
		}
		for a := range info.Axes {
			inst.Coordinates[a] = fixedAt(rec, 4+a*4)
		}
		// A trailing postScriptNameId field is present only when
		// instanceSize allows for it (axisCount*4 + 6 rather than +4).
		if instanceSize >= 4+4*len(info.Axes)+2 {
			inst.PostScriptNameID = binary.BigEndian.Uint16(rec[4+4*len(info.Axes):])
		}
		info.Instances = append(info.Instances, inst)
	}
	return info, true
}

func fixedAt(b []byte, offset int) float64 {
	return ot.Fixed(int32(binary.BigEndian.Uint32(b[offset : offset+4]))).Float64()
}
