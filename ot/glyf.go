package ot

import "fmt"

// Composite glyph component flags, per the OpenType 'glyf' table
// specification.
const (
	compArgsAreWords        = 0x0001
	compArgsAreXYValues     = 0x0002
	compRoundXYToGrid       = 0x0004
	compWeHaveScale         = 0x0008
	compMoreComponents      = 0x0020
	compWeHaveXAndYScale    = 0x0040
	compWeHaveTwoByTwo      = 0x0080
	compWeHaveInstructions  = 0x0100
	compUseMyMetrics        = 0x0200
	compOverlapCompound     = 0x0400
	compScaledComponentOff  = 0x0800
	compUnscaledComponentOff = 0x1000
)

// glyfDepthCap bounds composite-glyph recursion; maxp.maxComponentDepth is
// only advisory, so this decoder enforces its own hard cap regardless of
// what a font's maxp claims.
const glyfDepthCap = 16

// maxComponentsPerGlyph bounds the number of components read from a single
// composite glyph's MORE_COMPONENTS chain, guarding against a malformed
// font whose chain never clears the flag.
const maxComponentsPerGlyph = 4096

// GlyfTable is the decoded 'glyf' table: concatenated glyph outline data,
// addressed per-glyph via the paired 'loca' table.
type GlyfTable struct {
	tableBase
	loca *LocaTable
}

func newGlyfTable(tag Tag, b binarySegm, offset, size uint32) *GlyfTable {
	t := &GlyfTable{}
	t.tableBase = tableBase{data: b, name: tag, offset: offset, length: size}
	t.self = t
	return t
}

// GlyphPoint is one point of a simple glyph's decoded contour stream, in
// font design units, relative to the glyph origin.
type GlyphPoint struct {
	X, Y       int32
	OnCurve    bool
	ContourEnd bool
}

// Glyph is a decoded 'glyf' entry: either simple (Points is populated) or
// composite (Components is populated), never both.
type Glyph struct {
	NumberOfContours int16
	XMin, YMin       int16
	XMax, YMax       int16
	Points           []GlyphPoint     // simple glyphs only
	EndPtsOfContours []int            // simple glyphs only
	Components       []GlyphComponent // composite glyphs only, raw (undecoded children)
}

// IsComposite reports whether g is a composite glyph (numberOfContours < 0).
func (g *Glyph) IsComposite() bool { return g.NumberOfContours < 0 }

// GlyphComponent is one component of a composite glyph, exactly as it
// appears on the wire: not yet resolved against its child
// glyph's points.
type GlyphComponent struct {
	GlyphIndex       GlyphIndex
	ArgsAreXYValues  bool
	Dx, Dy           int16 // valid iff ArgsAreXYValues
	ParentPointIndex int   // valid iff !ArgsAreXYValues
	ChildPointIndex  int   // valid iff !ArgsAreXYValues
	A, B, C, D       float64 // 2x2 transform, defaults a=d=1, b=c=0
	RoundXYToGrid    bool
	UseMyMetrics     bool
	ScaledOffset     bool // SCALED_COMPONENT_OFFSET was set
	UnscaledOffset   bool // UNSCALED_COMPONENT_OFFSET was set
	MoreComponents   bool
}

// byteRange returns the glyph's [start, end) byte range within glyf's data,
// and whether the glyph has any outline at all (an empty range is a valid
// "no outline" result, e.g. for the space glyph).
func (t *GlyfTable) byteRange(gid GlyphIndex) (start, end uint32, hasOutline bool, err error) {
	if t == nil || t.loca == nil {
		return 0, 0, false, newDecodeError(ErrStructural, T("glyf"), "no loca table associated")
	}
	if int(gid) < 0 || int(gid)+1 >= t.loca.locCnt {
		return 0, 0, false, newDecodeError(ErrStructural, T("glyf"), fmt.Sprintf("glyph id %d out of range", gid))
	}
	start = t.loca.IndexToLocation(gid)
	end = t.loca.IndexToLocation(gid + 1)
	if end < start {
		return 0, 0, false, newDecodeError(ErrInvariant, T("glyf"), "loca: non-monotonic offsets")
	}
	return start, end, end > start, nil
}

// Outline decodes the outline of glyph gid: its own contour points if it
// is simple, or the fully composed points of every component (recursively
// resolved) if it is composite. Components are resolved by recursive Go
// calls; a visited-set rejects cycles and glyfDepthCap bounds the depth.
// No explicit stack is used.
func (t *GlyfTable) Outline(gid GlyphIndex) ([]GlyphPoint, error) {
	return t.outline(gid, map[GlyphIndex]bool{}, 0)
}

func (t *GlyfTable) outline(gid GlyphIndex, visited map[GlyphIndex]bool, depth int) ([]GlyphPoint, error) {
	if depth > glyfDepthCap {
		return nil, newDecodeError(ErrInvariant, T("glyf"), "composite recursion depth cap exceeded")
	}
	if visited[gid] {
		return nil, newDecodeError(ErrInvariant, T("glyf"), fmt.Sprintf("composite cycle at glyph %d", gid))
	}
	g, err := t.Decode(gid)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil // no outline (empty loca range)
	}
	if !g.IsComposite() {
		return g.Points, nil
	}
	visited[gid] = true
	defer delete(visited, gid)

	var assembled []GlyphPoint
	for _, comp := range g.Components {
		childPoints, err := t.outline(comp.GlyphIndex, visited, depth+1)
		if err != nil {
			return nil, err
		}
		transformed := make([]GlyphPoint, len(childPoints))
		for i, p := range childPoints {
			x := comp.A*float64(p.X) + comp.B*float64(p.Y)
			y := comp.C*float64(p.X) + comp.D*float64(p.Y)
			transformed[i] = GlyphPoint{X: int32(x), Y: int32(y), OnCurve: p.OnCurve, ContourEnd: p.ContourEnd}
		}
		var dx, dy float64
		if comp.ArgsAreXYValues {
			dx, dy = float64(comp.Dx), float64(comp.Dy)
			// UNSCALED_COMPONENT_OFFSET is the default both when both
			// flags are set and when both are clear.
			unscaled := comp.UnscaledOffset || (!comp.ScaledOffset && !comp.UnscaledOffset) || (comp.ScaledOffset && comp.UnscaledOffset)
			if !unscaled {
				dx = comp.A*float64(comp.Dx) + comp.B*float64(comp.Dy)
				dy = comp.C*float64(comp.Dx) + comp.D*float64(comp.Dy)
			}
		} else if len(assembled) > int(comp.ParentPointIndex) && len(transformed) > int(comp.ChildPointIndex) {
			parentAnchor := assembled[comp.ParentPointIndex]
			childAnchor := transformed[comp.ChildPointIndex]
			dx = float64(parentAnchor.X - childAnchor.X)
			dy = float64(parentAnchor.Y - childAnchor.Y)
		}
		for i := range transformed {
			transformed[i].X += int32(dx)
			transformed[i].Y += int32(dy)
		}
		assembled = append(assembled, transformed...)
	}
	return assembled, nil
}

// Decode parses the raw 'glyf' entry for gid: its header plus either the
// simple contour-point streams or the raw (unresolved) component list. It
// does not recurse into composite children — use Outline for that.
func (t *GlyfTable) Decode(gid GlyphIndex) (*Glyph, error) {
	start, end, has, err := t.byteRange(gid)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	b, err := t.data.view(int(start), int(end-start))
	if err != nil {
		return nil, newDecodeError(ErrTruncation, T("glyf"), fmt.Sprintf("glyph %d byte range out of bounds", gid))
	}
	if len(b) < 10 {
		return nil, newDecodeError(ErrTruncation, T("glyf"), "glyph header")
	}
	nc, _ := b.i16(0)
	xmin, _ := b.i16(2)
	ymin, _ := b.i16(4)
	xmax, _ := b.i16(6)
	ymax, _ := b.i16(8)
	g := &Glyph{NumberOfContours: nc, XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
	if nc >= 0 {
		return g, decodeSimpleGlyph(g, b[10:])
	}
	return g, decodeCompositeGlyph(g, b[10:])
}

// decodeSimpleGlyph implements the standard TrueType two-pass algorithm: a
// first pass over the flag run-length stream to compute the x- and y-
// coordinate stream lengths, then a second pass that walks flags and
// coordinate deltas in lockstep.
func decodeSimpleGlyph(g *Glyph, b binarySegm) error {
	numContours := int(g.NumberOfContours)
	endPtsSize, err := checkedMulInt(numContours, 2)
	if err != nil {
		return newDecodeError(ErrStructural, T("glyf"), "numberOfContours too large")
	}
	endPtsBuf, err := b.view(0, endPtsSize)
	if err != nil {
		return newDecodeError(ErrTruncation, T("glyf"), "endPtsOfContours")
	}
	endPts := make([]int, numContours)
	prev := -1
	for i := 0; i < numContours; i++ {
		v, _ := endPtsBuf.u16(i * 2)
		endPts[i] = int(v)
		if endPts[i] < prev {
			return newDecodeError(ErrInvariant, T("glyf"), "endPtsOfContours is not monotonically increasing")
		}
		prev = endPts[i]
	}
	g.EndPtsOfContours = endPts
	numPoints := 0
	if numContours > 0 {
		numPoints = endPts[numContours-1] + 1
	}

	off := endPtsSize
	insLen, err := b.u16(off)
	if err != nil {
		return newDecodeError(ErrTruncation, T("glyf"), "instructionLength")
	}
	off += 2 + int(insLen)
	if off > len(b) {
		return newDecodeError(ErrTruncation, T("glyf"), "instruction stream")
	}

	// Pass 1: walk flags, recording one flag byte per point and computing
	// the x/y stream byte lengths implied by them.
	flags := make([]byte, numPoints)
	xBytes, yBytes := 0, 0
	cur := off
	for i := 0; i < numPoints; i++ {
		if cur >= len(b) {
			return newDecodeError(ErrTruncation, T("glyf"), "flags stream")
		}
		flag := b[cur]
		cur++
		flags[i] = flag
		xBytes += xCoordSize(flag)
		yBytes += yCoordSize(flag)
		if flag&0x08 != 0 { // REPEAT
			if cur >= len(b) {
				return newDecodeError(ErrTruncation, T("glyf"), "flag repeat count")
			}
			repeat := int(b[cur])
			cur++
			for r := 0; r < repeat && i+1 < numPoints; r++ {
				i++
				flags[i] = flag
				xBytes += xCoordSize(flag)
				yBytes += yCoordSize(flag)
			}
		}
	}
	xStream, err := b.view(cur, xBytes)
	if err != nil {
		return newDecodeError(ErrTruncation, T("glyf"), "x-coordinate stream")
	}
	yStream, err := b.view(cur+xBytes, yBytes)
	if err != nil {
		return newDecodeError(ErrTruncation, T("glyf"), "y-coordinate stream")
	}

	// Pass 2: stream flags, x-deltas, and y-deltas in lockstep.
	points := make([]GlyphPoint, numPoints)
	var x, y int32
	xi, yi := 0, 0
	contourIdx := 0
	for i := 0; i < numPoints; i++ {
		flag := flags[i]
		dx := readCoord(xStream, &xi, flag&0x02 != 0, flag&0x10 != 0)
		dy := readCoord(yStream, &yi, flag&0x04 != 0, flag&0x20 != 0)
		x += dx
		y += dy
		isEnd := contourIdx < len(endPts) && i == endPts[contourIdx]
		if isEnd {
			contourIdx++
		}
		points[i] = GlyphPoint{X: x, Y: y, OnCurve: flag&0x01 != 0, ContourEnd: isEnd}
	}
	g.Points = points
	return nil
}

func xCoordSize(flag byte) int {
	if flag&0x02 != 0 { // X_SHORT_VECTOR
		return 1
	}
	if flag&0x10 != 0 { // X_IS_SAME_OR_POSITIVE
		return 0
	}
	return 2
}

func yCoordSize(flag byte) int {
	if flag&0x04 != 0 { // Y_SHORT_VECTOR
		return 1
	}
	if flag&0x20 != 0 { // Y_IS_SAME_OR_POSITIVE
		return 0
	}
	return 2
}

// readCoord reads the next coordinate delta from stream at *idx, advancing
// *idx by however many bytes this flag combination implies.
func readCoord(stream binarySegm, idx *int, short, sameOrPositive bool) int32 {
	if short {
		if *idx >= len(stream) {
			return 0
		}
		v := int32(stream[*idx])
		*idx++
		if !sameOrPositive {
			v = -v
		}
		return v
	}
	if sameOrPositive {
		return 0 // SAME_OR_POSITIVE with no SHORT bit: delta is 0
	}
	if *idx+2 > len(stream) {
		return 0
	}
	v, _ := stream.i16(*idx)
	*idx += 2
	return int32(v)
}

// decodeCompositeGlyph parses the component sequence terminated by the
// component whose flags clear MORE_COMPONENTS.
func decodeCompositeGlyph(g *Glyph, b binarySegm) error {
	off := 0
	for {
		if off+4 > len(b) {
			return newDecodeError(ErrTruncation, T("glyf"), "composite component header")
		}
		flags, _ := b.u16(off)
		gidRaw, _ := b.u16(off + 2)
		off += 4
		comp := GlyphComponent{
			GlyphIndex:      GlyphIndex(gidRaw),
			A:               1, D: 1,
			ArgsAreXYValues: flags&compArgsAreXYValues != 0,
			RoundXYToGrid:   flags&compRoundXYToGrid != 0,
			UseMyMetrics:    flags&compUseMyMetrics != 0,
			ScaledOffset:    flags&compScaledComponentOff != 0,
			UnscaledOffset:  flags&compUnscaledComponentOff != 0,
			MoreComponents:  flags&compMoreComponents != 0,
		}
		if flags&compArgsAreWords != 0 {
			if off+4 > len(b) {
				return newDecodeError(ErrTruncation, T("glyf"), "composite component args (words)")
			}
			a1, _ := b.i16(off)
			a2, _ := b.i16(off + 2)
			off += 4
			if comp.ArgsAreXYValues {
				comp.Dx, comp.Dy = a1, a2
			} else {
				comp.ParentPointIndex, comp.ChildPointIndex = int(uint16(a1)), int(uint16(a2))
			}
		} else {
			if off+2 > len(b) {
				return newDecodeError(ErrTruncation, T("glyf"), "composite component args (bytes)")
			}
			a1, a2 := int8(b[off]), int8(b[off+1])
			off += 2
			if comp.ArgsAreXYValues {
				comp.Dx, comp.Dy = int16(a1), int16(a2)
			} else {
				comp.ParentPointIndex, comp.ChildPointIndex = int(uint8(a1)), int(uint8(a2))
			}
		}
		switch {
		case flags&compWeHaveTwoByTwo != 0:
			if off+8 > len(b) {
				return newDecodeError(ErrTruncation, T("glyf"), "composite 2x2 transform")
			}
			a, _ := b.f2dot14(off)
			bb, _ := b.f2dot14(off + 2)
			c, _ := b.f2dot14(off + 4)
			d, _ := b.f2dot14(off + 6)
			comp.A, comp.B, comp.C, comp.D = a.Float64(), bb.Float64(), c.Float64(), d.Float64()
			off += 8
		case flags&compWeHaveXAndYScale != 0:
			if off+4 > len(b) {
				return newDecodeError(ErrTruncation, T("glyf"), "composite x/y scale")
			}
			sx, _ := b.f2dot14(off)
			sy, _ := b.f2dot14(off + 2)
			comp.A, comp.D = sx.Float64(), sy.Float64()
			off += 4
		case flags&compWeHaveScale != 0:
			if off+2 > len(b) {
				return newDecodeError(ErrTruncation, T("glyf"), "composite uniform scale")
			}
			s, _ := b.f2dot14(off)
			comp.A, comp.D = s.Float64(), s.Float64()
			off += 2
		}
		g.Components = append(g.Components, comp)
		if flags&compMoreComponents == 0 {
			break
		}
		if len(g.Components) > maxComponentsPerGlyph {
			return newDecodeError(ErrStructural, T("glyf"), "composite component count exceeds maximum")
		}
	}
	return nil
}
