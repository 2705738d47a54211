package renderer

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/rclancey/earcut"
	"github.com/richinsley/mapfx/instancing"
	"github.com/richinsley/mapfx/shader"
)

// Per-vertex corner data for each geometry class.
var (
	quadCorners = []float32{
		-1, -1, 1, -1, 1, 1,
		-1, -1, 1, 1, -1, 1,
	}
	segmentCorners = []float32{
		0, -1, 1, -1, 1, 1,
		0, -1, 1, 1, 0, 1,
	}
	triangleCorners = []float32{0, 0, 1, 0, 0, 1}
)

var cornerLayout = instancing.Layout{{Location: shader.LocCorner, Size: 2, Offset: 0}}

const cornerStride = 2 * 4

// Instance record layouts, strides in bytes.
var (
	pointLayout = instancing.Layout{
		{Location: shader.LocPosition, Size: 2, Offset: 0},
		{Location: shader.LocTimeOffset, Size: 1, Offset: 8},
	}
	// Segments and triangles share one record shape:
	// a.x a.y offset b.x b.y c.x c.y
	spanLayout = instancing.Layout{
		{Location: shader.LocPosition, Size: 2, Offset: 0},
		{Location: shader.LocTimeOffset, Size: 1, Offset: 8},
		{Location: shader.LocPositionB, Size: 2, Offset: 12},
		{Location: shader.LocPositionC, Size: 2, Offset: 20},
	}
	globalLayout = instancing.Layout{{Location: shader.LocTimeOffset, Size: 1, Offset: 0}}
)

const (
	pointFloats  = 3
	spanFloats   = 7
	globalFloats = 1
)

func corners(g shader.Geometry) []float32 {
	switch g {
	case shader.Line:
		return segmentCorners
	case shader.Polygon:
		return triangleCorners
	default:
		return quadCorners
	}
}

func recordShape(g shader.Geometry) (instancing.Layout, int) {
	switch g {
	case shader.Point:
		return pointLayout, pointFloats
	case shader.Line, shader.Polygon:
		return spanLayout, spanFloats
	default:
		return globalLayout, globalFloats
	}
}

type span struct {
	first, count int
}

// packed holds every instance record of a layer, grouped by feature.
type packed struct {
	data   []float32
	ranges []span
	floats int
}

func (p *packed) instances() int {
	if p.floats == 0 {
		return 0
	}
	return len(p.data) / p.floats
}

// subset concatenates the records of the given features.
func (p *packed) subset(features []int) []float32 {
	n := 0
	for _, f := range features {
		n += p.ranges[f].count
	}
	out := make([]float32, 0, n*p.floats)
	for _, f := range features {
		r := p.ranges[f]
		out = append(out, p.data[r.first*p.floats:(r.first+r.count)*p.floats]...)
	}
	return out
}

// instanceRange returns the instance span covering features first..last.
func (p *packed) instanceRange(first, last int) (int, int) {
	start := p.ranges[first].first
	end := p.ranges[last].first + p.ranges[last].count
	return start, end - start
}

func offsetAt(offsets []float32, i int) float32 {
	if i < len(offsets) {
		return offsets[i]
	}
	return 0
}

// pack builds the instance records of every feature for geometry class g.
func pack(g shader.Geometry, geoms []orb.Geometry, offsets []float32, lod int) packed {
	_, floats := recordShape(g)
	p := packed{floats: floats, ranges: make([]span, len(geoms))}
	for i, geom := range geoms {
		first := p.instances()
		off := offsetAt(offsets, i)
		switch g {
		case shader.Point:
			for _, pt := range pointsOf(geom) {
				p.data = append(p.data, float32(pt[0]), float32(pt[1]), off)
			}
		case shader.Line:
			for _, ls := range linesOf(geom) {
				p.data = appendSegments(p.data, decimateLine(ls, lod), off)
			}
		case shader.Polygon:
			for _, poly := range polygonsOf(geom) {
				rings := make(orb.Polygon, len(poly))
				for j, ring := range poly {
					rings[j] = decimateRing(ring, lod)
				}
				for _, t := range triangulate(rings) {
					a, b, c := t[0], t[1], t[2]
					p.data = append(p.data,
						float32(a[0]), float32(a[1]), off,
						float32(b[0]), float32(b[1]),
						float32(c[0]), float32(c[1]))
				}
			}
		}
		p.ranges[i] = span{first: first, count: p.instances() - first}
	}
	return p
}

// appendSegments emits one record per segment with the segment's progress
// along the whole line in the last two floats.
func appendSegments(dst []float32, ls orb.LineString, off float32) []float32 {
	if len(ls) < 2 {
		return dst
	}
	total := 0.0
	for i := 1; i < len(ls); i++ {
		total += dist(ls[i-1], ls[i])
	}
	walked := 0.0
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		d := dist(a, b)
		p0, p1 := 0.0, 1.0
		if total > 0 {
			p0, p1 = walked/total, (walked+d)/total
		}
		walked += d
		dst = append(dst,
			float32(a[0]), float32(a[1]), off,
			float32(b[0]), float32(b[1]),
			float32(p0), float32(p1))
	}
	return dst
}

func dist(a, b orb.Point) float64 {
	return math.Hypot(b[0]-a[0], b[1]-a[1])
}

func pointsOf(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return []orb.Point{t}
	case orb.MultiPoint:
		return t
	case orb.Collection:
		var out []orb.Point
		for _, c := range t {
			out = append(out, pointsOf(c)...)
		}
		return out
	}
	// Other geometries are drawn as a marker at their bound center.
	b := g.Bound()
	if b.IsEmpty() {
		return nil
	}
	return []orb.Point{b.Center()}
}

func linesOf(g orb.Geometry) []orb.LineString {
	switch t := g.(type) {
	case orb.LineString:
		return []orb.LineString{t}
	case orb.MultiLineString:
		return t
	case orb.Ring:
		return []orb.LineString{orb.LineString(t)}
	case orb.Polygon:
		out := make([]orb.LineString, len(t))
		for i, r := range t {
			out[i] = orb.LineString(r)
		}
		return out
	case orb.MultiPolygon:
		var out []orb.LineString
		for _, p := range t {
			out = append(out, linesOf(p)...)
		}
		return out
	case orb.Collection:
		var out []orb.LineString
		for _, c := range t {
			out = append(out, linesOf(c)...)
		}
		return out
	}
	return nil
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) == 0 {
			return nil
		}
		return []orb.Polygon{t}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(t))
		for _, p := range t {
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range t {
			out = append(out, polygonsOf(c)...)
		}
		return out
	}
	return nil
}

// decimateLine keeps about 1/lod of a line's vertices, choosing them with
// Visvalingam-Whyatt. The input is not modified.
func decimateLine(ls orb.LineString, lod int) orb.LineString {
	if lod <= 1 || len(ls) <= 2 {
		return ls
	}
	keep := len(ls) / lod
	if keep < 2 {
		keep = 2
	}
	return simplify.VisvalingamKeep(keep).LineString(ls.Clone())
}

func decimateRing(r orb.Ring, lod int) orb.Ring {
	if lod <= 1 || len(r) <= 4 {
		return r
	}
	keep := len(r) / lod
	if keep < 4 {
		keep = 4
	}
	return simplify.VisvalingamKeep(keep).Ring(r.Clone())
}

// triangulate cuts a polygon, holes included, into counter-clockwise
// triangles. Closing points equal to a ring's first point are ignored, and
// rings with fewer than three vertices are dropped.
func triangulate(poly orb.Polygon) [][3]orb.Point {
	if len(poly) == 0 {
		return nil
	}
	var verts []orb.Point
	var holes []int
	for i, ring := range poly {
		n := len(ring)
		if n > 1 && ring[0] == ring[n-1] {
			n--
		}
		if n < 3 {
			if i == 0 {
				return nil
			}
			continue
		}
		if i > 0 {
			holes = append(holes, len(verts))
		}
		verts = append(verts, ring[:n]...)
	}

	data := make([]float64, 0, 2*len(verts))
	for _, v := range verts {
		data = append(data, v[0], v[1])
	}
	idx, err := earcut.Earcut(data, holes, 2)
	if err != nil {
		return nil
	}

	out := make([][3]orb.Point, 0, len(idx)/3)
	for i := 0; i+2 < len(idx); i += 3 {
		a, b, c := verts[idx[i]], verts[idx[i+1]], verts[idx[i+2]]
		switch area := cross(a, b, c); {
		case area < 0:
			b, c = c, b
		case area == 0:
			continue
		}
		out = append(out, [3]orb.Point{a, b, c})
	}
	return out
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
