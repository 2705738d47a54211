package culling

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// BBox2D is an axis-aligned box in the plane of the view-projection input.
type BBox2D struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBBox2D returns a box that contains nothing and absorbs the first
// Extend or Merge.
func EmptyBBox2D() BBox2D {
	return BBox2D{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

func (b BBox2D) IsEmpty() bool {
	return !(b.MinX <= b.MaxX && b.MinY <= b.MaxY)
}

// Extend grows b to include the point (x, y).
func (b BBox2D) Extend(x, y float64) BBox2D {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
	return b
}

// Merge returns the component-wise union of b and o.
func (b BBox2D) Merge(o BBox2D) BBox2D {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return BBox2D{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// To3D lifts b to a flat box at z.
func (b BBox2D) To3D(z float64) BBox3D {
	return BBox3D{MinX: b.MinX, MinY: b.MinY, MinZ: z, MaxX: b.MaxX, MaxY: b.MaxY, MaxZ: z}
}

// BBox3D is an axis-aligned box in 3D.
type BBox3D struct {
	MinX, MinY, MinZ, MaxX, MaxY, MaxZ float64
}

func EmptyBBox3D() BBox3D {
	return BBox3D{
		MinX: math.Inf(1), MinY: math.Inf(1), MinZ: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1), MaxZ: math.Inf(-1),
	}
}

func (b BBox3D) IsEmpty() bool {
	return !(b.MinX <= b.MaxX && b.MinY <= b.MaxY && b.MinZ <= b.MaxZ)
}

func (b BBox3D) Extend(x, y, z float64) BBox3D {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MinZ = math.Min(b.MinZ, z)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
	b.MaxZ = math.Max(b.MaxZ, z)
	return b
}

func (b BBox3D) Merge(o BBox3D) BBox3D {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return BBox3D{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MinZ: math.Min(b.MinZ, o.MinZ),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
		MaxZ: math.Max(b.MaxZ, o.MaxZ),
	}
}

// ComputeBounds reduces the coordinates of g to their bounding box. Polygons
// are bounded by their outer ring. A nil or empty geometry yields an empty box.
func ComputeBounds(g orb.Geometry) BBox2D {
	if g == nil {
		return EmptyBBox2D()
	}
	b := g.Bound()
	if b.IsEmpty() {
		return EmptyBBox2D()
	}
	return BBox2D{MinX: b.Min.X(), MinY: b.Min.Y(), MaxX: b.Max.X(), MaxY: b.Max.Y()}
}

// ComputeBoundsArray computes the bounds of every feature.
func ComputeBoundsArray(features []*geojson.Feature) []BBox2D {
	out := make([]BBox2D, len(features))
	for i, f := range features {
		if f == nil {
			out[i] = EmptyBBox2D()
			continue
		}
		out[i] = ComputeBounds(f.Geometry)
	}
	return out
}
