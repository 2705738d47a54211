// Package culling rejects features whose bounds fall outside the current
// view-projection frustum.
package culling

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/paulmach/orb/geojson"
)

// Mode selects how many frustum planes are tested.
type Mode int

const (
	// Mode3D tests left, right, bottom, top, near and far.
	Mode3D Mode = iota
	// Mode2D tests the four side planes and ignores z, for orthographic map views.
	Mode2D
)

// Result classifies a box against the frustum.
type Result int

const (
	Outside Result = iota
	Intersect
	Inside
)

func (r Result) String() string {
	switch r {
	case Outside:
		return "outside"
	case Intersect:
		return "intersect"
	case Inside:
		return "inside"
	default:
		return "unknown"
	}
}

const (
	planeLeft = iota
	planeRight
	planeBottom
	planeTop
	planeNear
	planeFar
)

// plane satisfies a*x + b*y + c*z + d >= 0 on the inside.
type plane struct {
	a, b, c, d float64
}

func (p plane) distance(x, y, z float64) float64 {
	return p.a*x + p.b*y + p.c*z + p.d
}

// Stats summarizes one culling pass.
type Stats struct {
	Total   int
	Visible int
	Culled  int
	// Ratio is the culled fraction of Total, 0 when there is nothing to cull.
	Ratio float64
}

// Culler holds the planes of the most recent frustum.
type Culler struct {
	mode       Mode
	planes     [6]plane
	count      int
	last       mgl32.Mat4
	hasLast    bool
	featureCap int
}

// New returns a culler whose frustum accepts everything until the first
// UpdateFrustum.
func New(mode Mode) *Culler {
	c := &Culler{mode: mode, count: 6}
	if mode == Mode2D {
		c.count = 4
	}
	return c
}

func (c *Culler) Mode() Mode { return c.mode }

// SetFeatureCap limits CullFeatures to the first n visible features. Zero
// removes the cap.
func (c *Culler) SetFeatureCap(n int) {
	if n < 0 {
		n = 0
	}
	c.featureCap = n
}

func (c *Culler) FeatureCap() int { return c.featureCap }

// UpdateFrustum extracts the planes of the column-major view-projection
// matrix m (Gribb/Hartmann). It reports false when m is bit-identical to the
// previous matrix and the planes were kept.
func (c *Culler) UpdateFrustum(m mgl32.Mat4) bool {
	if c.hasLast && sameBits(c.last, m) {
		return false
	}
	c.last = m
	c.hasLast = true

	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	c.planes[planeLeft] = makePlane(r3.Add(r0))
	c.planes[planeRight] = makePlane(r3.Sub(r0))
	c.planes[planeBottom] = makePlane(r3.Add(r1))
	c.planes[planeTop] = makePlane(r3.Sub(r1))
	c.planes[planeNear] = makePlane(r3.Add(r2))
	c.planes[planeFar] = makePlane(r3.Sub(r2))

	if c.mode == Mode2D {
		for i := 0; i < 4; i++ {
			c.planes[i] = flatten(c.planes[i])
		}
	}
	return true
}

func sameBits(a, b mgl32.Mat4) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func makePlane(v mgl32.Vec4) plane {
	return normalize(plane{float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3])})
}

func normalize(p plane) plane {
	l := math.Sqrt(p.a*p.a + p.b*p.b + p.c*p.c)
	if l > 0 {
		p.a /= l
		p.b /= l
		p.c /= l
		p.d /= l
	}
	return p
}

// flatten drops the z term so the plane splits the xy plane only.
func flatten(p plane) plane {
	p.c = 0
	return normalize(p)
}

// TestBox classifies a 2D box, treated as lying at z = 0.
func (c *Culler) TestBox(b BBox2D) Result {
	if b.IsEmpty() {
		return Outside
	}
	return c.TestBox3D(b.To3D(0))
}

// TestBox3D classifies a 3D box. In Mode2D the z extent is ignored.
func (c *Culler) TestBox3D(b BBox3D) Result {
	if b.IsEmpty() {
		return Outside
	}
	if !c.hasLast {
		return Inside
	}
	result := Inside
	for i := 0; i < c.count; i++ {
		p := c.planes[i]
		// Corner furthest along the plane normal, and its opposite.
		px, nx := b.MaxX, b.MinX
		if p.a < 0 {
			px, nx = nx, px
		}
		py, ny := b.MaxY, b.MinY
		if p.b < 0 {
			py, ny = ny, py
		}
		pz, nz := b.MaxZ, b.MinZ
		if p.c < 0 {
			pz, nz = nz, pz
		}
		if p.distance(px, py, pz) < 0 {
			return Outside
		}
		if p.distance(nx, ny, nz) < 0 {
			result = Intersect
		}
	}
	return result
}

func (c *Culler) IsVisible(b BBox2D) bool { return c.TestBox(b) != Outside }

func (c *Culler) IsVisible3D(b BBox3D) bool { return c.TestBox3D(b) != Outside }

// TestPoint reports whether the point lies inside or on the frustum.
func (c *Culler) TestPoint(x, y, z float64) bool {
	return c.TestBox3D(BBox3D{MinX: x, MinY: y, MinZ: z, MaxX: x, MaxY: y, MaxZ: z}) != Outside
}

// CullFeatures returns the ascending indices of features whose bounds are not
// outside the frustum. bounds is computed from the geometries when its
// length does not match features.
func (c *Culler) CullFeatures(features []*geojson.Feature, bounds []BBox2D) []int {
	if len(bounds) != len(features) {
		bounds = ComputeBoundsArray(features)
	}
	return c.CullBounds(bounds)
}

// CullBounds is CullFeatures over precomputed bounds.
func (c *Culler) CullBounds(bounds []BBox2D) []int {
	visible := make([]int, 0, len(bounds))
	for i, b := range bounds {
		if c.featureCap > 0 && len(visible) >= c.featureCap {
			break
		}
		if c.IsVisible(b) {
			visible = append(visible, i)
		}
	}
	return visible
}

// CullFeaturesWithStats is CullFeatures plus a summary. Features dropped by
// the feature cap count as culled.
func (c *Culler) CullFeaturesWithStats(features []*geojson.Feature, bounds []BBox2D) ([]int, Stats) {
	visible := c.CullFeatures(features, bounds)
	s := Stats{Total: len(features), Visible: len(visible)}
	s.Culled = s.Total - s.Visible
	if s.Total > 0 {
		s.Ratio = float64(s.Culled) / float64(s.Total)
	}
	return visible, s
}
