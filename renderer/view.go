package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/richinsley/mapfx/culling"
)

// View is an orthographic window onto projected map coordinates.
type View struct {
	CenterX, CenterY float64
	// Scale is in pixels per map unit.
	Scale         float64
	Width, Height int
}

const (
	minScale = 1e-9
	maxScale = 1e9
)

// Zoom returns log2 of the scale, the value shaders receive as u_zoom.
func (v View) Zoom() float64 {
	if v.Scale <= 0 {
		return 0
	}
	return math.Log2(v.Scale)
}

// Extent returns the visible map rectangle.
func (v View) Extent() culling.BBox2D {
	hw := float64(v.Width) / 2 / v.scale()
	hh := float64(v.Height) / 2 / v.scale()
	return culling.BBox2D{
		MinX: v.CenterX - hw, MinY: v.CenterY - hh,
		MaxX: v.CenterX + hw, MaxY: v.CenterY + hh,
	}
}

func (v View) scale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

// Matrix returns the view-projection matrix mapping the extent to clip space.
func (v View) Matrix() mgl32.Mat4 {
	e := v.Extent()
	return mgl32.Ortho2D(float32(e.MinX), float32(e.MaxX), float32(e.MinY), float32(e.MaxY))
}

// Pan moves the view by a pixel delta. Positive dy drags the map down.
func (v *View) Pan(dx, dy float64) {
	v.CenterX -= dx / v.scale()
	v.CenterY += dy / v.scale()
}

// ZoomAt scales by factor keeping the map point under pixel (px, py) fixed.
// Pixel y grows downwards.
func (v *View) ZoomAt(factor, px, py float64) {
	if factor <= 0 {
		return
	}
	s := v.scale()
	mx := v.CenterX + (px-float64(v.Width)/2)/s
	my := v.CenterY - (py-float64(v.Height)/2)/s
	ns := math.Min(math.Max(s*factor, minScale), maxScale)
	v.Scale = ns
	v.CenterX = mx - (px-float64(v.Width)/2)/ns
	v.CenterY = my + (py-float64(v.Height)/2)/ns
}

// Fit centers b and picks the largest scale that shows all of it with the
// given pixel margin on every side.
func (v *View) Fit(b culling.BBox2D, margin float64) {
	if b.IsEmpty() {
		return
	}
	v.CenterX = (b.MinX + b.MaxX) / 2
	v.CenterY = (b.MinY + b.MaxY) / 2
	w := float64(v.Width) - 2*margin
	h := float64(v.Height) - 2*margin
	if w <= 0 || h <= 0 {
		return
	}
	bw, bh := b.MaxX-b.MinX, b.MaxY-b.MinY
	switch {
	case bw == 0 && bh == 0:
		return
	case bw == 0:
		v.Scale = h / bh
	case bh == 0:
		v.Scale = w / bw
	default:
		v.Scale = math.Min(w/bw, h/bh)
	}
}
