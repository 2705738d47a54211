package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/richinsley/mapfx/culling"
)

// mapPoint returns the map coordinate under pixel (px, py).
func mapPoint(v View, px, py float64) (float64, float64) {
	return v.CenterX + (px-float64(v.Width)/2)/v.Scale, v.CenterY - (py-float64(v.Height)/2)/v.Scale
}

func TestViewExtentAndZoom(t *testing.T) {
	v := View{CenterX: 10, CenterY: -5, Scale: 2, Width: 200, Height: 100}
	want := culling.BBox2D{MinX: -40, MinY: -30, MaxX: 60, MaxY: 20}
	if got := v.Extent(); got != want {
		t.Errorf("Extent() = %+v, want %+v", got, want)
	}
	if z := v.Zoom(); z != 1 {
		t.Errorf("Zoom() = %v, want 1", z)
	}
	if z := (View{}).Zoom(); z != 0 {
		t.Errorf("zero view Zoom() = %v", z)
	}
}

func TestViewMatrixMapsExtentToClipSpace(t *testing.T) {
	v := View{CenterX: 100, CenterY: 50, Scale: 0.5, Width: 400, Height: 200}
	e := v.Extent()
	m := v.Matrix()

	lo := m.Mul4x1(mgl32.Vec4{float32(e.MinX), float32(e.MinY), 0, 1})
	hi := m.Mul4x1(mgl32.Vec4{float32(e.MaxX), float32(e.MaxY), 0, 1})
	if !near(float64(lo.X()), -1, 1e-5) || !near(float64(lo.Y()), -1, 1e-5) {
		t.Errorf("min corner -> %v, want (-1, -1)", lo)
	}
	if !near(float64(hi.X()), 1, 1e-5) || !near(float64(hi.Y()), 1, 1e-5) {
		t.Errorf("max corner -> %v, want (1, 1)", hi)
	}
}

func TestViewPan(t *testing.T) {
	v := View{Scale: 2, Width: 100, Height: 100}
	v.Pan(20, 10)
	if v.CenterX != -10 || v.CenterY != 5 {
		t.Errorf("center = (%v, %v), want (-10, 5)", v.CenterX, v.CenterY)
	}
}

func TestViewZoomAtKeepsCursorPoint(t *testing.T) {
	v := View{CenterX: 3, CenterY: 4, Scale: 1, Width: 640, Height: 480}
	px, py := 100.0, 50.0
	mx, my := mapPoint(v, px, py)

	v.ZoomAt(4, px, py)
	if v.Scale != 4 {
		t.Fatalf("scale = %v, want 4", v.Scale)
	}
	gx, gy := mapPoint(v, px, py)
	if !near(gx, mx, 1e-9) || !near(gy, my, 1e-9) {
		t.Errorf("point under cursor moved from (%v, %v) to (%v, %v)", mx, my, gx, gy)
	}

	v.ZoomAt(0, px, py)
	if v.Scale != 4 {
		t.Errorf("non-positive factor changed scale to %v", v.Scale)
	}
	v.ZoomAt(1e30, px, py)
	if v.Scale != maxScale {
		t.Errorf("scale = %v, want clamp to %v", v.Scale, maxScale)
	}
}

func TestViewFit(t *testing.T) {
	tests := []struct {
		name   string
		bounds culling.BBox2D
		scale  float64
		cx, cy float64
	}{
		{"box", culling.BBox2D{MinX: 0, MinY: 0, MaxX: 100, MaxY: 25}, 2, 50, 12.5},
		{"tall", culling.BBox2D{MinX: 0, MinY: 0, MaxX: 10, MaxY: 200}, 0.5, 5, 100},
		{"horizontal line", culling.BBox2D{MinX: -50, MinY: 3, MaxX: 50, MaxY: 3}, 2, 0, 3},
		{"single point", culling.BBox2D{MinX: 7, MinY: 8, MaxX: 7, MaxY: 8}, 1, 7, 8},
		{"empty", culling.EmptyBBox2D(), 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View{Scale: 1, Width: 220, Height: 120}
			v.Fit(tt.bounds, 10)
			if v.Scale != tt.scale || v.CenterX != tt.cx || v.CenterY != tt.cy {
				t.Errorf("got scale %v center (%v, %v); want %v (%v, %v)", v.Scale, v.CenterX, v.CenterY, tt.scale, tt.cx, tt.cy)
			}
		})
	}
}
