package culling

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func perspective() mgl32.Mat4 {
	// Camera at the origin looking down -z.
	return mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
}

func box3(cx, cy, cz, half float64) BBox3D {
	return BBox3D{
		MinX: cx - half, MinY: cy - half, MinZ: cz - half,
		MaxX: cx + half, MaxY: cy + half, MaxZ: cz + half,
	}
}

func TestBoxAtApexIsNeverOutside(t *testing.T) {
	c := New(Mode3D)
	c.UpdateFrustum(perspective())
	for _, half := range []float64{0.2, 0.5, 1, 10} {
		if r := c.TestBox3D(box3(0, 0, 0, half)); r == Outside {
			t.Errorf("box of half-size %v at the apex classified outside", half)
		}
	}
}

func TestFarBoxesAreOutside(t *testing.T) {
	c := New(Mode3D)
	c.UpdateFrustum(perspective())
	far := []BBox3D{
		box3(1000, 0, -5, 1),
		box3(-1000, 0, -5, 1),
		box3(0, 1000, -5, 1),
		box3(0, -1000, -5, 1),
		box3(0, 0, 1000, 1),
		box3(0, 0, -1000, 1),
	}
	for _, b := range far {
		if r := c.TestBox3D(b); r != Outside {
			t.Errorf("box %+v classified %v, want outside", b, r)
		}
	}
	if !c.IsVisible3D(box3(0, 0, -10, 0.5)) {
		t.Error("box straight ahead should be visible")
	}
	if c.TestBox3D(box3(0, 0, -10, 0.5)) != Inside {
		t.Error("small box straight ahead should be fully inside")
	}
}

func TestOrthoClassification(t *testing.T) {
	ortho := mgl32.Ortho(-10, 10, -10, 10, -1, 1)
	tests := []struct {
		name string
		box  BBox2D
		want Result
	}{
		{"inside", BBox2D{-1, -1, 1, 1}, Inside},
		{"straddles right edge", BBox2D{9, 0, 11, 1}, Intersect},
		{"left of view", BBox2D{-30, -1, -20, 1}, Outside},
		{"above view", BBox2D{0, 15, 1, 16}, Outside},
		{"empty", EmptyBBox2D(), Outside},
	}
	for _, mode := range []Mode{Mode2D, Mode3D} {
		c := New(mode)
		c.UpdateFrustum(ortho)
		for _, tt := range tests {
			if got := c.TestBox(tt.box); got != tt.want {
				t.Errorf("mode %d %s: got %v, want %v", mode, tt.name, got, tt.want)
			}
		}
	}
}

func TestMode2DIgnoresZ(t *testing.T) {
	ortho := mgl32.Ortho(-10, 10, -10, 10, -1, 1)
	high := BBox3D{MinX: -1, MinY: -1, MinZ: 500, MaxX: 1, MaxY: 1, MaxZ: 501}

	flat := New(Mode2D)
	flat.UpdateFrustum(ortho)
	if !flat.IsVisible3D(high) {
		t.Error("2D culler should ignore z")
	}
	if !flat.TestPoint(0, 0, -1e6) {
		t.Error("2D culler should ignore point z")
	}

	deep := New(Mode3D)
	deep.UpdateFrustum(ortho)
	if deep.IsVisible3D(high) {
		t.Error("3D culler should reject a box beyond the far plane")
	}
}

func TestUpdateFrustumSkipsIdenticalMatrix(t *testing.T) {
	c := New(Mode2D)
	m := mgl32.Ortho2D(0, 100, 0, 100)
	if !c.UpdateFrustum(m) {
		t.Fatal("first update should rebuild")
	}
	if c.UpdateFrustum(m) {
		t.Error("identical matrix should be skipped")
	}
	m2 := mgl32.Ortho2D(50, 150, 0, 100)
	if !c.UpdateFrustum(m2) {
		t.Error("changed matrix should rebuild")
	}
	if c.IsVisible(BBox2D{10, 10, 20, 20}) {
		t.Error("planes were not rebuilt for the new matrix")
	}
}

func TestNoFrustumAcceptsEverything(t *testing.T) {
	c := New(Mode3D)
	if !c.IsVisible(BBox2D{1e9, 1e9, 1e9 + 1, 1e9 + 1}) {
		t.Error("culler without a frustum should accept non-empty boxes")
	}
}

func TestCullFeatures(t *testing.T) {
	features := []*geojson.Feature{
		geojson.NewFeature(orb.Point{0, 0}),
		geojson.NewFeature(orb.Point{500, 500}),
		geojson.NewFeature(orb.LineString{{-5, -5}, {5, 5}}),
		geojson.NewFeature(orb.Polygon{{{-200, -200}, {-150, -200}, {-150, -150}, {-200, -200}}}),
		geojson.NewFeature(orb.MultiPolygon{{{{8, 8}, {12, 8}, {12, 12}, {8, 8}}}}),
		geojson.NewFeature(orb.LineString{}),
	}
	c := New(Mode2D)
	c.UpdateFrustum(mgl32.Ortho(-10, 10, -10, 10, -1, 1))

	got, stats := c.CullFeaturesWithStats(features, nil)
	want := []int{0, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("visible = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visible = %v, want %v", got, want)
		}
	}
	if stats.Total != 6 || stats.Visible != 3 || stats.Culled != 3 || stats.Ratio != 0.5 {
		t.Errorf("unexpected stats %+v", stats)
	}

	c.SetFeatureCap(2)
	capped := c.CullFeatures(features, ComputeBoundsArray(features))
	if len(capped) != 2 || capped[0] != 0 || capped[1] != 2 {
		t.Errorf("capped = %v, want [0 2]", capped)
	}
}

func TestCullFeaturesSubsetAndOrder(t *testing.T) {
	bounds := make([]BBox2D, 500)
	for i := range bounds {
		x := float64((i*37)%200) - 100
		y := float64((i*91)%200) - 100
		bounds[i] = BBox2D{x, y, x + 1, y + 1}
	}
	c := New(Mode2D)
	c.UpdateFrustum(mgl32.Ortho(-30, 30, -30, 30, -1, 1))
	got := c.CullBounds(bounds)
	prev := -1
	for _, idx := range got {
		if idx < 0 || idx >= len(bounds) {
			t.Fatalf("index %d out of range", idx)
		}
		if idx <= prev {
			t.Fatalf("indices not strictly ascending: %v", got)
		}
		prev = idx
	}
}

func TestComputeBounds(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want BBox2D
	}{
		{"point", orb.Point{3, 4}, BBox2D{3, 4, 3, 4}},
		{"line", orb.LineString{{0, 5}, {-2, 1}, {4, 3}}, BBox2D{-2, 1, 4, 5}},
		{"polygon", orb.Polygon{{{0, 0}, {10, 0}, {10, 8}, {0, 0}}}, BBox2D{0, 0, 10, 8}},
		{"multipolygon", orb.MultiPolygon{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			{{{-5, 2}, {-4, 2}, {-4, 3}, {-5, 2}}},
		}, BBox2D{-5, 0, 1, 3}},
	}
	for _, tt := range tests {
		if got := ComputeBounds(tt.geom); got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
	if !ComputeBounds(nil).IsEmpty() || !ComputeBounds(orb.LineString{}).IsEmpty() {
		t.Error("missing geometry should give an empty box")
	}
}

func TestBBoxMergeAndExtend(t *testing.T) {
	b := EmptyBBox2D().Extend(1, 2).Extend(-1, 5)
	if b != (BBox2D{-1, 2, 1, 5}) {
		t.Errorf("Extend = %+v", b)
	}
	m := b.Merge(BBox2D{0, 0, 3, 3})
	if m != (BBox2D{-1, 0, 3, 5}) {
		t.Errorf("Merge = %+v", m)
	}
	if b.Merge(EmptyBBox2D()) != b {
		t.Error("merging an empty box should be a no-op")
	}

	b3 := EmptyBBox3D().Extend(1, 1, 1).Merge(EmptyBBox3D().Extend(-1, 0, 2))
	if b3 != (BBox3D{-1, 0, 1, 1, 1, 2}) {
		t.Errorf("3D merge = %+v", b3)
	}
}
