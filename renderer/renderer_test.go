package renderer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/richinsley/mapfx/gpu/gputest"
	"github.com/richinsley/mapfx/graphics"
	"github.com/richinsley/mapfx/manager"
	"github.com/richinsley/mapfx/programs"
	"github.com/richinsley/mapfx/shader"
	"github.com/richinsley/mapfx/textures"
)

const (
	testVS = "#version 300 es\nin vec2 a_corner;\nvoid main() { gl_Position = vec4(a_corner, 0.0, 1.0); }\n"
	testFS = "#version 300 es\nprecision mediump float;\nout vec4 color;\nvoid main() { color = vec4(1.0); }\n"
)

type fixture struct {
	dev  *gputest.Device
	tex  *textures.Manager
	r    *Renderer
	prog *programs.Program
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.New()
	tex := textures.NewManager(dev)
	p, err := programs.New(dev).GetOrCreate(testVS, testFS, "test")
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		dev:  dev,
		tex:  tex,
		r:    New(dev, Options{Width: 200, Height: 200, Textures: tex}),
		prog: p,
	}
}

func collection(geoms ...orb.Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, g := range geoms {
		f := geojson.NewFeature(g)
		f.Properties["id"] = i
		fc.Append(f)
	}
	return fc
}

func (f *fixture) addLayer(t *testing.T, id, src string, g shader.Geometry) {
	t.Helper()
	if err := f.r.AddLayer(manager.Layer{ID: id, Source: src, Geometry: g, Program: f.prog}); err != nil {
		t.Fatalf("AddLayer(%s): %v", id, err)
	}
}

func TestAddLayerErrors(t *testing.T) {
	f := newFixture(t)
	if err := f.r.AddSource("pts", collection(orb.Point{0, 0})); err != nil {
		t.Fatal(err)
	}

	if err := f.r.AddLayer(manager.Layer{ID: "a", Source: "pts", Geometry: shader.Point}); err == nil {
		t.Error("layer without a program was accepted")
	}

	var sn *manager.SourceNotFoundError
	err := f.r.AddLayer(manager.Layer{ID: "a", Source: "missing", Geometry: shader.Point, Program: f.prog})
	if !errors.As(err, &sn) || sn.SourceID != "missing" {
		t.Errorf("err = %v, want SourceNotFoundError", err)
	}

	f.addLayer(t, "a", "pts", shader.Point)
	var le *LayerExistsError
	if err := f.r.AddLayer(manager.Layer{ID: "a", Source: "pts", Geometry: shader.Point, Program: f.prog}); !errors.As(err, &le) {
		t.Errorf("err = %v, want LayerExistsError", err)
	}

	// Global layers need no source.
	f.addLayer(t, "g", "", shader.Global)
	if got := f.r.Layers(); len(got) != 2 || got[0] != "a" || got[1] != "g" {
		t.Errorf("Layers() = %v", got)
	}

	if err := f.r.AddSource("x", nil); err == nil {
		t.Error("nil feature collection was accepted")
	}
}

func TestFrameDrawsVisiblePoints(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}, orb.Point{10, 10}, orb.Point{-20, 5}))
	f.addLayer(t, "L", "pts", shader.Point)
	if err := f.r.SetFeatureData("L", manager.TimeOffsetAttribute, []float32{0, 1, 2}); err != nil {
		t.Fatal(err)
	}

	f.r.Frame(0)

	if len(f.dev.Draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(f.dev.Draws))
	}
	d := f.dev.Draws[0]
	if d.Instances != 3 || d.Count != 6 || d.Program != f.prog.Handle() {
		t.Errorf("draw = %+v, want 3 instances of a 6 vertex quad", d)
	}
	if f.dev.Clears != 1 || !f.dev.Blending || f.dev.ViewportSize != [2]int32{200, 200} {
		t.Errorf("frame setup: clears %d blending %v viewport %v", f.dev.Clears, f.dev.Blending, f.dev.ViewportSize)
	}

	s := f.r.Stats()
	if s.Frames != 1 || s.Layers != 1 || s.DrawCalls != 1 || s.Features != 3 || s.Visible != 3 || s.Culled != 0 || s.Instances != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestFrameUploadsOnlyVisibleFeatures(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}, orb.Point{1000, 0}, orb.Point{5, 5}))
	f.addLayer(t, "L", "pts", shader.Point)

	f.dev.ResetRecords()
	f.r.Frame(0)

	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 2 {
		t.Fatalf("draws = %+v, want one draw of 2 instances", f.dev.Draws)
	}
	last := f.dev.Uploads[len(f.dev.Uploads)-1]
	if !last.Sub || last.Size != 2*pointFloats*4 {
		t.Errorf("last upload = %+v, want the 2 visible records", last)
	}
	if s := f.r.Stats(); s.Visible != 2 || s.Culled != 1 {
		t.Errorf("stats = %+v", s)
	}

	// Same view again: the subset fits and is rewritten in place.
	f.dev.ResetRecords()
	f.r.Frame(16 * time.Millisecond)
	for _, u := range f.dev.Uploads {
		if !u.Sub {
			t.Errorf("buffer reallocated on an unchanged view: %+v", u)
		}
	}
}

func TestFrameContiguousRunSkipsUpload(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2}, orb.Point{5000, 0}))
	f.addLayer(t, "L", "pts", shader.Point)

	f.r.Frame(0)
	f.dev.ResetRecords()
	f.r.Frame(16 * time.Millisecond)

	if len(f.dev.Uploads) != 0 {
		t.Errorf("uploads = %+v, want none for an unchanged contiguous run", f.dev.Uploads)
	}
	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 3 {
		t.Errorf("draws = %+v, want 3 instances", f.dev.Draws)
	}
}

func TestLineLayerFollowsQualityLOD(t *testing.T) {
	f := newFixture(t)
	ls := make(orb.LineString, 9)
	for i := range ls {
		ls[i] = orb.Point{float64(i * 5), float64(i % 2 * 5)}
	}
	f.r.AddSource("lines", collection(ls))
	f.addLayer(t, "L", "lines", shader.Line)

	f.r.Frame(0)
	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 8 {
		t.Fatalf("full detail draws = %+v, want 8 segments", f.dev.Draws)
	}

	f.r.Quality().SetQualityLevel(0)
	f.dev.ResetRecords()
	f.r.Frame(16 * time.Millisecond)
	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 1 {
		t.Errorf("low quality draws = %+v, want 1 segment", f.dev.Draws)
	}
}

func TestPolygonLayerDrawsTriangles(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("areas", collection(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}))
	f.addLayer(t, "L", "areas", shader.Polygon)

	f.r.Frame(0)
	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 2 || f.dev.Draws[0].Count != 3 {
		t.Errorf("draws = %+v, want 2 instances of a 3 vertex triangle", f.dev.Draws)
	}
}

func TestGlobalLayerDrawsOnce(t *testing.T) {
	f := newFixture(t)
	f.addLayer(t, "bg", "", shader.Global)

	f.r.Frame(0)
	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 1 {
		t.Errorf("draws = %+v, want one instance", f.dev.Draws)
	}
}

func TestSourceChangesRebuildLayers(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}))
	f.addLayer(t, "L", "pts", shader.Point)
	f.r.Frame(0)

	f.r.AddSource("pts", collection(orb.Point{0, 0}, orb.Point{1, 1}))
	f.dev.ResetRecords()
	f.r.Frame(16 * time.Millisecond)
	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 2 {
		t.Errorf("draws = %+v, want 2 instances after the source grew", f.dev.Draws)
	}

	f.r.RemoveSource("pts")
	f.dev.ResetRecords()
	f.r.Frame(32 * time.Millisecond)
	if len(f.dev.Draws) != 0 {
		t.Errorf("draws = %+v, want none without a source", f.dev.Draws)
	}
	if _, ok := f.r.Source("pts"); ok {
		t.Error("source still present")
	}
}

func TestPaintPropertiesAndViewUniforms(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}))
	f.addLayer(t, "L", "pts", shader.Point)
	if err := f.r.SetPaintProperty("L", "u_size", float32(12)); err != nil {
		t.Fatal(err)
	}
	f.r.View().Scale = 4

	f.r.Frame(0)

	h := f.prog.Handle()
	if v, _ := f.dev.UniformByName(h, "u_size"); v != float32(12) {
		t.Errorf("u_size = %v, want 12", v)
	}
	if v, _ := f.dev.UniformByName(h, "u_zoom"); v != float32(2) {
		t.Errorf("u_zoom = %v, want 2", v)
	}
	if v, _ := f.dev.UniformByName(h, "u_resolution"); v != [2]float32{200, 200} {
		t.Errorf("u_resolution = %v", v)
	}
	m, _ := f.dev.UniformByName(h, "u_matrix")
	if got, ok := m.([16]float32); !ok || got != [16]float32(f.r.View().Matrix()) {
		t.Errorf("u_matrix = %v, want the view matrix", m)
	}
	if v, ok := f.r.PaintProperty("L", "u_size"); !ok || v != float32(12) {
		t.Errorf("PaintProperty = %v, %v", v, ok)
	}

	var ln *manager.LayerNotFoundError
	if err := f.r.SetPaintProperty("nope", "u_size", 1); !errors.As(err, &ln) {
		t.Errorf("err = %v, want LayerNotFoundError", err)
	}
}

func TestLayerTexturesAreBound(t *testing.T) {
	f := newFixture(t)
	tx, err := f.tex.CreateSolidColor("marker", [4]uint8{255, 0, 0, 255})
	if err != nil {
		t.Fatal(err)
	}
	f.r.AddSource("pts", collection(orb.Point{0, 0}))
	err = f.r.AddLayer(manager.Layer{
		ID: "L", Source: "pts", Geometry: shader.Point, Program: f.prog,
		Textures: map[string]string{"u_icon": "marker", "u_missing": "nothing"},
	})
	if err != nil {
		t.Fatal(err)
	}

	f.r.Frame(0)

	// Samplers take units in name order.
	if f.dev.BoundTexture(0) != tx.Handle {
		t.Errorf("unit 0 holds %v, want %v", f.dev.BoundTexture(0), tx.Handle)
	}
	if v, _ := f.dev.UniformByName(f.prog.Handle(), "u_icon"); v != int32(0) {
		t.Errorf("u_icon = %v, want unit 0", v)
	}
	if _, ok := f.dev.UniformByName(f.prog.Handle(), "u_missing"); ok {
		t.Error("sampler of an unknown texture was set")
	}
}

func TestSetFeatureDataErrors(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}))
	f.addLayer(t, "L", "pts", shader.Point)

	var uf *UnknownFeatureDataError
	if err := f.r.SetFeatureData("L", "a_color", []float32{1}); !errors.As(err, &uf) || uf.Name != "a_color" {
		t.Errorf("err = %v, want UnknownFeatureDataError", err)
	}
	var ln *manager.LayerNotFoundError
	if err := f.r.SetFeatureData("nope", manager.TimeOffsetAttribute, nil); !errors.As(err, &ln) {
		t.Errorf("err = %v, want LayerNotFoundError", err)
	}
}

func TestRequestFrameRunsOnce(t *testing.T) {
	f := newFixture(t)
	var calls []time.Duration
	f.r.RequestFrame(func(now time.Duration) { calls = append(calls, now) })

	f.r.Frame(5 * time.Millisecond)
	f.r.Frame(10 * time.Millisecond)
	if len(calls) != 1 || calls[0] != 5*time.Millisecond {
		t.Errorf("calls = %v, want one call at 5ms", calls)
	}
}

func TestSlowFrameIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addLayer(t, "bg", "", shader.Global)

	f.r.Frame(0)
	f.dev.ResetRecords()
	f.r.Frame(time.Second)

	if len(f.dev.Draws) != 0 {
		t.Errorf("draws = %+v, want none after a slow frame", f.dev.Draws)
	}
	if s := f.r.Stats(); s.Frames != 2 || s.SkippedFrames != 1 {
		t.Errorf("stats = %+v", s)
	}

	f.dev.ResetRecords()
	f.r.Frame(time.Second + 16*time.Millisecond)
	if len(f.dev.Draws) != 1 {
		t.Errorf("draws = %+v, want drawing to resume", f.dev.Draws)
	}
}

func TestFixedStepFramesDrawWhenQualityDisabled(t *testing.T) {
	f := newFixture(t)
	f.addLayer(t, "bg", "", shader.Global)
	f.r.Quality().SetEnabled(false)

	const frames = 30
	step := time.Second / 15
	for i := 0; i < frames; i++ {
		f.r.Frame(time.Duration(i) * step)
	}
	if len(f.dev.Draws) != frames {
		t.Errorf("draws = %d, want %d", len(f.dev.Draws), frames)
	}
	if s := f.r.Stats(); s.Frames != frames || s.SkippedFrames != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestMercatorProjection(t *testing.T) {
	dev := gputest.New()
	r := New(dev, Options{Width: 100, Height: 100, Projection: project.WGS84.ToMercator})
	if err := r.AddSource("w", collection(orb.Point{-180, 0}, orb.Point{180, 0})); err != nil {
		t.Fatal(err)
	}
	b, ok := r.SourceBounds("w")
	if !ok {
		t.Fatal("no bounds")
	}
	const half = 20037508.342789244
	if !near(b.MinX, -half, 1e-3) || !near(b.MaxX, half, 1e-3) {
		t.Errorf("bounds = %+v, want +-%v", b, half)
	}
	// The source keeps its WGS84 geometry.
	fc, _ := r.Source("w")
	if fc.Features[1].Geometry.(orb.Point)[0] != 180 {
		t.Errorf("source geometry was projected in place: %v", fc.Features[1].Geometry)
	}
}

func TestDisposeReleasesBuffers(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}))
	f.addLayer(t, "L", "pts", shader.Point)
	f.addLayer(t, "bg", "", shader.Global)
	f.r.Frame(0)

	f.r.RemoveLayer("bg")
	if got := f.r.Layers(); len(got) != 1 || got[0] != "L" {
		t.Errorf("Layers() = %v", got)
	}

	f.r.Dispose()
	f.r.Dispose()
	if n := f.dev.Live(gputest.KindBuffer); n != 0 {
		t.Errorf("%d buffers leaked", n)
	}
	if n := f.dev.Live(gputest.KindVertexArray); n != 0 {
		t.Errorf("%d vertex arrays leaked", n)
	}
	if err := f.r.AddSource("pts", collection()); !errors.Is(err, ErrDisposed) {
		t.Errorf("AddSource after Dispose = %v", err)
	}
	if err := f.r.AddLayer(manager.Layer{ID: "x", Geometry: shader.Global, Program: f.prog}); !errors.Is(err, ErrDisposed) {
		t.Errorf("AddLayer after Dispose = %v", err)
	}
}

func TestManagerDrivesRenderer(t *testing.T) {
	f := newFixture(t)
	f.r.AddSource("pts", collection(orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2}))
	mgr, err := manager.New(f.dev, f.r, manager.Options{Textures: f.tex, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Register("fx", "pulse", nil, manager.WithSource("pts")); err != nil {
		t.Fatal(err)
	}
	inst, _ := mgr.Instance("fx")
	h := inst.Program.Handle()

	f.r.Frame(0)
	f.dev.ResetRecords()
	f.r.Frame(16 * time.Millisecond)

	if len(f.dev.Draws) != 1 || f.dev.Draws[0].Instances != 3 || f.dev.Draws[0].Program != h {
		t.Fatalf("draws = %+v, want the pulse program over 3 points", f.dev.Draws)
	}
	v, _ := f.dev.UniformByName(h, "u_time")
	if tm, ok := v.(float32); !ok || !near(float64(tm), 0.016, 1e-6) {
		t.Errorf("u_time = %v, want 0.016", v)
	}

	mgr.Pause("fx")
	f.r.Frame(32 * time.Millisecond)
	if v, _ := f.r.PaintProperty("fx", "u_time"); !near(float64(v.(float32)), 0.016, 1e-6) {
		t.Errorf("u_time advanced while paused: %v", v)
	}

	mgr.Destroy()
	if len(f.r.Layers()) != 0 {
		t.Errorf("layers left after Destroy: %v", f.r.Layers())
	}
}

type fakeContext struct {
	width, height int
	closeAfter    int
	frames        int
	input         graphics.Input
}

func (c *fakeContext) MakeCurrent()                   {}
func (c *fakeContext) Shutdown()                      {}
func (c *fakeContext) ShouldClose() bool              { return c.frames >= c.closeAfter }
func (c *fakeContext) EndFrame()                      { c.frames++ }
func (c *fakeContext) GetFramebufferSize() (int, int) { return c.width, c.height }
func (c *fakeContext) Time() float64                  { return float64(c.frames) / 60 }

func (c *fakeContext) PollInput() graphics.Input {
	in := c.input
	c.input = graphics.Input{}
	return in
}

func TestRunUntilClosed(t *testing.T) {
	f := newFixture(t)
	f.addLayer(t, "bg", "", shader.Global)
	gc := &fakeContext{width: 300, height: 150, closeAfter: 3, input: graphics.Input{DragX: 30}}

	if err := f.r.Run(context.Background(), gc); err != nil {
		t.Fatal(err)
	}
	if s := f.r.Stats(); s.Frames != 3 {
		t.Errorf("frames = %d, want 3", s.Frames)
	}
	v := f.r.View()
	if v.Width != 300 || v.Height != 150 {
		t.Errorf("view size = %dx%d, want 300x150", v.Width, v.Height)
	}
	if v.CenterX != -30 {
		t.Errorf("center x = %v, want -30 after dragging", v.CenterX)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gc = &fakeContext{width: 300, height: 150, closeAfter: 10}
	if err := f.r.Run(ctx, gc); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if gc.frames != 0 {
		t.Errorf("ran %d frames on a canceled context", gc.frames)
	}
}

func TestApplyInputZoomsAtCursor(t *testing.T) {
	f := newFixture(t)
	f.r.ApplyInput(graphics.Input{CursorX: 100, CursorY: 100, Scroll: 2})
	v := f.r.View()
	if !near(v.Scale, zoomStep*zoomStep, 1e-12) {
		t.Errorf("scale = %v, want %v", v.Scale, zoomStep*zoomStep)
	}
	if v.CenterX != 0 || v.CenterY != 0 {
		t.Errorf("zooming at the center moved it to (%v, %v)", v.CenterX, v.CenterY)
	}
}
