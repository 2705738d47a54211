// Package renderer is the map surface: it owns GeoJSON sources and shader
// layers, schedules frames and draws every layer with instancing.
package renderer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/richinsley/mapfx/clock"
	"github.com/richinsley/mapfx/culling"
	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/instancing"
	"github.com/richinsley/mapfx/logger"
	"github.com/richinsley/mapfx/manager"
	"github.com/richinsley/mapfx/programs"
	"github.com/richinsley/mapfx/quality"
	"github.com/richinsley/mapfx/shader"
	"github.com/richinsley/mapfx/textures"
)

var ErrDisposed = errors.New("renderer is disposed")

// LayerExistsError is returned by AddLayer for an id already on the map.
type LayerExistsError struct {
	LayerID string
}

func (e *LayerExistsError) Error() string {
	return fmt.Sprintf("layer already exists: %s", e.LayerID)
}

// UnknownFeatureDataError is returned by SetFeatureData for attribute names
// the renderer does not carry.
type UnknownFeatureDataError struct {
	Name string
}

func (e *UnknownFeatureDataError) Error() string {
	return fmt.Sprintf("unknown feature attribute: %s", e.Name)
}

type Options struct {
	Width, Height int
	// Background is the clear color.
	Background [4]float32
	// Projection maps source coordinates to map units, for example
	// project.WGS84.ToMercator. Nil keeps coordinates as they are.
	Projection orb.Projection
	Quality    quality.Options
	// Textures resolves layer samplers. Textures are pumped once per frame.
	Textures *textures.Manager
}

// Stats describes the most recent frame plus running frame counters.
type Stats struct {
	Frames        int
	SkippedFrames int
	Layers        int
	DrawCalls     int
	Features      int
	Visible       int
	Culled        int
	Instances     int
	Quality       quality.Stats
}

type source struct {
	fc     *geojson.FeatureCollection
	geoms  []orb.Geometry
	bounds []culling.BBox2D
	extent culling.BBox2D
}

type layerState struct {
	manager.Layer
	inst    *instancing.Renderer
	paint   map[string]any
	offsets []float32

	packed packed
	lod    int
	dirty  bool
	// full is set while the instance buffer holds every packed record.
	full bool
}

// Renderer implements manager.MapSurface and clock.Scheduler. All methods
// must be called from the goroutine that owns the GPU context.
type Renderer struct {
	dev      gpu.Device
	opts     Options
	view     View
	matrix   mgl32.Mat4
	culler   *culling.Culler
	quality  *quality.Controller
	textures *textures.Manager

	sources map[string]*source
	layers  map[string]*layerState
	order   []string

	queue    []func(now time.Duration)
	last     time.Duration
	haveLast bool

	stats    Stats
	disposed bool
}

func New(dev gpu.Device, opts Options) *Renderer {
	r := &Renderer{
		dev:      dev,
		opts:     opts,
		culler:   culling.New(culling.Mode2D),
		quality:  quality.New(opts.Quality),
		textures: opts.Textures,
		sources:  make(map[string]*source),
		layers:   make(map[string]*layerState),
	}
	r.view = View{Scale: 1, Width: opts.Width, Height: opts.Height}
	return r
}

func (r *Renderer) View() *View { return &r.view }

func (r *Renderer) Quality() *quality.Controller { return r.quality }

// Resize changes the viewport size, keeping the view center and scale.
func (r *Renderer) Resize(width, height int) {
	r.view.Width, r.view.Height = width, height
}

// RequestFrame queues fn for the next Frame.
func (r *Renderer) RequestFrame(fn func(now time.Duration)) {
	r.queue = append(r.queue, fn)
}

// AddSource adds or replaces a feature collection. Layers drawing from id
// are rebuilt on the next frame.
func (r *Renderer) AddSource(id string, fc *geojson.FeatureCollection) error {
	if r.disposed {
		return ErrDisposed
	}
	if fc == nil {
		return fmt.Errorf("source %s: nil feature collection", id)
	}
	s := &source{
		fc:     fc,
		geoms:  make([]orb.Geometry, len(fc.Features)),
		bounds: make([]culling.BBox2D, len(fc.Features)),
		extent: culling.EmptyBBox2D(),
	}
	for i, f := range fc.Features {
		var g orb.Geometry
		if f != nil {
			g = f.Geometry
		}
		if g != nil && r.opts.Projection != nil {
			g = project.Geometry(orb.Clone(g), r.opts.Projection)
		}
		s.geoms[i] = g
		s.bounds[i] = culling.ComputeBounds(g)
		s.extent = s.extent.Merge(s.bounds[i])
	}
	r.sources[id] = s
	for _, l := range r.layers {
		if l.Source == id {
			l.dirty = true
		}
	}
	logger.Logger().Info("source added", "source", id, "features", len(fc.Features))
	return nil
}

// RemoveSource drops a source. Layers still naming it draw nothing.
func (r *Renderer) RemoveSource(id string) {
	delete(r.sources, id)
}

func (r *Renderer) Source(id string) (*geojson.FeatureCollection, bool) {
	s, ok := r.sources[id]
	if !ok {
		return nil, false
	}
	return s.fc, true
}

// SourceBounds returns the projected extent of a source.
func (r *Renderer) SourceBounds(id string) (culling.BBox2D, bool) {
	s, ok := r.sources[id]
	if !ok {
		return culling.EmptyBBox2D(), false
	}
	return s.extent, true
}

func (r *Renderer) AddLayer(l manager.Layer) error {
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.layers[l.ID]; ok {
		return &LayerExistsError{LayerID: l.ID}
	}
	if l.Program == nil {
		return fmt.Errorf("layer %s has no program", l.ID)
	}
	if l.Geometry != shader.Global {
		if _, ok := r.sources[l.Source]; !ok {
			return &manager.SourceNotFoundError{SourceID: l.Source}
		}
	}
	inst, err := instancing.New(r.dev)
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.ID, err)
	}
	inst.SetGeometry(corners(l.Geometry), 0, cornerLayout, cornerStride)
	if l.Geometry == shader.Global {
		inst.SetInstanceData([]float32{0}, globalLayout, globalFloats*4)
	}
	r.layers[l.ID] = &layerState{
		Layer: l,
		inst:  inst,
		paint: make(map[string]any),
		dirty: true,
	}
	r.order = append(r.order, l.ID)
	return nil
}

func (r *Renderer) RemoveLayer(id string) {
	l, ok := r.layers[id]
	if !ok {
		return
	}
	l.inst.Dispose()
	delete(r.layers, id)
	for i, x := range r.order {
		if x == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Layers returns layer ids in draw order.
func (r *Renderer) Layers() []string {
	return append([]string(nil), r.order...)
}

func (r *Renderer) layer(id string) (*layerState, error) {
	l, ok := r.layers[id]
	if !ok {
		return nil, &manager.LayerNotFoundError{LayerID: id}
	}
	return l, nil
}

func (r *Renderer) SetLayerProgram(layerID string, p *programs.Program) error {
	l, err := r.layer(layerID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("layer %s: nil program", layerID)
	}
	l.Program = p
	return nil
}

// SetPaintProperty stores a uniform value applied before every draw of the
// layer.
func (r *Renderer) SetPaintProperty(layerID, name string, value any) error {
	l, err := r.layer(layerID)
	if err != nil {
		return err
	}
	l.paint[name] = value
	return nil
}

// PaintProperty returns the last value set for name on a layer.
func (r *Renderer) PaintProperty(layerID, name string) (any, bool) {
	l, ok := r.layers[layerID]
	if !ok {
		return nil, false
	}
	v, ok := l.paint[name]
	return v, ok
}

// SetFeatureData accepts one time offset per source feature.
func (r *Renderer) SetFeatureData(layerID, name string, data []float32) error {
	l, err := r.layer(layerID)
	if err != nil {
		return err
	}
	if name != manager.TimeOffsetAttribute {
		return &UnknownFeatureDataError{Name: name}
	}
	l.offsets = append(l.offsets[:0], data...)
	l.dirty = true
	return nil
}

// Frame runs one frame at timestamp now: it records the frame time, uploads
// finished textures, runs queued frame callbacks and draws every layer.
func (r *Renderer) Frame(now time.Duration) {
	if r.disposed {
		return
	}
	if r.haveLast && now > r.last {
		r.quality.RecordFrame(now - r.last)
	}
	r.last = now
	r.haveLast = true

	if r.textures != nil {
		r.textures.Pump()
	}
	queue := r.queue
	r.queue = nil
	for _, fn := range queue {
		fn(now)
	}

	r.stats.Frames++
	r.stats.Layers = len(r.order)
	r.stats.DrawCalls, r.stats.Features, r.stats.Visible, r.stats.Culled, r.stats.Instances = 0, 0, 0, 0, 0
	if r.quality.ShouldSkipFrame() {
		r.stats.SkippedFrames++
		logger.Logger().Debug("frame skipped", "frame", r.stats.Frames)
		return
	}

	level := r.quality.Level()
	r.culler.SetFeatureCap(level.MaxFeatures)
	lod := int(math.Max(1, math.Round(level.LODSimplification)))

	bg := r.opts.Background
	r.dev.Viewport(0, 0, int32(r.view.Width), int32(r.view.Height))
	r.dev.ClearColor(bg[0], bg[1], bg[2], bg[3])
	r.dev.Clear()
	r.dev.SetBlending(true)

	r.matrix = r.view.Matrix()
	r.culler.UpdateFrustum(r.matrix)
	for _, id := range r.order {
		r.drawLayer(r.layers[id], lod)
	}
}

func (r *Renderer) drawLayer(l *layerState, lod int) {
	if l.Geometry == shader.Global {
		r.prepare(l)
		l.inst.Draw(1, gpu.Triangles)
		r.stats.DrawCalls++
		r.stats.Instances++
		return
	}

	src, ok := r.sources[l.Source]
	if !ok {
		return
	}
	if l.Geometry == shader.Point {
		lod = 1
	}
	if l.dirty || l.lod != lod {
		l.packed = pack(l.Geometry, src.geoms, l.offsets, lod)
		l.lod = lod
		l.dirty = false
		l.full = false
	}

	visible, st := r.culler.CullFeaturesWithStats(src.fc.Features, src.bounds)
	r.stats.Features += st.Total
	r.stats.Visible += st.Visible
	r.stats.Culled += st.Culled
	if len(visible) == 0 || l.packed.instances() == 0 {
		return
	}

	layout, floats := recordShape(l.Geometry)
	stride := floats * 4
	if contiguous(visible) {
		if !l.full {
			l.inst.SetInstanceData(l.packed.data, layout, stride)
			l.full = true
		}
		start, count := l.packed.instanceRange(visible[0], visible[len(visible)-1])
		if count == 0 {
			return
		}
		r.prepare(l)
		l.inst.DrawRange(start, count, gpu.Triangles)
		r.stats.Instances += count
	} else {
		sub := l.packed.subset(visible)
		count := len(sub) / floats
		if count == 0 {
			return
		}
		if len(sub)*4 <= l.inst.Capacity() && count <= l.inst.InstanceCount() {
			if err := l.inst.UpdateInstanceData(sub, 0); err != nil {
				l.inst.SetInstanceData(sub, layout, stride)
			}
		} else {
			l.inst.SetInstanceData(sub, layout, stride)
		}
		l.full = false
		r.prepare(l)
		l.inst.Draw(count, gpu.Triangles)
		r.stats.Instances += count
	}
	r.stats.DrawCalls++
}

// prepare makes the layer's program current and applies view uniforms,
// paint properties and textures.
func (r *Renderer) prepare(l *layerState) {
	p := l.Program
	p.Use()
	p.SetUniform("u_matrix", r.matrix)
	p.SetUniform("u_resolution", [2]float32{float32(r.view.Width), float32(r.view.Height)})
	p.SetUniform("u_zoom", float32(r.view.Zoom()))
	for name, v := range l.paint {
		p.SetUniform(name, v)
	}
	if r.textures == nil || len(l.Textures) == 0 {
		return
	}
	samplers := make([]string, 0, len(l.Textures))
	for s := range l.Textures {
		samplers = append(samplers, s)
	}
	sort.Strings(samplers)
	for unit, s := range samplers {
		if r.textures.Bind(l.Textures[s], unit) {
			p.SetUniform(s, int32(unit))
		}
	}
}

func contiguous(idx []int) bool {
	for i := 1; i < len(idx); i++ {
		if idx[i] != idx[i-1]+1 {
			return false
		}
	}
	return true
}

// Stats returns telemetry for the last frame.
func (r *Renderer) Stats() Stats {
	s := r.stats
	s.Quality = r.quality.Stats()
	return s
}

// Dispose releases every layer's GPU buffers. Queued frame callbacks are
// dropped.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	for _, id := range r.Layers() {
		r.RemoveLayer(id)
	}
	r.sources = make(map[string]*source)
	r.queue = nil
	r.disposed = true
}

var (
	_ manager.MapSurface = (*Renderer)(nil)
	_ clock.Scheduler    = (*Renderer)(nil)
)
