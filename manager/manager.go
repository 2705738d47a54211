// Package manager binds shader definitions to map layers and keeps their
// uniforms ticking.
package manager

import (
	"errors"
	"fmt"
	"sort"

	"github.com/richinsley/mapfx/clock"
	"github.com/richinsley/mapfx/config"
	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
	"github.com/richinsley/mapfx/offsets"
	"github.com/richinsley/mapfx/programs"
	"github.com/richinsley/mapfx/shader"
	"github.com/richinsley/mapfx/textures"
)

// TimeOffsetKey is the config key holding a layer's time offset rule.
const TimeOffsetKey = "timeOffset"

// TimeOffsetAttribute is the feature data name offsets are published under.
const TimeOffsetAttribute = "a_timeOffset"

// ErrDestroyed is returned by every mutation after Destroy.
var ErrDestroyed = errors.New("shader manager destroyed")

// ErrNoScheduler is returned by New when no frame scheduler is available.
var ErrNoScheduler = errors.New("no frame scheduler: set Options.Scheduler or use a surface that schedules frames")

// Translator converts WebGL2 sources for the running context and reports
// the renamed uniforms.
type Translator interface {
	TranslateProgram(vertex, fragment string) (vs, fs string, names map[string]string, err error)
}

// Options configure a Manager. Zero values get working defaults.
type Options struct {
	Registry *shader.Registry
	Programs *programs.Cache
	Textures *textures.Manager
	// Scheduler drives the clock. Defaults to the surface when it
	// implements clock.Scheduler.
	Scheduler clock.Scheduler
	// Translator is applied to every program source. Nil uses sources as is.
	Translator Translator
	// Seed seeds time offset calculation.
	Seed any
	// OnError receives runtime faults raised during ticks. Defaults to a
	// warning log.
	OnError func(layerID string, err error)
}

// Instance is the runtime state of one registered layer.
type Instance struct {
	LayerID    string
	Definition *shader.Definition
	Source     string
	Config     config.Values
	Playing    bool
	Speed      float64
	// Time is the layer-local time; it only advances while playing.
	Time    float64
	Program *programs.Program
	Offsets []float32

	vertex, fragment string // untranslated
	programVS        string // as given to the cache
	programFS        string
}

// Manager is the single owner of every layer binding. All methods run on
// the frame goroutine.
type Manager struct {
	surface    MapSurface
	registry   *shader.Registry
	programs   *programs.Cache
	textures   *textures.Manager
	clock      *clock.Clock
	translator Translator
	offsets    *offsets.Calculator
	onError    func(string, error)

	instances map[string]*Instance
	destroyed bool
}

// New returns a manager drawing through dev onto surface.
func New(dev gpu.Device, surface MapSurface, opts Options) (*Manager, error) {
	sched := opts.Scheduler
	if sched == nil {
		s, ok := surface.(clock.Scheduler)
		if !ok {
			return nil, ErrNoScheduler
		}
		sched = s
	}
	m := &Manager{
		surface:    surface,
		registry:   opts.Registry,
		programs:   opts.Programs,
		textures:   opts.Textures,
		clock:      clock.New(sched),
		translator: opts.Translator,
		offsets:    offsets.New(opts.Seed),
		onError:    opts.OnError,
		instances:  make(map[string]*Instance),
	}
	if m.registry == nil {
		m.registry = shader.DefaultRegistry()
	}
	if m.programs == nil {
		m.programs = programs.New(dev)
	}
	if m.textures == nil {
		m.textures = textures.NewManager(dev)
	}
	if m.onError == nil {
		m.onError = func(layerID string, err error) {
			logger.Logger().Warn("layer update failed", "layer", layerID, "error", err)
		}
	}
	return m, nil
}

// Clock returns the clock driving every layer.
func (m *Manager) Clock() *clock.Clock { return m.clock }

// Programs returns the program cache.
func (m *Manager) Programs() *programs.Cache { return m.programs }

// Textures returns the texture cache.
func (m *Manager) Textures() *textures.Manager { return m.textures }

// Registry returns the definitions the manager resolves names against.
func (m *Manager) Registry() *shader.Registry { return m.registry }

// RegisterOption customizes Register.
type RegisterOption func(*registration)

type registration struct {
	source string
	speed  float64
	paused bool
}

// WithSource draws the layer from source id instead of the source named
// like the layer.
func WithSource(id string) RegisterOption {
	return func(r *registration) { r.source = id }
}

// WithSpeed sets the initial speed multiplier.
func WithSpeed(f float64) RegisterOption {
	return func(r *registration) { r.speed = f }
}

// Paused registers the layer without playing it.
func Paused() RegisterOption {
	return func(r *registration) { r.paused = true }
}

// Register binds shaderName to layerID. Nothing is changed when it fails.
// Registering an existing layer replaces it once the new binding is ready.
func (m *Manager) Register(layerID, shaderName string, cfg config.Values, opts ...RegisterOption) error {
	if m.destroyed {
		return ErrDestroyed
	}
	reg := registration{source: layerID, speed: 1}
	for _, o := range opts {
		o(&reg)
	}

	def, err := m.registry.Get(shaderName)
	if err != nil {
		return err
	}
	resolved, offsetCfg, err := resolveConfig(def, nil, cfg)
	if err != nil {
		return err
	}

	inst := &Instance{
		LayerID:    layerID,
		Definition: def,
		Source:     reg.source,
		Config:     resolved,
		Playing:    !reg.paused,
		Speed:      clampSpeed(reg.speed),
		vertex:     def.VertexShader,
		fragment:   def.FragmentShader,
	}
	if def.Geometry != shader.Global {
		if inst.Offsets, err = m.computeOffsets(inst.Source, offsetCfg); err != nil {
			return err
		}
	}
	if err := m.acquireProgram(inst); err != nil {
		return err
	}

	old := m.instances[layerID]
	if old != nil {
		m.surface.RemoveLayer(layerID)
	}
	if err := m.attach(inst); err != nil {
		m.programs.Release(inst.programVS, inst.programFS, layerID)
		if old != nil {
			if rerr := m.attach(old); rerr != nil {
				logger.Logger().Warn("failed to restore replaced layer", "layer", layerID, "error", rerr)
				m.drop(old)
			}
		}
		return err
	}
	if old != nil {
		m.programs.Release(old.programVS, old.programFS, layerID)
	}

	m.instances[layerID] = inst
	m.clock.Add(layerID, m.updater(inst))
	if !m.clock.Running() {
		m.clock.Start()
	}
	logger.Logger().Info("layer registered", "layer", layerID, "shader", def.Name, "replaced", old != nil)
	return nil
}

// attach adds inst's layer to the surface with its feature data.
func (m *Manager) attach(inst *Instance) error {
	err := m.surface.AddLayer(Layer{
		ID:       inst.LayerID,
		Source:   inst.Source,
		Geometry: inst.Definition.Geometry,
		Program:  inst.Program,
		Textures: inst.Definition.Textures,
	})
	if err != nil {
		return fmt.Errorf("failed to add layer %s: %w", inst.LayerID, err)
	}
	if inst.Offsets != nil {
		if err := m.surface.SetFeatureData(inst.LayerID, TimeOffsetAttribute, inst.Offsets); err != nil {
			m.surface.RemoveLayer(inst.LayerID)
			return fmt.Errorf("failed to set time offsets on layer %s: %w", inst.LayerID, err)
		}
	}
	return nil
}

// drop forgets inst without touching the surface.
func (m *Manager) drop(inst *Instance) {
	m.clock.Remove(inst.LayerID)
	m.programs.Release(inst.programVS, inst.programFS, inst.LayerID)
	delete(m.instances, inst.LayerID)
}

// resolveConfig merges user over base (or the defaults), validates the
// result and parses its time offset rule.
func resolveConfig(def *shader.Definition, base, user config.Values) (config.Values, offsets.Config, error) {
	if base == nil {
		base = def.DefaultConfig
	}
	resolved := config.Resolve(base, user)
	res := config.Validate(resolved, def.Schema)
	errs := res.Errors
	oc, err := offsets.ParseConfig(resolved[TimeOffsetKey])
	if err != nil {
		errs = append(errs, config.FieldError{Field: TimeOffsetKey, Message: err.Error(), Value: resolved[TimeOffsetKey]})
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	}
	if len(errs) > 0 {
		return nil, offsets.Config{}, &config.InvalidConfigError{Shader: def.Name, Errors: errs}
	}
	return resolved, oc, nil
}

func (m *Manager) computeOffsets(sourceID string, cfg offsets.Config) ([]float32, error) {
	fc, ok := m.surface.Source(sourceID)
	if !ok {
		return nil, &SourceNotFoundError{SourceID: sourceID}
	}
	raw := m.offsets.CalculateOffsets(fc.Features, cfg)
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

// acquireProgram gets inst's program from the cache, translating first
// when a translator is set.
func (m *Manager) acquireProgram(inst *Instance) error {
	vs, fs := shader.ComposeSources(inst.Definition.Geometry, inst.vertex, inst.fragment)
	var names map[string]string
	if m.translator != nil {
		var err error
		vs, fs, names, err = m.translator.TranslateProgram(vs, fs)
		if err != nil {
			return fmt.Errorf("failed to translate shader %s: %w", inst.Definition.Name, err)
		}
	}
	p, err := m.programs.GetOrCreate(vs, fs, inst.LayerID)
	if err != nil {
		return err
	}
	if names != nil {
		p.SetUniformNames(names)
	}
	inst.Program, inst.programVS, inst.programFS = p, vs, fs
	return nil
}

func clampSpeed(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	return f
}

// updater returns the clock callback for inst.
func (m *Manager) updater(inst *Instance) clock.Func {
	return func(_, dt float64) {
		if !inst.Playing {
			return
		}
		d := dt * inst.Speed
		inst.Time += d
		u, err := uniforms(inst, d)
		if err != nil {
			m.onError(inst.LayerID, err)
			return
		}
		u["u_time"] = float32(inst.Time)
		u["u_delta"] = float32(d)
		for name, v := range u {
			if err := m.surface.SetPaintProperty(inst.LayerID, name, v); err != nil {
				m.onError(inst.LayerID, err)
				return
			}
		}
	}
}

// uniforms calls the definition's uniform function, turning a panic into
// an error.
func uniforms(inst *Instance, dt float64) (u shader.Uniforms, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UniformPanicError{LayerID: inst.LayerID, Shader: inst.Definition.Name, Value: r}
		}
	}()
	if inst.Definition.Uniforms != nil {
		u = inst.Definition.Uniforms(inst.Config, inst.Time, dt)
	}
	out := make(shader.Uniforms, len(u)+2)
	for k, v := range u {
		out[k] = v
	}
	return out, nil
}

// Unregister removes a layer. Unknown ids are ignored.
func (m *Manager) Unregister(layerID string) {
	inst, ok := m.instances[layerID]
	if !ok {
		return
	}
	m.surface.RemoveLayer(layerID)
	m.drop(inst)
	logger.Logger().Info("layer unregistered", "layer", layerID)
}

func (m *Manager) lookup(ids []string) ([]*Instance, error) {
	if len(ids) == 0 {
		out := make([]*Instance, 0, len(m.instances))
		for _, id := range m.Layers() {
			out = append(out, m.instances[id])
		}
		return out, nil
	}
	out := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		inst, ok := m.instances[id]
		if !ok {
			return nil, &LayerNotFoundError{LayerID: id}
		}
		out = append(out, inst)
	}
	return out, nil
}

// Play resumes the given layers, or every layer when none are given.
func (m *Manager) Play(layerIDs ...string) error {
	insts, err := m.lookup(layerIDs)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		inst.Playing = true
	}
	return nil
}

// Pause freezes the given layers, or every layer when none are given.
func (m *Manager) Pause(layerIDs ...string) error {
	insts, err := m.lookup(layerIDs)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		inst.Playing = false
	}
	return nil
}

// SetSpeed sets a layer's time multiplier. Negative speeds become 0.
func (m *Manager) SetSpeed(layerID string, speed float64) error {
	inst, ok := m.instances[layerID]
	if !ok {
		return &LayerNotFoundError{LayerID: layerID}
	}
	inst.Speed = clampSpeed(speed)
	return nil
}

// UpdateConfig merges cfg over the layer's current config. GPU resources are
// kept; time offsets are recomputed when cfg changes the offset rule.
func (m *Manager) UpdateConfig(layerID string, cfg config.Values) error {
	inst, ok := m.instances[layerID]
	if !ok {
		return &LayerNotFoundError{LayerID: layerID}
	}
	resolved, oc, err := resolveConfig(inst.Definition, inst.Config, cfg)
	if err != nil {
		return err
	}
	if _, changed := cfg[TimeOffsetKey]; changed && inst.Definition.Geometry != shader.Global {
		offs, err := m.computeOffsets(inst.Source, oc)
		if err != nil {
			return err
		}
		if err := m.surface.SetFeatureData(layerID, TimeOffsetAttribute, offs); err != nil {
			return err
		}
		inst.Offsets = offs
	}
	inst.Config = resolved
	return nil
}

// UpdateShaderSource swaps a layer's GLSL. An empty vertex uses the
// geometry's template. Config, time and play state are kept.
func (m *Manager) UpdateShaderSource(layerID, vertex, fragment string) error {
	inst, ok := m.instances[layerID]
	if !ok {
		return &LayerNotFoundError{LayerID: layerID}
	}
	next := *inst
	next.vertex, next.fragment = vertex, fragment
	if err := m.acquireProgram(&next); err != nil {
		return err
	}
	if err := m.surface.SetLayerProgram(layerID, next.Program); err != nil {
		m.programs.Release(next.programVS, next.programFS, layerID)
		return err
	}
	m.programs.Release(inst.programVS, inst.programFS, layerID)
	inst.vertex, inst.fragment = vertex, fragment
	inst.Program, inst.programVS, inst.programFS = next.Program, next.programVS, next.programFS
	logger.Logger().Info("layer shader source updated", "layer", layerID)
	return nil
}

// Instance returns a copy of a layer's state.
func (m *Manager) Instance(layerID string) (Instance, bool) {
	inst, ok := m.instances[layerID]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Has reports whether layerID is registered.
func (m *Manager) Has(layerID string) bool {
	_, ok := m.instances[layerID]
	return ok
}

// Layers returns the registered layer ids in sorted order.
func (m *Manager) Layers() []string {
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Destroy unregisters every layer, stops the clock and clears the program
// and texture caches.
func (m *Manager) Destroy() {
	if m.destroyed {
		return
	}
	for _, id := range m.Layers() {
		m.Unregister(id)
	}
	m.clock.Stop()
	m.programs.Clear()
	m.textures.Clear()
	m.destroyed = true
	logger.Logger().Info("shader manager destroyed")
}
