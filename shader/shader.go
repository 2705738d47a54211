// Package shader holds effect definitions and the GLSL glue that turns an
// effect body into complete WebGL2 vertex and fragment sources.
package shader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richinsley/mapfx/config"
)

// Geometry is the feature class an effect draws.
type Geometry string

const (
	Point   Geometry = "point"
	Line    Geometry = "line"
	Polygon Geometry = "polygon"
	// Global covers the whole viewport with one instance.
	Global Geometry = "global"
)

// Uniforms maps uniform names to values accepted by programs.Program.SetUniform.
type Uniforms map[string]any

// UniformFunc computes a layer's uniforms. It must be pure: the same
// arguments always give the same result.
type UniformFunc func(cfg config.Values, time, dt float64) Uniforms

// Definition is an immutable effect description. Definitions are shared by
// pointer and never copied into instances.
type Definition struct {
	Name     string
	Geometry Geometry
	// VertexShader overrides the geometry's vertex template when set.
	VertexShader string
	// FragmentShader is an effect body defining
	//   vec4 effect(vec2 uv, float t)
	// where t is the layer time plus the feature's time offset.
	FragmentShader string
	DefaultConfig  config.Values
	Schema         config.Schema
	// Textures maps sampler uniform names to texture names.
	Textures map[string]string
	Uniforms UniformFunc
}

// Sources returns the complete vertex and fragment sources of d.
func (d *Definition) Sources() (vertex, fragment string) {
	return ComposeSources(d.Geometry, d.VertexShader, d.FragmentShader)
}

// ComposeSources builds complete sources for geometry g. An empty vertex uses
// the geometry's template; a vertex starting with #version is used as is.
// The fragment body is wrapped unless it is already a complete shader.
func ComposeSources(g Geometry, vertex, fragment string) (string, string) {
	if vertex == "" {
		vertex = VertexTemplate(g)
	}
	if !hasVersion(fragment) {
		fragment = GetFragmentShader(fragment, g)
	}
	return vertex, fragment
}

// NotFoundError is returned for unknown effect names.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shader %q not found", e.Name)
}

// Registry is a set of definitions keyed by name. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds d, replacing any definition with the same name.
func (r *Registry) Register(d *Definition) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("shader definition needs a name")
	}
	switch d.Geometry {
	case Point, Line, Polygon, Global:
	default:
		return fmt.Errorf("shader %q: unknown geometry %q", d.Name, d.Geometry)
	}
	if d.FragmentShader == "" {
		return fmt.Errorf("shader %q: empty fragment shader", d.Name)
	}
	r.mu.Lock()
	r.defs[d.Name] = d
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	d, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return d, nil
}

// Names lists registered definitions in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns a registry holding the built-in effects.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, d := range Builtins() {
			if err := defaultRegistry.Register(d); err != nil {
				panic(err)
			}
		}
	})
	return defaultRegistry
}
