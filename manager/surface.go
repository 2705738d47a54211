package manager

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/richinsley/mapfx/programs"
	"github.com/richinsley/mapfx/shader"
)

// Layer is what the manager asks the map surface to draw.
type Layer struct {
	ID       string
	Source   string
	Geometry shader.Geometry
	Program  *programs.Program
	// Textures maps sampler uniforms to texture names.
	Textures map[string]string
}

// MapSurface is the map widget the manager drives. The manager never
// creates sources; it only adds layers on top of them and mutates their
// paint properties.
type MapSurface interface {
	AddSource(id string, fc *geojson.FeatureCollection) error
	RemoveSource(id string)
	Source(id string) (*geojson.FeatureCollection, bool)

	AddLayer(l Layer) error
	RemoveLayer(id string)
	SetLayerProgram(layerID string, p *programs.Program) error
	SetPaintProperty(layerID, name string, value any) error
	// SetFeatureData attaches one float per source feature to a layer.
	SetFeatureData(layerID, name string, data []float32) error
}

// ShaderNotFoundError is returned when a shader name is not registered.
type ShaderNotFoundError = shader.NotFoundError

// LayerNotFoundError is returned for operations on layers that were never
// registered.
type LayerNotFoundError struct {
	LayerID string
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("layer not registered: %s", e.LayerID)
}

// SourceNotFoundError is returned when a feature layer names a source the
// surface does not have.
type SourceNotFoundError struct {
	SourceID string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source not found: %s", e.SourceID)
}

// UniformPanicError reports a definition whose uniform function panicked.
type UniformPanicError struct {
	LayerID string
	Shader  string
	Value   any
}

func (e *UniformPanicError) Error() string {
	return fmt.Sprintf("uniforms of shader %s on layer %s panicked: %v", e.Shader, e.LayerID, e.Value)
}
