package programs

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/richinsley/mapfx/gpu"
)

// Program is a linked shader program shared by every owner of the same
// vertex and fragment source.
type Program struct {
	dev      gpu.Device
	handle   gpu.Program
	vertex   gpu.Shader
	fragment gpu.Shader

	hash        uint64
	vertexSrc   string
	fragmentSrc string

	refCount int
	owners   map[string]int

	names     map[string]string
	locations map[string]int32
}

func (p *Program) Handle() gpu.Program { return p.handle }

// RefCount returns the number of live references to the program.
func (p *Program) RefCount() int { return p.refCount }

// SourceHash returns the content hash the program is cached under.
func (p *Program) SourceHash() uint64 { return p.hash }

// Sources returns the vertex and fragment source the program was built from.
func (p *Program) Sources() (vertex, fragment string) { return p.vertexSrc, p.fragmentSrc }

// Use makes the program current.
func (p *Program) Use() { p.dev.UseProgram(p.handle) }

// SetUniformNames installs a mapping from source uniform names to the names
// in the compiled program, as produced by a shader translator. Cached
// locations are dropped.
func (p *Program) SetUniformNames(names map[string]string) {
	p.names = names
	p.locations = make(map[string]int32)
}

// UniformLocation returns the cached location of name, or -1.
func (p *Program) UniformLocation(name string) int32 {
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	mapped := name
	if m, ok := p.names[name]; ok {
		mapped = m
	}
	loc := p.dev.UniformLocation(p.handle, mapped)
	p.locations[name] = loc
	return loc
}

// SetUniform sets name on the current program. It reports false when the
// uniform is not active or the value kind is unsupported.
func (p *Program) SetUniform(name string, value any) bool {
	loc := p.UniformLocation(name)
	if loc == -1 {
		return false
	}
	switch v := value.(type) {
	case float32:
		p.dev.Uniform1f(loc, v)
	case float64:
		p.dev.Uniform1f(loc, float32(v))
	case int:
		p.dev.Uniform1i(loc, int32(v))
	case int32:
		p.dev.Uniform1i(loc, v)
	case bool:
		var b int32
		if v {
			b = 1
		}
		p.dev.Uniform1i(loc, b)
	case [2]float32:
		p.dev.Uniform2f(loc, v[0], v[1])
	case [3]float32:
		p.dev.Uniform3f(loc, v[0], v[1], v[2])
	case [4]float32:
		p.dev.Uniform4f(loc, v[0], v[1], v[2], v[3])
	case mgl32.Vec2:
		p.dev.Uniform2f(loc, v[0], v[1])
	case mgl32.Vec3:
		p.dev.Uniform3f(loc, v[0], v[1], v[2])
	case mgl32.Vec4:
		p.dev.Uniform4f(loc, v[0], v[1], v[2], v[3])
	case mgl32.Mat4:
		p.dev.UniformMatrix4fv(loc, v)
	case [16]float32:
		p.dev.UniformMatrix4fv(loc, v)
	case []float32:
		p.dev.Uniform1fv(loc, v)
	default:
		return false
	}
	return true
}

func (p *Program) ownerCount(owner string) int { return p.owners[owner] }
