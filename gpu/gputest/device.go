// Package gputest provides a recording gpu.Device for tests and headless tools.
package gputest

import (
	"fmt"

	"github.com/richinsley/mapfx/gpu"
)

// Kind identifies a class of GPU object.
type Kind string

const (
	KindShader      Kind = "shader"
	KindProgram     Kind = "program"
	KindBuffer      Kind = "buffer"
	KindVertexArray Kind = "vertexarray"
	KindTexture     Kind = "texture"
)

// DrawCall is one recorded instanced draw.
type DrawCall struct {
	Mode      gpu.Primitive
	First     int32
	Count     int32
	Instances int32
	Indexed   bool
	Program   gpu.Program
}

// Upload is one recorded BufferData or BufferSubData call.
type Upload struct {
	Target gpu.BufferTarget
	Buffer gpu.Buffer
	Offset int
	Size   int
	Sub    bool
}

// AttribPointer is one recorded VertexAttribPointer call.
type AttribPointer struct {
	Location uint32
	Size     int32
	Stride   int32
	Offset   int
	Divisor  uint32
}

// Device records calls instead of talking to a GPU. It is not safe for
// concurrent use, matching the single-threaded GL contract.
type Device struct {
	// NoInstancing makes SupportsInstancing report false.
	NoInstancing bool
	// FailCompile returns a non-empty info log to make compilation fail.
	FailCompile func(stage gpu.ShaderStage, source string) string
	// FailLink returns a non-empty info log to make linking fail.
	FailLink func(p gpu.Program) string

	nextID  uint32
	live    map[Kind]map[uint32]bool
	created map[Kind]int
	deleted map[Kind]int
	stages  map[gpu.Shader]gpu.ShaderStage
	sources map[gpu.Shader]string

	Draws    []DrawCall
	Uploads  []Upload
	Pointers []AttribPointer
	Compiles int
	Links    int

	current       gpu.Program
	bound         map[gpu.BufferTarget]gpu.Buffer
	boundTexture  map[int]gpu.Texture
	activeUnit    int
	locations     map[gpu.Program]map[string]int32
	uniforms      map[int32]any
	textureSizes  map[gpu.Texture][2]int32
	divisors      map[uint32]uint32
	Blending      bool
	ViewportSize  [2]int32
	Clears        int
	Pixels        []byte
	HiddenUniform func(name string) bool
}

// New returns an empty recording device.
func New() *Device {
	return &Device{
		live:         make(map[Kind]map[uint32]bool),
		created:      make(map[Kind]int),
		deleted:      make(map[Kind]int),
		stages:       make(map[gpu.Shader]gpu.ShaderStage),
		sources:      make(map[gpu.Shader]string),
		bound:        make(map[gpu.BufferTarget]gpu.Buffer),
		boundTexture: make(map[int]gpu.Texture),
		locations:    make(map[gpu.Program]map[string]int32),
		uniforms:     make(map[int32]any),
		textureSizes: make(map[gpu.Texture][2]int32),
		divisors:     make(map[uint32]uint32),
	}
}

func (d *Device) alloc(kind Kind) uint32 {
	d.nextID++
	if d.live[kind] == nil {
		d.live[kind] = make(map[uint32]bool)
	}
	d.live[kind][d.nextID] = true
	d.created[kind]++
	return d.nextID
}

func (d *Device) free(kind Kind, id uint32) {
	if id == 0 || !d.live[kind][id] {
		return
	}
	delete(d.live[kind], id)
	d.deleted[kind]++
}

// Live returns the number of objects of kind that are created and not deleted.
func (d *Device) Live(kind Kind) int { return len(d.live[kind]) }

// Created returns how many objects of kind were ever created.
func (d *Device) Created(kind Kind) int { return d.created[kind] }

// Deleted returns how many objects of kind were deleted.
func (d *Device) Deleted(kind Kind) int { return d.deleted[kind] }

// IsLive reports whether object id of kind exists.
func (d *Device) IsLive(kind Kind, id uint32) bool { return d.live[kind][id] }

// Uniform returns the last value set at loc.
func (d *Device) Uniform(loc int32) (any, bool) {
	v, ok := d.uniforms[loc]
	return v, ok
}

// UniformByName returns the last value set for name on program p.
func (d *Device) UniformByName(p gpu.Program, name string) (any, bool) {
	loc, ok := d.locations[p][name]
	if !ok {
		return nil, false
	}
	return d.Uniform(loc)
}

// TextureSize returns the dimensions last uploaded to t.
func (d *Device) TextureSize(t gpu.Texture) (int32, int32, bool) {
	s, ok := d.textureSizes[t]
	return s[0], s[1], ok
}

// BoundTexture returns the texture bound on unit.
func (d *Device) BoundTexture(unit int) gpu.Texture { return d.boundTexture[unit] }

// CurrentProgram returns the program in use.
func (d *Device) CurrentProgram() gpu.Program { return d.current }

// ResetRecords clears the recorded draws, uploads and pointers.
func (d *Device) ResetRecords() {
	d.Draws = nil
	d.Uploads = nil
	d.Pointers = nil
}

func (d *Device) SupportsInstancing() bool { return !d.NoInstancing }

func (d *Device) CreateShader(stage gpu.ShaderStage) gpu.Shader {
	s := gpu.Shader(d.alloc(KindShader))
	d.stages[s] = stage
	return s
}

func (d *Device) CompileShader(s gpu.Shader, source string) (bool, string) {
	d.Compiles++
	d.sources[s] = source
	if d.FailCompile != nil {
		if log := d.FailCompile(d.stages[s], source); log != "" {
			return false, log
		}
	}
	return true, ""
}

func (d *Device) DeleteShader(s gpu.Shader) { d.free(KindShader, uint32(s)) }

func (d *Device) CreateProgram() gpu.Program { return gpu.Program(d.alloc(KindProgram)) }

func (d *Device) AttachShader(p gpu.Program, s gpu.Shader) {}

func (d *Device) LinkProgram(p gpu.Program) (bool, string) {
	d.Links++
	if d.FailLink != nil {
		if log := d.FailLink(p); log != "" {
			return false, log
		}
	}
	return true, ""
}

func (d *Device) DeleteProgram(p gpu.Program) { d.free(KindProgram, uint32(p)) }
func (d *Device) UseProgram(p gpu.Program)    { d.current = p }

// UniformLocation hands out a distinct location per (program, name).
// HiddenUniform can make names report -1 as if optimized away.
func (d *Device) UniformLocation(p gpu.Program, name string) int32 {
	if d.HiddenUniform != nil && d.HiddenUniform(name) {
		return -1
	}
	if d.locations[p] == nil {
		d.locations[p] = make(map[string]int32)
	}
	if loc, ok := d.locations[p][name]; ok {
		return loc
	}
	loc := int32(p)*1000 + int32(len(d.locations[p]))
	d.locations[p][name] = loc
	return loc
}

func (d *Device) Uniform1f(loc int32, v float32)          { d.uniforms[loc] = v }
func (d *Device) Uniform2f(loc int32, x, y float32)       { d.uniforms[loc] = [2]float32{x, y} }
func (d *Device) Uniform3f(loc int32, x, y, z float32)    { d.uniforms[loc] = [3]float32{x, y, z} }
func (d *Device) Uniform4f(loc int32, x, y, z, w float32) { d.uniforms[loc] = [4]float32{x, y, z, w} }
func (d *Device) Uniform1i(loc int32, v int32)            { d.uniforms[loc] = v }
func (d *Device) Uniform1fv(loc int32, v []float32) {
	d.uniforms[loc] = append([]float32(nil), v...)
}
func (d *Device) UniformMatrix4fv(loc int32, m [16]float32) { d.uniforms[loc] = m }

func (d *Device) CreateBuffer() gpu.Buffer { return gpu.Buffer(d.alloc(KindBuffer)) }

func (d *Device) BindBuffer(target gpu.BufferTarget, b gpu.Buffer) { d.bound[target] = b }

func (d *Device) BufferData(target gpu.BufferTarget, size int, data any, usage gpu.Usage) {
	d.Uploads = append(d.Uploads, Upload{Target: target, Buffer: d.bound[target], Size: size})
}

func (d *Device) BufferSubData(target gpu.BufferTarget, offset, size int, data any) {
	d.Uploads = append(d.Uploads, Upload{Target: target, Buffer: d.bound[target], Offset: offset, Size: size, Sub: true})
}

func (d *Device) DeleteBuffer(b gpu.Buffer) { d.free(KindBuffer, uint32(b)) }

func (d *Device) CreateVertexArray() gpu.VertexArray {
	return gpu.VertexArray(d.alloc(KindVertexArray))
}

func (d *Device) BindVertexArray(v gpu.VertexArray)   {}
func (d *Device) DeleteVertexArray(v gpu.VertexArray) { d.free(KindVertexArray, uint32(v)) }
func (d *Device) EnableVertexAttribArray(loc uint32)  {}

func (d *Device) VertexAttribPointer(loc uint32, size int32, normalized bool, stride int32, offset int) {
	d.Pointers = append(d.Pointers, AttribPointer{Location: loc, Size: size, Stride: stride, Offset: offset, Divisor: d.divisors[loc]})
}

func (d *Device) VertexAttribDivisor(loc, divisor uint32) { d.divisors[loc] = divisor }

func (d *Device) DrawArraysInstanced(mode gpu.Primitive, first, count, instances int32) {
	d.Draws = append(d.Draws, DrawCall{Mode: mode, First: first, Count: count, Instances: instances, Program: d.current})
}

func (d *Device) DrawElementsInstanced(mode gpu.Primitive, count int32, typ gpu.IndexType, offset int, instances int32) {
	d.Draws = append(d.Draws, DrawCall{Mode: mode, Count: count, Instances: instances, Indexed: true, Program: d.current})
}

func (d *Device) CreateTexture() gpu.Texture { return gpu.Texture(d.alloc(KindTexture)) }
func (d *Device) ActiveTexture(unit int)     { d.activeUnit = unit }
func (d *Device) BindTexture(t gpu.Texture)  { d.boundTexture[d.activeUnit] = t }

func (d *Device) TexImage2D(width, height int32, pixels []byte) {
	if want := int(width * height * 4); pixels != nil && len(pixels) < want {
		panic(fmt.Sprintf("gputest: TexImage2D got %d bytes, want %d", len(pixels), want))
	}
	d.textureSizes[d.boundTexture[d.activeUnit]] = [2]int32{width, height}
}

func (d *Device) TexParameters(wrap gpu.Wrap, filter gpu.Filter) {}
func (d *Device) GenerateMipmap()                                {}
func (d *Device) DeleteTexture(t gpu.Texture)                    { d.free(KindTexture, uint32(t)) }

func (d *Device) Viewport(x, y, width, height int32) { d.ViewportSize = [2]int32{width, height} }
func (d *Device) ClearColor(r, g, b, a float32)      {}
func (d *Device) Clear()                             { d.Clears++ }
func (d *Device) SetBlending(enabled bool)           { d.Blending = enabled }

// ReadPixels copies Pixels into dst when set.
func (d *Device) ReadPixels(x, y, width, height int32, dst []byte) {
	copy(dst, d.Pixels)
}

var _ gpu.Device = (*Device)(nil)
