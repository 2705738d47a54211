// Package gpu defines the GPU context the runtime draws through.
//
// The interface mirrors the subset of OpenGL / WebGL2 the runtime needs so
// that glgpu can map it one-to-one onto go-gl and tests can substitute the
// recording device in gputest.
package gpu

// Object handles. Zero is never a valid object.
type (
	Shader      uint32
	Program     uint32
	Buffer      uint32
	VertexArray uint32
	Texture     uint32
)

type ShaderStage int

const (
	VertexStage ShaderStage = iota
	FragmentStage
)

func (s ShaderStage) String() string {
	switch s {
	case VertexStage:
		return "vertex"
	case FragmentStage:
		return "fragment"
	default:
		return "unknown"
	}
}

type BufferTarget int

const (
	ArrayBuffer BufferTarget = iota
	ElementArrayBuffer
)

type Usage int

const (
	StaticDraw Usage = iota
	DynamicDraw
)

type Primitive int

const (
	Triangles Primitive = iota
	TriangleStrip
	TriangleFan
	Lines
	LineStrip
	Points
)

type IndexType int

const (
	UnsignedShort IndexType = iota
	UnsignedInt
)

// Wrap is a texture wrap mode.
type Wrap string

const (
	WrapRepeat Wrap = "repeat"
	WrapClamp  Wrap = "clamp"
	WrapMirror Wrap = "mirror"
)

// Filter is a texture filter mode. FilterMipmap generates mipmaps.
type Filter string

const (
	FilterLinear  Filter = "linear"
	FilterNearest Filter = "nearest"
	FilterMipmap  Filter = "mipmap"
)

// Device is the GPU context collaborator. Every call must be made from the
// goroutine that owns the context.
type Device interface {
	// SupportsInstancing reports whether instanced arrays are available.
	SupportsInstancing() bool

	CreateShader(stage ShaderStage) Shader
	CompileShader(s Shader, source string) (ok bool, infoLog string)
	DeleteShader(s Shader)
	CreateProgram() Program
	AttachShader(p Program, s Shader)
	LinkProgram(p Program) (ok bool, infoLog string)
	DeleteProgram(p Program)
	UseProgram(p Program)

	// UniformLocation returns -1 when the program has no such active uniform.
	UniformLocation(p Program, name string) int32
	Uniform1f(loc int32, v float32)
	Uniform2f(loc int32, x, y float32)
	Uniform3f(loc int32, x, y, z float32)
	Uniform4f(loc int32, x, y, z, w float32)
	Uniform1i(loc int32, v int32)
	Uniform1fv(loc int32, v []float32)
	UniformMatrix4fv(loc int32, m [16]float32)

	CreateBuffer() Buffer
	BindBuffer(target BufferTarget, b Buffer)
	// BufferData allocates size bytes for the bound buffer, filling them from
	// data ([]float32, []uint32, []uint16, []byte or nil).
	BufferData(target BufferTarget, size int, data any, usage Usage)
	BufferSubData(target BufferTarget, offset, size int, data any)
	DeleteBuffer(b Buffer)

	CreateVertexArray() VertexArray
	BindVertexArray(v VertexArray)
	DeleteVertexArray(v VertexArray)
	EnableVertexAttribArray(loc uint32)
	// VertexAttribPointer describes a float attribute. stride and offset are in bytes.
	VertexAttribPointer(loc uint32, size int32, normalized bool, stride int32, offset int)
	VertexAttribDivisor(loc, divisor uint32)

	DrawArraysInstanced(mode Primitive, first, count, instances int32)
	DrawElementsInstanced(mode Primitive, count int32, typ IndexType, offset int, instances int32)

	CreateTexture() Texture
	ActiveTexture(unit int)
	BindTexture(t Texture)
	// TexImage2D uploads tightly packed RGBA8 pixels to the bound texture.
	TexImage2D(width, height int32, pixels []byte)
	TexParameters(wrap Wrap, filter Filter)
	GenerateMipmap()
	DeleteTexture(t Texture)

	Viewport(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	Clear()
	SetBlending(enabled bool)
	// ReadPixels reads RGBA8 pixels of the default framebuffer into dst.
	ReadPixels(x, y, width, height int32, dst []byte)
}
