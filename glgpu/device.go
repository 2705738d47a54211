// Package glgpu implements gpu.Device on desktop OpenGL 4.1 core.
package glgpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
)

var glInitOnce sync.Once

// Device issues GL calls on the current context.
type Device struct {
	instancing bool
}

// New initializes the GL function pointers (once per process) for the
// context current on the calling thread.
func New() (*Device, error) {
	var initErr error
	glInitOnce.Do(func() {
		initErr = gl.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", initErr)
	}
	version := gl.GoStr(gl.GetString(gl.VERSION))
	logger.Logger().Info("OpenGL initialized", "version", version)
	return &Device{instancing: supportsInstancing(version)}, nil
}

// Instanced arrays are core since GL 3.3 and GLES 3.0.
func supportsInstancing(version string) bool {
	v := strings.TrimPrefix(version, "OpenGL ES ")
	var major, minor int
	if _, err := fmt.Sscanf(v, "%d.%d", &major, &minor); err != nil {
		return false
	}
	if strings.HasPrefix(version, "OpenGL ES") {
		return major >= 3
	}
	return major > 3 || (major == 3 && minor >= 3)
}

func (d *Device) SupportsInstancing() bool { return d.instancing }

func (d *Device) CreateShader(stage gpu.ShaderStage) gpu.Shader {
	return gpu.Shader(gl.CreateShader(shaderType(stage)))
}

func (d *Device) CompileShader(s gpu.Shader, source string) (bool, string) {
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(uint32(s), 1, csources, nil)
	free()
	gl.CompileShader(uint32(s))

	var status int32
	gl.GetShaderiv(uint32(s), gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(uint32(s), gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(uint32(s), logLength, nil, gl.Str(logText))
		return false, strings.TrimRight(logText, "\x00")
	}
	return true, ""
}

func (d *Device) DeleteShader(s gpu.Shader) { gl.DeleteShader(uint32(s)) }

func (d *Device) CreateProgram() gpu.Program { return gpu.Program(gl.CreateProgram()) }

func (d *Device) AttachShader(p gpu.Program, s gpu.Shader) {
	gl.AttachShader(uint32(p), uint32(s))
}

func (d *Device) LinkProgram(p gpu.Program) (bool, string) {
	gl.LinkProgram(uint32(p))

	var status int32
	gl.GetProgramiv(uint32(p), gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(uint32(p), gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(uint32(p), logLength, nil, gl.Str(log))
		return false, strings.TrimRight(log, "\x00")
	}
	return true, ""
}

func (d *Device) DeleteProgram(p gpu.Program) { gl.DeleteProgram(uint32(p)) }
func (d *Device) UseProgram(p gpu.Program)    { gl.UseProgram(uint32(p)) }

func (d *Device) UniformLocation(p gpu.Program, name string) int32 {
	return gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
}

func (d *Device) Uniform1f(loc int32, v float32)          { gl.Uniform1f(loc, v) }
func (d *Device) Uniform2f(loc int32, x, y float32)       { gl.Uniform2f(loc, x, y) }
func (d *Device) Uniform3f(loc int32, x, y, z float32)    { gl.Uniform3f(loc, x, y, z) }
func (d *Device) Uniform4f(loc int32, x, y, z, w float32) { gl.Uniform4f(loc, x, y, z, w) }
func (d *Device) Uniform1i(loc int32, v int32)            { gl.Uniform1i(loc, v) }

func (d *Device) Uniform1fv(loc int32, v []float32) {
	if len(v) == 0 {
		return
	}
	gl.Uniform1fv(loc, int32(len(v)), &v[0])
}

func (d *Device) UniformMatrix4fv(loc int32, m [16]float32) {
	gl.UniformMatrix4fv(loc, 1, false, &m[0])
}

func (d *Device) CreateBuffer() gpu.Buffer {
	var b uint32
	gl.GenBuffers(1, &b)
	return gpu.Buffer(b)
}

func (d *Device) BindBuffer(target gpu.BufferTarget, b gpu.Buffer) {
	gl.BindBuffer(bufferTarget(target), uint32(b))
}

func (d *Device) BufferData(target gpu.BufferTarget, size int, data any, usage gpu.Usage) {
	gl.BufferData(bufferTarget(target), size, ptr(data), bufferUsage(usage))
}

func (d *Device) BufferSubData(target gpu.BufferTarget, offset, size int, data any) {
	gl.BufferSubData(bufferTarget(target), offset, size, ptr(data))
}

func (d *Device) DeleteBuffer(b gpu.Buffer) {
	id := uint32(b)
	gl.DeleteBuffers(1, &id)
}

func (d *Device) CreateVertexArray() gpu.VertexArray {
	var v uint32
	gl.GenVertexArrays(1, &v)
	return gpu.VertexArray(v)
}

func (d *Device) BindVertexArray(v gpu.VertexArray) { gl.BindVertexArray(uint32(v)) }

func (d *Device) DeleteVertexArray(v gpu.VertexArray) {
	id := uint32(v)
	gl.DeleteVertexArrays(1, &id)
}

func (d *Device) EnableVertexAttribArray(loc uint32) { gl.EnableVertexAttribArray(loc) }

func (d *Device) VertexAttribPointer(loc uint32, size int32, normalized bool, stride int32, offset int) {
	gl.VertexAttribPointer(loc, size, gl.FLOAT, normalized, stride, gl.PtrOffset(offset))
}

func (d *Device) VertexAttribDivisor(loc, divisor uint32) { gl.VertexAttribDivisor(loc, divisor) }

func (d *Device) DrawArraysInstanced(mode gpu.Primitive, first, count, instances int32) {
	gl.DrawArraysInstanced(primitive(mode), first, count, instances)
}

func (d *Device) DrawElementsInstanced(mode gpu.Primitive, count int32, typ gpu.IndexType, offset int, instances int32) {
	indexType := uint32(gl.UNSIGNED_SHORT)
	if typ == gpu.UnsignedInt {
		indexType = gl.UNSIGNED_INT
	}
	gl.DrawElementsInstanced(primitive(mode), count, indexType, gl.PtrOffset(offset), instances)
}

func (d *Device) CreateTexture() gpu.Texture {
	var t uint32
	gl.GenTextures(1, &t)
	return gpu.Texture(t)
}

func (d *Device) ActiveTexture(unit int) { gl.ActiveTexture(gl.TEXTURE0 + uint32(unit)) }
func (d *Device) BindTexture(t gpu.Texture) {
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
}

func (d *Device) TexImage2D(width, height int32, pixels []byte) {
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, width, height, 0, gl.RGBA, gl.UNSIGNED_BYTE, ptr(pixels))
}

func (d *Device) TexParameters(wrap gpu.Wrap, filter gpu.Filter) {
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, getWrapMode(wrap))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, getWrapMode(wrap))
	minFilter, magFilter := getFilterMode(filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, magFilter)
}

func (d *Device) GenerateMipmap() { gl.GenerateMipmap(gl.TEXTURE_2D) }

func (d *Device) DeleteTexture(t gpu.Texture) {
	id := uint32(t)
	gl.DeleteTextures(1, &id)
}

func (d *Device) Viewport(x, y, width, height int32) { gl.Viewport(x, y, width, height) }
func (d *Device) ClearColor(r, g, b, a float32)      { gl.ClearColor(r, g, b, a) }
func (d *Device) Clear()                             { gl.Clear(gl.COLOR_BUFFER_BIT) }

func (d *Device) SetBlending(enabled bool) {
	if enabled {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		return
	}
	gl.Disable(gl.BLEND)
}

func (d *Device) ReadPixels(x, y, width, height int32, dst []byte) {
	if len(dst) < int(width*height*4) {
		return
	}
	gl.ReadPixels(x, y, width, height, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(dst))
}
