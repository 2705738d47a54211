package glgpu

import (
	"reflect"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/mapfx/gpu"
)

func shaderType(stage gpu.ShaderStage) uint32 {
	if stage == gpu.FragmentStage {
		return gl.FRAGMENT_SHADER
	}
	return gl.VERTEX_SHADER
}

func bufferTarget(target gpu.BufferTarget) uint32 {
	if target == gpu.ElementArrayBuffer {
		return gl.ELEMENT_ARRAY_BUFFER
	}
	return gl.ARRAY_BUFFER
}

func bufferUsage(usage gpu.Usage) uint32 {
	if usage == gpu.DynamicDraw {
		return gl.DYNAMIC_DRAW
	}
	return gl.STATIC_DRAW
}

func primitive(mode gpu.Primitive) uint32 {
	switch mode {
	case gpu.TriangleStrip:
		return gl.TRIANGLE_STRIP
	case gpu.TriangleFan:
		return gl.TRIANGLE_FAN
	case gpu.Lines:
		return gl.LINES
	case gpu.LineStrip:
		return gl.LINE_STRIP
	case gpu.Points:
		return gl.POINTS
	default:
		return gl.TRIANGLES
	}
}

// Helper to convert a wrap mode to the OpenGL constant.
func getWrapMode(wrap gpu.Wrap) int32 {
	switch wrap {
	case gpu.WrapRepeat:
		return gl.REPEAT
	case gpu.WrapClamp:
		return gl.CLAMP_TO_EDGE
	case gpu.WrapMirror:
		return gl.MIRRORED_REPEAT
	default:
		return gl.CLAMP_TO_EDGE
	}
}

// Helper to convert a filter mode to OpenGL min/mag filters.
func getFilterMode(filter gpu.Filter) (minFilter, magFilter int32) {
	switch filter {
	case gpu.FilterMipmap:
		return gl.LINEAR_MIPMAP_LINEAR, gl.LINEAR
	case gpu.FilterNearest:
		return gl.NEAREST, gl.NEAREST
	default:
		return gl.LINEAR, gl.LINEAR
	}
}

// ptr returns nil for nil or empty slices; gl.Ptr cannot take the address
// of an empty slice's first element.
func ptr(data any) unsafe.Pointer {
	if data == nil {
		return nil
	}
	if v := reflect.ValueOf(data); v.Kind() == reflect.Slice && v.Len() == 0 {
		return nil
	}
	return gl.Ptr(data)
}
