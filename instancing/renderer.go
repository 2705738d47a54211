// Package instancing draws many copies of one geometry with one draw call,
// varying each copy by a per-instance attribute buffer.
package instancing

import (
	"errors"
	"fmt"

	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
)

// ErrInstancingUnsupported is matched by InstancingUnsupportedError.
var ErrInstancingUnsupported = errors.New("instanced arrays are not supported")

// InstancingUnsupportedError is returned by New for contexts without
// instanced arrays. Callers that want one draw per feature must choose that
// path themselves.
type InstancingUnsupportedError struct {
	Reason string
}

func (e *InstancingUnsupportedError) Error() string {
	if e.Reason == "" {
		return ErrInstancingUnsupported.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInstancingUnsupported, e.Reason)
}

func (e *InstancingUnsupportedError) Unwrap() error { return ErrInstancingUnsupported }

// Attribute is one float vertex attribute. Offset is in bytes from the start
// of a vertex or instance record.
type Attribute struct {
	Location uint32
	Size     int32
	Offset   int
}

// Layout lists the attributes of one record.
type Layout []Attribute

const floatSize = 4

// Renderer owns one vertex array, a static geometry buffer, an optional
// index buffer and a dynamic instance buffer.
type Renderer struct {
	dev gpu.Device
	vao gpu.VertexArray

	vertexBuf   gpu.Buffer
	indexBuf    gpu.Buffer
	instanceBuf gpu.Buffer

	vertexCount int32
	indexCount  int32
	indexed     bool

	layout   Layout
	stride   int
	count    int
	capacity int
	base     int

	disposed bool
}

// New creates a renderer on dev, failing with *InstancingUnsupportedError
// when dev lacks instanced arrays.
func New(dev gpu.Device) (*Renderer, error) {
	if !dev.SupportsInstancing() {
		return nil, &InstancingUnsupportedError{Reason: "context has no vertex attribute divisors"}
	}
	return &Renderer{
		dev:         dev,
		vao:         dev.CreateVertexArray(),
		vertexBuf:   dev.CreateBuffer(),
		instanceBuf: dev.CreateBuffer(),
	}, nil
}

// SetGeometry uploads the shared per-vertex data. stride is in bytes; a
// count of 0 derives the vertex count from the data length.
func (r *Renderer) SetGeometry(vertices []float32, count int, layout Layout, stride int) {
	if r.disposed {
		return
	}
	if count <= 0 && stride > 0 {
		count = len(vertices) * floatSize / stride
	}
	r.uploadVertices(vertices, layout, stride)
	r.vertexCount = int32(count)
	r.indexed = false
	r.indexCount = 0
}

// SetIndexedGeometry uploads per-vertex data with a 32-bit index list.
func (r *Renderer) SetIndexedGeometry(vertices []float32, indices []uint32, layout Layout, stride int) {
	if r.disposed {
		return
	}
	r.uploadVertices(vertices, layout, stride)
	if r.indexBuf == 0 {
		r.indexBuf = r.dev.CreateBuffer()
	}
	r.dev.BindBuffer(gpu.ElementArrayBuffer, r.indexBuf)
	r.dev.BufferData(gpu.ElementArrayBuffer, len(indices)*4, indices, gpu.StaticDraw)
	r.vertexCount = 0
	if stride > 0 {
		r.vertexCount = int32(len(vertices) * floatSize / stride)
	}
	r.indexCount = int32(len(indices))
	r.indexed = true
}

func (r *Renderer) uploadVertices(vertices []float32, layout Layout, stride int) {
	r.dev.BindVertexArray(r.vao)
	r.dev.BindBuffer(gpu.ArrayBuffer, r.vertexBuf)
	r.dev.BufferData(gpu.ArrayBuffer, len(vertices)*floatSize, vertices, gpu.StaticDraw)
	for _, a := range layout {
		r.dev.EnableVertexAttribArray(a.Location)
		r.dev.VertexAttribDivisor(a.Location, 0)
		r.dev.VertexAttribPointer(a.Location, a.Size, false, int32(stride), a.Offset)
	}
	r.dev.BindVertexArray(0)
}

// SetInstanceData uploads per-instance records and sets the instance count
// to the number of whole records in data. The buffer is reallocated only
// when data exceeds its capacity.
func (r *Renderer) SetInstanceData(data []float32, layout Layout, stride int) {
	if r.disposed || stride <= 0 {
		return
	}
	size := len(data) * floatSize
	r.dev.BindVertexArray(r.vao)
	r.dev.BindBuffer(gpu.ArrayBuffer, r.instanceBuf)
	if size > r.capacity {
		newCap := size
		if r.capacity > 0 && r.capacity*2 > newCap {
			newCap = r.capacity * 2
		}
		r.dev.BufferData(gpu.ArrayBuffer, newCap, nil, gpu.DynamicDraw)
		logger.Logger().Debug("instance buffer grown", "from", r.capacity, "to", newCap)
		r.capacity = newCap
	}
	if size > 0 {
		r.dev.BufferSubData(gpu.ArrayBuffer, 0, size, data)
	}
	r.layout = layout
	r.stride = stride
	r.count = size / stride
	r.pointInstances(0)
	r.dev.BindVertexArray(0)
}

// UpdateInstanceData overwrites part of the instance buffer starting at
// byteOffset without changing the instance count.
func (r *Renderer) UpdateInstanceData(data []float32, byteOffset int) error {
	if r.disposed {
		return errors.New("instanced renderer is disposed")
	}
	size := len(data) * floatSize
	if byteOffset < 0 || byteOffset+size > r.capacity {
		return fmt.Errorf("instance update [%d, %d) exceeds buffer capacity %d", byteOffset, byteOffset+size, r.capacity)
	}
	if size == 0 {
		return nil
	}
	r.dev.BindBuffer(gpu.ArrayBuffer, r.instanceBuf)
	r.dev.BufferSubData(gpu.ArrayBuffer, byteOffset, size, data)
	return nil
}

// pointInstances aims the instance attributes at record first.
func (r *Renderer) pointInstances(first int) {
	r.dev.BindBuffer(gpu.ArrayBuffer, r.instanceBuf)
	for _, a := range r.layout {
		r.dev.EnableVertexAttribArray(a.Location)
		r.dev.VertexAttribDivisor(a.Location, 1)
		r.dev.VertexAttribPointer(a.Location, a.Size, false, int32(r.stride), first*r.stride+a.Offset)
	}
	r.base = first
}

// Draw issues one instanced draw for up to count instances; count < 0 draws
// all of them. Zero instances issue no GPU call.
func (r *Renderer) Draw(count int, mode gpu.Primitive) {
	if count < 0 || count > r.count {
		count = r.count
	}
	r.draw(0, count, mode)
}

// DrawRange draws count instances starting at instance start.
func (r *Renderer) DrawRange(start, count int, mode gpu.Primitive) {
	if start < 0 {
		start = 0
	}
	if start+count > r.count {
		count = r.count - start
	}
	r.draw(start, count, mode)
}

func (r *Renderer) draw(start, count int, mode gpu.Primitive) {
	if r.disposed || count <= 0 {
		return
	}
	r.dev.BindVertexArray(r.vao)
	if start != r.base {
		r.pointInstances(start)
	}
	if r.indexed {
		r.dev.DrawElementsInstanced(mode, r.indexCount, gpu.UnsignedInt, 0, int32(count))
	} else {
		r.dev.DrawArraysInstanced(mode, 0, r.vertexCount, int32(count))
	}
	r.dev.BindVertexArray(0)
}

func (r *Renderer) InstanceCount() int { return r.count }

// Capacity returns the instance buffer size in bytes.
func (r *Renderer) Capacity() int { return r.capacity }

// Dispose releases the vertex array and every buffer. It is safe to call
// more than once.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.dev.DeleteVertexArray(r.vao)
	r.dev.DeleteBuffer(r.vertexBuf)
	r.dev.DeleteBuffer(r.instanceBuf)
	if r.indexBuf != 0 {
		r.dev.DeleteBuffer(r.indexBuf)
	}
	r.count = 0
	r.capacity = 0
}
