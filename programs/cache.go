// Package programs is a reference-counted cache of linked shader programs.
//
// Programs are keyed by the content of their sources, so identical GLSL
// requested by different layers compiles once and is shared.
package programs

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
)

// CompileError reports a shader stage that failed to compile.
type CompileError struct {
	Stage gpu.ShaderStage
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile %s shader: %s", e.Stage, e.Log)
}

// LinkError reports a program that failed to link.
type LinkError struct {
	Log string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("failed to link program: %s", e.Log)
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Programs   int
	References int
	Hits       int
	Misses     int
	Compiles   int
	Deletes    int
}

// Cache owns every program it creates. It is bound to one GPU context.
type Cache struct {
	dev     gpu.Device
	entries map[uint64][]*Program
	stats   Stats
}

func New(dev gpu.Device) *Cache {
	return &Cache{
		dev:     dev,
		entries: make(map[uint64][]*Program),
	}
}

// SourceHash returns the cache key for a vertex/fragment pair.
func SourceHash(vertexSrc, fragmentSrc string) uint64 {
	d := xxhash.New()
	d.WriteString(vertexSrc)
	d.Write([]byte{0})
	d.WriteString(fragmentSrc)
	return d.Sum64()
}

func (c *Cache) lookup(vertexSrc, fragmentSrc string) (*Program, uint64) {
	h := SourceHash(vertexSrc, fragmentSrc)
	for _, p := range c.entries[h] {
		if p.vertexSrc == vertexSrc && p.fragmentSrc == fragmentSrc {
			return p, h
		}
	}
	return nil, h
}

// GetOrCreate returns the program for the given sources, compiling and
// linking it on first use. Each call adds one reference attributed to owner
// (which may be empty).
func (c *Cache) GetOrCreate(vertexSrc, fragmentSrc, owner string) (*Program, error) {
	p, h := c.lookup(vertexSrc, fragmentSrc)
	if p != nil {
		c.stats.Hits++
		p.refCount++
		p.owners[owner]++
		return p, nil
	}
	c.stats.Misses++

	p, err := c.build(vertexSrc, fragmentSrc)
	if err != nil {
		return nil, err
	}
	p.hash = h
	p.refCount = 1
	p.owners[owner] = 1
	c.entries[h] = append(c.entries[h], p)
	c.stats.Compiles++
	logger.Logger().Debug("program compiled", "hash", fmt.Sprintf("%016x", h), "owner", owner)
	return p, nil
}

func (c *Cache) build(vertexSrc, fragmentSrc string) (*Program, error) {
	vertexShader, err := c.compileShader(gpu.VertexStage, vertexSrc)
	if err != nil {
		return nil, err
	}
	fragmentShader, err := c.compileShader(gpu.FragmentStage, fragmentSrc)
	if err != nil {
		c.dev.DeleteShader(vertexShader)
		return nil, err
	}

	program := c.dev.CreateProgram()
	c.dev.AttachShader(program, vertexShader)
	c.dev.AttachShader(program, fragmentShader)
	if ok, log := c.dev.LinkProgram(program); !ok {
		c.dev.DeleteProgram(program)
		c.dev.DeleteShader(vertexShader)
		c.dev.DeleteShader(fragmentShader)
		return nil, &LinkError{Log: log}
	}

	return &Program{
		dev:         c.dev,
		handle:      program,
		vertex:      vertexShader,
		fragment:    fragmentShader,
		vertexSrc:   vertexSrc,
		fragmentSrc: fragmentSrc,
		owners:      make(map[string]int),
		locations:   make(map[string]int32),
	}, nil
}

func (c *Cache) compileShader(stage gpu.ShaderStage, source string) (gpu.Shader, error) {
	shader := c.dev.CreateShader(stage)
	if ok, log := c.dev.CompileShader(shader, source); !ok {
		c.dev.DeleteShader(shader)
		return 0, &CompileError{Stage: stage, Log: log}
	}
	return shader, nil
}

// Release drops one reference to the program built from the sources. A
// non-empty owner releases a reference that owner acquired; an empty owner
// releases an anonymous reference first, then any owner's. It reports
// whether a reference was released.
func (c *Cache) Release(vertexSrc, fragmentSrc, owner string) bool {
	p, _ := c.lookup(vertexSrc, fragmentSrc)
	if p == nil {
		return false
	}
	if owner == "" && p.owners[""] == 0 {
		owner = firstOwner(p.owners)
	}
	if p.owners[owner] == 0 {
		return false
	}
	c.unref(p, owner, 1)
	return true
}

// ReleaseByOwner drops every reference owner holds and returns how many
// references were released.
func (c *Cache) ReleaseByOwner(owner string) int {
	var held []*Program
	for _, bucket := range c.entries {
		for _, p := range bucket {
			if p.owners[owner] > 0 {
				held = append(held, p)
			}
		}
	}
	released := 0
	for _, p := range held {
		n := p.ownerCount(owner)
		c.unref(p, owner, n)
		released += n
	}
	return released
}

func (c *Cache) unref(p *Program, owner string, n int) {
	p.owners[owner] -= n
	if p.owners[owner] <= 0 {
		delete(p.owners, owner)
	}
	p.refCount -= n
	if p.refCount > 0 {
		return
	}
	c.destroy(p)
	bucket := c.entries[p.hash]
	for i, q := range bucket {
		if q == p {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.entries, p.hash)
	} else {
		c.entries[p.hash] = bucket
	}
}

func (c *Cache) destroy(p *Program) {
	c.dev.DeleteProgram(p.handle)
	c.dev.DeleteShader(p.vertex)
	c.dev.DeleteShader(p.fragment)
	p.refCount = 0
	c.stats.Deletes++
	logger.Logger().Debug("program deleted", "hash", fmt.Sprintf("%016x", p.hash))
}

// Has reports whether a program for the sources is cached.
func (c *Cache) Has(vertexSrc, fragmentSrc string) bool {
	p, _ := c.lookup(vertexSrc, fragmentSrc)
	return p != nil
}

// Size returns the number of cached programs.
func (c *Cache) Size() int {
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}

func (c *Cache) Stats() Stats {
	s := c.stats
	s.Programs = 0
	s.References = 0
	for _, bucket := range c.entries {
		for _, p := range bucket {
			s.Programs++
			s.References += p.refCount
		}
	}
	return s
}

// Clear deletes every program regardless of outstanding references. Used
// on context loss and teardown.
func (c *Cache) Clear() {
	for _, bucket := range c.entries {
		for _, p := range bucket {
			c.destroy(p)
		}
	}
	c.entries = make(map[uint64][]*Program)
}

func firstOwner(owners map[string]int) string {
	keys := make([]string, 0, len(owners))
	for k := range owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
