// Package textures caches GPU textures by name and maps sprite atlases onto
// them.
package textures

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
)

// ErrDisposed resolves loads that were still pending when the manager was
// disposed.
var ErrDisposed = errors.New("texture manager disposed")

// ErrCanceled resolves loads whose texture was deleted before it arrived.
var ErrCanceled = errors.New("texture load canceled")

// Options control sampling of an uploaded texture. Zero values mean repeat
// wrapping and linear filtering.
type Options struct {
	Wrap   gpu.Wrap
	Filter gpu.Filter
	FlipY  bool
}

func (o Options) withDefaults() Options {
	if o.Wrap == "" {
		o.Wrap = gpu.WrapRepeat
	}
	if o.Filter == "" {
		o.Filter = gpu.FilterLinear
	}
	return o
}

// Texture is a live GPU texture.
type Texture struct {
	Handle  gpu.Texture
	Width   int
	Height  int
	Options Options
}

type loadResult struct {
	name string
	id   uint64
	img  *image.RGBA
	err  error
}

type waiter func(*Texture, error)

// Manager owns every texture it creates. All methods except the fetch
// workers started by Load run on the frame goroutine.
type Manager struct {
	dev gpu.Device

	// Fetch retrieves images for Load. Defaults to FetchImage.
	Fetch FetchFunc

	textures map[string]*Texture
	inflight map[string]*pendingLoad
	results  chan loadResult
	done     chan struct{}
	disposed bool
	nextID   uint64
}

// pendingLoad is matched to its worker by id, so a load orphaned by Delete
// cannot resolve a later load of the same name.
type pendingLoad struct {
	id      uint64
	opts    Options
	waiters []waiter
}

// NewManager returns an empty manager drawing on dev.
func NewManager(dev gpu.Device) *Manager {
	return &Manager{
		dev:      dev,
		Fetch:    FetchImage,
		textures: make(map[string]*Texture),
		inflight: make(map[string]*pendingLoad),
		results:  make(chan loadResult, 16),
		done:     make(chan struct{}),
	}
}

// Load fetches and decodes url in the background and uploads it under name
// during a later Pump. The returned channel receives exactly one value. If
// name is already cached the channel resolves immediately; if it is already
// loading the caller shares that load's result.
func (m *Manager) Load(ctx context.Context, name, url string, opts Options) <-chan error {
	ch := make(chan error, 1)
	m.load(ctx, name, url, opts, func(_ *Texture, err error) { ch <- err })
	return ch
}

func (m *Manager) load(ctx context.Context, name, url string, opts Options, w waiter) {
	if m.disposed {
		w(nil, ErrDisposed)
		return
	}
	if t, ok := m.textures[name]; ok {
		w(t, nil)
		return
	}
	if p, ok := m.inflight[name]; ok {
		p.waiters = append(p.waiters, w)
		return
	}
	opts = opts.withDefaults()
	m.nextID++
	id := m.nextID
	m.inflight[name] = &pendingLoad{id: id, opts: opts, waiters: []waiter{w}}
	logger.Logger().Debug("texture load started", "name", name, "url", url)

	fetch := m.Fetch
	go func() {
		res := loadResult{name: name, id: id}
		img, err := fetch(ctx, url)
		if err != nil {
			res.err = err
		} else {
			res.img = toRGBA(img, opts.FlipY)
		}
		// A canceled fetch still reports its error; only disposal drops it.
		select {
		case m.results <- res:
		case <-m.done:
		}
	}()
}

// Pump uploads every finished load and resolves its waiters. It never blocks
// and returns the number of loads it finished.
func (m *Manager) Pump() int {
	n := 0
	for {
		select {
		case res := <-m.results:
			m.finish(res)
			n++
		default:
			return n
		}
	}
}

func (m *Manager) finish(res loadResult) {
	p, ok := m.inflight[res.name]
	if !ok || p.id != res.id {
		logger.Logger().Debug("stale texture load dropped", "name", res.name)
		return
	}
	delete(m.inflight, res.name)
	if res.err != nil {
		logger.Logger().Warn("texture load failed", "name", res.name, "error", res.err)
		for _, w := range p.waiters {
			w(nil, res.err)
		}
		return
	}
	b := res.img.Rect
	t := m.upload(res.name, res.img.Pix, b.Dx(), b.Dy(), p.opts)
	logger.Logger().Debug("texture loaded", "name", res.name, "width", t.Width, "height", t.Height)
	for _, w := range p.waiters {
		w(t, nil)
	}
}

// Pending returns the number of loads not yet uploaded.
func (m *Manager) Pending() int { return len(m.inflight) }

func (m *Manager) upload(name string, pixels []byte, width, height int, opts Options) *Texture {
	if old, ok := m.textures[name]; ok {
		m.dev.DeleteTexture(old.Handle)
	}
	t := &Texture{Handle: m.dev.CreateTexture(), Width: width, Height: height, Options: opts}
	m.dev.ActiveTexture(0)
	m.dev.BindTexture(t.Handle)
	m.dev.TexParameters(opts.Wrap, opts.Filter)
	m.dev.TexImage2D(int32(width), int32(height), pixels)
	if opts.Filter == gpu.FilterMipmap {
		m.dev.GenerateMipmap()
	}
	m.dev.BindTexture(0)
	m.textures[name] = t
	return t
}

// CreateFromData uploads tightly packed RGBA8 pixels synchronously,
// replacing any texture already stored under name.
func (m *Manager) CreateFromData(name string, pixels []byte, width, height int, opts Options) (*Texture, error) {
	if m.disposed {
		return nil, ErrDisposed
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture %s: invalid size %dx%d", name, width, height)
	}
	if want := width * height * 4; len(pixels) < want {
		return nil, fmt.Errorf("texture %s: got %d bytes of pixel data, want %d", name, len(pixels), want)
	}
	opts = opts.withDefaults()
	data := pixels[:width*height*4]
	if opts.FlipY {
		data = append([]byte(nil), data...)
		flipRows(data, width*4, height)
	}
	return m.upload(name, data, width, height, opts), nil
}

// CreateSolidColor creates a 1x1 texture.
func (m *Manager) CreateSolidColor(name string, rgba [4]uint8) (*Texture, error) {
	return m.CreateFromData(name, rgba[:], 1, 1, Options{Wrap: gpu.WrapClamp, Filter: gpu.FilterNearest})
}

// Bind activates unit and binds the named texture. It reports false when the
// name is unknown.
func (m *Manager) Bind(name string, unit int) bool {
	t, ok := m.textures[name]
	if !ok {
		return false
	}
	m.dev.ActiveTexture(unit)
	m.dev.BindTexture(t.Handle)
	return true
}

// Get returns the named texture.
func (m *Manager) Get(name string) (*Texture, bool) {
	t, ok := m.textures[name]
	return t, ok
}

// Has reports whether name is uploaded.
func (m *Manager) Has(name string) bool {
	_, ok := m.textures[name]
	return ok
}

// Names returns the uploaded texture names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.textures))
	for n := range m.textures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of uploaded textures.
func (m *Manager) Len() int { return len(m.textures) }

// Delete releases the named texture and cancels a pending load of it.
func (m *Manager) Delete(name string) bool {
	found := false
	if p, ok := m.inflight[name]; ok {
		delete(m.inflight, name)
		for _, w := range p.waiters {
			w(nil, ErrCanceled)
		}
		found = true
	}
	if t, ok := m.textures[name]; ok {
		m.dev.DeleteTexture(t.Handle)
		delete(m.textures, name)
		found = true
	}
	return found
}

// Clear releases every texture and cancels pending loads.
func (m *Manager) Clear() {
	for _, name := range m.Names() {
		m.Delete(name)
	}
	for name := range m.inflight {
		m.Delete(name)
	}
}

// Dispose clears the manager and stops accepting work. Background fetches
// still running are abandoned.
func (m *Manager) Dispose() {
	if m.disposed {
		return
	}
	for name, p := range m.inflight {
		delete(m.inflight, name)
		for _, w := range p.waiters {
			w(nil, ErrDisposed)
		}
	}
	m.Clear()
	m.disposed = true
	close(m.done)
	logger.Logger().Debug("texture manager disposed")
}
