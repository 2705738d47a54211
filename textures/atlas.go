package textures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/richinsley/mapfx/gpu"
)

// ErrAtlasNotLoaded is matched by AtlasNotLoadedError.
var ErrAtlasNotLoaded = errors.New("atlas not loaded")

// ErrSpriteOutOfBounds is returned for sprite rects outside the atlas image.
var ErrSpriteOutOfBounds = errors.New("sprite outside atlas bounds")

// AtlasNotLoadedError is returned when sprites are mutated before the atlas
// image has arrived.
type AtlasNotLoadedError struct {
	Atlas string
}

func (e *AtlasNotLoadedError) Error() string {
	if e.Atlas == "" {
		return "atlas not loaded"
	}
	return fmt.Sprintf("atlas %s not loaded", e.Atlas)
}

func (e *AtlasNotLoadedError) Is(target error) bool { return target == ErrAtlasNotLoaded }

// SpriteNotFoundError names a sprite missing from an atlas.
type SpriteNotFoundError struct {
	Name string
}

func (e *SpriteNotFoundError) Error() string {
	return fmt.Sprintf("sprite not found: %s", e.Name)
}

// Rect is one manifest entry in atlas pixels. Anchors default to the center.
type Rect struct {
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	AnchorX *float64 `json:"anchorX,omitempty"`
	AnchorY *float64 `json:"anchorY,omitempty"`
}

// Manifest maps sprite names to atlas rects.
type Manifest map[string]Rect

// LoadManifestFile reads a JSON manifest.
func LoadManifestFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Sprite is a manifest rect normalized to texture space.
type Sprite struct {
	UV     [4]float32 // u0, v0, u1, v1
	Anchor [2]float32
	Size   [2]float32 // pixels
}

var fallbackSprite = Sprite{UV: [4]float32{0, 0, 1, 1}, Anchor: [2]float32{0.5, 0.5}}

// Atlas is a texture plus a name to sprite map.
type Atlas struct {
	textures *Manager
	name     string
	width    int
	height   int
	loaded   bool
	sprites  map[string]Sprite
}

// NewAtlas returns an unloaded atlas whose image will live in textures.
func NewAtlas(textures *Manager) *Atlas {
	return &Atlas{textures: textures, sprites: make(map[string]Sprite)}
}

// Load loads the atlas image under name and normalizes manifest. The load
// fails, leaving the atlas unloaded, if any rect is outside the image.
func (a *Atlas) Load(ctx context.Context, name, url string, manifest Manifest) <-chan error {
	ch := make(chan error, 1)
	a.name = name
	a.textures.load(ctx, name, url, Options{Wrap: gpu.WrapClamp}, func(t *Texture, err error) {
		if err == nil {
			err = a.apply(t, manifest)
		}
		ch <- err
	})
	return ch
}

func (a *Atlas) apply(t *Texture, manifest Manifest) error {
	sprites := make(map[string]Sprite, len(manifest))
	for name, r := range manifest {
		s, err := normalize(name, r, t.Width, t.Height)
		if err != nil {
			return err
		}
		sprites[name] = s
	}
	a.width, a.height = t.Width, t.Height
	a.sprites = sprites
	a.loaded = true
	return nil
}

func normalize(name string, r Rect, width, height int) (Sprite, error) {
	w, h := float64(width), float64(height)
	if r.Width <= 0 || r.Height <= 0 || r.X < 0 || r.Y < 0 || r.X+r.Width > w || r.Y+r.Height > h {
		return Sprite{}, fmt.Errorf("sprite %s at (%g,%g) %gx%g in %dx%d atlas: %w",
			name, r.X, r.Y, r.Width, r.Height, width, height, ErrSpriteOutOfBounds)
	}
	s := Sprite{
		UV: [4]float32{
			float32(r.X / w), float32(r.Y / h),
			float32((r.X + r.Width) / w), float32((r.Y + r.Height) / h),
		},
		Anchor: [2]float32{0.5, 0.5},
		Size:   [2]float32{float32(r.Width), float32(r.Height)},
	}
	if r.AnchorX != nil {
		s.Anchor[0] = float32(*r.AnchorX)
	}
	if r.AnchorY != nil {
		s.Anchor[1] = float32(*r.AnchorY)
	}
	return s, nil
}

// Loaded reports whether the atlas image has been applied.
func (a *Atlas) Loaded() bool { return a.loaded }

// TextureName returns the texture the atlas samples.
func (a *Atlas) TextureName() string { return a.name }

// Sprite returns the named sprite.
func (a *Atlas) Sprite(name string) (Sprite, bool) {
	s, ok := a.sprites[name]
	return s, ok
}

func (a *Atlas) SpriteOrError(name string) (Sprite, error) {
	s, ok := a.sprites[name]
	if !ok {
		return Sprite{}, &SpriteNotFoundError{Name: name}
	}
	return s, nil
}

// SpriteNames returns the sprite names in sorted order.
func (a *Atlas) SpriteNames() []string {
	names := make([]string, 0, len(a.sprites))
	for n := range a.sprites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddSprite adds or replaces a sprite after the atlas has loaded.
func (a *Atlas) AddSprite(name string, r Rect) error {
	if !a.loaded {
		return &AtlasNotLoadedError{Atlas: a.name}
	}
	s, err := normalize(name, r, a.width, a.height)
	if err != nil {
		return err
	}
	a.sprites[name] = s
	return nil
}

// RemoveSprite reports whether name was present.
func (a *Atlas) RemoveSprite(name string) bool {
	_, ok := a.sprites[name]
	delete(a.sprites, name)
	return ok
}

// CreateSpriteData packs u0, v0, u1, v1, anchorX, anchorY per name. Unknown
// names get the whole texture with a centered anchor.
func (a *Atlas) CreateSpriteData(names []string) []float32 {
	out := make([]float32, 0, len(names)*6)
	for _, n := range names {
		s, ok := a.sprites[n]
		if !ok {
			s = fallbackSprite
		}
		out = append(out, s.UV[0], s.UV[1], s.UV[2], s.UV[3], s.Anchor[0], s.Anchor[1])
	}
	return out
}
