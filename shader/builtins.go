package shader

import (
	"github.com/richinsley/mapfx/config"
	"github.com/richinsley/mapfx/logger"
)

// Builtins returns fresh copies of the built-in effects.
func Builtins() []*Definition {
	return []*Definition{pulse(), flow(), wave(), vignette(), sprite()}
}

func num(cfg config.Values, key string, fallback float64) float32 {
	if v, ok := config.ToFloat(cfg[key]); ok {
		return float32(v)
	}
	return float32(fallback)
}

func color(cfg config.Values, key string, fallback [4]float32) [4]float32 {
	c, err := config.ColorVec4(cfg[key])
	if err != nil {
		logger.Logger().Debug("color fallback", "key", key, "error", err)
		return fallback
	}
	return c
}

const pulseFragment = `
uniform vec4  u_color;
uniform float u_speed;
uniform float u_rings;
uniform float u_opacity;

vec4 effect(vec2 uv, float t) {
    float d = length(uv - 0.5) * 2.0;
    if (d > 1.0) discard;
    float phase = fract(t * u_speed);
    float ring = 0.0;
    for (int i = 0; i < 8; i++) {
        if (float(i) >= u_rings) break;
        float r = fract(phase + float(i) / u_rings);
        ring = max(ring, smoothstep(0.08, 0.0, abs(d - r)) * (1.0 - r));
    }
    float core = smoothstep(0.25, 0.15, d);
    return vec4(u_color.rgb, max(core, ring) * u_color.a * u_opacity);
}
`

func pulse() *Definition {
	return &Definition{
		Name:           "pulse",
		Geometry:       Point,
		FragmentShader: pulseFragment,
		DefaultConfig: config.Values{
			"color":   "#ff3366",
			"size":    24.0,
			"speed":   1.0,
			"rings":   2.0,
			"opacity": 1.0,
		},
		Schema: config.Schema{
			"color":   {Type: config.Color, Label: "Color"},
			"size":    {Type: config.Number, Min: config.Bound(2), Max: config.Bound(200), Step: config.Bound(1), Label: "Size (px)"},
			"speed":   {Type: config.Number, Min: config.Bound(0), Max: config.Bound(10), Step: config.Bound(0.1), Label: "Speed"},
			"rings":   {Type: config.Number, Min: config.Bound(1), Max: config.Bound(8), Step: config.Bound(1), Label: "Rings"},
			"opacity": {Type: config.Number, Min: config.Bound(0), Max: config.Bound(1), Label: "Opacity"},
		},
		Uniforms: func(cfg config.Values, _, _ float64) Uniforms {
			return Uniforms{
				"u_color":   color(cfg, "color", [4]float32{1, 0.2, 0.4, 1}),
				"u_size":    num(cfg, "size", 24),
				"u_speed":   num(cfg, "speed", 1),
				"u_rings":   num(cfg, "rings", 2),
				"u_opacity": num(cfg, "opacity", 1),
			}
		},
	}
}

const flowFragment = `
uniform vec4  u_color;
uniform float u_speed;
uniform float u_dash;
uniform float u_trail;

vec4 effect(vec2 uv, float t) {
    float across = 1.0 - abs(uv.y * 2.0 - 1.0);
    float head = fract(uv.x / u_dash - t * u_speed);
    float a = pow(head, u_trail) * smoothstep(0.0, 0.5, across);
    return vec4(u_color.rgb, a * u_color.a);
}
`

func flow() *Definition {
	return &Definition{
		Name:           "flow",
		Geometry:       Line,
		FragmentShader: flowFragment,
		DefaultConfig: config.Values{
			"color": "#00d4ff",
			"width": 4.0,
			"speed": 1.0,
			"dash":  0.1,
			"trail": 2.0,
		},
		Schema: config.Schema{
			"color": {Type: config.Color},
			"width": {Type: config.Number, Min: config.Bound(0.5), Max: config.Bound(64)},
			"speed": {Type: config.Number, Min: config.Bound(0), Max: config.Bound(10)},
			"dash":  {Type: config.Number, Min: config.Bound(0.001), Max: config.Bound(1)},
			"trail": {Type: config.Number, Min: config.Bound(0.1), Max: config.Bound(16)},
		},
		Uniforms: func(cfg config.Values, _, _ float64) Uniforms {
			return Uniforms{
				"u_color": color(cfg, "color", [4]float32{0, 0.83, 1, 1}),
				"u_width": num(cfg, "width", 4),
				"u_speed": num(cfg, "speed", 1),
				"u_dash":  num(cfg, "dash", 0.1),
				"u_trail": num(cfg, "trail", 2),
			}
		},
	}
}

const waveFragment = `
uniform vec4  u_color;
uniform float u_speed;
uniform float u_frequency;
uniform float u_amplitude;

vec4 effect(vec2 uv, float t) {
    float w = sin((v_world.x + v_world.y) * u_frequency * PI - t * u_speed * 2.0 * PI);
    float a = u_color.a * (1.0 - u_amplitude + u_amplitude * (0.5 + 0.5 * w));
    return vec4(u_color.rgb, a);
}
`

func wave() *Definition {
	return &Definition{
		Name:           "wave",
		Geometry:       Polygon,
		FragmentShader: waveFragment,
		DefaultConfig: config.Values{
			"color":     "#3388ffaa",
			"speed":     0.5,
			"frequency": 2.0,
			"amplitude": 0.4,
		},
		Schema: config.Schema{
			"color":     {Type: config.Color},
			"speed":     {Type: config.Number, Min: config.Bound(0), Max: config.Bound(10)},
			"frequency": {Type: config.Number, Min: config.Bound(0), Max: config.Bound(100)},
			"amplitude": {Type: config.Number, Min: config.Bound(0), Max: config.Bound(1)},
		},
		Uniforms: func(cfg config.Values, _, _ float64) Uniforms {
			return Uniforms{
				"u_color":     color(cfg, "color", [4]float32{0.2, 0.53, 1, 0.67}),
				"u_speed":     num(cfg, "speed", 0.5),
				"u_frequency": num(cfg, "frequency", 2),
				"u_amplitude": num(cfg, "amplitude", 0.4),
			}
		},
	}
}

const vignetteFragment = `
uniform vec4  u_color;
uniform float u_intensity;
uniform float u_radius;
uniform float u_pulse;

vec4 effect(vec2 uv, float t) {
    float r = u_radius + 0.05 * sin(t * u_pulse * 2.0 * PI);
    float d = length(uv - 0.5) * 1.41421356;
    float a = smoothstep(r, 1.0, d) * u_intensity;
    return vec4(u_color.rgb, a * u_color.a);
}
`

func vignette() *Definition {
	return &Definition{
		Name:           "vignette",
		Geometry:       Global,
		FragmentShader: vignetteFragment,
		DefaultConfig: config.Values{
			"color":     "#000000",
			"intensity": 0.6,
			"radius":    0.75,
			"pulse":     0.0,
		},
		Schema: config.Schema{
			"color":     {Type: config.Color},
			"intensity": {Type: config.Number, Min: config.Bound(0), Max: config.Bound(1)},
			"radius":    {Type: config.Number, Min: config.Bound(0), Max: config.Bound(1)},
			"pulse":     {Type: config.Number, Min: config.Bound(0), Max: config.Bound(5)},
		},
		Uniforms: func(cfg config.Values, _, _ float64) Uniforms {
			return Uniforms{
				"u_color":     color(cfg, "color", [4]float32{0, 0, 0, 1}),
				"u_intensity": num(cfg, "intensity", 0.6),
				"u_radius":    num(cfg, "radius", 0.75),
				"u_pulse":     num(cfg, "pulse", 0),
			}
		},
	}
}

const spriteFragment = `
uniform sampler2D u_icon;
uniform vec4  u_tint;
uniform float u_speed;

vec4 effect(vec2 uv, float t) {
    float s = 1.0 + 0.15 * sin(t * u_speed * 2.0 * PI);
    vec2 p = (uv - 0.5) / s + 0.5;
    if (p.x < 0.0 || p.x > 1.0 || p.y < 0.0 || p.y > 1.0) discard;
    return texture(u_icon, vec2(p.x, 1.0 - p.y)) * u_tint;
}
`

// sprite draws the "marker" texture at each point with a breathing scale.
func sprite() *Definition {
	return &Definition{
		Name:           "sprite",
		Geometry:       Point,
		FragmentShader: spriteFragment,
		DefaultConfig: config.Values{
			"tint":  "#ffffff",
			"size":  32.0,
			"speed": 0.5,
		},
		Schema: config.Schema{
			"tint":  {Type: config.Color},
			"size":  {Type: config.Number, Min: config.Bound(2), Max: config.Bound(256)},
			"speed": {Type: config.Number, Min: config.Bound(0), Max: config.Bound(10)},
		},
		Textures: map[string]string{"u_icon": "marker"},
		Uniforms: func(cfg config.Values, _, _ float64) Uniforms {
			return Uniforms{
				"u_tint":  color(cfg, "tint", [4]float32{1, 1, 1, 1}),
				"u_size":  num(cfg, "size", 32),
				"u_speed": num(cfg, "speed", 0.5),
			}
		},
	}
}
