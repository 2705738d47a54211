package shader

import "strings"

// Attribute locations shared by every vertex template and the renderer.
const (
	LocCorner     = 0 // per vertex: quad or triangle corner
	LocPosition   = 1 // per instance: point center, segment start, triangle p0
	LocTimeOffset = 2 // per instance: phase offset in seconds
	LocPositionB  = 3 // per instance: segment end, triangle p1
	LocPositionC  = 4 // per instance: segment progress (start, end), triangle p2
)

// ─────────────────────────────── Vertex templates ───────────────────────────────

const vertexHeader = `#version 300 es
precision highp float;

layout(location = 0) in vec2 a_corner;
layout(location = 1) in vec2 a_position;
layout(location = 2) in float a_timeOffset;
layout(location = 3) in vec2 a_positionB;
layout(location = 4) in vec2 a_positionC;

uniform mat4 u_matrix;
uniform vec2 u_resolution;

out vec2 v_uv;
out vec2 v_world;
out float v_timeOffset;
`

// Screen-aligned quad of u_size pixels around each point.
const pointVertexMain = `
uniform float u_size;

void main() {
    vec4 center = u_matrix * vec4(a_position, 0.0, 1.0);
    vec2 pixel = a_corner * u_size * 0.5;
    center.xy += pixel / u_resolution * 2.0 * center.w;
    gl_Position = center;
    v_uv = a_corner * 0.5 + 0.5;
    v_world = a_position;
    v_timeOffset = a_timeOffset;
}
`

// One quad per segment, u_width pixels wide. v_uv.x runs along the whole
// line from the progress pair in a_positionC.
const lineVertexMain = `
uniform float u_width;

void main() {
    vec4 a = u_matrix * vec4(a_position, 0.0, 1.0);
    vec4 b = u_matrix * vec4(a_positionB, 0.0, 1.0);
    vec2 dir = (b.xy / b.w - a.xy / a.w) * u_resolution;
    float len = length(dir);
    dir = len > 0.0 ? dir / len : vec2(1.0, 0.0);
    vec2 normal = vec2(-dir.y, dir.x);
    vec4 p = mix(a, b, a_corner.x);
    p.xy += normal * a_corner.y * u_width / u_resolution * p.w;
    gl_Position = p;
    v_uv = vec2(mix(a_positionC.x, a_positionC.y, a_corner.x), a_corner.y * 0.5 + 0.5);
    v_world = mix(a_position, a_positionB, a_corner.x);
    v_timeOffset = a_timeOffset;
}
`

// One triangle per instance, corners selected by a_corner in {(0,0), (1,0), (0,1)}.
const polygonVertexMain = `
void main() {
    vec2 world = a_position
        + a_corner.x * (a_positionB - a_position)
        + a_corner.y * (a_positionC - a_position);
    gl_Position = u_matrix * vec4(world, 0.0, 1.0);
    v_uv = a_corner;
    v_world = world;
    v_timeOffset = a_timeOffset;
}
`

const globalVertexMain = `
void main() {
    gl_Position = vec4(a_corner, 0.0, 1.0);
    v_uv = a_corner * 0.5 + 0.5;
    v_world = a_corner;
    v_timeOffset = a_timeOffset;
}
`

// VertexTemplate returns the WebGL2 vertex shader for geometry g.
func VertexTemplate(g Geometry) string {
	switch g {
	case Point:
		return vertexHeader + pointVertexMain
	case Line:
		return vertexHeader + lineVertexMain
	case Polygon:
		return vertexHeader + polygonVertexMain
	default:
		return vertexHeader + globalVertexMain
	}
}

// ─────────────────────────── Fragment preamble / glue ───────────────────────────

func GeneratePreamble(g Geometry) string {
	base := `#version 300 es
precision highp float;
precision highp int;

uniform float u_time;
uniform float u_delta;
uniform vec2  u_resolution;
uniform float u_zoom;

in vec2 v_uv;
in vec2 v_world;
in float v_timeOffset;
out vec4 fragColor;
`
	if g == Global {
		// Overlays have no per-feature phase.
		base += "#define FEATURE_TIME u_time\n"
	} else {
		base += "#define FEATURE_TIME (u_time + v_timeOffset)\n"
	}
	return base + `
#define PI 3.14159265359
`
}

func GetMain() string {
	return `
void main(void)
{
    fragColor = effect(v_uv, FEATURE_TIME);
}
`
}

// GetFragmentShader combines the preamble, the effect body and the wrapper.
func GetFragmentShader(body string, g Geometry) string {
	return GeneratePreamble(g) + body + GetMain()
}

func hasVersion(src string) bool {
	return strings.HasPrefix(strings.TrimSpace(src), "#version")
}

// Desktop rewrites the version line of a WebGL2 source for a GLSL 4.10 core
// context. Precision qualifiers are accepted there and left in place.
func Desktop(src string) string {
	if i := strings.Index(src, "#version 300 es"); i >= 0 {
		return src[:i] + "#version 410 core" + src[i+len("#version 300 es"):]
	}
	return src
}
