package shader

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/richinsley/mapfx/config"
)

func TestBuiltinsAreValid(t *testing.T) {
	for _, d := range Builtins() {
		if res := config.Validate(d.DefaultConfig, d.Schema); !res.Valid {
			t.Errorf("%s: default config fails its own schema: %v", d.Name, res.Errors)
		}
		vs, fs := d.Sources()
		if !strings.HasPrefix(vs, "#version 300 es") || !strings.HasPrefix(fs, "#version 300 es") {
			t.Errorf("%s: sources must be complete WebGL2 shaders", d.Name)
		}
		if !strings.Contains(fs, "vec4 effect(") || !strings.Contains(fs, "fragColor = effect(") {
			t.Errorf("%s: fragment source is missing the effect glue", d.Name)
		}
	}
}

func TestUniformsArePure(t *testing.T) {
	for _, d := range Builtins() {
		cfg := config.Resolve(d.DefaultConfig, nil)
		a := d.Uniforms(cfg, 1.5, 0.016)
		b := d.Uniforms(cfg, 1.5, 0.016)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: uniforms differ between identical calls", d.Name)
		}
		if len(a) == 0 {
			t.Errorf("%s: no uniforms", d.Name)
		}
	}
}

func TestPulseUniformsFollowConfig(t *testing.T) {
	d := pulse()
	u := d.Uniforms(config.Resolve(d.DefaultConfig, config.Values{"speed": 0, "color": "#00ff00"}), 0, 0)
	if u["u_speed"] != float32(0) {
		t.Errorf("u_speed = %v, want 0", u["u_speed"])
	}
	if u["u_color"] != [4]float32{0, 1, 0, 1} {
		t.Errorf("u_color = %v", u["u_color"])
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Definition{Name: "x", Geometry: "blob", FragmentShader: "void"}); err == nil {
		t.Error("unknown geometry should be rejected")
	}
	if err := r.Register(&Definition{Name: "x", Geometry: Point}); err == nil {
		t.Error("empty fragment should be rejected")
	}
	d := &Definition{Name: "x", Geometry: Point, FragmentShader: "vec4 effect(vec2 uv, float t) { return vec4(1.0); }"}
	if err := r.Register(d); err != nil {
		t.Fatal(err)
	}
	got, err := r.Get("x")
	if err != nil || got != d {
		t.Errorf("Get returned %v, %v", got, err)
	}
	_, err = r.Get("missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "missing" {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	names := DefaultRegistry().Names()
	want := []string{"flow", "pulse", "sprite", "vignette", "wave"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("default names = %v, want %v", names, want)
	}
}

func TestComposeSources(t *testing.T) {
	full := "#version 300 es\nprecision mediump float;\nout vec4 c;\nvoid main() { c = vec4(1.0); }\n"
	vs, fs := ComposeSources(Line, "", full)
	if fs != full {
		t.Error("complete fragment shaders should pass through")
	}
	if vs != VertexTemplate(Line) || !strings.Contains(vs, "u_width") {
		t.Error("empty vertex should use the line template")
	}

	_, fs = ComposeSources(Global, "", "vec4 effect(vec2 uv, float t) { return vec4(t); }")
	if !strings.Contains(fs, "#define FEATURE_TIME u_time\n") {
		t.Error("global effects should not use per-feature offsets")
	}
	_, fs = ComposeSources(Point, "", "vec4 effect(vec2 uv, float t) { return vec4(t); }")
	if !strings.Contains(fs, "u_time + v_timeOffset") {
		t.Error("feature effects should add the time offset")
	}
}

func TestDesktop(t *testing.T) {
	got := Desktop("#version 300 es\nprecision highp float;\n")
	if got != "#version 410 core\nprecision highp float;\n" {
		t.Errorf("Desktop = %q", got)
	}
	if Desktop("void main(){}") != "void main(){}" {
		t.Error("sources without a version line are unchanged")
	}
}
