package options

import (
	"flag"
	"io"
	"testing"
)

func parse(t *testing.T, args ...string) *MapOptions {
	t.Helper()
	fs := flag.NewFlagSet("mapfx", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o := Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return o
}

func TestDefaults(t *testing.T) {
	o := parse(t)
	if *o.Shader != "pulse" || *o.Layer != "effect" || *o.Width != 1280 || *o.Height != 720 {
		t.Errorf("unexpected defaults: shader %q layer %q size %dx%d", *o.Shader, *o.Layer, *o.Width, *o.Height)
	}
	if *o.Record || *o.Headless || !*o.Adaptive || !*o.Translate {
		t.Error("unexpected boolean defaults")
	}
	if *o.FPS != 60 || *o.Codec != "h264" || *o.OutputFile != "output.mp4" {
		t.Errorf("unexpected recording defaults: fps %d codec %q output %q", *o.FPS, *o.Codec, *o.OutputFile)
	}
	if o.SeedValue() != nil {
		t.Errorf("SeedValue() = %v, want nil", o.SeedValue())
	}
	cfg, err := o.ShaderConfig()
	if err != nil || len(cfg) != 0 {
		t.Errorf("ShaderConfig() = %v, %v", cfg, err)
	}
}

func TestShaderConfig(t *testing.T) {
	o := parse(t, "-config", `{"speed": 2, "color": "#00ff00", "timeOffset": ["get", "delay"]}`)
	cfg, err := o.ShaderConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg["speed"] != 2.0 || cfg["color"] != "#00ff00" {
		t.Errorf("cfg = %v", cfg)
	}
	if rule, ok := cfg["timeOffset"].([]any); !ok || len(rule) != 2 || rule[0] != "get" {
		t.Errorf("timeOffset = %#v", cfg["timeOffset"])
	}

	o = parse(t, "-config", `{"speed":`)
	if _, err := o.ShaderConfig(); err == nil {
		t.Error("malformed config accepted")
	}
}

func TestSeedValue(t *testing.T) {
	o := parse(t, "-seed", "abc", "-record", "-headless", "-codec", "hevc")
	if o.SeedValue() != "abc" {
		t.Errorf("SeedValue() = %v", o.SeedValue())
	}
	if !*o.Record || !*o.Headless || *o.Codec != "hevc" {
		t.Error("recording flags not parsed")
	}
}
