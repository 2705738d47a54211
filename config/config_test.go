package config

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestResolveReturnsDistinctCopy(t *testing.T) {
	defaults := Values{"speed": 1.0, "color": "#ff0000", "stops": []any{0.0, 1.0}}

	got := Resolve(defaults, Values{})
	if len(got) != len(defaults) {
		t.Fatalf("expected %d keys, got %d", len(defaults), len(got))
	}
	for k, v := range defaults {
		if k == "stops" {
			continue
		}
		if got[k] != v {
			t.Errorf("key %s: expected %v, got %v", k, v, got[k])
		}
	}

	got["speed"] = 2.0
	got["stops"].([]any)[0] = 9.0
	if defaults["speed"] != 1.0 {
		t.Error("Resolve result aliases the defaults map")
	}
	if defaults["stops"].([]any)[0] != 0.0 {
		t.Error("Resolve result aliases a defaults slice")
	}
}

func TestResolveOverrides(t *testing.T) {
	defaults := Values{"speed": 1.0, "size": 10.0, "enabled": true}
	user := Values{"speed": 3.0, "size": nil, "enabled": false, "extra": "x"}

	got := Resolve(defaults, user)
	if got["speed"] != 3.0 {
		t.Errorf("speed: expected override 3.0, got %v", got["speed"])
	}
	if got["size"] != 10.0 {
		t.Errorf("size: nil user value should be ignored, got %v", got["size"])
	}
	if got["enabled"] != false {
		t.Errorf("enabled: expected false, got %v", got["enabled"])
	}
	if got["extra"] != "x" {
		t.Errorf("extra: expected x, got %v", got["extra"])
	}
	if defaults["speed"] != 1.0 {
		t.Error("defaults mutated")
	}
}

func TestValidateNumberBounds(t *testing.T) {
	schema := Schema{"speed": {Type: Number, Min: Bound(0.1), Max: Bound(5.0)}}

	accept := []any{0.1, 5.0, 1, float32(2.5)}
	for _, v := range accept {
		if res := Validate(Values{"speed": v}, schema); !res.Valid {
			t.Errorf("expected %v to be accepted, got errors %v", v, res.Errors)
		}
	}

	reject := []any{0.05, 10.0, math.NaN(), "fast", true}
	for _, v := range reject {
		res := Validate(Values{"speed": v}, schema)
		if res.Valid {
			t.Errorf("expected %v to be rejected", v)
			continue
		}
		if len(res.Errors) != 1 || res.Errors[0].Field != "speed" {
			t.Errorf("expected a single error naming speed for %v, got %v", v, res.Errors)
		}
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	schema := Schema{
		"speed":   {Type: Number, Min: Bound(0)},
		"color":   {Type: Color},
		"enabled": {Type: Boolean},
		"label":   {Type: String},
		"stops":   {Type: Array},
		"mode":    {Type: Select, Options: []any{"a", "b"}},
	}
	values := Values{
		"speed":   -1.0,
		"color":   "not-a-color",
		"enabled": "yes",
		"label":   3,
		"stops":   4,
		"mode":    "c",
	}

	res := Validate(values, schema)
	if res.Valid {
		t.Fatal("expected validation to fail")
	}
	if len(res.Errors) != 6 {
		t.Fatalf("expected 6 errors, got %d: %v", len(res.Errors), res.Errors)
	}
	want := []string{"color", "enabled", "label", "mode", "speed", "stops"}
	for i, fe := range res.Errors {
		if fe.Field != want[i] {
			t.Errorf("error %d: expected field %s, got %s", i, want[i], fe.Field)
		}
	}

	err := error(&InvalidConfigError{Shader: "pulse", Errors: res.Errors})
	var ice *InvalidConfigError
	if !errors.As(err, &ice) || len(ice.Errors) != 6 {
		t.Error("InvalidConfigError should carry every field error")
	}
	if !strings.Contains(err.Error(), "pulse") {
		t.Errorf("error message should name the shader: %s", err)
	}
}

func TestValidateSelectNumeric(t *testing.T) {
	schema := Schema{"count": {Type: Select, Options: []any{1.0, 2.0, 4.0}}}
	if res := Validate(Values{"count": 2}, schema); !res.Valid {
		t.Errorf("int 2 should match option 2.0: %v", res.Errors)
	}
	if res := Validate(Values{"count": 3}, schema); res.Valid {
		t.Error("3 should not match any option")
	}
}

func TestArrayFieldAcceptsAnyElements(t *testing.T) {
	schema := Schema{"stops": {Type: Array}}
	for _, v := range []any{[]any{"a", "b"}, []any{1.0, "x"}, []float64{1, 2}, []any{}} {
		if res := Validate(Values{"stops": v}, schema); !res.Valid {
			t.Errorf("%v should be a valid array: %v", v, res.Errors)
		}
	}
	if _, ok := toFloats([]any{1.0, "x"}); ok {
		t.Error("mixed array reported as numeric")
	}
	if got, ok := toFloats([]any{1, 2.5}); !ok || len(got) != 2 || got[1] != 2.5 {
		t.Errorf("toFloats = %v, %v", got, ok)
	}
}

func TestColorVec4(t *testing.T) {
	tests := []struct {
		in      any
		want    [4]float32
		wantErr bool
	}{
		{in: "#ff0000", want: [4]float32{1, 0, 0, 1}},
		{in: "#0f0", want: [4]float32{0, 1, 0, 1}},
		{in: "#0000ff80", want: [4]float32{0, 0, 1, 128.0 / 255}},
		{in: []any{0.5, 0.25, 0.0}, want: [4]float32{0.5, 0.25, 0, 1}},
		{in: []float64{1, 1, 1, 0.5}, want: [4]float32{1, 1, 1, 0.5}},
		{in: "red", wantErr: true},
		{in: []any{2.0, 0.0, 0.0}, wantErr: true},
		{in: []any{1.0, 0.0}, wantErr: true},
		{in: []any{"a", 0.0, 0.0}, wantErr: true},
		{in: 7, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ColorVec4(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ColorVec4(%v): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ColorVec4(%v): unexpected error %v", tt.in, err)
			continue
		}
		for i := range got {
			if math.Abs(float64(got[i]-tt.want[i])) > 1e-3 {
				t.Errorf("ColorVec4(%v) = %v, want %v", tt.in, got, tt.want)
				break
			}
		}
	}
}
