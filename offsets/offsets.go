// Package offsets generates deterministic per-feature animation phase
// offsets so identical animated features do not pulse in lockstep.
//
// Randomness comes from mulberry32 seeded with a 32-bit value; string seeds
// and hashed properties use FNV-1a (32 bit) followed by the murmur3 finalizer.
// Both are fixed here so offsets reproduce across runs and implementations.
package offsets

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/richinsley/mapfx/config"
)

// Mode selects how offsets are derived.
type Mode int

const (
	ModeNone Mode = iota
	ModeFixed
	ModeRandom
	ModeGet
	ModeHash
	ModeRange
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeFixed:
		return "fixed"
	case ModeRandom:
		return "random"
	case ModeGet:
		return "get"
	case ModeHash:
		return "hash"
	case ModeRange:
		return "range"
	default:
		return "unknown"
	}
}

// Config describes one offset rule. Period applies to ModeRandom and
// ModeHash and defaults to 1 second.
type Config struct {
	Mode     Mode
	Value    float64
	Property string
	Min      float64
	Max      float64
	Period   float64
}

func (c Config) period() float64 {
	if c.Period <= 0 || math.IsNaN(c.Period) {
		return 1
	}
	return c.Period
}

// ParseConfig accepts the loose forms used in layer configs:
//
//	nil                      no offset
//	2.5                      fixed
//	"random"                 random in [0, 1]
//	["get", "prop"]          property value
//	["hash", "prop"]         hashed property in [0, 1]
//	{"min": a, "max": b}     random in [a, b]
//	{"mode": "random"|"hash", "property": p, "period": s}
func ParseConfig(v any) (Config, error) {
	if v == nil {
		return Config{Mode: ModeNone}, nil
	}
	if n, ok := config.ToFloat(v); ok {
		return Config{Mode: ModeFixed, Value: n}, nil
	}
	switch t := v.(type) {
	case Config:
		return t, nil
	case string:
		if t == "random" {
			return Config{Mode: ModeRandom}, nil
		}
	case []string:
		return parseExpression(t)
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			s, ok := p.(string)
			if !ok {
				return Config{}, fmt.Errorf("time offset expression element %d is not a string", i)
			}
			parts[i] = s
		}
		return parseExpression(parts)
	case map[string]any:
		return parseObject(t)
	}
	return Config{}, fmt.Errorf("unsupported time offset %v", v)
}

func parseExpression(parts []string) (Config, error) {
	if len(parts) != 2 {
		return Config{}, fmt.Errorf("time offset expression must have 2 elements, got %d", len(parts))
	}
	switch parts[0] {
	case "get":
		return Config{Mode: ModeGet, Property: parts[1]}, nil
	case "hash":
		return Config{Mode: ModeHash, Property: parts[1]}, nil
	}
	return Config{}, fmt.Errorf("unknown time offset operator %q", parts[0])
}

func parseObject(m map[string]any) (Config, error) {
	period, _ := config.ToFloat(m["period"])
	if mode, ok := m["mode"].(string); ok {
		prop, _ := m["property"].(string)
		switch mode {
		case "random":
			return Config{Mode: ModeRandom, Period: period}, nil
		case "hash":
			return Config{Mode: ModeHash, Property: prop, Period: period}, nil
		case "get":
			return Config{Mode: ModeGet, Property: prop}, nil
		}
		return Config{}, fmt.Errorf("unknown time offset mode %q", mode)
	}
	lo, okMin := config.ToFloat(m["min"])
	hi, okMax := config.ToFloat(m["max"])
	if !okMin || !okMax {
		return Config{}, fmt.Errorf("time offset range needs numeric min and max")
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return Config{Mode: ModeRange, Min: lo, Max: hi}, nil
}

// Calculator produces offsets from a fixed seed.
type Calculator struct {
	seed uint32
	rng  mulberry32
}

// New returns a calculator for seed, which may be any integer or float
// kind (truncated to 32 bits) or a string (hashed).
func New(seed any) *Calculator {
	var s uint32
	switch v := seed.(type) {
	case string:
		s = fnv1a(v)
	case nil:
	default:
		if n, ok := config.ToFloat(v); ok {
			s = uint32(int64(n))
		}
	}
	return &Calculator{seed: s, rng: mulberry32(s)}
}

// Seed returns the 32-bit PRNG seed.
func (c *Calculator) Seed() uint32 { return c.seed }

// CalculateOffsets returns one offset in seconds per feature. The PRNG is
// reseeded on every call, so the result depends only on the seed, the
// features and cfg.
func (c *Calculator) CalculateOffsets(features []*geojson.Feature, cfg Config) []float64 {
	out := make([]float64, len(features))
	c.rng = mulberry32(c.seed)

	switch cfg.Mode {
	case ModeFixed:
		for i := range out {
			out[i] = cfg.Value
		}
	case ModeRandom:
		p := cfg.period()
		for i := range out {
			out[i] = c.rng.next() * p
		}
	case ModeRange:
		for i := range out {
			out[i] = cfg.Min + c.rng.next()*(cfg.Max-cfg.Min)
		}
	case ModeGet:
		for i, f := range features {
			out[i] = numericProperty(f, cfg.Property)
		}
	case ModeHash:
		p := cfg.period()
		for i, f := range features {
			out[i] = hashUnit(hashKey(f, cfg.Property, i)) * p
		}
	}
	return out
}

// CalculateOffsetsExpanded repeats each feature's offset once per vertex.
// counts[i] is the vertex count of feature i; a single-element counts
// applies to every feature.
func (c *Calculator) CalculateOffsetsExpanded(features []*geojson.Feature, cfg Config, counts []int) []float64 {
	offsets := c.CalculateOffsets(features, cfg)
	countOf := func(i int) int {
		switch {
		case len(counts) == 1:
			return counts[0]
		case i < len(counts):
			return counts[i]
		default:
			return 1
		}
	}

	total := 0
	for i := range offsets {
		if n := countOf(i); n > 0 {
			total += n
		}
	}
	out := make([]float64, 0, total)
	for i, off := range offsets {
		for n := countOf(i); n > 0; n-- {
			out = append(out, off)
		}
	}
	return out
}

func numericProperty(f *geojson.Feature, prop string) float64 {
	if f == nil || f.Properties == nil {
		return 0
	}
	n, ok := config.ToFloat(f.Properties[prop])
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func hashKey(f *geojson.Feature, prop string, index int) string {
	if f != nil && f.Properties != nil {
		if v, ok := f.Properties[prop]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return strconv.Itoa(index)
}

// hashUnit maps a string to [0, 1].
func hashUnit(s string) float64 {
	return float64(fmix32(fnv1a(s))) / math.MaxUint32
}

func fnv1a(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

type mulberry32 uint32

// next returns a value in [0, 1).
func (m *mulberry32) next() float64 {
	*m += 0x6D2B79F5
	t := uint32(*m)
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296
}
