// Package quality adjusts rendering fidelity from observed frame times.
//
// The controller keeps a ring of recent frame times and steps one tier down
// when the average frame rate falls DecreaseThreshold below target, or one
// tier up when it rises IncreaseThreshold above it. Any two adjustments are
// at least AdjustmentCooldown apart. The thresholds default to 10 and 5 FPS
// so quality drops faster than it recovers.
package quality

import (
	"math"
	"time"

	"github.com/richinsley/mapfx/logger"
)

// Level is one quality tier.
type Level struct {
	Name    string
	Quality float64
	// LODSimplification is the vertex decimation step for line geometry;
	// 1 keeps every vertex.
	LODSimplification float64
	// MaxFeatures caps drawn features per layer; 0 means no cap.
	MaxFeatures          int
	EnablePostProcessing bool
	ShadowQuality        string
}

// DefaultLevels returns the built-in tiers from lowest to highest fidelity.
func DefaultLevels() []Level {
	return []Level{
		{Name: "low", Quality: 0.25, LODSimplification: 4, MaxFeatures: 2500, ShadowQuality: "off"},
		{Name: "medium", Quality: 0.5, LODSimplification: 2, MaxFeatures: 10000, ShadowQuality: "low"},
		{Name: "high", Quality: 0.75, LODSimplification: 1, MaxFeatures: 50000, EnablePostProcessing: true, ShadowQuality: "medium"},
		{Name: "ultra", Quality: 1, LODSimplification: 1, EnablePostProcessing: true, ShadowQuality: "high"},
	}
}

// Options configures a Controller. Zero or negative fields take the
// documented defaults, so a threshold of exactly 0 FPS cannot be expressed;
// use a small positive value such as 0.01 instead.
type Options struct {
	TargetFPS          float64       // 60
	SampleSize         int           // 30
	AdjustmentCooldown time.Duration // 1s
	DecreaseThreshold  float64       // 10 FPS
	IncreaseThreshold  float64       // 5 FPS
	Levels             []Level       // DefaultLevels()
	// OnQualityChange is called after every tier change.
	OnQualityChange func(level Level, index int)
	// Now is the clock used for the cooldown; time.Now when nil.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.TargetFPS <= 0 {
		o.TargetFPS = 60
	}
	if o.SampleSize <= 0 {
		o.SampleSize = 30
	}
	if o.AdjustmentCooldown <= 0 {
		o.AdjustmentCooldown = time.Second
	}
	if o.DecreaseThreshold <= 0 {
		o.DecreaseThreshold = 10
	}
	if o.IncreaseThreshold <= 0 {
		o.IncreaseThreshold = 5
	}
	if len(o.Levels) == 0 {
		o.Levels = DefaultLevels()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Stats is the frame telemetry published to dashboards.
type Stats struct {
	FPS           float64
	AvgFrameTime  time.Duration
	MaxFrameTime  time.Duration
	MinFrameTime  time.Duration
	StdDev        time.Duration
	QualityLevel  int
	QualityName   string
	DroppedFrames int
}

// Controller is driven from the frame loop and is not safe for concurrent use.
type Controller struct {
	opts   Options
	target time.Duration

	samples []time.Duration
	next    int
	filled  int

	level          int
	enabled        bool
	dropped        int
	lastFrame      time.Duration
	lastAdjustment time.Time
}

// New returns an enabled controller at the highest tier.
func New(opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		opts:    opts,
		target:  time.Duration(float64(time.Second) / opts.TargetFPS),
		samples: make([]time.Duration, opts.SampleSize),
		enabled: true,
	}
	c.level = len(opts.Levels) - 1
	return c
}

// TargetFrameTime returns the frame budget implied by TargetFPS.
func (c *Controller) TargetFrameTime() time.Duration { return c.target }

// RecordFrame adds one frame time to the sample window and evaluates quality
// once the window is full.
func (c *Controller) RecordFrame(d time.Duration) {
	c.lastFrame = d
	if d > 2*c.target {
		c.dropped++
	}
	c.samples[c.next] = d
	c.next = (c.next + 1) % len(c.samples)
	if c.filled < len(c.samples) {
		c.filled++
	}
	if c.filled == len(c.samples) {
		c.EvaluateQuality()
	}
}

// EvaluateQuality steps at most one tier. It does nothing while disabled,
// before the sample window fills, or within the cooldown of the previous
// adjustment.
func (c *Controller) EvaluateQuality() {
	if !c.enabled || c.filled < len(c.samples) {
		return
	}
	now := c.opts.Now()
	if !c.lastAdjustment.IsZero() && now.Sub(c.lastAdjustment) < c.opts.AdjustmentCooldown {
		return
	}
	fps := c.fps()
	switch {
	case fps < c.opts.TargetFPS-c.opts.DecreaseThreshold && c.level > 0:
		logger.Logger().Info("lowering quality", "fps", fps, "from", c.opts.Levels[c.level].Name)
		c.SetQualityLevel(c.level - 1)
		c.lastAdjustment = now
	case fps > c.opts.TargetFPS+c.opts.IncreaseThreshold && c.level < len(c.opts.Levels)-1:
		logger.Logger().Info("raising quality", "fps", fps, "from", c.opts.Levels[c.level].Name)
		c.SetQualityLevel(c.level + 1)
		c.lastAdjustment = now
	}
}

// SetQualityLevel moves to tier i, clamped to the valid range. The change
// callback fires only when the tier actually changes.
func (c *Controller) SetQualityLevel(i int) {
	if i < 0 {
		i = 0
	}
	if top := len(c.opts.Levels) - 1; i > top {
		i = top
	}
	if i == c.level {
		return
	}
	c.level = i
	if c.opts.OnQualityChange != nil {
		c.opts.OnQualityChange(c.opts.Levels[i], i)
	}
}

func (c *Controller) QualityLevel() int { return c.level }

func (c *Controller) Level() Level { return c.opts.Levels[c.level] }

// ShouldSkipFrame reports whether the last frame took more than three frame
// budgets. It is advice; callers decide whether to skip. A disabled
// controller never advises skipping, so fixed-step recording draws every
// frame.
func (c *Controller) ShouldSkipFrame() bool {
	return c.enabled && c.lastFrame > 3*c.target
}

// SetEnabled toggles evaluation. Disabling returns to the highest tier.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled {
		c.SetQualityLevel(len(c.opts.Levels) - 1)
	}
}

func (c *Controller) Enabled() bool { return c.enabled }

// Reset clears samples and counters and returns to the highest tier.
func (c *Controller) Reset() {
	for i := range c.samples {
		c.samples[i] = 0
	}
	c.next = 0
	c.filled = 0
	c.dropped = 0
	c.lastFrame = 0
	c.lastAdjustment = time.Time{}
	c.SetQualityLevel(len(c.opts.Levels) - 1)
}

func (c *Controller) window() []time.Duration {
	if c.filled < len(c.samples) {
		return c.samples[:c.filled]
	}
	return c.samples
}

func (c *Controller) average() time.Duration {
	w := c.window()
	if len(w) == 0 {
		return c.target
	}
	var sum time.Duration
	for _, d := range w {
		sum += d
	}
	return sum / time.Duration(len(w))
}

// fps falls back to the target when no samples exist.
func (c *Controller) fps() float64 {
	avg := c.average()
	if len(c.window()) == 0 || avg <= 0 {
		return c.opts.TargetFPS
	}
	return float64(time.Second) / float64(avg)
}

// FPS returns the average frame rate over the sample window.
func (c *Controller) FPS() float64 { return c.fps() }

func (c *Controller) Stats() Stats {
	s := Stats{
		FPS:           c.fps(),
		AvgFrameTime:  c.average(),
		QualityLevel:  c.level,
		QualityName:   c.opts.Levels[c.level].Name,
		DroppedFrames: c.dropped,
	}
	w := c.window()
	if len(w) == 0 {
		s.MinFrameTime = c.target
		s.MaxFrameTime = c.target
		return s
	}
	s.MinFrameTime, s.MaxFrameTime = w[0], w[0]
	mean := float64(s.AvgFrameTime)
	var variance float64
	for _, d := range w {
		if d < s.MinFrameTime {
			s.MinFrameTime = d
		}
		if d > s.MaxFrameTime {
			s.MaxFrameTime = d
		}
		diff := float64(d) - mean
		variance += diff * diff
	}
	s.StdDev = time.Duration(math.Sqrt(variance / float64(len(w))))
	return s
}
