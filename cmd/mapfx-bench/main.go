// Command mapfx-bench drives the full animation pipeline against a recording
// GPU device and shows live frame telemetry in the terminal.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/richinsley/mapfx/config"
	"github.com/richinsley/mapfx/gpu/gputest"
	"github.com/richinsley/mapfx/manager"
	"github.com/richinsley/mapfx/quality"
	"github.com/richinsley/mapfx/renderer"
	"github.com/richinsley/mapfx/shader"
	"github.com/richinsley/mapfx/textures"
)

const (
	layerID    = "bench"
	sourceID   = "synthetic"
	worldSize  = 1000.0
	historyLen = 60
	panStep    = 40.0
	zoomFactor = 1.25
)

// synthetic builds features of the shader's geometry class scattered over
// a square world.
func synthetic(n int, g shader.Geometry, rng *rand.Rand) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		x := (rng.Float64()*2 - 1) * worldSize
		y := (rng.Float64()*2 - 1) * worldSize
		var geom orb.Geometry
		switch g {
		case shader.Line:
			ls := orb.LineString{{x, y}}
			for j := 0; j < 8; j++ {
				x += rng.Float64()*20 - 10
				y += rng.Float64()*20 - 10
				ls = append(ls, orb.Point{x, y})
			}
			geom = ls
		case shader.Polygon:
			r := 5 + rng.Float64()*10
			geom = orb.Polygon{{{x - r, y - r}, {x + r, y - r}, {x + r, y + r}, {x - r, y + r}, {x - r, y - r}}}
		default:
			geom = orb.Point{x, y}
		}
		f := geojson.NewFeature(geom)
		f.Properties["id"] = i
		fc.Append(f)
	}
	return fc
}

type bench struct {
	screen tcell.Screen
	dev    *gputest.Device
	r      *renderer.Renderer
	mgr    *manager.Manager
	start  time.Time
	shader string

	// cost is the simulated GPU time per thousand drawn instances.
	cost    time.Duration
	history []float64
	errs    int
}

func newBench(n int, shaderName string, cost time.Duration) (*bench, error) {
	def, err := shader.DefaultRegistry().Get(shaderName)
	if err != nil {
		return nil, err
	}

	dev := gputest.New()
	tex := textures.NewManager(dev)
	r := renderer.New(dev, renderer.Options{
		Width:    1280,
		Height:   720,
		Textures: tex,
		Quality:  quality.Options{TargetFPS: 60},
	})
	b := &bench{dev: dev, r: r, cost: cost, start: time.Now(), shader: def.Name}
	mgr, err := manager.New(dev, r, manager.Options{
		Textures: tex,
		Seed:     42,
		OnError:  func(string, error) { b.errs++ },
	})
	if err != nil {
		return nil, err
	}
	b.mgr = mgr
	if _, err := tex.CreateSolidColor("marker", [4]uint8{255, 255, 255, 255}); err != nil {
		return nil, err
	}

	var opts []manager.RegisterOption
	if def.Geometry != shader.Global {
		fc := synthetic(n, def.Geometry, rand.New(rand.NewSource(1)))
		if err := r.AddSource(sourceID, fc); err != nil {
			return nil, err
		}
		if bounds, ok := r.SourceBounds(sourceID); ok {
			r.View().Fit(bounds, 0)
		}
		opts = append(opts, manager.WithSource(sourceID))
	}
	cfg := config.Values{"timeOffset": "random"}
	if def.Geometry == shader.Global {
		cfg = config.Values{}
	}
	if err := mgr.Register(layerID, def.Name, cfg, opts...); err != nil {
		return nil, err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	b.screen = screen
	return b, nil
}

func (b *bench) frame() {
	// Pretend the GPU spent time proportional to the last frame's work.
	last := b.r.Stats()
	time.Sleep(time.Duration(last.Instances) * b.cost / 1000)
	b.dev.ResetRecords()
	b.r.Frame(time.Since(b.start))

	s := b.r.Stats()
	b.history = append(b.history, s.Quality.FPS)
	if len(b.history) > historyLen {
		b.history = b.history[1:]
	}
}

func (b *bench) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		v := b.r.View()
		switch ev.Key() {
		case tcell.KeyLeft:
			v.Pan(panStep, 0)
		case tcell.KeyRight:
			v.Pan(-panStep, 0)
		case tcell.KeyUp:
			v.Pan(0, panStep)
		case tcell.KeyDown:
			v.Pan(0, -panStep)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case ' ':
				if inst, ok := b.mgr.Instance(layerID); ok && inst.Playing {
					b.mgr.Pause(layerID)
				} else {
					b.mgr.Play(layerID)
				}
			case '+', '=':
				v.ZoomAt(zoomFactor, float64(v.Width)/2, float64(v.Height)/2)
			case '-':
				v.ZoomAt(1/zoomFactor, float64(v.Width)/2, float64(v.Height)/2)
			case ']':
				b.cost += 100 * time.Microsecond
			case '[':
				if b.cost >= 100*time.Microsecond {
					b.cost -= 100 * time.Microsecond
				}
			case 'a':
				q := b.r.Quality()
				q.SetEnabled(!q.Enabled())
			}
		}
	case *tcell.EventResize:
		b.screen.Sync()
	}
	return true
}

var sparks = []rune("▁▂▃▄▅▆▇█")

func (b *bench) text(x, y int, style tcell.Style, format string, args ...any) {
	col := x
	for _, c := range fmt.Sprintf(format, args...) {
		b.screen.SetContent(col, y, c, nil, style)
		col++
	}
}

func (b *bench) draw() {
	b.screen.Clear()
	s := b.r.Stats()
	q := s.Quality
	inst, _ := b.mgr.Instance(layerID)
	cache := b.mgr.Programs().Stats()

	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	label := tcell.StyleDefault.Foreground(tcell.ColorGray)
	value := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	fpsStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	if q.FPS < 50 {
		fpsStyle = tcell.StyleDefault.Foreground(tcell.ColorRed)
	}

	b.text(1, 0, title, "mapfx bench  shader=%s  layer=%s", b.shader, layerID)

	rows := []struct {
		name  string
		val   string
		style tcell.Style
	}{
		{"fps", fmt.Sprintf("%.1f (avg %v, min %v, max %v)", q.FPS, q.AvgFrameTime.Round(time.Microsecond), q.MinFrameTime.Round(time.Microsecond), q.MaxFrameTime.Round(time.Microsecond)), fpsStyle},
		{"quality", fmt.Sprintf("%s (tier %d, adaptive %v)", q.QualityName, q.QualityLevel, b.r.Quality().Enabled()), value},
		{"frames", fmt.Sprintf("%d drawn, %d skipped, %d slow", s.Frames-s.SkippedFrames, s.SkippedFrames, q.DroppedFrames), value},
		{"features", fmt.Sprintf("%d total, %d visible, %d culled", s.Features, s.Visible, s.Culled), value},
		{"instances", fmt.Sprintf("%d in %d draw calls", s.Instances, s.DrawCalls), value},
		{"layer", fmt.Sprintf("t=%.2fs playing=%v speed=%.2f", inst.Time, inst.Playing, inst.Speed), value},
		{"programs", fmt.Sprintf("%d live, %d refs, %d hits, %d misses", cache.Programs, cache.References, cache.Hits, cache.Misses), value},
		{"view", fmt.Sprintf("zoom %.2f center (%.0f, %.0f)", b.r.View().Zoom(), b.r.View().CenterX, b.r.View().CenterY), value},
		{"cost", fmt.Sprintf("%v per 1000 instances", b.cost), value},
		{"errors", fmt.Sprintf("%d", b.errs), value},
	}
	for i, row := range rows {
		b.text(1, 2+i, label, "%-10s", row.name)
		b.text(12, 2+i, row.style, "%s", row.val)
	}

	var spark strings.Builder
	for _, f := range b.history {
		i := int(f / 60 * float64(len(sparks)-1))
		if i < 0 {
			i = 0
		}
		if i >= len(sparks) {
			i = len(sparks) - 1
		}
		spark.WriteRune(sparks[i])
	}
	b.text(1, 3+len(rows), fpsStyle, "%s", spark.String())
	b.text(1, 5+len(rows), label, "q/esc quit  space pause  +/- zoom  arrows pan  [/] cost  a adaptive")
	b.screen.Show()
}

func (b *bench) run() {
	ticker := time.NewTicker(16 * time.Millisecond) // ~60 FPS
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			eventChan <- b.screen.PollEvent()
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !b.handleInput(ev) {
				return
			}
		case <-ticker.C:
			b.frame()
			b.draw()
		}
	}
}

func (b *bench) cleanup() {
	b.mgr.Destroy()
	b.r.Dispose()
	b.screen.Fini()
}

func main() {
	features := flag.Int("features", 20000, "Number of synthetic features")
	shaderName := flag.String("shader", "pulse", "Shader effect name")
	cost := flag.Duration("cost", 200*time.Microsecond, "Simulated GPU time per 1000 instances")
	flag.Parse()

	b, err := newBench(*features, *shaderName, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer b.cleanup()

	b.run()
}
