package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/richinsley/mapfx/config"
	"github.com/richinsley/mapfx/glfwcontext"
	"github.com/richinsley/mapfx/glgpu"
	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/graphics"
	"github.com/richinsley/mapfx/headless"
	"github.com/richinsley/mapfx/logger"
	"github.com/richinsley/mapfx/manager"
	"github.com/richinsley/mapfx/options"
	"github.com/richinsley/mapfx/quality"
	"github.com/richinsley/mapfx/recorder"
	"github.com/richinsley/mapfx/renderer"
	"github.com/richinsley/mapfx/shader"
	"github.com/richinsley/mapfx/textures"
	"github.com/richinsley/mapfx/translator"
)

const (
	sourceID    = "features"
	markerName  = "marker"
	fitMargin   = 40
	loadTimeout = 30 * time.Second
)

func init() {
	runtime.LockOSThread()
}

func main() {
	opts := options.Register(flag.CommandLine)
	flag.Parse()

	if *opts.Help {
		fmt.Println("mapfx animated map viewer/recorder")
		flag.PrintDefaults()
		return
	}
	if *opts.ListShader {
		for _, name := range shader.DefaultRegistry().Names() {
			fmt.Println(name)
		}
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*opts.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(opts); err != nil {
		log.Fatalf("mapfx: %v", err)
	}
}

func loadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fc, nil
}

// awaitLoad pumps tex until the load on ch resolves.
func awaitLoad(tex *textures.Manager, ch <-chan error) error {
	deadline := time.Now().Add(loadTimeout)
	for time.Now().Before(deadline) {
		tex.Pump()
		select {
		case err := <-ch:
			return err
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	return errors.New("texture load timed out")
}

func run(opts *options.MapOptions) error {
	def, err := shader.DefaultRegistry().Get(*opts.Shader)
	if err != nil {
		return err
	}
	cfg, err := opts.ShaderConfig()
	if err != nil {
		return err
	}
	var fc *geojson.FeatureCollection
	if *opts.GeoJSON != "" {
		if fc, err = loadGeoJSON(*opts.GeoJSON); err != nil {
			return err
		}
	} else if def.Geometry != shader.Global {
		return fmt.Errorf("shader %s draws %s features and needs -geojson", def.Name, def.Geometry)
	}
	background, err := config.ColorVec4(*opts.Background)
	if err != nil {
		return fmt.Errorf("invalid -background: %w", err)
	}

	var gc graphics.Context
	var win *glfwcontext.Context
	if *opts.Record && *opts.Headless {
		hc, err := headless.New(*opts.Width, *opts.Height)
		if err != nil {
			return fmt.Errorf("failed to create headless context: %w", err)
		}
		gc = hc
	} else {
		if err := glfwcontext.InitGraphics(); err != nil {
			return fmt.Errorf("failed to initialize GLFW: %w", err)
		}
		defer glfwcontext.TerminateGraphics()

		// If recording, the window is hidden.
		win, err = glfwcontext.New(*opts.Width, *opts.Height, "mapfx", !*opts.Record)
		if err != nil {
			return fmt.Errorf("failed to create window: %w", err)
		}
		gc = win
	}
	defer gc.Shutdown()
	gc.MakeCurrent()

	dev, err := glgpu.New()
	if err != nil {
		return err
	}

	var tr manager.Translator = translator.Passthrough{}
	if *opts.Translate {
		if t, err := translator.GetTranslator(); err != nil {
			logger.Logger().Warn("shader translator unavailable, using sources as is", "error", err)
		} else {
			tr = t
		}
	}

	tex := textures.NewManager(dev)
	defer tex.Dispose()

	fbWidth, fbHeight := gc.GetFramebufferSize()
	ropts := renderer.Options{
		Width:      fbWidth,
		Height:     fbHeight,
		Background: background,
		Quality:    quality.Options{TargetFPS: *opts.TargetFPS},
		Textures:   tex,
	}
	if *opts.Mercator {
		ropts.Projection = project.WGS84.ToMercator
	}
	r := renderer.New(dev, ropts)
	defer r.Dispose()
	r.Quality().SetEnabled(*opts.Adaptive && !*opts.Record)

	mgr, err := manager.New(dev, r, manager.Options{
		Textures:   tex,
		Translator: tr,
		Seed:       opts.SeedValue(),
	})
	if err != nil {
		return err
	}
	defer mgr.Destroy()

	if *opts.Icon != "" {
		ch := tex.Load(context.Background(), markerName, *opts.Icon, textures.Options{Wrap: gpu.WrapClamp})
		if err := awaitLoad(tex, ch); err != nil {
			return fmt.Errorf("failed to load icon: %w", err)
		}
	} else if _, err := tex.CreateSolidColor(markerName, [4]uint8{255, 255, 255, 255}); err != nil {
		return err
	}

	var regOpts []manager.RegisterOption
	if fc != nil {
		if err := r.AddSource(sourceID, fc); err != nil {
			return err
		}
		if b, ok := r.SourceBounds(sourceID); ok {
			r.View().Fit(b, fitMargin)
		}
		regOpts = append(regOpts, manager.WithSource(sourceID))
	}
	if err := mgr.Register(*opts.Layer, def.Name, cfg, regOpts...); err != nil {
		return err
	}

	if *opts.Record {
		return record(opts, dev, gc, r, fbWidth, fbHeight)
	}

	layer := *opts.Layer
	win.RegisterKeyCallback(glfw.KeySpace, func() {
		inst, ok := mgr.Instance(layer)
		if !ok {
			return
		}
		var err error
		if inst.Playing {
			err = mgr.Pause(layer)
		} else {
			err = mgr.Play(layer)
		}
		if err != nil {
			logger.Logger().Warn("toggle failed", "layer", layer, "error", err)
		}
	})

	// Show frame telemetry in the title once a second.
	var lastTitle time.Duration
	var showStats func(now time.Duration)
	showStats = func(now time.Duration) {
		if now-lastTitle >= time.Second {
			lastTitle = now
			s := r.Stats()
			win.SetTitle(fmt.Sprintf("mapfx  %s  %.0f fps  %s  %d/%d features",
				def.Name, s.Quality.FPS, s.Quality.QualityName, s.Visible, s.Features))
		}
		r.RequestFrame(showStats)
	}
	r.RequestFrame(showStats)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger.Logger().Info("starting interactive render loop", "shader", def.Name)
	if err := r.Run(ctx, gc); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// record renders Duration seconds at a fixed frame step and encodes them.
func record(opts *options.MapOptions, dev gpu.Device, gc graphics.Context, r *renderer.Renderer, width, height int) error {
	if *opts.FPS <= 0 {
		return fmt.Errorf("invalid -fps %d", *opts.FPS)
	}
	rec, err := recorder.Start(dev, recorder.Options{
		Width:      width,
		Height:     height,
		FPS:        *opts.FPS,
		OutputFile: *opts.OutputFile,
		FFMPEGPath: *opts.FFMPEGPath,
		Codec:      *opts.Codec,
	})
	if err != nil {
		return err
	}

	step := time.Second / time.Duration(*opts.FPS)
	frames := int(*opts.Duration * float64(*opts.FPS))
	logger.Logger().Info("starting offscreen render loop", "frames", frames)
	start := time.Now()
	for i := 0; i < frames && !gc.ShouldClose(); i++ {
		r.Frame(time.Duration(i) * step)
		if err := rec.WriteFrame(); err != nil {
			break
		}
		gc.EndFrame()
	}
	if err := rec.Close(); err != nil {
		return fmt.Errorf("encoding failed: %w", err)
	}
	logger.Logger().Info("successfully rendered", "file", *opts.OutputFile, "frames", rec.Frames(), "elapsed", time.Since(start))
	return nil
}
