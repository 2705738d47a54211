// Package options holds the command-line settings of the mapfx viewer.
package options

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/richinsley/mapfx/config"
)

type MapOptions struct {
	GeoJSON    *string
	Shader     *string
	Layer      *string
	Config     *string // JSON object merged over the shader's defaults
	Seed       *string
	Width      *int
	Height     *int
	Background *string
	Mercator   *bool
	TargetFPS  *float64
	Adaptive   *bool
	Icon       *string // image for the "marker" texture
	Translate  *bool   // run sources through goshadertranslator
	LogLevel   *string
	Help       *bool
	ListShader *bool

	// Recording
	Record     *bool
	Headless   *bool // render through EGL without a window (Linux)
	Duration   *float64
	FPS        *int
	OutputFile *string
	FFMPEGPath *string
	Codec      *string
}

// Register defines every flag on fs and returns the bound options.
func Register(fs *flag.FlagSet) *MapOptions {
	return &MapOptions{
		GeoJSON:    fs.String("geojson", "", "GeoJSON FeatureCollection file to animate"),
		Shader:     fs.String("shader", "pulse", "Shader effect name"),
		Layer:      fs.String("layer", "effect", "Layer id"),
		Config:     fs.String("config", "", `Shader config as a JSON object, e.g. '{"speed":2}'`),
		Seed:       fs.String("seed", "", "Seed for random time offsets"),
		Width:      fs.Int("width", 1280, "Width of the output"),
		Height:     fs.Int("height", 720, "Height of the output"),
		Background: fs.String("background", "#101418", "Background color"),
		Mercator:   fs.Bool("mercator", false, "Project WGS84 coordinates to Web Mercator"),
		TargetFPS:  fs.Float64("target-fps", 60, "Frame rate the quality controller aims for"),
		Adaptive:   fs.Bool("adaptive", true, "Lower quality when frames are slow"),
		Icon:       fs.String("icon", "", "Image file or URL used as the marker texture"),
		Translate:  fs.Bool("translate", true, "Translate WebGL2 shaders for the desktop context"),
		LogLevel:   fs.String("log-level", "info", "Log level: debug, info, warn, error"),
		Help:       fs.Bool("help", false, "Show help message"),
		ListShader: fs.Bool("list", false, "List built-in shaders and exit"),

		Record:     fs.Bool("record", false, "Enable recording mode"),
		Headless:   fs.Bool("headless", false, "Record through an EGL pbuffer instead of a hidden window"),
		Duration:   fs.Float64("duration", 10.0, "Duration to record in seconds"),
		FPS:        fs.Int("fps", 60, "Frames per second for recording"),
		OutputFile: fs.String("output", "output.mp4", "Output file name for recording"),
		FFMPEGPath: fs.String("ffmpeg", "", "Path to ffmpeg executable"),
		Codec:      fs.String("codec", "h264", "Video codec: h264 or hevc"),
	}
}

// ShaderConfig decodes the -config flag.
func (o *MapOptions) ShaderConfig() (config.Values, error) {
	if o.Config == nil || *o.Config == "" {
		return config.Values{}, nil
	}
	var v config.Values
	if err := json.Unmarshal([]byte(*o.Config), &v); err != nil {
		return nil, fmt.Errorf("invalid -config: %w", err)
	}
	return v, nil
}

// SeedValue returns the -seed flag as a seed for offsets.New. An empty flag
// gives nil, which seeds with zero.
func (o *MapOptions) SeedValue() any {
	if o.Seed == nil || *o.Seed == "" {
		return nil
	}
	return *o.Seed
}
