// Package recorder reads rendered frames back from the GPU and encodes them
// to a video file with ffmpeg.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/richinsley/mapfx/gpu"
	"github.com/richinsley/mapfx/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// numBuffers is how many frames may wait for the encoder.
const numBuffers = 3

var ErrClosed = errors.New("recorder is closed")

type Options struct {
	Width, Height int
	FPS           int
	OutputFile    string
	// FFMPEGPath overrides the ffmpeg binary found on PATH.
	FFMPEGPath string
	// Codec is "h264" (default) or "hevc".
	Codec string
}

// frame is one bottom-up RGBA read-back flipped to top-down order.
type frame struct {
	pixels []byte
	pts    int64
}

// Recorder is fed from the frame thread; encoding runs on its own goroutine.
type Recorder struct {
	dev    gpu.Device
	opts   Options
	frames chan *frame
	done   chan error
	// failed carries the first write error from the encoder goroutine.
	failed chan error
	buf    []byte
	pts    int64
	closed bool
	err    error

	writeErr error
}

// Start launches ffmpeg and returns a recorder writing to opts.OutputFile.
func Start(dev gpu.Device, opts Options) (*Recorder, error) {
	if err := validate(&opts); err != nil {
		return nil, err
	}
	pipeReader, pipeWriter := io.Pipe()
	inputArgs, outputArgs := getArgs(opts)
	ffmpegCmd := ffmpeg.Input("pipe:", inputArgs).
		Output(opts.OutputFile, outputArgs).
		OverWriteOutput().WithInput(pipeReader).ErrorToStdOut()
	if opts.FFMPEGPath != "" {
		ffmpegCmd = ffmpegCmd.SetFfmpegPath(opts.FFMPEGPath)
	}

	errc := make(chan error, 1)
	go func() {
		err := ffmpegCmd.Run()
		// Unblock the writer if ffmpeg exits early.
		pipeReader.CloseWithError(io.ErrClosedPipe)
		errc <- err
	}()
	logger.Logger().Info("recording started", "file", opts.OutputFile, "width", opts.Width, "height", opts.Height, "fps", opts.FPS)
	return start(dev, opts, pipeWriter, func() error { return <-errc }), nil
}

func validate(opts *Options) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid recording size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.OutputFile == "" {
		return errors.New("recording needs an output file")
	}
	if opts.Codec == "" {
		opts.Codec = "h264"
	}
	if opts.Codec != "h264" && opts.Codec != "hevc" {
		return fmt.Errorf("unsupported codec %q", opts.Codec)
	}
	return nil
}

// start runs the encoder loop writing to sink. wait returns the encoder
// process result once sink is closed.
func start(dev gpu.Device, opts Options, sink io.WriteCloser, wait func() error) *Recorder {
	r := &Recorder{
		dev:    dev,
		opts:   opts,
		frames: make(chan *frame, numBuffers),
		done:   make(chan error, 1),
		failed: make(chan error, 1),
		buf:    make([]byte, opts.Width*opts.Height*4),
	}
	go r.runEncoder(sink, wait)
	return r
}

// getArgs picks a hardware encoder for the platform where one is commonly
// available.
func getArgs(opts Options) (inputArgs ffmpeg.KwArgs, outputArgs ffmpeg.KwArgs) {
	inputArgs = ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"framerate": opts.FPS,
	}

	outputArgs = ffmpeg.KwArgs{"pix_fmt": "yuv420p"}
	hevc := opts.Codec == "hevc"
	switch runtime.GOOS {
	case "linux":
		logger.Logger().Info("using NVENC hardware encoding")
		outputArgs["vf"] = "format=nv12,hwupload_cuda"
		delete(outputArgs, "pix_fmt")
		if hevc {
			outputArgs["c:v"] = "hevc_nvenc"
		} else {
			outputArgs["c:v"] = "h264_nvenc"
		}
		outputArgs["preset"] = "p2"
	case "darwin":
		logger.Logger().Info("using VideoToolbox hardware encoding")
		if hevc {
			outputArgs["c:v"] = "hevc_videotoolbox"
		} else {
			outputArgs["c:v"] = "h264_videotoolbox"
		}
	default:
		logger.Logger().Info("using software encoding")
		if hevc {
			outputArgs["c:v"] = "libx265"
		} else {
			outputArgs["c:v"] = "libx264"
		}
	}
	outputArgs["b:v"] = "25M"

	if hevc && strings.HasSuffix(opts.OutputFile, ".mp4") {
		outputArgs["tag:v"] = "hvc1"
	}
	return
}

// runEncoder consumes frames until the channel closes, then reports the
// first write error or the encoder's exit status.
func (r *Recorder) runEncoder(sink io.WriteCloser, wait func() error) {
	var writeErr error
	for f := range r.frames {
		if writeErr != nil {
			continue
		}
		if _, err := sink.Write(f.pixels); err != nil {
			writeErr = fmt.Errorf("failed to write frame %d: %w", f.pts, err)
			logger.Logger().Warn("encoder write failed", "frame", f.pts, "error", err)
			r.failed <- writeErr
		}
	}
	sink.Close()
	err := wait()
	if writeErr != nil {
		err = writeErr
	}
	r.done <- err
}

// WriteFrame reads the current framebuffer and queues it for encoding. It
// blocks while numBuffers frames are already waiting. Once the encoder has
// failed a write, WriteFrame returns that error without reading back.
func (r *Recorder) WriteFrame() error {
	if r.closed {
		return ErrClosed
	}
	if r.writeErr == nil {
		select {
		case err := <-r.failed:
			r.writeErr = err
		default:
		}
	}
	if r.writeErr != nil {
		return r.writeErr
	}
	w, h := r.opts.Width, r.opts.Height
	r.dev.ReadPixels(0, 0, int32(w), int32(h), r.buf)
	pixels := make([]byte, len(r.buf))
	// GL rows start at the bottom.
	row := w * 4
	for y := 0; y < h; y++ {
		copy(pixels[y*row:(y+1)*row], r.buf[(h-1-y)*row:(h-y)*row])
	}
	r.frames <- &frame{pixels: pixels, pts: r.pts}
	r.pts++
	return nil
}

// Frames returns the number of frames queued so far.
func (r *Recorder) Frames() int64 { return r.pts }

// Close flushes queued frames and waits for the encoder to finish.
func (r *Recorder) Close() error {
	if r.closed {
		return r.err
	}
	r.closed = true
	close(r.frames)
	r.err = <-r.done
	if r.err == nil {
		logger.Logger().Info("recording finished", "file", r.opts.OutputFile, "frames", r.pts)
	}
	return r.err
}
