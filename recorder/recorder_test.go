package recorder

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/richinsley/mapfx/gpu/gputest"
)

type memSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	fail   error
}

func (s *memSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	return s.buf.Write(p)
}

func (s *memSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func TestWriteFrameFlipsRows(t *testing.T) {
	dev := gputest.New()
	// 1x2 image: bottom row red, top row blue in GL order.
	dev.Pixels = []byte{255, 0, 0, 255, 0, 0, 255, 255}
	sink := &memSink{}
	r := start(dev, Options{Width: 1, Height: 2, FPS: 30, OutputFile: "x.mp4", Codec: "h264"}, sink, func() error { return nil })

	for i := 0; i < 5; i++ {
		if err := r.WriteFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !sink.closed {
		t.Error("sink must be closed")
	}
	if r.Frames() != 5 {
		t.Errorf("frames = %d", r.Frames())
	}
	got := sink.buf.Bytes()
	if len(got) != 5*8 {
		t.Fatalf("wrote %d bytes", len(got))
	}
	want := []byte{0, 0, 255, 255, 255, 0, 0, 255}
	if !bytes.Equal(got[:8], want) {
		t.Errorf("first frame = %v, want %v", got[:8], want)
	}
	if err := r.WriteFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestWriteErrorIsReported(t *testing.T) {
	boom := errors.New("broken pipe")
	sink := &memSink{fail: boom}
	r := start(gputest.New(), Options{Width: 2, Height: 2, FPS: 30, OutputFile: "x.mp4"}, sink, func() error { return nil })
	if err := r.WriteFrame(); err != nil {
		t.Fatal(err)
	}
	var err error
	for i := 0; i < 500 && err == nil; i++ {
		time.Sleep(time.Millisecond)
		err = r.WriteFrame()
	}
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFrame err = %v, want %v", err, boom)
	}
	queued := r.Frames()
	if err := r.WriteFrame(); !errors.Is(err, boom) {
		t.Errorf("later WriteFrame err = %v, want %v", err, boom)
	}
	if r.Frames() != queued {
		t.Error("frames queued after a write error")
	}
	if err := r.Close(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestEncoderExitStatusIsReported(t *testing.T) {
	exit := errors.New("exit status 1")
	r := start(gputest.New(), Options{Width: 1, Height: 1, FPS: 30, OutputFile: "x.mp4"}, &memSink{}, func() error { return exit })
	if err := r.Close(); !errors.Is(err, exit) {
		t.Fatalf("err = %v, want %v", err, exit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"defaults", Options{Width: 4, Height: 4, OutputFile: "a.mp4"}, true},
		{"zero size", Options{Width: 0, Height: 4, OutputFile: "a.mp4"}, false},
		{"no file", Options{Width: 4, Height: 4}, false},
		{"bad codec", Options{Width: 4, Height: 4, OutputFile: "a.mp4", Codec: "vp9"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := validate(&opts)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v", err)
			}
			if tt.ok && (opts.FPS != 60 || opts.Codec != "h264") {
				t.Errorf("defaults not applied: %+v", opts)
			}
		})
	}
}

func TestGetArgs(t *testing.T) {
	in, out := getArgs(Options{Width: 640, Height: 360, FPS: 24, OutputFile: "map.mp4", Codec: "hevc"})
	if in["s"] != "640x360" || in["pix_fmt"] != "rgba" || in["framerate"] != 24 {
		t.Errorf("input args = %v", in)
	}
	if out["tag:v"] != "hvc1" {
		t.Errorf("hevc mp4 output should be tagged hvc1: %v", out)
	}
	if out["b:v"] != "25M" {
		t.Errorf("bitrate = %v", out["b:v"])
	}
	_, out = getArgs(Options{Width: 1, Height: 1, FPS: 1, OutputFile: "map.mkv", Codec: "hevc"})
	if _, ok := out["tag:v"]; ok {
		t.Error("only mp4 output is tagged")
	}
}
