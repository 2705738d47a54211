package renderer

import (
	"context"
	"math"
	"time"

	"github.com/richinsley/mapfx/graphics"
	"github.com/richinsley/mapfx/logger"
)

// zoomStep is the scale factor per scroll notch.
const zoomStep = 1.15

// ApplyInput pans and zooms the view from one poll of pointer input.
func (r *Renderer) ApplyInput(in graphics.Input) {
	if in.DragX != 0 || in.DragY != 0 {
		r.view.Pan(in.DragX, in.DragY)
	}
	if in.Scroll != 0 {
		r.view.ZoomAt(math.Pow(zoomStep, in.Scroll), in.CursorX, in.CursorY)
	}
}

// Run draws frames on gc until the window closes or ctx is canceled.
// Frame timestamps come from the context clock.
func (r *Renderer) Run(ctx context.Context, gc graphics.Context) error {
	logger.Logger().Info("entering render loop", "width", r.view.Width, "height", r.view.Height)
	for !gc.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.ApplyInput(gc.PollInput())
		if w, h := gc.GetFramebufferSize(); w != r.view.Width || h != r.view.Height {
			r.Resize(w, h)
		}
		r.Frame(time.Duration(gc.Time() * float64(time.Second)))
		gc.EndFrame()
	}
	return nil
}
