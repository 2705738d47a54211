package graphics

// Input is the pointer state gathered since the previous PollInput, in
// framebuffer pixels with y growing downwards.
type Input struct {
	CursorX, CursorY float64
	// DragX and DragY are the cursor movement while the primary button is held.
	DragX, DragY float64
	// Scroll is the vertical wheel movement; positive zooms in.
	Scroll float64
}

// Context defines the interface for an OpenGL context.
type Context interface {
	MakeCurrent()
	Shutdown()
	ShouldClose() bool
	EndFrame()
	GetFramebufferSize() (int, int)
	Time() float64
	PollInput() Input
}
