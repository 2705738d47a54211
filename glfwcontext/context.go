package glfwcontext

import (
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/richinsley/mapfx/graphics"
	"github.com/richinsley/mapfx/logger"
)

// Context is a GLFW window holding a 4.1 core context. Pointer movement
// while the left button is down becomes map drag, the wheel becomes zoom.
type Context struct {
	window *glfw.Window

	dragging     bool
	lastX, lastY float64
	scroll       float64

	keys map[glfw.Key]func()
}

// New opens a width x height window. Recording uses an invisible one.
func New(width, height int, title string, visible bool) (*Context, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	if !visible {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, err
	}
	c := &Context{window: win, keys: make(map[glfw.Key]func())}
	win.SetKeyCallback(c.onKey)
	win.SetScrollCallback(c.onScroll)
	logger.Logger().Debug("window created", "width", width, "height", height, "visible", visible)
	return c, nil
}

// RegisterKeyCallback runs f whenever key is pressed. Escape always closes
// the window.
func (c *Context) RegisterKeyCallback(key glfw.Key, f func()) {
	c.keys[key] = f
}

func (c *Context) onKey(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	if key == glfw.KeyEscape {
		w.SetShouldClose(true)
		return
	}
	if f, ok := c.keys[key]; ok {
		f()
	}
}

func (c *Context) onScroll(_ *glfw.Window, _, yoff float64) {
	c.scroll += yoff
}

// SetTitle replaces the window title.
func (c *Context) SetTitle(title string) {
	c.window.SetTitle(title)
}

// PollInput reports pointer state in framebuffer pixels, so drags pan at
// the same speed on HiDPI displays.
func (c *Context) PollInput() graphics.Input {
	fbw, fbh := c.window.GetFramebufferSize()
	ww, wh := c.window.GetSize()
	sx, sy := 1.0, 1.0
	if ww > 0 && wh > 0 {
		sx, sy = float64(fbw)/float64(ww), float64(fbh)/float64(wh)
	}
	x, y := c.window.GetCursorPos()
	in := graphics.Input{CursorX: x * sx, CursorY: y * sy, Scroll: c.scroll}
	c.scroll = 0

	down := c.window.GetMouseButton(glfw.MouseButtonLeft) == glfw.Press
	if down && c.dragging {
		in.DragX, in.DragY = in.CursorX-c.lastX, in.CursorY-c.lastY
	}
	c.dragging = down
	c.lastX, c.lastY = in.CursorX, in.CursorY
	return in
}

func (c *Context) MakeCurrent() { c.window.MakeContextCurrent() }

func (c *Context) Shutdown() { c.window.Destroy() }

func (c *Context) ShouldClose() bool { return c.window.ShouldClose() }

// EndFrame presents the back buffer and processes window events.
func (c *Context) EndFrame() {
	c.window.SwapBuffers()
	glfw.PollEvents()
}

func (c *Context) GetFramebufferSize() (int, int) { return c.window.GetFramebufferSize() }

// Time is seconds since glfw.Init.
func (c *Context) Time() float64 { return glfw.GetTime() }

// InitGraphics initializes GLFW on the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	logger.Logger().Info("GLFW initialized")
	return nil
}

func TerminateGraphics() {
	glfw.Terminate()
	logger.Logger().Info("GLFW terminated")
}

var _ graphics.Context = (*Context)(nil)
