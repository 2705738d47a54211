//go:build !linux

package headless

import (
	"errors"

	"github.com/richinsley/mapfx/graphics"
)

// New is only available on Linux, where EGL pbuffers are used.
func New(width, height int) (graphics.Context, error) {
	return nil, errors.New("egl headless rendering is not supported on this platform")
}
