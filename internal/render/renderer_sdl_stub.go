//go:build !sdl

package render

import "errors"

type sdlState struct{}

func (r *Renderer) initSDL(width, height int) error {
	return errors.New("SDL backend not enabled; rebuild with -tags sdl")
}

func (r *Renderer) renderSDL(c *Canvas, status string) Frame {
	return Frame{
		Status: "SDL backend unavailable (build without -tags sdl)",
		Present: func(string) error {
			return ErrRendererQuit
		},
	}
}

func (r *Renderer) resizeSDL() {}

func (r *Renderer) closeSDL() error { return nil }

func SupportsSDL() bool { return false }
