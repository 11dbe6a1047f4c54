//go:build sdl

package render

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

type sdlState struct {
	initialized bool
	window      *sdl.Window
	renderer    *sdl.Renderer
	texture     *sdl.Texture
	pixelBuffer []byte
	width       int
	height      int
	pitch       int
	windowTitle string
}

func (r *Renderer) initSDL(width, height int) error {
	if r.sdl != nil {
		r.mode = backendSDL
		return nil
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("sdl init: %w", err)
	}
	r.sdl = &sdlState{
		initialized: true,
	}
	r.winW = width
	r.winH = height
	r.mode = backendSDL
	return nil
}

func (r *Renderer) ensureSDLResources() error {
	if r.sdl == nil {
		return fmt.Errorf("SDL backend not initialized")
	}
	state := r.sdl
	if state.window == nil {
		window, err := sdl.CreateWindow(
			"fantasia",
			sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
			int32(r.winW), int32(r.winH),
			sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
		)
		if err != nil {
			return err
		}
		state.window = window
	}
	if state.renderer == nil {
		renderer, err := sdl.CreateRenderer(state.window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
		if err != nil {
			return err
		}
		state.renderer = renderer
	}
	if state.texture == nil || state.width != r.winW || state.height != r.winH {
		if state.texture != nil {
			state.texture.Destroy()
			state.texture = nil
		}
		tex, err := state.renderer.CreateTexture(
			sdl.PIXELFORMAT_ABGR8888,
			sdl.TEXTUREACCESS_STREAMING,
			int32(r.winW), int32(r.winH),
		)
		if err != nil {
			return err
		}
		_ = state.renderer.SetLogicalSize(int32(r.winW), int32(r.winH))
		state.texture = tex
		state.width = r.winW
		state.height = r.winH
		state.pitch = r.winW * 4
		state.pixelBuffer = make([]byte, state.pitch*r.winH)
	}
	return nil
}

func (r *Renderer) renderSDL(c *Canvas, status string) Frame {
	if err := r.ensureSDLResources(); err != nil {
		return Frame{
			Status: fmt.Sprintf("SDL init error: %v", err),
			Present: func(string) error {
				return err
			},
		}
	}
	state := r.sdl
	if c != nil {
		c.WriteRGBA(state.pixelBuffer, state.pitch)
	}

	return Frame{
		Status: status,
		Present: func(status string) error {
			if status != "" && status != state.windowTitle && state.window != nil {
				state.window.SetTitle(status)
				state.windowTitle = status
			}
			if err := state.texture.Update(nil, state.pixelBuffer, state.pitch); err != nil {
				return err
			}
			if err := state.renderer.Clear(); err != nil {
				return err
			}
			if err := state.renderer.Copy(state.texture, nil, nil); err != nil {
				return err
			}
			state.renderer.Present()
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch e := event.(type) {
				case *sdl.QuitEvent:
					return ErrRendererQuit
				case *sdl.WindowEvent:
					if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED && e.Data1 > 0 && e.Data2 > 0 {
						r.winW = int(e.Data1)
						r.winH = int(e.Data2)
					}
				}
			}
			return nil
		},
	}
}

func (r *Renderer) resizeSDL() {
	if r.sdl == nil {
		return
	}
	r.sdl.width = 0
	r.sdl.height = 0
}

func (r *Renderer) closeSDL() error {
	if r.sdl == nil {
		return nil
	}
	if r.sdl.texture != nil {
		r.sdl.texture.Destroy()
		r.sdl.texture = nil
	}
	if r.sdl.renderer != nil {
		r.sdl.renderer.Destroy()
		r.sdl.renderer = nil
	}
	if r.sdl.window != nil {
		r.sdl.window.Destroy()
		r.sdl.window = nil
	}
	r.sdl.pixelBuffer = nil
	if r.sdl.initialized {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		r.sdl.initialized = false
	}
	r.sdl = nil
	return nil
}

func SupportsSDL() bool { return true }
