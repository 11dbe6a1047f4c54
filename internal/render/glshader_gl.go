//go:build gl

package render

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/guidoenr/fantasia/internal/params"
)

func init() {
	// GL contexts are bound to the OS thread that created them.
	runtime.LockOSThread()
}

const themeVertSrc = `#version 410 core

layout(location = 0) in vec2 aPos;
out vec2 vUV;

void main() {
    vUV = (aPos + 1.0) / 2.0;
    gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

const themeFragSrc = `#version 410 core

in vec2 vUV;
out vec4 FragColor;

uniform float uTime;
uniform float uBass;
uniform float uMid;
uniform float uTreble;
uniform float uVolume;
uniform float uIntensity;
uniform vec2 uResolution;
uniform int uTheme;

float noise(vec2 st) {
    return fract(sin(dot(st.xy, vec2(12.9898, 78.233))) * 43758.5453123);
}

float fbm(vec2 st) {
    float value = 0.0;
    float amplitude = 0.5;
    for (int i = 0; i < 6; i++) {
        value += amplitude * noise(st);
        st *= 2.0;
        amplitude *= 0.5;
    }
    return value;
}

vec3 beachEffect(vec2 uv, float time) {
    vec2 wave = uv + vec2(sin(uv.y * 3.0 + time * 2.0 + uBass * 5.0) * 0.2 * uIntensity, 0.0);
    float pattern = fbm(wave * 2.0 + time * 0.5);
    vec3 color = mix(vec3(0.0, 1.0, 1.0), vec3(0.0, 0.5, 1.0), pattern);
    color = mix(color, vec3(1.0), uBass * 0.5);
    return color * (0.3 + uVolume * 0.7) * uIntensity;
}

vec3 groovieEffect(vec2 uv, float time) {
    vec2 pos = uv - vec2(0.5);
    float angle = atan(pos.y, pos.x) + time + uBass * 6.28;
    float radius = length(pos);
    float spiral1 = sin(radius * 15.0 - time * 4.0 + uMid * 15.0) * 0.5 + 0.5;
    float spiral2 = cos(radius * 8.0 + time * 2.0 + uBass * 10.0) * 0.5 + 0.5;
    float rings = sin(angle * 4.0 + uTreble * 20.0) * 0.5 + 0.5;
    float hue1 = mod(time * 0.3 + radius * 3.0 + uVolume * 6.28, 6.28);
    float hue2 = mod(time * 0.2 + angle + uBass * 3.14, 6.28);
    vec3 c1 = vec3(sin(hue1), sin(hue1 + 2.094), sin(hue1 + 4.188)) * 0.5 + 0.5;
    vec3 c2 = vec3(cos(hue2), cos(hue2 + 2.094), cos(hue2 + 4.188)) * 0.5 + 0.5;
    vec3 color = mix(c1, c2, spiral2) * spiral1 * rings;
    return color * (0.6 + uVolume * 0.8) * uIntensity * 1.5;
}

vec3 metalEffect(vec2 uv, float time) {
    float dist = distance(uv, vec2(0.5)) * 1.5;
    float explosion = 1.0 - smoothstep(0.0, 1.2, dist - uBass * 0.4);
    float lightning = fbm(uv * 8.0 + time * 2.0 + uTreble * 5.0);
    lightning = pow(lightning, 2.0 - uIntensity * 1.5);
    vec3 color = mix(vec3(1.0, 0.0, 0.0), vec3(1.0, 0.4, 0.0), explosion);
    color = mix(color, vec3(1.0, 1.0, 0.0), lightning * uTreble);
    float coverage = min(1.0, dist * 0.6 + 0.4);
    return color * coverage * (0.2 + uVolume * 0.8) * uIntensity;
}

vec3 reggaetonEffect(vec2 uv, float time) {
    float bounce = sin(time * 4.0 + uBass * 15.0) * 0.3 + 0.7;
    float pulse = cos(time * 6.0 + uMid * 10.0) * 0.2 + 0.8;
    vec2 wave = uv + vec2(sin(uv.y * 6.0 + time * 3.0 + uTreble * 8.0) * 0.1, cos(uv.x * 4.0 + time * 2.0) * 0.1);
    float pattern = fbm(wave * 3.0 + time * 0.8);
    vec3 color = mix(vec3(1.0, 0.42, 0.21), vec3(1.0, 0.82, 0.25), pattern * bounce);
    color = mix(color, vec3(0.91, 0.3, 0.24), uBass * pulse * 0.6);
    color *= (sin(time * 8.0 + uVolume * 12.0) * 0.2 + 0.8) * bounce;
    return color * (0.4 + uVolume * 0.8) * uIntensity * 1.2;
}

void main() {
    vec3 color;
    if (uTheme == 0) {
        color = beachEffect(vUV, uTime);
    } else if (uTheme == 2) {
        color = metalEffect(vUV, uTime);
    } else if (uTheme == 3) {
        color = reggaetonEffect(vUV, uTime);
    } else {
        color = groovieEffect(vUV, uTime);
    }
    FragColor = vec4(clamp(color, 0.0, 1.0), 1.0);
}
` + "\x00"

// GLShader runs the theme program on the GPU into an offscreen framebuffer and
// reads the result back into the canvas.
type GLShader struct {
	window  *glfw.Window
	program uint32
	vao     uint32
	vbo     uint32
	fbo     uint32
	tex     uint32
	viewW   int
	viewH   int
	pixels  []byte
	ready   bool
	uniform map[string]int32
}

func newGLShader() (ShaderLayer, bool) {
	return &GLShader{}, true
}

func (s *GLShader) Name() string { return "gl" }

// Initialize creates a hidden context, compiles the program and allocates the
// framebuffer. Any failure leaves the layer disabled.
func (s *GLShader) Initialize(c *Canvas) bool {
	if c == nil {
		return false
	}
	if err := s.init(c.Width(), c.Height()); err != nil {
		s.Close()
		return false
	}
	s.ready = true
	return true
}

func (s *GLShader) init(width, height int) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	window, err := glfw.CreateWindow(1, 1, "fantasia-shader", nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	s.window = window
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		return fmt.Errorf("gl init: %w", err)
	}

	program, err := linkProgram(themeVertSrc, themeFragSrc)
	if err != nil {
		return err
	}
	s.program = program
	s.uniform = make(map[string]int32)
	for _, name := range []string{"uTime", "uBass", "uMid", "uTreble", "uVolume", "uIntensity", "uResolution", "uTheme"} {
		s.uniform[name] = gl.GetUniformLocation(program, gl.Str(name+"\x00"))
	}

	quad := []float32{-1, -1, 1, -1, -1, 1, -1, 1, 1, -1, 1, 1}
	gl.GenVertexArrays(1, &s.vao)
	gl.GenBuffers(1, &s.vbo)
	gl.BindVertexArray(s.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, s.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(&quad[0]), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, nil)
	gl.BindVertexArray(0)

	return s.allocTarget(width, height)
}

func (s *GLShader) allocTarget(width, height int) error {
	if s.fbo != 0 {
		gl.DeleteFramebuffers(1, &s.fbo)
		gl.DeleteTextures(1, &s.tex)
		s.fbo, s.tex = 0, 0
	}
	gl.GenTextures(1, &s.tex)
	gl.BindTexture(gl.TEXTURE_2D, s.tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.GenFramebuffers(1, &s.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, s.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, s.tex, 0)
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	gl.Viewport(0, 0, int32(width), int32(height))
	s.viewW = width
	s.viewH = height
	s.pixels = make([]byte, width*height*4)
	return nil
}

// Resize reallocates the framebuffer and keeps the viewport in step.
func (s *GLShader) Resize(width, height int) {
	if !s.ready || (width == s.viewW && height == s.viewH) {
		return
	}
	if err := s.allocTarget(width, height); err != nil {
		s.ready = false
	}
}

// Render draws the program and composites it source-over at 0.8*intensity.
func (s *GLShader) Render(c *Canvas, u params.Uniforms) {
	if !s.ready || c == nil {
		return
	}
	if s.viewW != c.Width() || s.viewH != c.Height() {
		s.Resize(c.Width(), c.Height())
		if !s.ready {
			return
		}
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, s.fbo)
	gl.Viewport(0, 0, int32(s.viewW), int32(s.viewH))
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(s.program)
	gl.Uniform1f(s.uniform["uTime"], float32(u.Time))
	gl.Uniform1f(s.uniform["uBass"], float32(u.Bass))
	gl.Uniform1f(s.uniform["uMid"], float32(u.Mid))
	gl.Uniform1f(s.uniform["uTreble"], float32(u.Treble))
	gl.Uniform1f(s.uniform["uVolume"], float32(u.Volume))
	gl.Uniform1f(s.uniform["uIntensity"], float32(u.Intensity))
	gl.Uniform2f(s.uniform["uResolution"], float32(s.viewW), float32(s.viewH))
	gl.Uniform1i(s.uniform["uTheme"], int32(u.Theme))
	gl.BindVertexArray(s.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	gl.ReadPixels(0, 0, int32(s.viewW), int32(s.viewH), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&s.pixels[0]))

	alpha := 0.8 * u.Intensity
	prev := c.SetMode(SourceOver)
	defer c.SetMode(prev)
	for y := 0; y < s.viewH; y++ {
		// GL rows are bottom-up.
		src := s.pixels[(s.viewH-1-y)*s.viewW*4:]
		for x := 0; x < s.viewW; x++ {
			o := x * 4
			c.Blend(x, y, RGB{R: float64(src[o]) / 255, G: float64(src[o+1]) / 255, B: float64(src[o+2]) / 255}, alpha)
		}
	}
}

// Close releases every GL object and the hidden window.
func (s *GLShader) Close() {
	s.ready = false
	if s.window == nil {
		return
	}
	if s.fbo != 0 {
		gl.DeleteFramebuffers(1, &s.fbo)
		gl.DeleteTextures(1, &s.tex)
	}
	if s.vbo != 0 {
		gl.DeleteBuffers(1, &s.vbo)
		gl.DeleteVertexArrays(1, &s.vao)
	}
	if s.program != 0 {
		gl.DeleteProgram(s.program)
	}
	s.window.Destroy()
	s.window = nil
	glfw.Terminate()
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		buf := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(buf))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile shader: %s", strings.TrimRight(buf, "\x00"))
	}
	return shader, nil
}

func linkProgram(vertSrc, fragSrc string) (uint32, error) {
	vs, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	gl.DetachShader(program, vs)
	gl.DetachShader(program, fs)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		buf := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(program, logLen, nil, gl.Str(buf))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link program: %s", strings.TrimRight(buf, "\x00"))
	}
	return program, nil
}

// SupportsGL reports whether the GPU shader backend was compiled in.
func SupportsGL() bool { return true }
