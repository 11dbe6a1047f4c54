//go:build !gl

package render

func newGLShader() (ShaderLayer, bool) { return nil, false }

// SupportsGL reports whether the GPU shader backend was compiled in.
func SupportsGL() bool { return false }
