package metadata

import "github.com/go-gl/mathgl/mgl32"

// UniformBufferObjectSize is three column major 4x4 float32 matrices.
const UniformBufferObjectSize = 3 * 16 * 4

type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// Bytes returns the std140 layout of the transform block.
func (u UniformBufferObject) Bytes() []byte {
	out := make([]byte, 0, UniformBufferObjectSize)
	out = appendFloats(out, u.Model[:]...)
	out = appendFloats(out, u.View[:]...)
	out = appendFloats(out, u.Proj[:]...)
	return out
}

// IdentityTransform is the transform used until the application sets one.
func IdentityTransform() UniformBufferObject {
	return UniformBufferObject{
		Model: mgl32.Ident4(),
		View:  mgl32.Ident4(),
		Proj:  mgl32.Ident4(),
	}
}
