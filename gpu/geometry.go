package gpu

import (
	"encoding/binary"
	"math"
)

// Ortho returns the column-major orthographic projection of the box
// [left,right] x [bottom,top] x [near,far] onto clip space.
func Ortho(left, right, bottom, top, near, far float32) [16]float32 {
	var m [16]float32
	m[0] = 2 / (right - left)
	m[5] = 2 / (top - bottom)
	m[10] = -2 / (far - near)
	m[12] = -(right + left) / (right - left)
	m[13] = -(top + bottom) / (top - bottom)
	m[14] = -(far + near) / (far - near)
	m[15] = 1
	return m
}

// Projection returns the projection mapping pixel coordinates of a
// width x height display to clip space.
func Projection(width, height int) [16]float32 {
	return Ortho(0, float32(width), 0, float32(height), -1, 1)
}

// quadVertexCount is the number of vertices in the full-display quad.
const quadVertexCount = 4

// quadPositions returns the full-display quad as a triangle strip.
func quadPositions(width, height float32) []float32 {
	return []float32{
		0, 0,
		0, height,
		width, 0,
		width, height,
	}
}

// quadUVs returns texture coordinates matching quadPositions.
func quadUVs() []float32 {
	return []float32{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	}
}

// float32Bytes packs v as little-endian bytes.
func float32Bytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// putFloat32s writes v into buf at offset.
func putFloat32s(buf []byte, offset uint32, v ...float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[offset+uint32(i)*4:], math.Float32bits(f)) //nolint:gosec // small index
	}
}
