package xrmath

import (
	"fmt"
	"math"
)

// GraphicsAPI selects the clip-space conventions of the host renderer.
type GraphicsAPI int

const (
	// GraphicsD3D uses a [0,1] depth range with Y up in clip space.
	GraphicsD3D GraphicsAPI = iota
	// GraphicsVulkan uses a [0,1] depth range with Y down in clip space.
	GraphicsVulkan
	// GraphicsOpenGL uses a [-1,1] depth range with Y up in clip space.
	GraphicsOpenGL
)

func (g GraphicsAPI) String() string {
	switch g {
	case GraphicsD3D:
		return "d3d"
	case GraphicsVulkan:
		return "vulkan"
	case GraphicsOpenGL:
		return "opengl"
	default:
		return fmt.Sprintf("GraphicsAPI(%d)", int(g))
	}
}

// Fov holds the four half-angles of an asymmetric view frustum in radians.
// Left and Down are normally negative.
type Fov struct {
	AngleLeft  float64
	AngleRight float64
	AngleUp    float64
	AngleDown  float64
}

// Valid reports whether f describes a frustum with positive width and height
// that stays within a hemisphere.
func (f Fov) Valid() bool {
	for _, a := range []float64{f.AngleLeft, f.AngleRight, f.AngleUp, f.AngleDown} {
		if math.IsNaN(a) || math.IsInf(a, 0) || math.Abs(a) >= math.Pi/2 {
			return false
		}
	}
	return f.AngleRight > f.AngleLeft && f.AngleUp > f.AngleDown
}

// Scaled returns f with every tangent scaled by s around the frustum centre.
func (f Fov) Scaled(s float64) Fov {
	tl, tr := math.Tan(f.AngleLeft), math.Tan(f.AngleRight)
	tu, td := math.Tan(f.AngleUp), math.Tan(f.AngleDown)
	cx, cy := (tl+tr)/2, (tu+td)/2
	return Fov{
		AngleLeft:  math.Atan(cx + (tl-cx)*s),
		AngleRight: math.Atan(cx + (tr-cx)*s),
		AngleUp:    math.Atan(cy + (tu-cy)*s),
		AngleDown:  math.Atan(cy + (td-cy)*s),
	}
}

// FovFromIntrinsics derives the frustum of a pinhole camera from its focal
// lengths and principal point, all in pixels. Image rows grow downwards.
func FovFromIntrinsics(width, height, focalX, focalY, centerX, centerY float64) Fov {
	return Fov{
		AngleLeft:  math.Atan(-centerX / focalX),
		AngleRight: math.Atan((width - centerX) / focalX),
		AngleUp:    math.Atan(centerY / focalY),
		AngleDown:  math.Atan(-(height - centerY) / focalY),
	}
}

// ProjectionFov builds a perspective projection for the given frustum.
// When far <= near the projection has an infinite far plane.
func ProjectionFov(api GraphicsAPI, fov Fov, near, far float64) Mat4 {
	tanLeft := math.Tan(fov.AngleLeft)
	tanRight := math.Tan(fov.AngleRight)
	tanUp := math.Tan(fov.AngleUp)
	tanDown := math.Tan(fov.AngleDown)

	tanWidth := tanRight - tanLeft
	tanHeight := tanUp - tanDown
	if api == GraphicsVulkan {
		tanHeight = tanDown - tanUp
	}

	offsetZ := 0.0
	if api == GraphicsOpenGL {
		offsetZ = near
	}

	var m Mat4
	m[0] = 2 / tanWidth
	m[8] = (tanRight + tanLeft) / tanWidth

	m[5] = 2 / tanHeight
	m[9] = (tanUp + tanDown) / tanHeight

	m[11] = -1

	if far <= near {
		m[10] = -1
		m[14] = -(near + offsetZ)
	} else {
		m[10] = -(far + offsetZ) / (far - near)
		m[14] = -(far * (near + offsetZ)) / (far - near)
	}
	return m
}

// FarPlaneNDC is the normalized depth of the far plane. Every supported API
// maps the far plane to 1; they differ only at the near plane.
const FarPlaneNDC = 1.0
