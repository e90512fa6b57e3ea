package viewer

import (
	"math"

	"github.com/philipparndt/scanview/pkg/geometry"
)

const (
	minCameraDistance = 0.1
	maxPitch          = math.Pi/2 - 0.1
	dampingEpsilon    = 1e-4
)

// Camera is a perspective camera orbiting a fixed pivot
type Camera struct {
	Target    geometry.Vector3
	Up        geometry.Vector3
	Position  geometry.Vector3
	FOV       float64 // vertical field of view in radians
	Distance  float64
	RotationX float64 // pitch
	RotationY float64 // yaw

	// Damping in (0,1) turns Orbit into an impulse that decays over frames.
	// Zero applies rotation immediately.
	Damping float64

	velocityX float64
	velocityY float64

	width    float64
	height   float64
	aspect   float64
	fovScale float64
}

// NewCamera creates a camera looking at target from the given distance along +Z
func NewCamera(target geometry.Vector3, distance, fovDegrees float64) *Camera {
	c := &Camera{
		Target:   target,
		Up:       geometry.NewVector3(0, 1, 0),
		FOV:      fovDegrees * math.Pi / 180,
		Distance: math.Max(distance, minCameraDistance),
	}
	c.SetViewport(1, 1)
	c.UpdatePosition()
	return c
}

// SetViewport recomputes projection parameters for a surface size.
// The result depends only on the arguments, so repeated calls never drift.
func (c *Camera) SetViewport(width, height float64) {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	c.width = width
	c.height = height
	c.aspect = width / height
	c.fovScale = math.Tan(c.FOV / 2)
}

// Viewport returns the current projection size
func (c *Camera) Viewport() (float64, float64) {
	return c.width, c.height
}

// Aspect returns width/height of the current viewport
func (c *Camera) Aspect() float64 {
	return c.aspect
}

// UpdatePosition places the camera on its orbit sphere
func (c *Camera) UpdatePosition() {
	x := c.Distance * math.Cos(c.RotationX) * math.Sin(c.RotationY)
	y := c.Distance * math.Sin(c.RotationX)
	z := c.Distance * math.Cos(c.RotationX) * math.Cos(c.RotationY)

	c.Position = c.Target.Add(geometry.NewVector3(x, y, z))
}

// Rotate turns the camera around the pivot immediately
func (c *Camera) Rotate(deltaX, deltaY float64) {
	c.RotationX = math.Max(-maxPitch, math.Min(maxPitch, c.RotationX+deltaX))
	c.RotationY += deltaY
	c.UpdatePosition()
}

// Orbit applies a drag gesture, either directly or as damped velocity
func (c *Camera) Orbit(deltaX, deltaY float64) {
	if c.Damping <= 0 {
		c.Rotate(deltaX, deltaY)
		return
	}
	c.velocityX += deltaX
	c.velocityY += deltaY
}

// Update advances damped motion by one frame and reports whether the camera moved
func (c *Camera) Update() bool {
	if c.Damping <= 0 {
		return false
	}
	if math.Abs(c.velocityX) < dampingEpsilon && math.Abs(c.velocityY) < dampingEpsilon {
		c.velocityX, c.velocityY = 0, 0
		return false
	}
	c.Rotate(c.velocityX*c.Damping, c.velocityY*c.Damping)
	c.velocityX *= 1 - c.Damping
	c.velocityY *= 1 - c.Damping
	return true
}

// Zoom scales the distance to the pivot; negative deltas move closer
func (c *Camera) Zoom(delta float64) {
	c.Distance = math.Max(minCameraDistance, c.Distance*(1.0+delta))
	c.UpdatePosition()
}

// basis returns the camera's forward, right and up vectors
func (c *Camera) basis() (forward, right, up geometry.Vector3) {
	forward = c.Target.Sub(c.Position).Normalize()
	right = forward.Cross(c.Up).Normalize()
	up = right.Cross(forward).Normalize()
	return forward, right, up
}

// Project maps a world point to screen coordinates and camera depth.
// ok is false for points behind the near plane.
func (c *Camera) Project(point geometry.Vector3) (screenX, screenY, depth float64, ok bool) {
	forward, right, up := c.basis()
	return c.project(point, forward, right, up)
}

func (c *Camera) project(point, forward, right, up geometry.Vector3) (float64, float64, float64, bool) {
	relative := point.Sub(c.Position)
	z := relative.Dot(forward)
	if z <= 0.01 {
		return 0, 0, z, false
	}
	x := relative.Dot(right)
	y := relative.Dot(up)

	screenX := (x/(z*c.fovScale*c.aspect))*(c.width/2) + c.width/2
	screenY := (-y/(z*c.fovScale))*(c.height/2) + c.height/2
	return screenX, screenY, z, true
}
