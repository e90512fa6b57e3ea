package interaction

import "fmt"

const (
	OrbitPerPixel = 0.01
	DollyPerNotch = 0.1
	DollyPerPixel = 0.005
)

// MeshTarget receives camera operations of a 3D viewport
type MeshTarget interface {
	Orbit(deltaPitch, deltaYaw float64) error
	Dolly(delta float64) error
}

// DispatchMesh applies an event to a 3D viewport: the primary drag orbits around the pivot,
// the wheel and the secondary drag change the camera distance.
func DispatchMesh(event Event, target MeshTarget) error {
	switch event.Channel {
	case PrimaryDrag:
		return target.Orbit(-event.DY*OrbitPerPixel, event.DX*OrbitPerPixel)
	case Wheel:
		return target.Dolly(float64(notches(event.DY)) * DollyPerNotch)
	case SecondaryDrag:
		return target.Dolly(event.DY * DollyPerPixel)
	default:
		return fmt.Errorf("%w: %s has no 3D binding", ErrInvalidBinding, event.Channel)
	}
}
