package viewport

import (
	"sync"

	"github.com/philipparndt/scanview/pkg/viewer"
)

// Registry tracks live handles, so leaks across mount cycles are observable
type Registry struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[uint64]*Handle)}
}

func (r *Registry) add(h *Handle) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()
}

func (r *Registry) remove(h *Handle) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.handles, h.id)
	r.mu.Unlock()
}

// Live returns the number of ready, undisposed handles
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// DisposeAll disposes every live handle
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Dispose()
	}
}

// Config holds the camera and render settings of new handles
type Config struct {
	CameraDistance float64
	FieldOfView    float64 // degrees
	Damping        float64
	FrameRate      int
	MeshScale      float64
	Lighting       viewer.Lighting
}

// DefaultConfig frames a typical bone mesh: distance 50, 50 degree field of view,
// model scaled by one half, 60 frames per second.
func DefaultConfig() Config {
	return Config{
		CameraDistance: 50,
		FieldOfView:    50,
		Damping:        0.25,
		FrameRate:      60,
		MeshScale:      0.5,
		Lighting:       viewer.DefaultLighting(),
	}
}
