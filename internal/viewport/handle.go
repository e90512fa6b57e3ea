// Package viewport owns the lifecycle of the 2D stack and 3D mesh views bound to a display element.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"

	"github.com/philipparndt/scanview/internal/display"
	"github.com/philipparndt/scanview/internal/interaction"
	"github.com/philipparndt/scanview/internal/renderloop"
	"github.com/philipparndt/scanview/internal/stack"
	"github.com/philipparndt/scanview/pkg/analysis"
	"github.com/philipparndt/scanview/pkg/geometry"
	"github.com/philipparndt/scanview/pkg/stl"
	"github.com/philipparndt/scanview/pkg/viewer"
)

// ErrNotReady is returned by operations on a handle that is not Ready
var ErrNotReady = errors.New("viewport not ready")

// Mode selects what a handle shows
type Mode int

const (
	StackMode Mode = iota
	MeshMode
)

func (m Mode) String() string {
	if m == MeshMode {
		return "3d"
	}
	return "2d"
}

// State of a handle. Transitions only move forward.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Disposed
)

func (s State) String() string {
	return [...]string{"uninitialized", "initializing", "ready", "disposed"}[s]
}

// InitializationError reports a failed Initialize; the handle is Disposed afterwards
type InitializationError struct {
	Mode Mode
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize %s viewport: %v", e.Mode, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// ImageSource loads decoded slice images
type ImageSource interface {
	LoadImage(ctx context.Context, locator string) (image.Image, error)
}

// SliceHook is told about every slice draw of a stack handle; err is set when loading failed
type SliceHook func(index, total int, err error)

var handleIDs atomic.Uint64

// Handle is one live view bound to a display element
type Handle struct {
	mu       sync.Mutex
	id       uint64
	mode     Mode
	state    State
	closing  bool
	disposed chan struct{}

	cfg      Config
	element  *display.Element
	registry *Registry
	logger   *slog.Logger

	surface *display.Surface
	ctx     context.Context
	cancel  context.CancelFunc
	subs    []event.Subscription
	wg      sync.WaitGroup

	// drawMu keeps slice presentation and its hook call in the same order
	drawMu sync.Mutex

	// stack mode
	session   *stack.Session
	images    ImageSource
	view      *viewer.StackView
	tools     *interaction.ToolGroup
	lastImage image.Image
	lastIndex int
	onSlice   SliceHook

	// mesh mode
	mesh        *stl.Model
	scene       viewer.Scene
	camera      *viewer.Camera
	measurement analysis.MeasurementResult
	loop        *renderloop.Loop
}

func newHandle(mode Mode, element *display.Element, registry *Registry, cfg Config) *Handle {
	id := handleIDs.Add(1)
	return &Handle{
		id:       id,
		mode:     mode,
		cfg:      cfg,
		element:  element,
		registry: registry,
		disposed: make(chan struct{}),
		logger:   slog.With("c", "viewport", "mode", mode.String(), "handle", id),
	}
}

// NewStack creates a 2D handle. The handle takes ownership of the session.
func NewStack(element *display.Element, registry *Registry, session *stack.Session, images ImageSource, onSlice SliceHook, cfg Config) *Handle {
	h := newHandle(StackMode, element, registry, cfg)
	h.session = session
	h.images = images
	h.onSlice = onSlice
	return h
}

// NewMesh creates a 3D handle for a mesh
func NewMesh(element *display.Element, registry *Registry, mesh *stl.Model, cfg Config) *Handle {
	h := newHandle(MeshMode, element, registry, cfg)
	h.mesh = mesh
	return h
}

// ID identifies the handle in logs and the registry
func (h *Handle) ID() uint64 {
	return h.id
}

// Mode returns whether this is a stack or mesh handle
func (h *Handle) Mode() Mode {
	return h.mode
}

// State returns the lifecycle state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Initialize attaches a surface, builds the camera and, for stacks, the tool group.
// On failure nothing stays attached to the element and the handle is Disposed.
func (h *Handle) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Uninitialized {
		return &InitializationError{Mode: h.mode, Err: fmt.Errorf("handle is %s", h.state)}
	}
	h.state = Initializing

	if h.mode == StackMode && h.session == nil {
		return h.failLocked(stack.ErrEmptyStack)
	}
	if h.mode == MeshMode && h.mesh == nil {
		return h.failLocked(errors.New("no mesh"))
	}

	// 1. surface
	surface, err := h.element.Attach()
	if err != nil {
		return h.failLocked(err)
	}
	h.surface = surface
	size := h.element.Size()

	// 2. camera
	h.ctx, h.cancel = context.WithCancel(ctx)
	switch h.mode {
	case StackMode:
		h.view = viewer.NewStackView(size.Width, size.Height)
	case MeshMode:
		h.scene = viewer.CenteredScene(h.mesh, h.cfg.MeshScale)
		h.camera = viewer.NewCamera(geometry.Vector3{}, h.cfg.CameraDistance, h.cfg.FieldOfView)
		h.camera.Damping = h.cfg.Damping
		h.camera.SetViewport(float64(size.Width), float64(size.Height))
		h.measurement = analysis.MeasureExtents(h.mesh)
		h.loop = renderloop.New(renderloop.Interval(h.cfg.FrameRate), h.renderFrame, h.resizeCamera)
	}

	// 3. tools
	if h.mode == StackMode {
		h.tools = interaction.NewStackTools()
		h.tools.Attach()
	}

	resizes := make(chan display.Size, 4)
	h.subs = append(h.subs, h.element.SubscribeResize(resizes))
	var changes chan stack.IndexChange
	if h.session != nil {
		changes = make(chan stack.IndexChange, 16)
		h.subs = append(h.subs, h.session.Subscribe(changes))
	}

	h.state = Ready
	h.registry.add(h)

	h.wg.Add(1)
	go h.pump(resizes, changes)

	if h.loop != nil {
		if err := h.loop.Start(h.ctx); err != nil {
			h.logger.Error("Failed to start render loop", "error", err)
		}
	}
	if h.mode == StackMode {
		h.scheduleDrawLocked()
	}

	h.logger.Debug("Initialized", "width", size.Width, "height", size.Height)
	return nil
}

func (h *Handle) failLocked(err error) error {
	if h.surface != nil {
		h.surface.Release()
		h.surface = nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	if h.session != nil {
		h.session.Close()
	}
	h.session = nil
	h.mesh = nil
	h.state = Disposed
	close(h.disposed)

	h.logger.Warn("Initialization failed", "error", err)
	return &InitializationError{Mode: h.mode, Err: err}
}

func (h *Handle) pump(resizes <-chan display.Size, changes <-chan stack.IndexChange) {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case size := <-resizes:
			h.handleResize(size)
		case <-changes:
			h.mu.Lock()
			h.scheduleDrawLocked()
			h.mu.Unlock()
		}
	}
}

func (h *Handle) handleResize(size display.Size) {
	switch h.mode {
	case MeshMode:
		h.loop.Resize(size.Width, size.Height)
	case StackMode:
		h.mu.Lock()
		if !h.readyLocked() {
			h.mu.Unlock()
			return
		}
		h.view.SetViewport(size.Width, size.Height)
		img, index := h.lastImage, h.lastIndex
		h.mu.Unlock()

		if img != nil {
			h.present(index, img)
		}
	}
}

func (h *Handle) readyLocked() bool {
	return h.state == Ready && !h.closing
}

// scheduleDrawLocked loads the current slice in the background and presents it
// only if it is still the current slice when the load completes.
func (h *Handle) scheduleDrawLocked() {
	if !h.readyLocked() {
		return
	}
	index := h.session.Index()
	locator := h.session.Current()
	total := h.session.Len()
	ctx := h.ctx
	hook := h.onSlice
	images := h.images

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		img, err := images.LoadImage(ctx, locator)

		h.drawMu.Lock()
		defer h.drawMu.Unlock()
		if err != nil {
			if ctx.Err() != nil || !h.isCurrent(index) {
				return
			}
			h.logger.Warn("Failed to load slice", "index", index, "error", err)
			if hook != nil {
				hook(index, total, err)
			}
			return
		}

		if h.present(index, img) && hook != nil {
			hook(index, total, nil)
		}
	}()
}

func (h *Handle) isCurrent(index int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readyLocked() && h.session.Index() == index
}

// present renders a slice if index is still current and reports whether it was shown
func (h *Handle) present(index int, img image.Image) bool {
	h.mu.Lock()
	if !h.readyLocked() || h.session.Index() != index {
		h.mu.Unlock()
		return false
	}
	frame := h.view.Render(img)
	h.lastImage, h.lastIndex = img, index
	surface := h.surface
	h.mu.Unlock()

	return surface.Present(frame) == nil
}

func (h *Handle) renderFrame() {
	h.mu.Lock()
	if !h.readyLocked() {
		h.mu.Unlock()
		return
	}
	h.camera.Update()
	camera := *h.camera
	scene := h.scene
	size := h.element.Size()
	surface := h.surface
	lighting := h.cfg.Lighting
	h.mu.Unlock()

	frame := viewer.RenderMesh(scene, &camera, size.Width, size.Height, lighting)
	_ = surface.Present(frame)
}

func (h *Handle) resizeCamera(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.camera != nil {
		h.camera.SetViewport(float64(width), float64(height))
	}
}

// Dispose stops the render loop, cancels pending slice draws, drops all subscriptions,
// detaches the tool group and releases the surface and resources, in that order.
// It returns once everything is released and may be called any number of times.
func (h *Handle) Dispose() {
	h.mu.Lock()
	if h.closing || h.state == Disposed {
		h.mu.Unlock()
		<-h.disposed
		return
	}
	if h.state == Uninitialized {
		h.state = Disposed
		if h.session != nil {
			h.session.Close()
		}
		h.session, h.mesh = nil, nil
		close(h.disposed)
		h.mu.Unlock()
		return
	}
	h.closing = true
	loop := h.loop
	subs := h.subs
	h.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	if h.tools != nil {
		h.tools.Detach()
		h.tools = nil
	}
	if h.surface != nil {
		h.surface.Release()
		h.surface = nil
	}
	if h.session != nil {
		h.session.Close()
	}
	h.session = nil
	h.images = nil
	h.view = nil
	h.lastImage = nil
	h.mesh = nil
	h.scene = viewer.Scene{}
	h.camera = nil
	h.loop = nil
	h.subs = nil
	h.state = Disposed
	h.mu.Unlock()

	h.registry.remove(h)
	close(h.disposed)
	h.logger.Debug("Disposed")
}

// Session returns the stack session of a ready 2D handle
func (h *Handle) Session() (*stack.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.session == nil {
		return nil, ErrNotReady
	}
	return h.session, nil
}

func (h *Handle) stackSession() (*stack.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.mode != StackMode {
		return nil, ErrNotReady
	}
	return h.session, nil
}

// Step moves through the stack by delta, clamped to the ends
func (h *Handle) Step(delta int) (int, error) {
	s, err := h.stackSession()
	if err != nil {
		return 0, err
	}
	return s.Step(delta), nil
}

// Seek jumps to a slice
func (h *Handle) Seek(index int) error {
	s, err := h.stackSession()
	if err != nil {
		return err
	}
	return s.Seek(index)
}

// redrawAndUnlock re-renders the last image after a view change; h.mu must be held
func (h *Handle) redrawAndUnlock() {
	img, index := h.lastImage, h.lastIndex
	h.mu.Unlock()
	if img != nil {
		h.present(index, img)
	}
}

// AdjustWindowLevel changes the intensity window by the given width and center deltas
func (h *Handle) AdjustWindowLevel(deltaWidth, deltaCenter float64) error {
	h.mu.Lock()
	if !h.readyLocked() || h.mode != StackMode {
		h.mu.Unlock()
		return ErrNotReady
	}
	h.view.AdjustWindow(deltaWidth, deltaCenter)
	h.redrawAndUnlock()
	return nil
}

// WindowLevel returns the current intensity window
func (h *Handle) WindowLevel() (viewer.WindowLevel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.mode != StackMode {
		return viewer.WindowLevel{}, ErrNotReady
	}
	w, _ := h.view.Window()
	return w, nil
}

// ZoomBy multiplies the stack zoom
func (h *Handle) ZoomBy(factor float64) error {
	h.mu.Lock()
	if !h.readyLocked() || h.mode != StackMode {
		h.mu.Unlock()
		return ErrNotReady
	}
	h.view.ZoomBy(factor)
	h.redrawAndUnlock()
	return nil
}

// ResetView restores fit zoom and the automatic window
func (h *Handle) ResetView() error {
	h.mu.Lock()
	if !h.readyLocked() || h.mode != StackMode {
		h.mu.Unlock()
		return ErrNotReady
	}
	h.view.Reset()
	h.redrawAndUnlock()
	return nil
}

// Tools returns the tool group of a 2D handle
func (h *Handle) Tools() (*interaction.ToolGroup, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.tools == nil {
		return nil, ErrNotReady
	}
	return h.tools, nil
}

// Dispatch routes an input event to the active tool (2D) or the camera (3D)
func (h *Handle) Dispatch(ev interaction.Event) error {
	h.mu.Lock()
	if !h.readyLocked() {
		h.mu.Unlock()
		return ErrNotReady
	}
	mode, tools := h.mode, h.tools
	h.mu.Unlock()

	if mode == MeshMode {
		return interaction.DispatchMesh(ev, h)
	}
	return tools.Dispatch(ev, h)
}

// Orbit rotates the camera around the mesh center
func (h *Handle) Orbit(deltaPitch, deltaYaw float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.camera == nil {
		return ErrNotReady
	}
	h.camera.Orbit(deltaPitch, deltaYaw)
	return nil
}

// Dolly changes the camera distance; negative values move closer
func (h *Handle) Dolly(delta float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.camera == nil {
		return ErrNotReady
	}
	h.camera.Zoom(delta)
	return nil
}

// Measurement returns the extents of the current mesh
func (h *Handle) Measurement() (analysis.MeasurementResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.mode != MeshMode {
		return analysis.MeasurementResult{}, ErrNotReady
	}
	return h.measurement, nil
}

// ReplaceMesh swaps the mesh in place, keeping the camera, and returns the
// measurement recomputed under the same lock
func (h *Handle) ReplaceMesh(mesh *stl.Model) (analysis.MeasurementResult, error) {
	if mesh == nil {
		return analysis.MeasurementResult{}, errors.New("no mesh")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.mode != MeshMode {
		return analysis.MeasurementResult{}, ErrNotReady
	}
	h.mesh = mesh
	h.scene = viewer.CenteredScene(mesh, h.cfg.MeshScale)
	h.measurement = analysis.MeasureExtents(mesh)
	return h.measurement, nil
}

// Camera returns a copy of the 3D camera
func (h *Handle) Camera() (viewer.Camera, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.readyLocked() || h.camera == nil {
		return viewer.Camera{}, ErrNotReady
	}
	return *h.camera, nil
}
