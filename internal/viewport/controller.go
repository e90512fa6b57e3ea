package viewport

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/philipparndt/scanview/internal/display"
	"github.com/philipparndt/scanview/internal/order"
	"github.com/philipparndt/scanview/internal/stack"
	"github.com/philipparndt/scanview/pkg/analysis"
	"github.com/philipparndt/scanview/pkg/stl"
)

// Catalog resolves a scan to its resources
type Catalog interface {
	SliceLocators(ctx context.Context, scanID string) ([]string, error)
	MeshLocator(ctx context.Context, scanID string) (string, bool, error)
}

// Resources loads what the catalog points to
type Resources interface {
	ImageSource
	LoadMesh(ctx context.Context, locator string) (*stl.Model, error)
}

type prefetcher interface {
	Prefetch(ctx context.Context, locators []string)
}

// StatusKind is what the viewer area currently shows
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusLoading
	StatusReady
	StatusPlaceholder
	StatusNotAvailable
	StatusError
)

func (k StatusKind) String() string {
	return [...]string{"idle", "loading", "ready", "placeholder", "not-available", "error"}[k]
}

// Status describes the controller's display state. Generation increases with every request;
// subscribers should ignore statuses older than the last one they applied.
type Status struct {
	Kind        StatusKind
	Generation  uint64
	ScanID      string
	Mode        Mode
	Err         error
	Index       int
	Total       int
	SliceErr    error
	Measurement analysis.MeasurementResult
	MeshLocator string
}

// Message is a one-line description for a status bar
func (s Status) Message() string {
	switch s.Kind {
	case StatusIdle:
		return "No scan selected"
	case StatusLoading:
		return "Loading " + s.ScanID + "..."
	case StatusPlaceholder:
		return "Scan " + s.ScanID + " has no slices"
	case StatusNotAvailable:
		return "3D model for scan " + s.ScanID + " is not available yet"
	case StatusError:
		if s.Err != nil {
			return s.Err.Error()
		}
		return "Failed"
	}
	if s.SliceErr != nil {
		return s.SliceErr.Error()
	}
	return "Scan " + s.ScanID
}

// Controller mounts one handle at a time on a display element and switches it as scans change.
// Each request gets a generation; results of superseded requests are dropped silently.
type Controller struct {
	element   *display.Element
	registry  *Registry
	catalog   Catalog
	resources Resources
	resolver  *order.Resolver
	cfg       Config
	logger    *slog.Logger

	// transition serializes detach and attach on the element
	transition sync.Mutex
	// reload serializes in-place mesh reloads
	reload sync.Mutex

	mu            sync.Mutex
	generation    uint64
	cancelRequest context.CancelFunc
	handle        *Handle
	status        Status

	statusFeed event.FeedOf[Status]
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewController creates a controller that shows scans on element
func NewController(element *display.Element, registry *Registry, catalog Catalog, resources Resources, resolver *order.Resolver, cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		element:   element,
		registry:  registry,
		catalog:   catalog,
		resources: resources,
		resolver:  resolver,
		cfg:       cfg,
		logger:    slog.With("c", "controller"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Status returns the current display state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SubscribeStatus delivers status changes to ch, which should be buffered
func (c *Controller) SubscribeStatus(ch chan<- Status) event.Subscription {
	return c.statusFeed.Subscribe(ch)
}

// Handle returns the mounted handle, or nil
func (c *Controller) Handle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// WaitIdle blocks until all started requests have settled
func (c *Controller) WaitIdle() {
	c.wg.Wait()
}

// begin starts a new generation and cancels the previous request
func (c *Controller) begin(scanID string, mode Mode) (uint64, context.Context) {
	c.mu.Lock()
	c.generation++
	if c.cancelRequest != nil {
		c.cancelRequest()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelRequest = cancel
	gen := c.generation
	status := Status{Kind: StatusLoading, Generation: gen, ScanID: scanID, Mode: mode}
	c.status = status
	c.mu.Unlock()

	c.statusFeed.Send(status)
	c.logger.Info("Request", "scan", scanID, "mode", mode.String(), "generation", gen)
	return gen, ctx
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// publish sets the status if gen is still current
func (c *Controller) publish(gen uint64, update func(*Status)) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	update(&c.status)
	status := c.status
	c.mu.Unlock()

	c.statusFeed.Send(status)
}

func failed(err error) func(*Status) {
	return func(s *Status) {
		s.Kind = StatusError
		s.Err = err
	}
}

// fail unmounts the previous scan and shows the error in its place
func (c *Controller) fail(gen uint64, err error) {
	c.logger.Warn("Request failed", "generation", gen, "error", err)
	c.mount(gen, nil, failed(err))
}

// ShowStack loads the slices of a scan and mounts a 2D handle. It returns immediately.
func (c *Controller) ShowStack(scanID string) uint64 {
	gen, ctx := c.begin(scanID, StackMode)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		locators, err := c.catalog.SliceLocators(ctx, scanID)
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.fail(gen, err)
			return
		}

		ordered, stats := c.resolver.Resolve(locators)
		session, err := stack.Open(ordered)
		if errors.Is(err, stack.ErrEmptyStack) {
			c.mount(gen, nil, func(s *Status) { s.Kind = StatusPlaceholder })
			return
		}
		c.logger.Debug("Resolved slice order", "scan", scanID, "matched", stats.Matched, "unmatched", stats.Unmatched)

		if p, ok := c.resources.(prefetcher); ok {
			p.Prefetch(ctx, ordered)
		}

		hook := func(index, total int, err error) {
			c.publish(gen, func(s *Status) {
				s.Index, s.Total, s.SliceErr = index, total, err
			})
		}
		h := NewStack(c.element, c.registry, session, c.resources, hook, c.cfg)
		c.mount(gen, h, func(s *Status) {
			s.Kind = StatusReady
			s.Total = session.Len()
		})
	}()
	return gen
}

// ShowMesh loads the mesh of a scan and mounts a 3D handle. It returns immediately.
func (c *Controller) ShowMesh(scanID string) uint64 {
	gen, ctx := c.begin(scanID, MeshMode)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		locator, ok, err := c.catalog.MeshLocator(ctx, scanID)
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.fail(gen, err)
			return
		}
		if !ok {
			c.mount(gen, nil, func(s *Status) { s.Kind = StatusNotAvailable })
			return
		}

		mesh, err := c.resources.LoadMesh(ctx, locator)
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.fail(gen, err)
			return
		}

		measurement := analysis.MeasureExtents(mesh)
		h := NewMesh(c.element, c.registry, mesh, c.cfg)
		c.mount(gen, h, func(s *Status) {
			s.Kind = StatusReady
			s.MeshLocator = locator
			s.Measurement = measurement
		})
	}()
	return gen
}

// ReloadMesh loads the current scan's mesh again. A mounted mesh is replaced in place,
// keeping the camera, and the new measurement is published with it. Without a mounted
// mesh the scan is requested from scratch.
func (c *Controller) ReloadMesh() {
	c.mu.Lock()
	status, h := c.status, c.handle
	c.mu.Unlock()

	if status.Mode != MeshMode || status.ScanID == "" {
		return
	}
	if h == nil || status.Kind != StatusReady || status.MeshLocator == "" {
		c.ShowMesh(status.ScanID)
		return
	}

	gen := status.Generation
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reload.Lock()
		defer c.reload.Unlock()

		mesh, err := c.resources.LoadMesh(c.ctx, status.MeshLocator)
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.logger.Warn("Mesh reload failed, keeping the previous mesh", "scan", status.ScanID, "error", err)
			return
		}

		measurement, err := h.ReplaceMesh(mesh)
		if err != nil {
			return
		}
		c.logger.Info("Reloaded mesh", "scan", status.ScanID, "ratio", measurement.Ratio)
		c.publish(gen, func(s *Status) { s.Measurement = measurement })
	}()
}

// mount replaces the mounted handle. The old handle is disposed before the new one
// attaches, and nothing is mounted if gen has been superseded.
func (c *Controller) mount(gen uint64, h *Handle, update func(*Status)) {
	c.transition.Lock()
	defer c.transition.Unlock()

	if !c.current(gen) {
		if h != nil {
			h.Dispose()
		}
		return
	}

	c.detach()

	if h == nil {
		c.publish(gen, update)
		return
	}

	if err := h.Initialize(c.ctx); err != nil {
		c.logger.Warn("Mount failed", "generation", gen, "error", err)
		c.publish(gen, failed(err))
		return
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		h.Dispose()
		return
	}
	c.handle = h
	c.mu.Unlock()

	c.publish(gen, update)
}

// detach disposes the mounted handle; transition must be held
func (c *Controller) detach() {
	c.mu.Lock()
	old := c.handle
	c.handle = nil
	c.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
}

// Unmount cancels pending requests and disposes the mounted handle
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.generation++
	if c.cancelRequest != nil {
		c.cancelRequest()
		c.cancelRequest = nil
	}
	gen := c.generation
	c.mu.Unlock()

	c.transition.Lock()
	c.detach()
	c.transition.Unlock()

	c.publish(gen, func(s *Status) {
		*s = Status{Kind: StatusIdle, Generation: gen}
	})
}

// Close unmounts and waits for background work to finish
func (c *Controller) Close() {
	c.Unmount()
	c.cancel()
	c.wg.Wait()
}
