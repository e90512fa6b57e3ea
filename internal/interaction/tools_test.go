package interaction

import (
	"errors"
	"math"
	"sync"
	"testing"
)

type recordingTarget struct {
	steps   []int
	seeks   []int
	windows [][2]float64
	zooms   []float64
}

func (r *recordingTarget) Step(delta int) (int, error) {
	r.steps = append(r.steps, delta)
	return 0, nil
}

func (r *recordingTarget) Seek(index int) error {
	r.seeks = append(r.seeks, index)
	return nil
}

func (r *recordingTarget) AdjustWindowLevel(dw, dc float64) error {
	r.windows = append(r.windows, [2]float64{dw, dc})
	return nil
}

func (r *recordingTarget) ZoomBy(f float64) error {
	r.zooms = append(r.zooms, f)
	return nil
}

func attachedTools() *ToolGroup {
	g := NewStackTools()
	g.Attach()
	return g
}

func TestDefaultBindings(t *testing.T) {
	g := NewStackTools()
	want := map[Channel]Tool{
		PrimaryDrag:   WindowLevel,
		SecondaryDrag: Zoom,
		Wheel:         Navigate,
		Slider:        Navigate,
	}
	for c, tool := range want {
		if got := g.ToolFor(c); got != tool {
			t.Errorf("%s: expected %s, got %s", c, tool, got)
		}
	}
}

func TestDispatchDefaults(t *testing.T) {
	g := attachedTools()
	target := &recordingTarget{}

	_ = g.Dispatch(Event{Channel: Wheel, DY: 1}, target)
	_ = g.Dispatch(Event{Channel: Wheel, DY: -0.2}, target)
	_ = g.Dispatch(Event{Channel: Slider, Value: 7}, target)
	_ = g.Dispatch(Event{Channel: PrimaryDrag, DX: 2, DY: -1}, target)
	_ = g.Dispatch(Event{Channel: SecondaryDrag, DY: 10}, target)

	if len(target.steps) != 2 || target.steps[0] != 1 || target.steps[1] != -1 {
		t.Errorf("wheel steps failed: got %v", target.steps)
	}
	if len(target.seeks) != 1 || target.seeks[0] != 7 {
		t.Errorf("slider seek failed: got %v", target.seeks)
	}
	if len(target.windows) != 1 || target.windows[0] != [2]float64{2 * WindowPerPixel, -WindowPerPixel} {
		t.Errorf("window adjust failed: got %v", target.windows)
	}
	if len(target.zooms) != 1 || target.zooms[0] >= 1 {
		t.Errorf("dragging down should zoom out, got %v", target.zooms)
	}
}

func TestDispatchIgnoredWhenDetached(t *testing.T) {
	g := NewStackTools()
	target := &recordingTarget{}

	if err := g.Dispatch(Event{Channel: Wheel, DY: 1}, target); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(target.steps) != 0 {
		t.Errorf("detached group must not forward input")
	}

	g.Attach()
	g.Detach()
	_ = g.Dispatch(Event{Channel: Wheel, DY: 1}, target)
	if len(target.steps) != 0 {
		t.Errorf("detached group must not forward input")
	}
}

func TestBindSwapsDragTools(t *testing.T) {
	g := NewStackTools()

	if err := g.Bind(PrimaryDrag, Zoom); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if g.ToolFor(PrimaryDrag) != Zoom || g.ToolFor(SecondaryDrag) != WindowLevel {
		t.Errorf("expected swap, got %v", g.Bindings())
	}

	if err := g.Bind(PrimaryDrag, Navigate); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if g.ToolFor(SecondaryDrag) != WindowLevel {
		t.Errorf("unrelated channel must keep its tool, got %v", g.Bindings())
	}
}

func TestBindRejectsInvalid(t *testing.T) {
	g := NewStackTools()

	tests := []struct {
		channel Channel
		tool    Tool
	}{
		{Slider, Zoom},
		{Slider, WindowLevel},
		{Wheel, WindowLevel},
		{Channel(42), Navigate},
	}
	for _, tt := range tests {
		if err := g.Bind(tt.channel, tt.tool); !errors.Is(err, ErrInvalidBinding) {
			t.Errorf("Bind(%s, %s): expected ErrInvalidBinding, got %v", tt.channel, tt.tool, err)
		}
	}
	if g.ToolFor(Slider) != Navigate {
		t.Errorf("failed bind must not change state")
	}
}

func TestRebindIsAtomic(t *testing.T) {
	g := NewStackTools()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = g.Bind(PrimaryDrag, Zoom)
		}()
		go func() {
			defer wg.Done()
			_ = g.Bind(SecondaryDrag, Zoom)
		}()
	}
	wg.Wait()

	b := g.Bindings()
	if b[PrimaryDrag] == b[SecondaryDrag] {
		t.Errorf("both drag channels hold %s", b[PrimaryDrag])
	}
}

func TestDragNavigationAccumulates(t *testing.T) {
	g := attachedTools()
	if err := g.Bind(PrimaryDrag, Navigate); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	target := &recordingTarget{}

	for i := 0; i < 4; i++ {
		_ = g.Dispatch(Event{Channel: PrimaryDrag, DY: DragPixelsPerSlice / 2}, target)
	}
	if len(target.steps) != 2 {
		t.Errorf("expected 2 steps for 2 slices of drag, got %v", target.steps)
	}
}

func TestWheelZoom(t *testing.T) {
	g := attachedTools()
	if err := g.Bind(Wheel, Zoom); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	target := &recordingTarget{}

	_ = g.Dispatch(Event{Channel: Wheel, DY: -1}, target)
	if len(target.zooms) != 1 || math.Abs(target.zooms[0]-ZoomPerNotch) > 1e-12 {
		t.Errorf("wheel up should zoom in by one notch, got %v", target.zooms)
	}
}

func TestParseTool(t *testing.T) {
	for _, tool := range []Tool{None, Navigate, WindowLevel, Zoom} {
		got, err := ParseTool(tool.String())
		if err != nil || got != tool {
			t.Errorf("ParseTool(%s) failed: %v, %v", tool, got, err)
		}
	}
	if _, err := ParseTool("pan"); err == nil {
		t.Errorf("expected error for unknown tool")
	}
}

type meshTarget struct {
	orbits [][2]float64
	dollys []float64
}

func (m *meshTarget) Orbit(p, y float64) error {
	m.orbits = append(m.orbits, [2]float64{p, y})
	return nil
}

func (m *meshTarget) Dolly(d float64) error {
	m.dollys = append(m.dollys, d)
	return nil
}

func TestDispatchMesh(t *testing.T) {
	target := &meshTarget{}

	_ = DispatchMesh(Event{Channel: PrimaryDrag, DX: 10, DY: 5}, target)
	_ = DispatchMesh(Event{Channel: Wheel, DY: 2}, target)

	if len(target.orbits) != 1 || target.orbits[0] != [2]float64{-5 * OrbitPerPixel, 10 * OrbitPerPixel} {
		t.Errorf("orbit failed: got %v", target.orbits)
	}
	if len(target.dollys) != 1 || target.dollys[0] != 2*DollyPerNotch {
		t.Errorf("dolly failed: got %v", target.dollys)
	}
	if err := DispatchMesh(Event{Channel: Slider}, target); !errors.Is(err, ErrInvalidBinding) {
		t.Errorf("expected ErrInvalidBinding for slider, got %v", err)
	}
}
