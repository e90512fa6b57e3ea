// Package interaction maps pointer and slider input to viewport operations through an active tool per input channel.
package interaction

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidBinding is returned for a tool that cannot serve a channel
var ErrInvalidBinding = errors.New("invalid tool binding")

// Channel is an input source
type Channel int

const (
	PrimaryDrag Channel = iota
	SecondaryDrag
	Wheel
	Slider
)

func (c Channel) String() string {
	switch c {
	case PrimaryDrag:
		return "primary-drag"
	case SecondaryDrag:
		return "secondary-drag"
	case Wheel:
		return "wheel"
	case Slider:
		return "slider"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Tool is what a channel's input does in a stack view
type Tool int

const (
	None Tool = iota
	Navigate
	WindowLevel
	Zoom
)

func (t Tool) String() string {
	switch t {
	case None:
		return "none"
	case Navigate:
		return "navigate"
	case WindowLevel:
		return "window-level"
	case Zoom:
		return "zoom"
	default:
		return fmt.Sprintf("tool(%d)", int(t))
	}
}

// ParseTool parses the names returned by Tool.String
func ParseTool(name string) (Tool, error) {
	for _, t := range []Tool{None, Navigate, WindowLevel, Zoom} {
		if t.String() == name {
			return t, nil
		}
	}
	return None, fmt.Errorf("unknown tool %q", name)
}

var allowed = map[Channel][]Tool{
	PrimaryDrag:   {None, Navigate, WindowLevel, Zoom},
	SecondaryDrag: {None, Navigate, WindowLevel, Zoom},
	Wheel:         {None, Navigate, Zoom},
	Slider:        {None, Navigate},
}

// Event is one unit of input. Drags carry pixel deltas, the wheel carries notches in DY
// (positive moves towards later slices) and the slider carries the target index in Value.
type Event struct {
	Channel Channel
	DX, DY  float64
	Value   int
}

// Sensitivities of the stack tools
const (
	WindowPerPixel     = 64.0 // intensity units per dragged pixel
	ZoomPerPixel       = 0.01
	ZoomPerNotch       = 1.1
	DragPixelsPerSlice = 8.0
)

// ToolGroup holds the tool bound to each channel of one stack viewport
type ToolGroup struct {
	mu       sync.RWMutex
	bindings map[Channel]Tool
	attached bool

	dragCarry float64 // sub-slice remainder of drag navigation
}

// NewStackTools returns the default 2D bindings: wheel and slider navigate, the primary button
// adjusts the window and the secondary button zooms.
func NewStackTools() *ToolGroup {
	return &ToolGroup{
		bindings: map[Channel]Tool{
			PrimaryDrag:   WindowLevel,
			SecondaryDrag: Zoom,
			Wheel:         Navigate,
			Slider:        Navigate,
		},
	}
}

// Bind sets the tool of a channel. When the other drag channel holds the same tool
// the two channels swap, all under one lock.
func (g *ToolGroup) Bind(channel Channel, tool Tool) error {
	tools, ok := allowed[channel]
	if !ok || !contains(tools, tool) {
		return fmt.Errorf("%w: %s cannot drive %s", ErrInvalidBinding, channel, tool)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	previous := g.bindings[channel]
	if other, isDrag := otherDrag(channel); isDrag && tool != None && g.bindings[other] == tool {
		g.bindings[other] = previous
	}
	g.bindings[channel] = tool
	return nil
}

// ToolFor returns the tool bound to a channel
func (g *ToolGroup) ToolFor(channel Channel) Tool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bindings[channel]
}

// Bindings returns a snapshot of all bindings
func (g *ToolGroup) Bindings() map[Channel]Tool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[Channel]Tool, len(g.bindings))
	for c, t := range g.bindings {
		out[c] = t
	}
	return out
}

// Attach marks the group as receiving input
func (g *ToolGroup) Attach() {
	g.mu.Lock()
	g.attached = true
	g.mu.Unlock()
}

// Detach stops the group from handling input
func (g *ToolGroup) Detach() {
	g.mu.Lock()
	g.attached = false
	g.dragCarry = 0
	g.mu.Unlock()
}

// Attached reports whether the group handles input
func (g *ToolGroup) Attached() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.attached
}

func contains(tools []Tool, tool Tool) bool {
	for _, t := range tools {
		if t == tool {
			return true
		}
	}
	return false
}

func otherDrag(c Channel) (Channel, bool) {
	switch c {
	case PrimaryDrag:
		return SecondaryDrag, true
	case SecondaryDrag:
		return PrimaryDrag, true
	}
	return c, false
}

// StackTarget receives the operations of the 2D tools
type StackTarget interface {
	Step(delta int) (int, error)
	Seek(index int) error
	AdjustWindowLevel(deltaWidth, deltaCenter float64) error
	ZoomBy(factor float64) error
}

// Dispatch applies an event through the tool bound to its channel.
// Events for a detached group or a channel bound to None are ignored.
func (g *ToolGroup) Dispatch(event Event, target StackTarget) error {
	g.mu.Lock()
	if !g.attached {
		g.mu.Unlock()
		return nil
	}
	tool := g.bindings[event.Channel]

	steps := 0
	if tool == Navigate && (event.Channel == PrimaryDrag || event.Channel == SecondaryDrag) {
		g.dragCarry += event.DY / DragPixelsPerSlice
		steps = int(g.dragCarry)
		g.dragCarry -= float64(steps)
	}
	g.mu.Unlock()

	switch tool {
	case None:
		return nil

	case Navigate:
		switch event.Channel {
		case Slider:
			return target.Seek(event.Value)
		case Wheel:
			_, err := target.Step(notches(event.DY))
			return err
		default:
			if steps == 0 {
				return nil
			}
			_, err := target.Step(steps)
			return err
		}

	case WindowLevel:
		return target.AdjustWindowLevel(event.DX*WindowPerPixel, event.DY*WindowPerPixel)

	case Zoom:
		if event.Channel == Wheel {
			return target.ZoomBy(math.Pow(ZoomPerNotch, -float64(notches(event.DY))))
		}
		return target.ZoomBy(math.Exp(-event.DY * ZoomPerPixel))
	}

	return fmt.Errorf("%w: %s", ErrInvalidBinding, tool)
}

// notches turns a wheel delta into whole steps, at least one in the scrolled direction
func notches(dy float64) int {
	if dy == 0 {
		return 0
	}
	n := int(math.Round(math.Abs(dy)))
	if n == 0 {
		n = 1
	}
	if dy < 0 {
		return -n
	}
	return n
}
