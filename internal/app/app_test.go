package app

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"github.com/philipparndt/scanview/internal/catalog"
	"github.com/philipparndt/scanview/internal/display"
	"github.com/philipparndt/scanview/internal/interaction"
	"github.com/philipparndt/scanview/internal/viewport"
)

func recordEvents(a *Area) *[]interaction.Event {
	var events []interaction.Event
	a.SetHandler(func(ev interaction.Event) { events = append(events, ev) })
	return &events
}

func TestAreaWheel(t *testing.T) {
	a := NewArea()
	events := recordEvents(a)

	a.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, -20)})
	a.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, 10)})
	a.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(5, 0)})

	if len(*events) != 2 {
		t.Fatalf("expected 2 wheel events, got %d", len(*events))
	}
	if ev := (*events)[0]; ev.Channel != interaction.Wheel || ev.DY != 2 {
		t.Errorf("scrolling down should move forward two notches, got %+v", ev)
	}
	if ev := (*events)[1]; ev.DY != -1 {
		t.Errorf("scrolling up should move back one notch, got %+v", ev)
	}
}

func TestAreaPrimaryDrag(t *testing.T) {
	a := NewArea()
	events := recordEvents(a)

	a.Dragged(&fyne.DragEvent{Dragged: fyne.NewDelta(3, -4)})
	a.DragEnd()

	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	if ev := (*events)[0]; ev.Channel != interaction.PrimaryDrag || ev.DX != 3 || ev.DY != -4 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestAreaSecondaryDrag(t *testing.T) {
	a := NewArea()
	events := recordEvents(a)

	mouse := func(x, y float32, button desktop.MouseButton) *desktop.MouseEvent {
		return &desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}, Button: button}
	}

	a.MouseMoved(mouse(5, 5, 0))
	a.MouseDown(mouse(10, 10, desktop.MouseButtonSecondary))
	a.MouseMoved(mouse(12, 16, 0))
	a.Dragged(&fyne.DragEvent{Dragged: fyne.NewDelta(2, 6)})
	a.MouseUp(mouse(12, 16, desktop.MouseButtonSecondary))
	a.MouseMoved(mouse(20, 20, 0))

	if len(*events) != 1 {
		t.Fatalf("expected exactly one secondary drag, got %+v", *events)
	}
	if ev := (*events)[0]; ev.Channel != interaction.SecondaryDrag || ev.DX != 2 || ev.DY != 6 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestAreaResize(t *testing.T) {
	test.NewTempApp(t)
	a := NewArea()
	var sizes []display.Size
	a.SetOnResize(func(size display.Size) { sizes = append(sizes, size) })

	r := a.CreateRenderer()
	r.Layout(fyne.NewSize(640, 480))
	r.Layout(fyne.NewSize(640, 480))
	r.Layout(fyne.NewSize(320.6, 200))

	if len(sizes) != 2 {
		t.Fatalf("expected 2 resizes, got %v", sizes)
	}
	if sizes[0] != (display.Size{Width: 640, Height: 480}) || sizes[1] != (display.Size{Width: 320, Height: 200}) {
		t.Errorf("unexpected sizes %v", sizes)
	}
}

func TestSliceText(t *testing.T) {
	tests := []struct {
		index, total int
		name         string
		want         string
	}{
		{0, 0, "", ""},
		{0, 120, "", "Slice 1 / 120"},
		{2, 120, "VHFCT1mm-Ankle (3).dcm", "Slice 3 / 120: VHFCT1mm-Ankle (3).dcm"},
	}
	for _, tt := range tests {
		if got := sliceText(tt.index, tt.total, tt.name); got != tt.want {
			t.Errorf("sliceText(%d, %d, %q) = %q, want %q", tt.index, tt.total, tt.name, got, tt.want)
		}
	}
}

func TestScanText(t *testing.T) {
	if got := scanText(viewport.Status{}); got != "-" {
		t.Errorf("expected placeholder, got %q", got)
	}
	got := scanText(viewport.Status{ScanID: "42", Mode: viewport.StackMode, Total: 1200})
	if got != "ID: 42\nMode: 2D\nSlices: 1,200" {
		t.Errorf("unexpected text %q", got)
	}
	if got := scanTitle(catalog.Scan{ID: "7", PatientEmail: "a@b.c"}); got != "7 (a@b.c)" {
		t.Errorf("unexpected title %q", got)
	}
}
