package app

import (
	"image"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"github.com/philipparndt/scanview/internal/display"
	"github.com/philipparndt/scanview/internal/interaction"
)

// wheelPixelsPerNotch matches the scroll distance fyne reports for one wheel notch
const wheelPixelsPerNotch = 10

// Area is the viewer region. It presents the frames of the mounted viewport
// and turns pointer input into interaction events.
type Area struct {
	widget.BaseWidget

	raster     *canvas.Image
	background *canvas.Rectangle

	mu        sync.Mutex
	handler   func(interaction.Event)
	onResize  func(display.Size)
	secondary bool
	lastPos   fyne.Position
}

// NewArea creates an empty viewer region
func NewArea() *Area {
	a := &Area{
		raster:     canvas.NewImageFromImage(nil),
		background: canvas.NewRectangle(color.Black),
	}
	a.raster.FillMode = canvas.ImageFillStretch
	a.raster.ScaleMode = canvas.ImageScalePixels
	a.ExtendBaseWidget(a)
	return a
}

// SetHandler sets the receiver of input events
func (a *Area) SetHandler(handler func(interaction.Event)) {
	a.mu.Lock()
	a.handler = handler
	a.mu.Unlock()
}

// SetOnResize sets the callback for layout size changes
func (a *Area) SetOnResize(fn func(display.Size)) {
	a.mu.Lock()
	a.onResize = fn
	a.mu.Unlock()
}

// Present implements display.Presenter
func (a *Area) Present(img image.Image) {
	fyne.Do(func() {
		a.raster.Image = img
		a.raster.Refresh()
	})
}

// Clear implements display.Presenter
func (a *Area) Clear() {
	fyne.Do(func() {
		a.raster.Image = nil
		a.raster.Refresh()
	})
}

func (a *Area) emit(ev interaction.Event) {
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (a *Area) resized(size fyne.Size) {
	a.mu.Lock()
	fn := a.onResize
	a.mu.Unlock()
	if fn != nil {
		fn(display.Size{Width: int(size.Width), Height: int(size.Height)})
	}
}

// MouseDown remembers whether the secondary button is held
func (a *Area) MouseDown(ev *desktop.MouseEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.Button == desktop.MouseButtonSecondary {
		a.secondary = true
		a.lastPos = ev.Position
	}
}

func (a *Area) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonSecondary {
		a.mu.Lock()
		a.secondary = false
		a.mu.Unlock()
	}
}

func (a *Area) MouseIn(*desktop.MouseEvent) {}

// MouseMoved produces secondary drags, which fyne does not report through Dragged
func (a *Area) MouseMoved(ev *desktop.MouseEvent) {
	a.mu.Lock()
	if !a.secondary {
		a.mu.Unlock()
		return
	}
	dx := ev.Position.X - a.lastPos.X
	dy := ev.Position.Y - a.lastPos.Y
	a.lastPos = ev.Position
	a.mu.Unlock()

	if dx != 0 || dy != 0 {
		a.emit(interaction.Event{Channel: interaction.SecondaryDrag, DX: float64(dx), DY: float64(dy)})
	}
}

func (a *Area) MouseOut() {
	a.mu.Lock()
	a.secondary = false
	a.mu.Unlock()
}

// Dragged handles primary button drags
func (a *Area) Dragged(ev *fyne.DragEvent) {
	a.mu.Lock()
	secondary := a.secondary
	a.mu.Unlock()
	if secondary {
		return
	}
	a.emit(interaction.Event{
		Channel: interaction.PrimaryDrag,
		DX:      float64(ev.Dragged.DX),
		DY:      float64(ev.Dragged.DY),
	})
}

func (a *Area) DragEnd() {}

// Scrolled maps the wheel to notches; scrolling down moves forward
func (a *Area) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY == 0 {
		return
	}
	a.emit(interaction.Event{
		Channel: interaction.Wheel,
		DY:      -float64(ev.Scrolled.DY) / wheelPixelsPerNotch,
	})
}

// CreateRenderer creates the renderer for the widget
func (a *Area) CreateRenderer() fyne.WidgetRenderer {
	return &areaRenderer{
		area:    a,
		objects: []fyne.CanvasObject{a.background, a.raster},
	}
}

// areaRenderer implements fyne.WidgetRenderer
type areaRenderer struct {
	area    *Area
	objects []fyne.CanvasObject
	size    fyne.Size
}

func (r *areaRenderer) Layout(size fyne.Size) {
	r.area.background.Resize(size)
	r.area.raster.Resize(size)
	if size != r.size {
		r.size = size
		r.area.resized(size)
	}
}

func (r *areaRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 400)
}

func (r *areaRenderer) Refresh() {
	canvas.Refresh(r.area.raster)
}

func (r *areaRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *areaRenderer) Destroy() {}
