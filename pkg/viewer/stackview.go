package viewer

import (
	"image"
	"image/color"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	MinZoom = 0.1
	MaxZoom = 20.0

	// lower and upper quantile used for the automatic window
	windowLowQuantile  = 0.01
	windowHighQuantile = 0.99
)

// WindowLevel maps stored intensities (0..65535) to display grey levels
type WindowLevel struct {
	Width  float64
	Center float64
}

// Lower returns the intensity that maps to black
func (w WindowLevel) Lower() float64 {
	return w.Center - w.Width/2
}

// Apply maps one intensity to an 8-bit grey value
func (w WindowLevel) Apply(value float64) uint8 {
	width := math.Max(1, w.Width)
	v := (value - (w.Center - width/2)) / width
	v = math.Max(0, math.Min(1, v))
	return uint8(math.Round(v * 255))
}

// DefaultWindow derives a window from the 1st and 99th intensity percentiles.
// Flat images fall back to their min/max and always get a width of at least 1.
func DefaultWindow(img image.Image) WindowLevel {
	values := intensities(img)
	if len(values) == 0 {
		return WindowLevel{Width: 65535, Center: 65535 / 2.0}
	}

	sort.Float64s(values)
	lo := stat.Quantile(windowLowQuantile, stat.Empirical, values, nil)
	hi := stat.Quantile(windowHighQuantile, stat.Empirical, values, nil)
	if hi <= lo {
		lo, hi = floats.Min(values), floats.Max(values)
	}

	return WindowLevel{
		Width:  math.Max(1, hi-lo),
		Center: (lo + hi) / 2,
	}
}

func intensities(img image.Image) []float64 {
	bounds := img.Bounds()
	values := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			values = append(values, intensityAt(img, x, y))
		}
	}
	return values
}

func intensityAt(img image.Image, x, y int) float64 {
	switch src := img.(type) {
	case *image.Gray16:
		return float64(src.Gray16At(x, y).Y)
	case *image.Gray:
		return float64(src.GrayAt(x, y).Y) * 257
	default:
		return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
	}
}

// StackView is the pixel-aligned orthographic view of a single slice
type StackView struct {
	width  int
	height int
	zoom   float64

	window    WindowLevel
	windowSet bool
	pending   WindowLevel // adjustments made before the first render
}

// NewStackView creates a view for a surface of the given size
func NewStackView(width, height int) *StackView {
	v := &StackView{zoom: 1}
	v.SetViewport(width, height)
	return v
}

// SetViewport sets the target surface size
func (v *StackView) SetViewport(width, height int) {
	v.width = max(0, width)
	v.height = max(0, height)
}

// Viewport returns the target surface size
func (v *StackView) Viewport() (int, int) {
	return v.width, v.height
}

// Zoom returns the current zoom factor, 1 meaning fit to the surface
func (v *StackView) Zoom() float64 {
	return v.zoom
}

// ZoomBy multiplies the zoom factor and clamps it to [MinZoom, MaxZoom]
func (v *StackView) ZoomBy(factor float64) float64 {
	if factor <= 0 {
		return v.zoom
	}
	v.zoom = math.Max(MinZoom, math.Min(MaxZoom, v.zoom*factor))
	return v.zoom
}

// Window returns the current window and whether one has been set yet
func (v *StackView) Window() (WindowLevel, bool) {
	return v.window, v.windowSet
}

// SetWindow fixes the window explicitly
func (v *StackView) SetWindow(w WindowLevel) {
	w.Width = math.Max(1, w.Width)
	v.window = w
	v.windowSet = true
	v.pending = WindowLevel{}
}

// AdjustWindow changes width and center by the given deltas. Before the first render
// there is no window yet; the deltas are kept and applied to the default window.
func (v *StackView) AdjustWindow(deltaWidth, deltaCenter float64) WindowLevel {
	if !v.windowSet {
		v.pending.Width += deltaWidth
		v.pending.Center += deltaCenter
		return v.window
	}
	v.SetWindow(WindowLevel{
		Width:  v.window.Width + deltaWidth,
		Center: v.window.Center + deltaCenter,
	})
	return v.window
}

// Reset returns to fit zoom and an automatic window
func (v *StackView) Reset() {
	v.zoom = 1
	v.window = WindowLevel{}
	v.windowSet = false
	v.pending = WindowLevel{}
}

// Render draws the slice centered on the surface with the current zoom and window.
// The first render picks a default window from the slice itself.
func (v *StackView) Render(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	xdraw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, xdraw.Src)

	if src == nil || src.Bounds().Empty() || v.width == 0 || v.height == 0 {
		return dst
	}

	if !v.windowSet {
		w := DefaultWindow(src)
		v.SetWindow(WindowLevel{Width: w.Width + v.pending.Width, Center: w.Center + v.pending.Center})
	}

	windowed := v.applyWindow(src)
	xdraw.NearestNeighbor.Scale(dst, v.Placement(src.Bounds()), windowed, windowed.Bounds(), xdraw.Src, nil)
	return dst
}

// Placement returns the destination rectangle of an image of the given bounds.
// Edges are rounded to whole pixels.
func (v *StackView) Placement(bounds image.Rectangle) image.Rectangle {
	iw, ih := float64(bounds.Dx()), float64(bounds.Dy())
	if iw == 0 || ih == 0 {
		return image.Rectangle{}
	}
	scale := math.Min(float64(v.width)/iw, float64(v.height)/ih) * v.zoom

	w := iw * scale
	h := ih * scale
	x0 := math.Round((float64(v.width) - w) / 2)
	y0 := math.Round((float64(v.height) - h) / 2)
	return image.Rect(int(x0), int(y0), int(x0+math.Round(w)), int(y0+math.Round(h)))
}

func (v *StackView) applyWindow(src image.Image) *image.Gray {
	bounds := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: v.window.Apply(intensityAt(src, x, y))})
		}
	}
	return out
}
