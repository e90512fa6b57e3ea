// Package app is the desktop viewer: a scan list, the 2D/3D viewer region and the controls around it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/ethereum/go-ethereum/event"

	"github.com/philipparndt/scanview/internal/catalog"
	"github.com/philipparndt/scanview/internal/display"
	"github.com/philipparndt/scanview/internal/interaction"
	"github.com/philipparndt/scanview/internal/loader"
	"github.com/philipparndt/scanview/internal/order"
	"github.com/philipparndt/scanview/internal/viewport"
	"github.com/philipparndt/scanview/pkg/watcher"
)

const (
	mode2D = "2D"
	mode3D = "3D"
)

// Options wires the viewer to its backend
type Options struct {
	Catalog  *catalog.Client
	Loader   *loader.Loader
	Resolver *order.Resolver
	Viewport viewport.Config

	// MeshPath maps a scan to a local mesh file to watch for changes.
	// When nil, meshes are watched only if their locator is a local path.
	MeshPath func(scanID string) (string, bool)
}

type App struct {
	opts   Options
	fyne   fyne.App
	window fyne.Window
	logger *slog.Logger

	area     *Area
	element  *display.Element
	registry *viewport.Registry
	ctrl     *viewport.Controller
	watcher  *watcher.FileWatcher

	ctx    context.Context
	cancel context.CancelFunc

	View      ViewState
	UI        UIState
	FileWatch FileWatchState
}

// New builds the window; call Run to show it
func New(opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		opts:     opts,
		fyne:     fyneapp.New(),
		logger:   slog.With("c", "app"),
		area:     NewArea(),
		registry: viewport.NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
		View:     ViewState{primary: interaction.WindowLevel},
	}
	a.window = a.fyne.NewWindow("ScanView")

	a.element = display.NewElement(display.Size{Width: 800, Height: 800}, a.area)
	a.ctrl = viewport.NewController(a.element, a.registry, opts.Catalog, opts.Loader, opts.Resolver, opts.Viewport)

	a.area.SetOnResize(a.element.Resize)
	a.area.SetHandler(a.dispatch)

	fw, err := watcher.NewFileWatcher(watcher.DefaultDebounce)
	if err != nil {
		a.logger.Warn("Auto-reload will not be available", "error", err)
	} else {
		a.watcher = fw
		fw.Start(ctx)
	}

	a.setupUI()
	return a
}

// Run shows the window and blocks until it is closed. A non-empty scanID is opened right away.
func (a *App) Run(scanID string, mode viewport.Mode) {
	statuses := make(chan viewport.Status, 32)
	sub := a.ctrl.SubscribeStatus(statuses)
	go func() {
		for {
			select {
			case st := <-statuses:
				fyne.Do(func() { a.applyStatus(st) })
			case <-sub.Err():
				return
			}
		}
	}()

	a.loadScans()
	if scanID != "" {
		a.View.scanID = scanID
		a.View.mode = mode
		if mode == viewport.MeshMode {
			a.UI.modeRadio.SetSelected(mode3D)
		}
		a.show()
	}

	a.window.Resize(fyne.NewSize(1200, 800))
	a.window.ShowAndRun()

	a.shutdown(sub)
}

func (a *App) shutdown(sub event.Subscription) {
	sub.Unsubscribe()
	a.ctrl.Close()
	a.cancel()
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if live := a.registry.Live(); live != 0 {
		a.logger.Warn("Viewports still alive at exit", "count", live)
		a.registry.DisposeAll()
	}
}

func (a *App) loadScans() {
	go func() {
		scans, err := a.opts.Catalog.Scans(a.ctx)
		fyne.Do(func() {
			if err != nil {
				a.UI.statusLabel.SetText(fmt.Sprintf("Failed to list scans: %v", err))
				return
			}
			a.View.scans = scans
			a.UI.scanList.Refresh()
			a.logger.Info("Listed scans", "count", len(scans))
		})
	}()
}

// show requests the selected scan in the selected mode
func (a *App) show() {
	if a.View.scanID == "" {
		return
	}
	if a.View.mode == viewport.MeshMode {
		a.ctrl.ShowMesh(a.View.scanID)
	} else {
		a.ctrl.ShowStack(a.View.scanID)
	}
}

// dispatch routes input from the viewer region to the mounted handle
func (a *App) dispatch(ev interaction.Event) {
	h := a.ctrl.Handle()
	if h == nil {
		return
	}
	if err := h.Dispatch(ev); err != nil && !errors.Is(err, viewport.ErrNotReady) {
		a.logger.Debug("Input ignored", "channel", ev.Channel.String(), "error", err)
		return
	}
	if h.Mode() == viewport.StackMode {
		a.updateWindowLabel(h)
	}
}

func (a *App) bindPrimary(tool interaction.Tool) {
	a.View.primary = tool
	h := a.ctrl.Handle()
	if h == nil || h.Mode() != viewport.StackMode {
		return
	}
	tools, err := h.Tools()
	if err != nil {
		return
	}
	if err := tools.Bind(interaction.PrimaryDrag, tool); err != nil {
		a.logger.Warn("Failed to bind tool", "tool", tool.String(), "error", err)
	}
}

// applyStatus runs on the fyne goroutine
func (a *App) applyStatus(st viewport.Status) {
	if st.Generation < a.View.generation {
		return
	}
	a.View.generation = st.Generation

	a.UI.statusLabel.SetText(st.Message())
	a.UI.scanLabel.SetText(scanText(st))
	a.updateWatch(st)

	if st.Kind != viewport.StatusReady {
		a.UI.slider.Disable()
		a.UI.sliceLabel.SetText("")
		a.UI.extentLabel.SetText("")
		a.UI.ratioLabel.SetText("")
		a.UI.windowLabel.SetText("")
		return
	}

	h := a.ctrl.Handle()
	if st.Mode == viewport.MeshMode {
		a.UI.slider.Disable()
		a.UI.sliceLabel.SetText("")
		a.UI.windowLabel.SetText("")
		a.UI.extentLabel.SetText(extentText(st.Measurement))
		a.UI.ratioLabel.SetText(fmt.Sprintf("Ratio: %.3f", st.Measurement.Ratio))
		return
	}

	a.UI.extentLabel.SetText("")
	a.UI.ratioLabel.SetText("")
	if a.View.bound != st.Generation {
		a.View.bound = st.Generation
		a.bindPrimary(a.View.primary)
	}

	a.UI.syncing = true
	a.UI.slider.Max = float64(max(st.Total-1, 1))
	a.UI.slider.SetValue(float64(st.Index))
	a.UI.syncing = false
	if st.Total > 1 {
		a.UI.slider.Enable()
	} else {
		a.UI.slider.Disable()
	}

	name := ""
	if h != nil {
		if session, err := h.Session(); err == nil {
			if locator, err := session.At(st.Index); err == nil {
				name = order.DisplayName(locator)
			}
		}
		a.updateWindowLabel(h)
	}
	a.UI.sliceLabel.SetText(sliceText(st.Index, st.Total, name))
}

func (a *App) updateWindowLabel(h *viewport.Handle) {
	w, err := h.WindowLevel()
	if err != nil {
		return
	}
	a.UI.windowLabel.SetText(fmt.Sprintf("Window: %.0f / %.0f", w.Width, w.Center))
}

// updateWatch follows the local mesh of a ready 3D scan and reloads it on change
func (a *App) updateWatch(st viewport.Status) {
	if a.watcher == nil || st.Kind == viewport.StatusLoading {
		return
	}

	path := ""
	if st.Kind == viewport.StatusReady && st.Mode == viewport.MeshMode {
		if a.opts.MeshPath != nil {
			path, _ = a.opts.MeshPath(st.ScanID)
		} else {
			path, _ = loader.LocalPath(st.MeshLocator)
		}
	}
	if path == a.FileWatch.watched {
		return
	}

	if a.FileWatch.watched != "" {
		if err := a.watcher.Unwatch(a.FileWatch.watched); err != nil {
			a.logger.Warn("Failed to stop watching", "file", a.FileWatch.watched, "error", err)
		}
		a.FileWatch.watched = ""
	}
	if path == "" {
		return
	}
	if err := a.watcher.Watch(path, func(string) { a.ctrl.ReloadMesh() }); err != nil {
		a.logger.Warn("Auto-reload will not be available", "file", path, "error", err)
		return
	}
	a.FileWatch.watched = path
}

func (a *App) setupUI() {
	a.UI.statusLabel = widget.NewLabel("No scan selected")
	a.UI.scanLabel = widget.NewLabel("")
	a.UI.scanLabel.Wrapping = fyne.TextWrapWord
	a.UI.sliceLabel = widget.NewLabel("")
	a.UI.extentLabel = widget.NewLabel("")
	a.UI.ratioLabel = widget.NewLabel("")
	a.UI.ratioLabel.TextStyle = fyne.TextStyle{Bold: true}
	a.UI.windowLabel = widget.NewLabel("")

	a.UI.scanList = widget.NewList(
		func() int { return len(a.View.scans) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, item fyne.CanvasObject) {
			item.(*widget.Label).SetText(scanTitle(a.View.scans[id]))
		},
	)
	a.UI.scanList.OnSelected = func(id widget.ListItemID) {
		a.View.scanID = a.View.scans[id].ID
		a.show()
	}

	a.UI.modeRadio = widget.NewRadioGroup([]string{mode2D, mode3D}, func(selected string) {
		mode := viewport.StackMode
		if selected == mode3D {
			mode = viewport.MeshMode
		}
		if mode == a.View.mode {
			return
		}
		a.View.mode = mode
		a.show()
	})
	a.UI.modeRadio.Horizontal = true
	a.UI.modeRadio.Required = true
	a.UI.modeRadio.SetSelected(mode2D)

	tools := []string{interaction.WindowLevel.String(), interaction.Zoom.String(), interaction.Navigate.String()}
	a.UI.toolSelect = widget.NewSelect(tools, func(selected string) {
		tool, err := interaction.ParseTool(selected)
		if err != nil {
			return
		}
		a.bindPrimary(tool)
	})
	a.UI.toolSelect.SetSelected(a.View.primary.String())

	a.UI.slider = widget.NewSlider(0, 1)
	a.UI.slider.Step = 1
	a.UI.slider.OnChanged = func(value float64) {
		if a.UI.syncing {
			return
		}
		a.dispatch(interaction.Event{Channel: interaction.Slider, Value: int(value)})
	}
	a.UI.slider.Disable()

	resetButton := widget.NewButton("Reset View", func() {
		if h := a.ctrl.Handle(); h != nil && h.Mode() == viewport.StackMode {
			_ = h.ResetView()
			a.updateWindowLabel(h)
		}
	})
	refreshButton := widget.NewButton("Refresh", func() {
		if a.View.scanID != "" {
			a.opts.Catalog.Invalidate(a.View.scanID)
		}
		if a.opts.Loader != nil {
			a.opts.Loader.Purge()
		}
		a.loadScans()
	})

	instructions := widget.NewLabel(
		"Instructions:\n" +
			"• 2D: wheel or slider to change slice\n" +
			"• 2D: left drag uses the selected tool\n" +
			"• 2D: right drag zooms\n" +
			"• 3D: drag to rotate, scroll to zoom",
	)
	instructions.Wrapping = fyne.TextWrapWord

	infoPanel := container.NewVBox(
		widget.NewLabel("Scan:"),
		widget.NewSeparator(),
		a.UI.scanLabel,
		widget.NewSeparator(),
		widget.NewLabel("View:"),
		a.UI.modeRadio,
		widget.NewLabel("Left button:"),
		a.UI.toolSelect,
		resetButton,
		widget.NewSeparator(),
		widget.NewLabel("Measurements:"),
		a.UI.extentLabel,
		a.UI.ratioLabel,
		a.UI.windowLabel,
		widget.NewSeparator(),
		instructions,
	)
	infoScroll := container.NewVScroll(infoPanel)
	infoScroll.SetMinSize(fyne.NewSize(300, 0))

	scanPanel := container.NewBorder(
		container.NewHBox(widget.NewLabel("Scans"), refreshButton),
		nil, nil, nil,
		a.UI.scanList,
	)
	scanPanel.Resize(fyne.NewSize(220, 0))

	viewerPanel := container.NewBorder(
		nil,
		container.NewBorder(nil, nil, nil, a.UI.sliceLabel, a.UI.slider),
		nil, nil,
		a.area,
	)

	split := container.NewHSplit(scanPanel, viewerPanel)
	split.Offset = 0.2

	content := container.NewBorder(
		nil,              // top
		a.UI.statusLabel, // bottom
		nil,              // left
		infoScroll,       // right
		split,            // center
	)
	a.window.SetContent(content)
}
