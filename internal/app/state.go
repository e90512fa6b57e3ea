package app

import (
	"fyne.io/fyne/v2/widget"

	"github.com/philipparndt/scanview/internal/catalog"
	"github.com/philipparndt/scanview/internal/interaction"
	"github.com/philipparndt/scanview/internal/viewport"
)

// ViewState is what the user asked to see. Only touched on the fyne goroutine.
type ViewState struct {
	scans      []catalog.Scan
	scanID     string
	mode       viewport.Mode
	primary    interaction.Tool
	generation uint64 // last applied status generation
	bound      uint64 // generation whose tool group got the primary tool
}

// UIState holds the widgets that change with the status
type UIState struct {
	scanList    *widget.List
	modeRadio   *widget.RadioGroup
	toolSelect  *widget.Select
	slider      *widget.Slider
	sliceLabel  *widget.Label
	statusLabel *widget.Label
	scanLabel   *widget.Label
	extentLabel *widget.Label
	ratioLabel  *widget.Label
	windowLabel *widget.Label
	syncing     bool // set while the slider follows the session
}

// FileWatchState tracks the local mesh watched for reloads
type FileWatchState struct {
	watched string
}
