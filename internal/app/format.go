package app

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/philipparndt/scanview/internal/catalog"
	"github.com/philipparndt/scanview/internal/viewport"
	"github.com/philipparndt/scanview/pkg/analysis"
)

func scanTitle(scan catalog.Scan) string {
	if scan.PatientEmail == "" {
		return scan.ID
	}
	return scan.ID + " (" + scan.PatientEmail + ")"
}

func scanText(st viewport.Status) string {
	if st.ScanID == "" {
		return "-"
	}
	lines := []string{"ID: " + st.ScanID, "Mode: " + strings.ToUpper(st.Mode.String())}
	if st.Total > 0 {
		lines = append(lines, "Slices: "+humanize.Comma(int64(st.Total)))
	}
	return strings.Join(lines, "\n")
}

// sliceText is the label next to the slider, e.g. "Slice 3 / 120: VHFCT1mm-Ankle (3).dcm"
func sliceText(index, total int, name string) string {
	if total == 0 {
		return ""
	}
	text := fmt.Sprintf("Slice %d / %d", index+1, total)
	if name != "" {
		text += ": " + name
	}
	return text
}

func extentText(m analysis.MeasurementResult) string {
	return fmt.Sprintf("Length: %.2f\nWidth: %.2f\nExtents: %.2f x %.2f x %.2f",
		m.LongestExtent, m.SecondExtent, m.Extents[0], m.Extents[1], m.Extents[2])
}
