package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/philipparndt/scanview/pkg/geometry"
	"github.com/philipparndt/scanview/pkg/stl"
)

// MeasurementResult holds the bounding-extent metrics of a mesh.
// It is a value: a new mesh always produces a new result.
type MeasurementResult struct {
	// Extents are the bounding box sizes sorted from largest to smallest
	Extents       [3]float64
	LongestExtent float64
	SecondExtent  float64
	// Ratio is LongestExtent/SecondExtent, or 0 when SecondExtent is zero
	Ratio float64
}

// MeasureExtents computes the sorted bounding extents of a model in its local frame.
// Empty and degenerate meshes yield zero extents and a zero ratio.
func MeasureExtents(model *stl.Model) MeasurementResult {
	if model == nil {
		return MeasurementResult{}
	}
	return MeasureBoundingBox(model.BoundingBox())
}

// MeasureBoundingBox derives the metrics from an already computed box
func MeasureBoundingBox(bbox geometry.BoundingBox) MeasurementResult {
	extents := bbox.Size().Components()
	sort.Sort(sort.Reverse(sort.Float64Slice(extents[:])))

	result := MeasurementResult{
		Extents:       extents,
		LongestExtent: extents[0],
		SecondExtent:  extents[1],
	}
	if result.SecondExtent > 0 {
		result.Ratio = result.LongestExtent / result.SecondExtent
	}
	return result
}

// String formats the result for status lines and CLI output
func (r MeasurementResult) String() string {
	return fmt.Sprintf("length %.2f, width %.2f, ratio %.3f", r.LongestExtent, r.SecondExtent, r.Ratio)
}

// ModelInfo contains general statistics of a model
type ModelInfo struct {
	BoundingBox   geometry.BoundingBox
	Dimensions    geometry.Vector3
	SurfaceArea   float64
	TriangleCount int
	EdgeCount     int
	MinEdgeLength float64
	MaxEdgeLength float64
	AvgEdgeLength float64
	Extents       MeasurementResult
}

// AnalyzeModel collects size, area and edge statistics
func AnalyzeModel(model *stl.Model) *ModelInfo {
	bbox := model.BoundingBox()
	info := &ModelInfo{
		BoundingBox:   bbox,
		Dimensions:    bbox.Size(),
		SurfaceArea:   model.SurfaceArea(),
		TriangleCount: model.TriangleCount(),
		Extents:       MeasureBoundingBox(bbox),
	}

	minLength := math.MaxFloat64
	maxLength := 0.0
	totalLength := 0.0

	for _, triangle := range model.Triangles {
		for _, length := range triangle.EdgeLengths() {
			totalLength += length
			minLength = math.Min(minLength, length)
			maxLength = math.Max(maxLength, length)
			info.EdgeCount++
		}
	}

	if info.EdgeCount > 0 {
		info.MinEdgeLength = minLength
		info.MaxEdgeLength = maxLength
		info.AvgEdgeLength = totalLength / float64(info.EdgeCount)
	}

	return info
}

// FormatVector formats a 3D vector
func FormatVector(v geometry.Vector3) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}
