package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/philipparndt/scanview/pkg/analysis"
	"github.com/philipparndt/scanview/pkg/stl"
)

var optMeasureFile string

var measureCmd = &cobra.Command{
	Use:   "measure [scan-id]",
	Short: "Print the measurements of a 3D model",
	Long: `Measures the 3D model of a scan from the catalog, or a local STL file with --file.
Length and width are the largest and second largest bounding extents; the ratio
is length divided by width.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		var model *stl.Model
		switch {
		case optMeasureFile != "":
			if model, err = stl.Parse(optMeasureFile); err != nil {
				return fmt.Errorf("error parsing STL file: %w", err)
			}

		case len(args) == 1:
			b, err := newBackend(cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := context.Background()
			locator, ok, err := b.catalog.MeshLocator(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("3D model for scan %s is not available yet", args[0])
			}
			if model, err = b.loader.LoadMesh(ctx, locator); err != nil {
				return err
			}

		default:
			return errors.New("either a scan id or --file is required")
		}

		printMeasurements(model)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(measureCmd)
	measureCmd.Flags().StringVar(&optMeasureFile, "file", "", "Measure a local STL file")
}

func printMeasurements(model *stl.Model) {
	info := analysis.AnalyzeModel(model)

	fmt.Println("Model Information")
	fmt.Println("=================")
	fmt.Printf("Name:          %s\n", model.Name)
	fmt.Printf("Triangles:     %s\n", humanize.Comma(int64(info.TriangleCount)))
	fmt.Printf("Surface area:  %.3f\n", info.SurfaceArea)
	fmt.Printf("Bounds:        %s - %s\n", analysis.FormatVector(info.BoundingBox.Min), analysis.FormatVector(info.BoundingBox.Max))
	fmt.Printf("Dimensions:    %s\n", analysis.FormatVector(info.Dimensions))
	if info.EdgeCount > 0 {
		fmt.Printf("Edges:         min %.3f, max %.3f, avg %.3f\n", info.MinEdgeLength, info.MaxEdgeLength, info.AvgEdgeLength)
	}

	m := info.Extents
	fmt.Println()
	fmt.Println("Measurements")
	fmt.Println("============")
	fmt.Printf("Length:        %.3f\n", m.LongestExtent)
	fmt.Printf("Width:         %.3f\n", m.SecondExtent)
	fmt.Printf("Ratio:         %.3f\n", m.Ratio)
}
