package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/philipparndt/scanview/internal/order"
)

var optOrderDir string

var orderCmd = &cobra.Command{
	Use:   "order [scan-id]",
	Short: "Print the slices of a scan in acquisition order",
	Long: `Resolves the slice order of a scan from the catalog, or of the files in a local
directory with --dir, and prints one slice per line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		var locators []string
		var resolver *order.Resolver

		switch {
		case optOrderDir != "":
			pattern, err := cfg.Pattern()
			if err != nil {
				return err
			}
			resolver = order.NewResolver(pattern)
			if locators, err = listDir(optOrderDir); err != nil {
				return err
			}

		case len(args) == 1:
			b, err := newBackend(cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			resolver = b.resolver
			if locators, err = b.catalog.SliceLocators(context.Background(), args[0]); err != nil {
				return err
			}

		default:
			return errors.New("either a scan id or --dir is required")
		}

		ordered, stats := resolver.Resolve(locators)
		for i, locator := range ordered {
			fmt.Printf("%5d  %s\n", i+1, order.DisplayName(locator))
		}
		fmt.Fprintf(os.Stderr, "\n%s slices, %s matched, %s unmatched\n",
			humanize.Comma(int64(len(ordered))), humanize.Comma(int64(stats.Matched)), humanize.Comma(int64(stats.Unmatched)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.Flags().StringVar(&optOrderDir, "dir", "", "Order the files of a local directory")
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}
