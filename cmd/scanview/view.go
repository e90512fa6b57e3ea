package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"

	"github.com/philipparndt/scanview/internal/app"
	"github.com/philipparndt/scanview/internal/viewport"
)

var (
	optViewMesh bool
	optViewRoot string
)

var viewCmd = &cobra.Command{
	Use:   "view [scan-id]",
	Short: "Open the viewer window",
	Long: `Opens the viewer with the scan list of the catalog. When a scan id is given it is
shown right away, as slice stack or, with --mesh, as 3D model.

With --root a local scan directory is served in-process and used as catalog;
its meshes are reloaded whenever the file changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		var meshPath func(string) (string, bool)
		if optViewRoot != "" {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return err
			}
			srv, local := startLocalCatalog(ln, optViewRoot)
			defer srv.Shutdown(context.Background())

			cfg.Backend.URL = baseURL(ln)
			meshPath = func(scanID string) (string, bool) {
				return local.MeshPath(scanID), true
			}
		}

		b, err := newBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		viewer := app.New(app.Options{
			Catalog:  b.catalog,
			Loader:   b.loader,
			Resolver: b.resolver,
			Viewport: cfg.Viewport(),
			MeshPath: meshPath,
		})

		mode := viewport.StackMode
		if optViewMesh {
			mode = viewport.MeshMode
		}
		scanID := ""
		if len(args) == 1 {
			scanID = args[0]
		}
		viewer.Run(scanID, mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().BoolVar(&optViewMesh, "mesh", false, "Show the 3D model instead of the slices")
	viewCmd.Flags().StringVar(&optViewRoot, "root", "", "Serve this scan directory locally and view it")
}
