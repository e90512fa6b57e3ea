package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/philipparndt/scanview/internal/catalog"
)

var optServeAddress string

var serveCmd = &cobra.Command{
	Use:   "serve <dir>",
	Short: "Serve a scan directory as a local catalog",
	Long: `Serves a directory of scans with the same endpoints as the scan backend.
Each scan is a sub directory with a slices/ folder, an optional mesh.stl and
an optional scan.json with its metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}

		ln, err := net.Listen("tcp", optServeAddress)
		if err != nil {
			return err
		}
		srv, _ := startLocalCatalog(ln, args[0])

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
		<-interrupt

		slog.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&optServeAddress, "address", "127.0.0.1:8000", "Address to listen on")
}

// startLocalCatalog serves root on ln in the background and returns its base URL
func startLocalCatalog(ln net.Listener, root string) (*http.Server, *catalog.Server) {
	local := catalog.NewServer(root, viper.GetString("auth.token"))
	srv := &http.Server{
		Handler:           local.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Catalog server stopped", "error", err)
		}
	}()

	slog.Info("Serving catalog", "root", root, "url", baseURL(ln))
	return srv, local
}

func baseURL(ln net.Listener) string {
	return fmt.Sprintf("http://%s", ln.Addr().String())
}
