package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/philipparndt/scanview/internal/catalog"
	"github.com/philipparndt/scanview/internal/config"
	"github.com/philipparndt/scanview/internal/loader"
	"github.com/philipparndt/scanview/internal/order"
	"github.com/philipparndt/scanview/version"
)

var optConfigPath string

var rootCmd = &cobra.Command{
	Use:   "scanview",
	Short: "Viewer for CT slice stacks and their 3D surface models",
	Long: `scanview shows the DICOM slice stack of a scan in acquisition order and,
once it exists, the 3D surface model derived from it, together with its
length and width measurements.`,
	Version:       version.GetFullVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&optConfigPath, "config", config.DefaultPath(), "Config file")
	pFlags.String("backend", "", "Catalog base URL")
	pFlags.String("token", "", "Bearer token for the catalog")
	pFlags.String("log-level", "", "Log level: debug, info, warn, error")
	pFlags.String("slice-expr", "", "Regular expression with one capture group for the slice number")

	_ = viper.BindPFlag("backend.url", pFlags.Lookup("backend"))
	_ = viper.BindPFlag("auth.token", pFlags.Lookup("token"))
	_ = viper.BindPFlag("log.level", pFlags.Lookup("log-level"))
	_ = viper.BindPFlag("slices.expr", pFlags.Lookup("slice-expr"))

	viper.SetEnvPrefix("SCANVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and overlays flags and SCANVIEW_* variables
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(optConfigPath)
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("backend.url"); v != "" {
		cfg.Backend.URL = v
	}
	if v := viper.GetString("log.level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("slices.expr"); v != "" {
		cfg.Slices.Expr = v
	}
	return cfg, nil
}

func setDefaultSlog(cfg *config.Config) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})
	slog.SetDefault(slog.New(handler))
}

// backend bundles what the commands that talk to a catalog need
type backend struct {
	cfg      *config.Config
	loader   *loader.Loader
	catalog  *catalog.Client
	resolver *order.Resolver
}

func newBackend(cfg *config.Config) (*backend, error) {
	opts := cfg.LoaderOptions()
	opts.Credential = loader.FirstCredential{
		loader.StaticCredential(viper.GetString("auth.token")),
		opts.Credential,
	}

	l, err := loader.New(opts)
	if err != nil {
		return nil, err
	}
	client, err := catalog.NewClient(cfg.Backend.URL, l, cfg.Backend.CacheTTL)
	if err != nil {
		return nil, err
	}
	pattern, err := cfg.Pattern()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &backend{
		cfg:      cfg,
		loader:   l,
		catalog:  client,
		resolver: order.NewResolver(pattern),
	}, nil
}

func (b *backend) Close() {
	b.catalog.Close()
}

// setup is the common start of every command
func setup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	setDefaultSlog(cfg)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
