// Package loader fetches slice images and meshes with the session credential attached.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/philipparndt/scanview/pkg/stl"
)

const (
	DefaultCacheSize = 256
	DefaultParallel  = 4
	DefaultTimeout   = 30 * time.Second

	wadoScheme = "wadouri:"
)

// ResourceLoadError describes a failed fetch or decode of one locator
type ResourceLoadError struct {
	Locator    string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ResourceLoadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to load %s: HTTP %d: %v", e.Locator, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to load %s: %v", e.Locator, e.Err)
}

func (e *ResourceLoadError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a load error for a missing resource
func IsNotFound(err error) bool {
	var loadErr *ResourceLoadError
	if errors.As(err, &loadErr) {
		return loadErr.StatusCode == http.StatusNotFound || errors.Is(loadErr.Err, os.ErrNotExist)
	}
	return false
}

// Options configures a Loader
type Options struct {
	Client     *http.Client
	Credential Credential
	CacheSize  int
	Parallel   int
	Logger     *slog.Logger
}

// Loader resolves locators to bytes, images and meshes
type Loader struct {
	client     *http.Client
	credential Credential
	parallel   int
	cache      *lru.Cache[string, image.Image]
	logger     *slog.Logger
}

// New creates a loader
func New(opts Options) (*Loader, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Parallel <= 0 {
		opts.Parallel = DefaultParallel
	}
	if opts.Logger == nil {
		opts.Logger = slog.With("c", "loader")
	}

	cache, err := lru.New[string, image.Image](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	return &Loader{
		client:     opts.Client,
		credential: opts.Credential,
		parallel:   opts.Parallel,
		cache:      cache,
		logger:     opts.Logger,
	}, nil
}

// Authorize sets the bearer header when a credential is present.
// An absent credential leaves the request untouched.
func (l *Loader) Authorize(req *http.Request) {
	if l.credential == nil {
		return
	}
	if token, ok := l.credential.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Client returns the HTTP client requests are sent with
func (l *Loader) Client() *http.Client {
	return l.client
}

// Fetch reads the raw bytes behind a locator.
// Supported forms are http(s) URLs, optionally prefixed with "wadouri:", file URLs and plain paths.
func (l *Loader) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if path, ok := LocalPath(locator); ok {
		return l.readFile(locator, path)
	}

	target := strings.TrimPrefix(locator, wadoScheme)
	u, err := url.Parse(target)
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, Err: err}
	}

	switch u.Scheme {
	case "http", "https":
		return l.fetchHTTP(ctx, locator, target)
	default:
		return nil, &ResourceLoadError{Locator: locator, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

// LocalPath returns the file system path of a file URL or plain path locator
func LocalPath(locator string) (string, bool) {
	target := strings.TrimPrefix(locator, wadoScheme)

	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain path, including windows drive letters
		return target, target != ""
	}
	if u.Scheme == "file" {
		return u.Path, u.Path != ""
	}
	return "", false
}

func (l *Loader) fetchHTTP(ctx context.Context, locator, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, Err: err}
	}
	l.Authorize(req)

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ResourceLoadError{Locator: locator, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, StatusCode: resp.StatusCode, Err: err}
	}

	l.logger.Debug("Fetched resource", "locator", locator, "size", humanize.Bytes(uint64(len(data))), "took", time.Since(start).Round(time.Millisecond))
	return data, nil
}

func (l *Loader) readFile(locator, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, Err: err}
	}
	return data, nil
}

// LoadImage fetches and decodes one slice image. Decoded images are cached by locator.
func (l *Loader) LoadImage(ctx context.Context, locator string) (image.Image, error) {
	if img, ok := l.cache.Get(locator); ok {
		return img, nil
	}

	data, err := l.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, Err: fmt.Errorf("failed to decode image: %w", err)}
	}

	l.cache.Add(locator, img)
	l.logger.Debug("Decoded slice", "locator", locator, "format", format, "bounds", img.Bounds().Size())
	return img, nil
}

// LoadImages loads all locators with bounded parallelism; result i belongs to locators[i].
// The first failure cancels the remaining fetches.
func (l *Loader) LoadImages(ctx context.Context, locators []string) ([]image.Image, error) {
	images := make([]image.Image, len(locators))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)

	for i, locator := range locators {
		g.Go(func() error {
			img, err := l.LoadImage(ctx, locator)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// Prefetch warms the image cache in the background, skipping images already cached.
// Failures are logged, not returned.
func (l *Loader) Prefetch(ctx context.Context, locators []string) {
	locators = slices.DeleteFunc(slices.Clone(locators), l.Cached)
	if len(locators) == 0 {
		return
	}
	go func() {
		start := time.Now()
		if _, err := l.LoadImages(ctx, locators); err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("Prefetch failed", "error", err)
			}
			return
		}
		l.logger.Info("Prefetched slices", "count", humanize.Comma(int64(len(locators))), "took", time.Since(start).Round(time.Millisecond))
	}()
}

// Cached reports whether an image is in the cache
func (l *Loader) Cached(locator string) bool {
	return l.cache.Contains(locator)
}

// Purge empties the image cache
func (l *Loader) Purge() {
	l.cache.Purge()
}

// LoadMesh fetches and parses an STL mesh
func (l *Loader) LoadMesh(ctx context.Context, locator string) (*stl.Model, error) {
	data, err := l.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	model, err := stl.ParseBytes(data)
	if err != nil {
		return nil, &ResourceLoadError{Locator: locator, Err: err}
	}

	l.logger.Info("Loaded mesh", "locator", locator, "triangles", humanize.Comma(int64(model.TriangleCount())), "size", humanize.Bytes(uint64(len(data))))
	return model, nil
}
