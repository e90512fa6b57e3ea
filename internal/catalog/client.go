// Package catalog talks to the scan backend: scan listings, slice locators and mesh locations.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/tidwall/gjson"

	"github.com/philipparndt/scanview/internal/loader"
)

const DefaultListingTTL = time.Minute

// Scan is one segmentation known to the backend
type Scan struct {
	ID             string
	PatientEmail   string
	CreatedAt      string
	LowerThreshold float64
	UpperThreshold float64
}

// Client reads the catalog endpoints through the loader, so requests carry the session credential
type Client struct {
	base     string
	loader   *loader.Loader
	listings *ttlcache.Cache[string, []string]
	logger   *slog.Logger
}

// NewClient creates a client for the backend at baseURL. Slice listings are cached for ttl.
func NewClient(baseURL string, l *loader.Loader, ttl time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}

	listings := ttlcache.New[string, []string](ttlcache.WithTTL[string, []string](ttl))
	go listings.Start()

	return &Client{
		base:     strings.TrimRight(baseURL, "/"),
		loader:   l,
		listings: listings,
		logger:   slog.With("c", "catalog"),
	}, nil
}

// BaseURL returns the backend root without trailing slash
func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) getJSON(ctx context.Context, endpoint string) (gjson.Result, error) {
	data, err := c.loader.Fetch(ctx, c.base+endpoint)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &loader.ResourceLoadError{Locator: c.base + endpoint, Err: fmt.Errorf("invalid JSON response")}
	}
	return gjson.ParseBytes(data), nil
}

// Scans lists all segmentations
func (c *Client) Scans(ctx context.Context) ([]Scan, error) {
	res, err := c.getJSON(ctx, "/get-scans/")
	if err != nil {
		return nil, err
	}

	var scans []Scan
	res.Get("segmentations").ForEach(func(_, v gjson.Result) bool {
		scans = append(scans, Scan{
			ID:             v.Get("segmentation_id").String(),
			PatientEmail:   v.Get("patient_email").String(),
			CreatedAt:      v.Get("created_at").String(),
			LowerThreshold: v.Get("lower_threshold").Float(),
			UpperThreshold: v.Get("upper_threshold").Float(),
		})
		return true
	})
	return scans, nil
}

// SliceLocators returns the slice locators of a scan in backend listing order
func (c *Client) SliceLocators(ctx context.Context, scanID string) ([]string, error) {
	if item := c.listings.Get(scanID); item != nil {
		return item.Value(), nil
	}

	res, err := c.getJSON(ctx, "/get-dicom-files/"+url.PathEscape(scanID)+"/")
	if err != nil {
		return nil, err
	}

	var locators []string
	res.Get("dicom_files").ForEach(func(_, v gjson.Result) bool {
		if name := v.String(); name != "" {
			locators = append(locators, c.sliceLocator(scanID, name))
		}
		return true
	})

	c.listings.Set(scanID, locators, ttlcache.DefaultTTL)
	c.logger.Debug("Listed slices", "scan", scanID, "count", len(locators))
	return locators, nil
}

func (c *Client) sliceLocator(scanID, name string) string {
	return "wadouri:" + c.base + "/dicoms/" + url.PathEscape(scanID) + "/" + url.PathEscape(name) + "/"
}

// MeshLocator returns where the scan's mesh can be fetched. ok is false when no mesh exists yet.
// Meshes are produced asynchronously, so the answer is never cached.
func (c *Client) MeshLocator(ctx context.Context, scanID string) (string, bool, error) {
	res, err := c.getJSON(ctx, "/get-3d-model/"+url.PathEscape(scanID)+"/")
	if err != nil {
		if loader.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}

	path := res.Get("three_d_model_path").String()
	if path == "" {
		return "", false, nil
	}
	return c.resolve(path), true, nil
}

func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err == nil && u.IsAbs() {
		return ref
	}
	return c.base + "/" + strings.TrimLeft(ref, "/")
}

// Invalidate drops the cached listing of a scan
func (c *Client) Invalidate(scanID string) {
	c.listings.Delete(scanID)
}

// Close stops the listing cache
func (c *Client) Close() {
	c.listings.Stop()
}
