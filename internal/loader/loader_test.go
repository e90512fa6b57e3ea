package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/philipparndt/scanview/pkg/geometry"
	"github.com/philipparndt/scanview/pkg/stl"
)

func pngBytes(t *testing.T, value uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func newLoader(t *testing.T, cred Credential) *Loader {
	t.Helper()
	l, err := New(Options{Credential: cred, CacheSize: 8, Parallel: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestFetchAttachesBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	l := newLoader(t, StaticCredential("secret"))
	if _, err := l.Fetch(context.Background(), "wadouri:"+srv.URL+"/dicoms/1/a.dcm/"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != "Bearer secret" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestFetchWithoutCredential(t *testing.T) {
	var got string
	var seen bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, seen = r.Header.Get("Authorization"), true
	}))
	defer srv.Close()

	l := newLoader(t, StaticCredential(""))
	if _, err := l.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("absent credential must not be an error: %v", err)
	}
	if !seen || got != "" {
		t.Errorf("expected request without Authorization, got %q", got)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := newLoader(t, nil)
	_, err := l.Fetch(context.Background(), srv.URL+"/missing")

	var loadErr *ResourceLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ResourceLoadError, got %v", err)
	}
	if loadErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode failed: expected 404, got %d", loadErr.StatusCode)
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound should be true")
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	l := newLoader(t, nil)
	_, err := l.Fetch(context.Background(), "ftp://host/file")

	var loadErr *ResourceLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ResourceLoadError, got %v", err)
	}
}

func TestLoadImageDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	l := newLoader(t, nil)
	_, err := l.LoadImage(context.Background(), srv.URL)

	var loadErr *ResourceLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ResourceLoadError, got %v", err)
	}
	if l.Cached(srv.URL) {
		t.Errorf("failed decode must not be cached")
	}
}

func TestLoadImagesKeepsPositions(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var value uint8
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/"), "%d", &value)
		_, _ = w.Write(pngBytes(t, value))
	}))
	defer srv.Close()

	l := newLoader(t, nil)
	locators := []string{srv.URL + "/30", srv.URL + "/10", srv.URL + "/20"}

	images, err := l.LoadImages(context.Background(), locators)
	if err != nil {
		t.Fatalf("LoadImages failed: %v", err)
	}
	for i, want := range []uint8{30, 10, 20} {
		got := color.GrayModel.Convert(images[i].At(0, 0)).(color.Gray).Y
		if got != want {
			t.Errorf("image %d failed: expected %d, got %d", i, want, got)
		}
	}

	// served from the cache the second time
	if _, err := l.LoadImages(context.Background(), locators); err != nil {
		t.Fatalf("LoadImages failed: %v", err)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestPrefetchSkipsCachedImages(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(pngBytes(t, 7))
	}))
	defer srv.Close()

	l := newLoader(t, nil)
	locators := []string{srv.URL + "/1", srv.URL + "/2", srv.URL + "/3"}
	if _, err := l.LoadImages(context.Background(), locators[:2]); err != nil {
		t.Fatalf("LoadImages failed: %v", err)
	}

	l.Prefetch(context.Background(), locators)
	deadline := time.Now().Add(2 * time.Second)
	for !l.Cached(locators[2]) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !l.Cached(locators[2]) {
		t.Fatalf("Prefetch did not cache %s", locators[2])
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}

	l.Purge()
	for _, locator := range locators {
		if l.Cached(locator) {
			t.Errorf("%s still cached after Purge", locator)
		}
	}
}

func TestLoadImagesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(pngBytes(t, 1))
	}))
	defer srv.Close()

	l := newLoader(t, nil)
	_, err := l.LoadImages(context.Background(), []string{srv.URL + "/ok", srv.URL + "/bad"})

	var loadErr *ResourceLoadError
	if !errors.As(err, &loadErr) || loadErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected HTTP 500 load error, got %v", err)
	}
}

func TestLoadMeshFromFile(t *testing.T) {
	model := stl.NewModel("test")
	model.AddTriangle(geometry.NewTriangle(geometry.Vector3{},
		geometry.NewVector3(0, 0, 0),
		geometry.NewVector3(1, 0, 0),
		geometry.NewVector3(0, 1, 0),
	))

	path := filepath.Join(t.TempDir(), "mesh.stl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := stl.WriteBinary(f, model); err != nil {
		t.Fatalf("WriteBinary failed: %v", err)
	}
	f.Close()

	l := newLoader(t, nil)
	for _, locator := range []string{path, "file://" + path} {
		loaded, err := l.LoadMesh(context.Background(), locator)
		if err != nil {
			t.Fatalf("LoadMesh(%s) failed: %v", locator, err)
		}
		if loaded.TriangleCount() != 1 {
			t.Errorf("TriangleCount failed: expected 1, got %d", loaded.TriangleCount())
		}
	}

	_, err = l.LoadMesh(context.Background(), filepath.Join(t.TempDir(), "missing.stl"))
	if !IsNotFound(err) {
		t.Errorf("expected not found for missing file, got %v", err)
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("SCANVIEW_TEST_TOKEN", " abc \n")
	if token, ok := EnvCredential("SCANVIEW_TEST_TOKEN").Token(); !ok || token != "abc" {
		t.Errorf("EnvCredential failed: got %q, %v", token, ok)
	}
	if _, ok := EnvCredential("SCANVIEW_TEST_UNSET").Token(); ok {
		t.Errorf("unset variable must be absent")
	}

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("xyz\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if token, ok := FileCredential(path).Token(); !ok || token != "xyz" {
		t.Errorf("FileCredential failed: got %q, %v", token, ok)
	}

	chain := FirstCredential{StaticCredential(""), FileCredential(path)}
	if token, _ := chain.Token(); token != "xyz" {
		t.Errorf("FirstCredential failed: got %q", token)
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		locator string
		path    string
		ok      bool
	}{
		{"/data/mesh.stl", "/data/mesh.stl", true},
		{"file:///data/mesh.stl", "/data/mesh.stl", true},
		{"C:/data/mesh.stl", "C:/data/mesh.stl", true},
		{"http://host/models/1/mesh.stl", "", false},
		{"wadouri:https://host/dicoms/1/a.dcm/", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		path, ok := LocalPath(tt.locator)
		if path != tt.path || ok != tt.ok {
			t.Errorf("LocalPath(%q) = %q, %v; want %q, %v", tt.locator, path, ok, tt.path, tt.ok)
		}
	}
}
