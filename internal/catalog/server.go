package catalog

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
)

const (
	slicesDir    = "slices"
	meshFile     = "mesh.stl"
	metadataFile = "scan.json"
)

// Server serves a directory of scans with the same endpoints as the backend.
//
// Layout:
//
//	<root>/<scan>/scan.json       optional metadata
//	<root>/<scan>/slices/*        slice images
//	<root>/<scan>/mesh.stl        surface mesh, once available
type Server struct {
	root   string
	token  string
	logger *slog.Logger
}

// NewServer creates a server for root. A non-empty token is required as bearer credential.
func NewServer(root, token string) *Server {
	return &Server{
		root:   root,
		token:  token,
		logger: slog.With("c", "catalog-server"),
	}
}

// Router returns the HTTP handler with logging, CORS and authentication applied
func (s *Server) Router() http.Handler {
	router := mux.NewRouter().StrictSlash(false)
	router.Use(s.authenticate)

	router.Path("/get-scans/").HandlerFunc(s.handleScans).Methods(http.MethodGet)
	router.Path("/get-dicom-files/{scan}/").HandlerFunc(s.handleSliceList).Methods(http.MethodGet)
	router.Path("/dicoms/{scan}/{file}/").HandlerFunc(s.handleSlice).Methods(http.MethodGet)
	router.Path("/get-3d-model/{scan}/").HandlerFunc(s.handleMeshInfo).Methods(http.MethodGet)
	router.Path("/models/{scan}/" + meshFile).HandlerFunc(s.handleMesh).Methods(http.MethodGet)

	cors := ghandlers.CORS(
		ghandlers.AllowedOrigins([]string{"*"}),
		ghandlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	return ghandlers.CustomLoggingHandler(io.Discard, cors(router), s.logRequest)
}

func (s *Server) logRequest(_ io.Writer, params ghandlers.LogFormatterParams) {
	s.logger.Info("Request",
		"method", params.Request.Method,
		"url", params.URL.String(),
		"status", params.StatusCode,
		"size", params.Size,
		"remote", params.Request.RemoteAddr)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			s.logger.Warn("Rejected request without valid token", "url", r.URL.String(), "remote", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// scanDir resolves a scan directory, rejecting anything that is not a plain name
func (s *Server) scanDir(scan string) (string, bool) {
	if scan == "" || scan != filepath.Base(scan) || strings.HasPrefix(scan, ".") {
		return "", false
	}
	dir := filepath.Join(s.root, scan)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	j, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(j); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

type scanEntry struct {
	SegmentationID string  `json:"segmentation_id"`
	PatientEmail   string  `json:"patient_email"`
	CreatedAt      string  `json:"created_at"`
	LowerThreshold float64 `json:"lower_threshold"`
	UpperThreshold float64 `json:"upper_threshold"`
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Error("Failed to read catalog root", "error", err)
		http.Error(w, "Failed to read catalog", http.StatusInternalServerError)
		return
	}

	scans := []scanEntry{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		scans = append(scans, s.readScan(e))
	}
	sort.Slice(scans, func(i, j int) bool { return scans[i].SegmentationID < scans[j].SegmentationID })

	s.writeJSON(w, map[string]any{"segmentations": scans})
}

func (s *Server) readScan(e os.DirEntry) scanEntry {
	scan := scanEntry{SegmentationID: e.Name()}
	if info, err := e.Info(); err == nil {
		scan.CreatedAt = info.ModTime().UTC().Format(time.RFC3339)
	}

	data, err := os.ReadFile(filepath.Join(s.root, e.Name(), metadataFile))
	if err != nil || !gjson.ValidBytes(data) {
		return scan
	}
	meta := gjson.ParseBytes(data)
	scan.PatientEmail = meta.Get("patient_email").String()
	scan.LowerThreshold = meta.Get("lower_threshold").Float()
	scan.UpperThreshold = meta.Get("upper_threshold").Float()
	if created := meta.Get("created_at"); created.Exists() {
		scan.CreatedAt = created.String()
	}
	return scan
}

func (s *Server) handleSliceList(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.scanDir(mux.Vars(r)["scan"])
	if !ok {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}

	entries, err := os.ReadDir(filepath.Join(dir, slicesDir))
	if err != nil && !os.IsNotExist(err) {
		http.Error(w, "Failed to read slices", http.StatusInternalServerError)
		return
	}

	files := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, e.Name())
		}
	}
	s.writeJSON(w, map[string]any{"dicom_files": files})
}

func (s *Server) handleSlice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dir, ok := s.scanDir(vars["scan"])
	file := vars["file"]
	if !ok || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		http.Error(w, "Slice not found", http.StatusNotFound)
		return
	}
	s.serveFile(w, r, filepath.Join(dir, slicesDir, file))
}

func (s *Server) handleMeshInfo(w http.ResponseWriter, r *http.Request) {
	scan := mux.Vars(r)["scan"]
	dir, ok := s.scanDir(scan)
	if !ok {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(filepath.Join(dir, meshFile)); err != nil {
		http.Error(w, "Model not available", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]string{"three_d_model_path": "/models/" + scan + "/" + meshFile})
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.scanDir(mux.Vars(r)["scan"])
	if !ok {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}
	s.serveFile(w, r, filepath.Join(dir, meshFile))
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// MeshPath returns the local mesh file of a scan, for watching it
func (s *Server) MeshPath(scan string) string {
	return filepath.Join(s.root, scan, meshFile)
}
