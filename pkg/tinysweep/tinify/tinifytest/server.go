// Package tinifytest provides an in-process fake of the compression service
// for tests.
package tinifytest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Shrink is the default compression: the first half of the input, or the
// input unchanged when it is shorter than two bytes.
func Shrink(in []byte) []byte {
	if len(in) < 2 {
		return append([]byte{}, in...)
	}
	return append([]byte{}, in[:len(in)/2]...)
}

// Server is a fake shrink endpoint plus the download URLs it hands out.
// Configure the exported fields before the first request or under Lock.
type Server struct {
	*httptest.Server

	// Key is the API key uploads must authenticate with. Empty disables the check.
	Key string

	// Compress produces the downloadable output for an upload. Defaults to Shrink.
	Compress func([]byte) []byte

	// ErrorCode, when set, makes every upload fail with this service code.
	ErrorCode string

	// DownloadStatus overrides the download response status when non-zero.
	DownloadStatus int

	// EmptyDownload serves a 200 with no body.
	EmptyDownload bool

	// OmitURL answers uploads with a body that has no output URL.
	OmitURL bool

	mu        sync.Mutex
	outputs   map[string][]byte
	uploads   int
	downloads int
	bodies    [][]byte
}

// NewServer starts a fake service requiring key.
func NewServer(key string) *Server {
	s := &Server{Key: key, outputs: make(map[string][]byte)}
	mux := http.NewServeMux()
	mux.HandleFunc("/shrink", s.handleShrink)
	mux.HandleFunc("/output/", s.handleOutput)
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint is the shrink URL to configure clients with.
func (s *Server) Endpoint() string {
	return s.URL + "/shrink"
}

// Uploads returns the number of shrink requests received.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// Downloads returns the number of output requests received.
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

// Bodies returns copies of the uploaded bodies in arrival order.
func (s *Server) Bodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.bodies))
	copy(out, s.bodies)
	return out
}

// Lock and Unlock guard the exported configuration fields.
func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

func (s *Server) authorized(r *http.Request) bool {
	if s.Key == "" {
		return true
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("api:"+s.Key))
	return r.Header.Get("Authorization") == want
}

func (s *Server) handleShrink(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.uploads++
	s.bodies = append(s.bodies, body)
	count := s.uploads
	code := s.ErrorCode
	omit := s.OmitURL
	compress := s.Compress
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "InputMissing")
		return
	}

	if compress == nil {
		compress = Shrink
	}
	out := compress(body)

	s.mu.Lock()
	id := strconv.Itoa(len(s.outputs) + 1)
	s.outputs[id] = out
	s.mu.Unlock()

	w.Header().Set("Compression-Count", strconv.Itoa(count))
	w.WriteHeader(http.StatusCreated)

	resp := map[string]interface{}{
		"input": map[string]interface{}{"size": len(body), "type": "image/png"},
	}
	if !omit {
		url := fmt.Sprintf("%s/output/%s", s.URL, id)
		w.Header().Set("Location", url)
		resp["output"] = map[string]interface{}{
			"size":  len(out),
			"type":  "image/png",
			"ratio": float64(len(out)) / float64(len(body)),
			"url":   url,
		}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/output/")

	s.mu.Lock()
	s.downloads++
	out, ok := s.outputs[id]
	status := s.DownloadStatus
	empty := s.EmptyDownload
	s.mu.Unlock()

	switch {
	case status != 0:
		w.WriteHeader(status)
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	case empty:
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(out)
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": "fake service error",
	})
}
