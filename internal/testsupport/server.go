package testsupport

import (
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ImageServer serves PNG avatars over HTTP, counting requests per path and
// optionally failing a scripted number of requests before succeeding.
type ImageServer struct {
	*httptest.Server

	mu       sync.Mutex
	image    []byte
	hits     map[string]int
	failures map[string]int
	status   map[string]int
	bodies   map[string][]byte
}

// NewImageServer starts a server that answers every path with a
// width x height PNG. The server is closed when the test finishes.
func NewImageServer(t testing.TB, width, height int) *ImageServer {
	t.Helper()

	s := &ImageServer{
		image:    PNG(t, width, height, color.NRGBA{R: 200, G: 40, B: 40, A: 255}),
		hits:     make(map[string]int),
		failures: make(map[string]int),
		status:   make(map[string]int),
		bodies:   make(map[string][]byte),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL returns the absolute URL for path.
func (s *ImageServer) URL(path string) string {
	return s.Server.URL + path
}

// FailNext makes the next n requests for path answer 500.
func (s *ImageServer) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = n
}

// Respond makes every request for path answer with status and no image.
func (s *ImageServer) Respond(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

// Serve makes every request for path answer 200 with body instead of the
// default image.
func (s *ImageServer) Serve(path string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
}

// Hits returns how many requests path has received.
func (s *ImageServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests across all paths.
func (s *ImageServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *ImageServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	path := r.URL.Path
	s.hits[path]++
	fail := s.failures[path] > 0
	if fail {
		s.failures[path]--
	}
	status, scripted := s.status[path]
	body, custom := s.bodies[path]
	if !custom {
		body = s.image
	}
	s.mu.Unlock()

	switch {
	case fail:
		http.Error(w, "scripted failure", http.StatusInternalServerError)
	case scripted:
		w.WriteHeader(status)
	default:
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}
}
