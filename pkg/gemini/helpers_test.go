package gemini

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// liveServer is a BidiGenerateContent endpoint driven by a test handler.
type liveServer struct {
	*httptest.Server

	mu     sync.Mutex
	header http.Header
	path   string
}

func newLiveServer(t *testing.T, handler func(conn *websocket.Conn)) *liveServer {
	t.Helper()
	ls := &liveServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		ls.header = r.Header.Clone()
		ls.path = r.URL.Path
		ls.mu.Unlock()
		if !strings.HasSuffix(r.URL.Path, ".BidiGenerateContent") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *liveServer) request() (http.Header, string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.header, ls.path
}

// contentServer answers generateContent requests with a fixed body and
// records the last request.
type contentServer struct {
	*httptest.Server

	mu   sync.Mutex
	path string
	body map[string]any
}

func newContentServer(t *testing.T, status int, response any) *contentServer {
	t.Helper()
	cs := &contentServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		cs.mu.Lock()
		cs.path = r.URL.Path
		cs.body = body
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *contentServer) last() (string, map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.path, cs.body
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient("test-key", append([]Option{WithBaseURL(baseURL)}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// dig walks nested JSON objects and arrays by key or index.
func dig(v any, path ...any) any {
	for _, p := range path {
		switch k := p.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v = m[k]
		case int:
			a, ok := v.([]any)
			if !ok || k >= len(a) {
				return nil
			}
			v = a[k]
		}
	}
	return v
}
