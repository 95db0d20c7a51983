package static

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
)

func testBundle() fstest.MapFS {
	return fstest.MapFS{
		"index.html":                {Data: []byte("<html>app</html>")},
		"assets/app.js":             {Data: []byte("console.log(1)")},
		"music/songs/fur-elise.mid": {Data: []byte("MThd")},
		"fonts/Inter.WOFF2":         {Data: []byte("font")},
		"blob.bin":                  {Data: []byte{0, 1, 2}},
	}
}

func TestHandler_ServesFiles(t *testing.T) {
	h := NewFSHandler(testBundle(), zap.NewNop())

	tests := []struct {
		path        string
		contentType string
		body        string
	}{
		{"/assets/app.js", "application/javascript", "console.log(1)"},
		{"/music/songs/fur-elise.mid", "audio/midi", "MThd"},
		{"/fonts/Inter.WOFF2", "font/woff2", "font"},
		{"/blob.bin", "application/octet-stream", "\x00\x01\x02"},
		{"/index.html", "text/html", "<html>app</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Expected content type %s, got %s", tt.contentType, ct)
			}
			if rec.Body.String() != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestHandler_SPAFallback(t *testing.T) {
	h := NewFSHandler(testBundle(), zap.NewNop())

	for _, p := range []string{"/", "/play/fur-elise", "/assets", "/missing.js", "/../etc/passwd", "/a/../../index.html"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = p
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", p, rec.Code)
			continue
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
			t.Errorf("%s: expected text/html, got %s", p, ct)
		}
		if rec.Body.String() != "<html>app</html>" {
			t.Errorf("%s: expected index body, got %q", p, rec.Body.String())
		}
	}
}

func TestHandler_NoBundle(t *testing.T) {
	h := NewFSHandler(fstest.MapFS{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestHandler_Methods(t *testing.T) {
	h := NewFSHandler(testBundle(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/assets/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("HEAD: expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD: expected empty body, got %d bytes", rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/assets/app.js", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected status 405, got %d", rec.Code)
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/assets/app.js", "assets/app.js", true},
		{"/", "", false},
		{"/../secret", "", false},
		{"/a/./b", "", false},
		{"//etc/passwd", "", false},
		{"/a\\b", "", false},
		{"/a\x00b", "", false},
	}

	for _, tt := range tests {
		got, ok := relPath(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("relPath(%q) = %q, %v; expected %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
