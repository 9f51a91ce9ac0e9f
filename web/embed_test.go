package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSPAHandler(t *testing.T) {
	t.Parallel()

	root := fstest.MapFS{
		"index.html":       {Data: []byte("<html>trainer</html>")},
		"assets/app-1a.js": {Data: []byte("console.log('hi')")},
	}
	h := spaHandler(root)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
		wantCache  string
	}{
		{name: "root", path: "/", wantStatus: http.StatusOK, wantBody: "trainer", wantCache: "no-cache"},
		{name: "client route", path: "/library/tadasana", wantStatus: http.StatusOK, wantBody: "trainer", wantCache: "no-cache"},
		{name: "hashed asset", path: "/assets/app-1a.js", wantStatus: http.StatusOK, wantBody: "console.log", wantCache: "public, max-age=31536000, immutable"},
		{name: "missing asset", path: "/assets/gone.js", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want containing %q", w.Body.String(), tt.wantBody)
			}
			if tt.wantCache != "" && w.Header().Get("Cache-Control") != tt.wantCache {
				t.Errorf("Cache-Control = %q, want %q", w.Header().Get("Cache-Control"), tt.wantCache)
			}
		})
	}
}

func TestSPAHandler_Embedded(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SPAHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "YogGuru") {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
}
