package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-alluviamaps/internal/config"
	"backend-alluviamaps/internal/mapsync"
)

func newTestServer(token string) *Server {
	return NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0", MapAccessToken: token, MapStyleURL: "mapbox://styles/test"}, nil, nil, nil)
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer("")
	defer s.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 status")
	}
}

func TestRecordsWithoutDatabase(t *testing.T) {
	s := newTestServer("")
	defer s.Close()

	for _, path := range []string{"/records/trails", "/records/sites"} {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: %v", path, err)
		}
		var body []json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body) != 0 {
			t.Fatalf("%s: expected empty list", path)
		}
	}

	resp, _ := s.App.Test(httptest.NewRequest(http.MethodPost, "/records/cache/invalidate", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalidate must require a token, got %d", resp.StatusCode)
	}
}

func TestMapSessionRoutes(t *testing.T) {
	s := newTestServer("pk.test")
	defer s.Close()

	resp, err := s.App.Test(httptest.NewRequest(http.MethodPost, "/map/sessions", nil))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("open session: %v", err)
	}
	if s.Sessions.Len() != 1 {
		t.Fatalf("expected one session")
	}

	var out struct {
		ID       string           `json:"id"`
		Document mapsync.Document `json:"document"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Document.Style != "mapbox://styles/test" {
		t.Fatalf("unexpected style %q", out.Document.Style)
	}

	s.Close()
	if s.Sessions.Len() != 0 {
		t.Fatalf("close should tear down sessions")
	}
}

func TestMapSessionRequiresToken(t *testing.T) {
	s := newTestServer("")
	defer s.Close()

	resp, _ := s.App.Test(httptest.NewRequest(http.MethodPost, "/map/sessions", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without access token, got %d", resp.StatusCode)
	}
}
