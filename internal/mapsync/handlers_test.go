package mapsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend-alluviamaps/internal/records"

	"github.com/gofiber/fiber/v2"
)

type stubSource struct {
	trails []records.Trail
	sites  []records.Site
}

func (s stubSource) PublicTrails(context.Context) ([]records.Trail, error) { return s.trails, nil }
func (s stubSource) PublicSites(context.Context) ([]records.Site, error)   { return s.sites, nil }
func (s stubSource) SearchTrails(context.Context, string) ([]records.Trail, error) {
	return s.trails, nil
}
func (s stubSource) SearchSites(context.Context, string) ([]records.Site, error) {
	return s.sites, nil
}

func newTestApp(opts MapOptions) (*fiber.App, *Sessions) {
	sessions := NewSessions(&recordingPublisher{}, opts, nil)
	data := records.NewDataService(stubSource{trails: sampleTrails(), sites: sampleSites()}, records.Options{})
	app := fiber.New()
	RegisterRoutes(app.Group("/map/sessions"), sessions, data)
	return app, sessions
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func openSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/map/sessions/", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.State != "style_loading" {
		t.Fatalf("unexpected state %q", out.State)
	}
	return out.ID
}

func TestMapHandlersOpenWithoutToken(t *testing.T) {
	app, sessions := newTestApp(DefaultMapOptions("", "style"))
	resp, _ := doJSON(t, app, http.MethodPost, "/map/sessions/", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if sessions.Len() != 0 {
		t.Fatalf("failed session must not be kept")
	}
}

func TestMapHandlersRefreshAndLayers(t *testing.T) {
	app, sessions := newTestApp(testOptions())
	id := openSession(t, app)
	base := "/map/sessions/" + id

	resp, body := doJSON(t, app, http.MethodPost, base+"/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d %s", resp.StatusCode, body)
	}
	sess, _ := sessions.Get(id)
	if sess.Controller.Attached(TrailsLayerID) {
		t.Fatalf("layers must wait for the style")
	}

	resp, _ = doJSON(t, app, http.MethodPost, base+"/ready", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: %d", resp.StatusCode)
	}
	if !sess.Controller.Attached(TrailsLayerID) || !sess.Controller.Attached(SitesLabelLayerID) {
		t.Fatalf("queued refresh should apply once ready")
	}

	resp, _ = doJSON(t, app, http.MethodPut, base+"/layers/"+TrailsLayerID+"/visibility", `{"visible":false}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("visibility: %d", resp.StatusCode)
	}
	layer, _ := sess.Surface().Layer(TrailsLayerID)
	if layer.Layout["visibility"] != "none" {
		t.Fatalf("expected hidden layer")
	}

	resp, _ = doJSON(t, app, http.MethodPut, base+"/layers/"+SitesLayerID+"/opacity", `{"opacity":0.3}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("opacity: %d", resp.StatusCode)
	}
	layer, _ = sess.Surface().Layer(SitesLayerID)
	if layer.Paint["circle-opacity"] != 0.3 {
		t.Fatalf("expected opacity applied, got %v", layer.Paint["circle-opacity"])
	}

	resp, _ = doJSON(t, app, http.MethodPut, base+"/layers/"+SitesLayerID+"/opacity", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing opacity, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, http.MethodGet, base, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	var desc sessionResponse
	if err := json.Unmarshal(body, &desc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(desc.Document.Layers) != 3 || !desc.Document.StyleLoaded {
		t.Fatalf("unexpected document %s", body)
	}
}

func TestMapHandlersQueuedLayerChangesSurviveLaterRequests(t *testing.T) {
	app, sessions := newTestApp(testOptions())
	id := openSession(t, app)
	base := "/map/sessions/" + id

	if resp, body := doJSON(t, app, http.MethodPost, base+"/refresh", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d %s", resp.StatusCode, body)
	}
	if resp, _ := doJSON(t, app, http.MethodPut, base+"/layers/"+TrailsLayerID+"/visibility", `{"visible":false}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("visibility: %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, app, http.MethodPut, base+"/layers/"+SitesLayerID+"/opacity", `{"opacity":0.4}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("opacity: %d", resp.StatusCode)
	}

	// Unrelated requests reuse the request buffers before the queue flushes.
	for i := 0; i < 5; i++ {
		doJSON(t, app, http.MethodPut, base+"/layers/zzzzzz-zzzzz/opacity", `{"opacity":1}`)
		doJSON(t, app, http.MethodGet, base+"/bounds", "")
	}

	if resp, _ := doJSON(t, app, http.MethodPost, base+"/ready", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: %d", resp.StatusCode)
	}

	sess, _ := sessions.Get(id)
	trails, _ := sess.Surface().Layer(TrailsLayerID)
	if trails.Layout["visibility"] != "none" {
		t.Fatalf("queued hide lost, visibility %v", trails.Layout["visibility"])
	}
	sites, _ := sess.Surface().Layer(SitesLayerID)
	if sites.Paint["circle-opacity"] != 0.4 {
		t.Fatalf("queued opacity lost, got %v", sites.Paint["circle-opacity"])
	}
}

func TestMapHandlersRefreshInBounds(t *testing.T) {
	app, sessions := newTestApp(testOptions())
	id := openSession(t, app)
	_ = sessions.MarkStyleLoaded(id)

	resp, body := doJSON(t, app, http.MethodPost, "/map/sessions/"+id+"/refresh?north=-36.7&south=-36.8&east=144.3&west=144.2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Trails int `json:"trails"`
		Sites  int `json:"sites"`
	}
	_ = json.Unmarshal(body, &out)
	if out.Trails != 1 || out.Sites != 1 {
		t.Fatalf("expected one trail and one site in bounds, got %s", body)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/map/sessions/"+id+"/refresh?north=-36.7", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial bounds, got %d", resp.StatusCode)
	}
}

func TestMapHandlersCameraAndBounds(t *testing.T) {
	app, sessions := newTestApp(testOptions())
	id := openSession(t, app)
	base := "/map/sessions/" + id

	resp, _ := doJSON(t, app, http.MethodGet, base+"/bounds", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before ready, got %d", resp.StatusCode)
	}

	_ = sessions.MarkStyleLoaded(id)
	resp, _ = doJSON(t, app, http.MethodPost, base+"/camera", `{"lng":144.1,"lat":-37.1}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("camera: %d", resp.StatusCode)
	}
	sess, _ := sessions.Get(id)
	if z := sess.Surface().Snapshot().Zoom; z != DefaultPanZoom {
		t.Fatalf("expected default pan zoom, got %v", z)
	}

	resp, _ = doJSON(t, app, http.MethodPost, base+"/camera", `{"lng":500,"lat":0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad coordinates, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, app, http.MethodGet, base+"/bounds", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bounds: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"north"`) {
		t.Fatalf("unexpected bounds body %s", body)
	}
}

func TestMapHandlersUnknownSessionAndDelete(t *testing.T) {
	app, sessions := newTestApp(testOptions())

	resp, _ := doJSON(t, app, http.MethodGet, "/map/sessions/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	id := openSession(t, app)
	resp, _ = doJSON(t, app, http.MethodDelete, "/map/sessions/"+id, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected session removed")
	}
	resp, _ = doJSON(t, app, http.MethodDelete, "/map/sessions/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}
