package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/store"
	"github.com/neivs/llmsandbox/version"
)

func testServer(t *testing.T, maxSessions uint) (*Server, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		sessions: NewSessions(maxSessions, 2, time.Minute),
		history:  &store.Store{DBPath: filepath.Join(t.TempDir(), "history.sqlite")},
	}
	t.Cleanup(func() {
		s.sessions.Close()
		s.history.Close()
	})

	h, err := s.GenerateRoutes()
	require.NoError(t, err)
	return s, h
}

func call(t *testing.T, h http.Handler, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if out != nil && w.Code < http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func statusError(t *testing.T, w *httptest.ResponseRecorder) api.StatusError {
	t.Helper()
	var se api.StatusError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &se))
	return se
}

func scenario() *api.ForwardRequest {
	return &api.ForwardRequest{
		Text:        "AI",
		SeqLen:      8,
		Temperature: 1,
		TopK:        5,
		Seed:        1337,
		Hyperparameters: api.Hyperparameters{
			DModel: 8, NHead: 2, DHead: 4, NLayer: 1, SeqLen: 8, FFNMult: 2,
		},
	}
}

func TestGeneral(t *testing.T) {
	_, h := testServer(t, 4)

	w := call(t, h, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != "Sandbox is running" {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}

	var v api.VersionResponse
	w = call(t, h, http.MethodGet, "/api/version", nil, &v)
	if w.Code != http.StatusOK || v.Version != version.Version {
		t.Errorf("GET /api/version = %d %+v", w.Code, v)
	}
}

func TestForwardHandler(t *testing.T) {
	s, h := testServer(t, 4)

	var resp api.ForwardResponse
	w := call(t, h, http.MethodPost, "/api/forward", scenario(), &resp)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	if len(resp.Tokens) != 8 || len(resp.AttnByLayerHead[0]) != 2 || len(resp.LastLogits) != 99 {
		t.Errorf("Antwort-Form falsch: %d Tokens", len(resp.Tokens))
	}
	if s.sessions.Len() != 1 {
		t.Errorf("Default-Session fehlt: %d Sessions", s.sessions.Len())
	}

	var again api.ForwardResponse
	call(t, h, http.MethodPost, "/api/forward", scenario(), &again)
	if diff := cmp.Diff(resp.Artifacts, again.Artifacts); diff != "" {
		t.Errorf("nicht deterministisch (-first +second):\n%s", diff)
	}
}

func TestForwardHandlerErrors(t *testing.T) {
	_, h := testServer(t, 4)

	cases := map[string]struct {
		mutate func(*api.ForwardRequest)
		status int
		kind   string
	}{
		"dmodel":      {func(r *api.ForwardRequest) { r.Hyperparameters.DModel = 10 }, http.StatusBadRequest, api.KindInvalidHyperparameters},
		"character":   {func(r *api.ForwardRequest) { r.Text = "λ" }, http.StatusBadRequest, api.KindUnsupportedCharacter},
		"temperature": {func(r *api.ForwardRequest) { r.Temperature = -1 }, http.StatusBadRequest, api.KindInvalidHyperparameters},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			req := scenario()
			tt.mutate(req)

			w := call(t, h, http.MethodPost, "/api/forward", req, nil)
			if w.Code != tt.status {
				t.Errorf("Status = %d, erwartet %d", w.Code, tt.status)
			}
			if se := statusError(t, w); se.Kind != tt.kind || se.ErrorMessage == "" {
				t.Errorf("Fehler = %+v, erwartet kind %q", se, tt.kind)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/forward", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest || statusError(t, w).Kind != api.KindInvalidRequest {
		t.Errorf("kaputtes JSON = %d %s", w.Code, w.Body.String())
	}
}

func TestSessionHandlers(t *testing.T) {
	s, h := testServer(t, 4)

	var sess api.SessionResponse
	w := call(t, h, http.MethodPost, "/api/sessions", nil, &sess)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	if sess.ID == "" || sess.ExpiresAt.IsZero() {
		t.Fatalf("Session = %+v", sess)
	}

	var resp api.ForwardResponse
	w = call(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/forward", scenario(), &resp)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	if len(resp.Tokens) != 8 {
		t.Errorf("len(Tokens) = %d", len(resp.Tokens))
	}

	w = call(t, h, http.MethodDelete, "/api/sessions/"+sess.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("DELETE = %d", w.Code)
	}
	if s.sessions.Len() != 0 {
		t.Errorf("Session nach DELETE noch vorhanden")
	}

	w = call(t, h, http.MethodDelete, "/api/sessions/"+sess.ID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("zweites DELETE = %d, erwartet 404", w.Code)
	}

	w = call(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/forward", scenario(), nil)
	if w.Code != http.StatusNotFound || statusError(t, w).Kind != api.KindNotFound {
		t.Errorf("Forward auf geloeschte Session = %d %s", w.Code, w.Body.String())
	}
}

func TestSessionLimit(t *testing.T) {
	_, h := testServer(t, 1)

	w := call(t, h, http.MethodPost, "/api/sessions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, h, http.MethodPost, "/api/sessions", nil, nil)
	if w.Code != http.StatusServiceUnavailable || statusError(t, w).Kind != api.KindBusy {
		t.Errorf("zweite Session = %d %s, erwartet 503 busy", w.Code, w.Body.String())
	}
}

func TestViewHandler(t *testing.T) {
	_, h := testServer(t, 4)

	var resp api.ForwardResponse
	w := call(t, h, http.MethodPost, "/api/forward", scenario(), &resp)
	require.Equal(t, http.StatusOK, w.Code)

	var view api.ViewResponse
	w = call(t, h, http.MethodPost, "/api/view", api.ViewRequest{
		Artifacts:   resp.Artifacts,
		LayerView:   0,
		HeadView:    1,
		Temperature: 1,
		TopK:        5,
	}, &view)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	if diff := cmp.Diff(resp.AttnByLayerHead[0][1], view.Attention); diff != "" {
		t.Errorf("Attention (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(resp.Distribution, view.Distribution); diff != "" {
		t.Errorf("Distribution (-want +got):\n%s", diff)
	}
	if len(view.Projection) != 8 {
		t.Errorf("len(Projection) = %d", len(view.Projection))
	}

	w = call(t, h, http.MethodPost, "/api/view", api.ViewRequest{Artifacts: resp.Artifacts, HeadView: 2, Temperature: 1, TopK: 1}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("headView 2 = %d, erwartet 400", w.Code)
	}
}

func TestDistributionAndProjectHandlers(t *testing.T) {
	_, h := testServer(t, 4)

	var dist api.DistributionResponse
	w := call(t, h, http.MethodPost, "/api/distribution", api.DistributionRequest{
		Logits:      []float64{0, 1, 2},
		Temperature: 1,
		TopK:        2,
		Renormalize: true,
	}, &dist)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	if len(dist.Candidates) != 2 || dist.Candidates[0].ID != 2 || dist.Candidates[0].Token != "<eos>" {
		t.Errorf("Candidates = %+v", dist.Candidates)
	}

	w = call(t, h, http.MethodPost, "/api/distribution", api.DistributionRequest{Logits: []float64{1}, Temperature: 0, TopK: 1}, nil)
	if w.Code != http.StatusBadRequest || statusError(t, w).Kind != api.KindInvalidHyperparameters {
		t.Errorf("Temperatur 0 = %d %s", w.Code, w.Body.String())
	}

	var proj api.ProjectResponse
	w = call(t, h, http.MethodPost, "/api/project", api.ProjectRequest{Vectors: [][]float64{{1, 1}, {1, 1}}}, &proj)
	require.Equal(t, http.StatusOK, w.Code)
	if diff := cmp.Diff([][2]float64{{0, 0}, {0, 0}}, proj.Points); diff != "" {
		t.Errorf("Points (-want +got):\n%s", diff)
	}

	w = call(t, h, http.MethodPost, "/api/project", api.ProjectRequest{Vectors: [][]float64{{1, 2}, {3}}}, nil)
	if w.Code != http.StatusInternalServerError || statusError(t, w).Kind != api.KindDimensionMismatch {
		t.Errorf("ungleiche Vektoren = %d %s", w.Code, w.Body.String())
	}
}

func TestExportAndRuns(t *testing.T) {
	_, h := testServer(t, 4)

	var resp api.ForwardResponse
	w := call(t, h, http.MethodPost, "/api/forward", scenario(), &resp)
	require.Equal(t, http.StatusOK, w.Code)

	var doc api.ExportDocument
	w = call(t, h, http.MethodPost, "/api/export", api.ExportRequest{Request: *scenario(), Artifacts: resp.Artifacts}, &doc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	if doc.ID != "" || doc.Prompt != "AI" || doc.Seed != 1337 {
		t.Errorf("Export = %+v", doc)
	}

	var saved api.ExportDocument
	w = call(t, h, http.MethodPost, "/api/export", api.ExportRequest{Request: *scenario(), Artifacts: resp.Artifacts, Save: true}, &saved)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	if saved.ID == "" {
		t.Fatal("gespeicherter Export ohne id")
	}

	var runs api.ListRunsResponse
	w = call(t, h, http.MethodGet, "/api/runs", nil, &runs)
	require.Equal(t, http.StatusOK, w.Code)
	if len(runs.Runs) != 1 || runs.Runs[0].ID != saved.ID {
		t.Errorf("Runs = %+v", runs.Runs)
	}

	var got api.ExportDocument
	w = call(t, h, http.MethodGet, "/api/runs/"+saved.ID, nil, &got)
	require.Equal(t, http.StatusOK, w.Code)
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Errorf("GET /api/runs/:id (-want +got):\n%s", diff)
	}

	w = call(t, h, http.MethodGet, "/api/runs/unknown", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unbekannter Run = %d, erwartet 404", w.Code)
	}

	// Platzhalter im Praefix treffen keine Runs
	w = call(t, h, http.MethodGet, "/api/runs/%25", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/runs/%%25 = %d, erwartet 404", w.Code)
	}

	w = call(t, h, http.MethodDelete, "/api/runs/"+saved.ID[:13], nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, h, http.MethodGet, "/api/runs/"+saved.ID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Run nach DELETE = %d, erwartet 404", w.Code)
	}

	w = call(t, h, http.MethodDelete, "/api/runs/"+saved.ID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("zweites DELETE = %d, erwartet 404", w.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	s, h := testServer(t, 4)
	s.history = nil

	var runs api.ListRunsResponse
	w := call(t, h, http.MethodGet, "/api/runs", nil, &runs)
	if w.Code != http.StatusOK || len(runs.Runs) != 0 {
		t.Errorf("GET /api/runs = %d %+v", w.Code, runs)
	}

	var resp api.ForwardResponse
	call(t, h, http.MethodPost, "/api/forward", scenario(), &resp)
	w = call(t, h, http.MethodPost, "/api/export", api.ExportRequest{Request: *scenario(), Artifacts: resp.Artifacts, Save: true}, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Export mit save = %d, erwartet 403", w.Code)
	}
}
