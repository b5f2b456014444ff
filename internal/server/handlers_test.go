package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/config"
	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/internal/promptstore"
	"github.com/aisight/mitsuke/internal/vocab"
)

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	dir := t.TempDir()
	emb := embedding.NewMockEmbedder(8)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.VocabularyPath = filepath.Join(dir, "vocabulary.json")
	cfg.Storage.PromptStorePath = filepath.Join(dir, "memories")
	cfg.Storage.MemoryIndexPath = filepath.Join(dir, "memories.db")
	cfg.Storage.NameIndexPath = filepath.Join(dir, "names")

	v, err := vocab.NewManager(cfg.Storage.VocabularyPath, 5, []string{"person", "car"})
	if err != nil {
		t.Fatal(err)
	}
	store, err := promptstore.Open(
		cfg.Storage.PromptStorePath,
		cfg.Storage.MemoryIndexPath,
		cfg.Storage.NameIndexPath,
		emb,
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	controller := mode.NewController(v, store, emb)
	return NewServer(v, controller, store, cfg, zap.NewNop(), opts...)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestHandleAddAndListTerms(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/terms", map[string]interface{}{
		"terms":  []string{"Fire Extinguisher", "cup"},
		"source": "scene-description",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var added struct {
		Inserted []string `json:"inserted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&added); err != nil {
		t.Fatal(err)
	}
	if len(added.Inserted) != 2 {
		t.Errorf("expected 2 inserted terms, got %v", added.Inserted)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/terms", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var listed struct {
		Terms    []string `json:"terms"`
		Base     int      `json:"base"`
		Dynamic  int      `json:"dynamic"`
		Capacity int      `json:"capacity"`
	}
	if err := json.NewDecoder(w.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if listed.Base != 2 || listed.Dynamic != 2 || listed.Capacity != 5 {
		t.Errorf("unexpected counts: %+v", listed)
	}
}

func TestHandleAddTermsCapacityConflict(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	// Capacity is 5; seven candidates leave two rejected.
	w := doJSON(t, router, http.MethodPost, "/api/v1/terms", map[string]interface{}{
		"terms":  []string{"a", "b", "c", "d", "e", "f", "g"},
		"source": "scene-description",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Inserted []string `json:"inserted"`
		Rejected []string `json:"rejected"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Inserted) != 5 || len(out.Rejected) != 2 {
		t.Errorf("expected 5 inserted + 2 rejected, got %d + %d", len(out.Inserted), len(out.Rejected))
	}
}

func TestHandleAddTermsFromPlaces(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/terms", map[string]interface{}{
		"places": []string{"bank"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	entry, ok := srv.vocab.Entry("atm")
	if !ok {
		t.Fatal("expected atm term from bank mapping")
	}
	if entry.Source != models.SourceLocation {
		t.Errorf("expected location source, got %s", entry.Source)
	}
}

func TestHandleModeSwitchAndGet(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/mode", map[string]string{"mode": "adaptive"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/mode", nil)
	var out struct {
		Mode models.DetectorMode `json:"mode"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Mode != models.ModeAdaptive {
		t.Errorf("expected adaptive, got %s", out.Mode)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/mode", map[string]string{"mode": "sleep"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected bad request for unknown mode, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/mode", map[string]string{
		"mode": "recall", "memory_id": "no-such-id",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected not found for unknown memory, got %d", w.Code)
	}
}

func TestHandleRememberAndRecall(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	frameData := make([]byte, 32*32*3)
	for i := range frameData {
		frameData[i] = byte(i % 251)
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/memories", map[string]interface{}{
		"object_name":  "wallet",
		"class_id":     7,
		"bounding_box": map[string]int{"x": 4, "y": 4, "width": 8, "height": 8},
		"frame": map[string]interface{}{
			"seq": 1, "width": 32, "height": 32, "data": frameData,
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var saved struct {
		MemoryID string `json:"memory_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&saved); err != nil {
		t.Fatal(err)
	}
	if saved.MemoryID == "" {
		t.Fatal("expected a memory id")
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/memories/"+saved.MemoryID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get memory status: got %d", w.Code)
	}
	var record models.VisualPromptRecord
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatal(err)
	}
	if record.ObjectName != "wallet" || record.ClassID != 7 {
		t.Errorf("unexpected record %+v", record)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/memories?name=wallet", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status: got %d", w.Code)
	}
	var found struct {
		MemoryIDs []string `json:"memory_ids"`
	}
	if err := json.NewDecoder(w.Body).Decode(&found); err != nil {
		t.Fatal(err)
	}
	if len(found.MemoryIDs) != 1 || found.MemoryIDs[0] != saved.MemoryID {
		t.Errorf("expected [%s], got %v", saved.MemoryID, found.MemoryIDs)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/mode", map[string]string{
		"mode": "recall", "memory_id": saved.MemoryID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("recall switch status: got %d, body %s", w.Code, w.Body.String())
	}
	if got := srv.controller.Current().Mode; got != models.ModeRecall {
		t.Errorf("expected recall mode, got %s", got)
	}
}

func TestHandleGetMemoryNotFound(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/memories/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	if _, err := srv.vocab.AddTerms(context.Background(), []string{"cup"}, models.SourceSceneDescription); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Mode         models.DetectorMode `json:"mode"`
		BaseTerms    int                 `json:"base_terms"`
		DynamicTerms int                 `json:"dynamic_terms"`
		Capacity     int                 `json:"capacity"`
		Memories     int64               `json:"memories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Mode != models.ModeDiscovery || out.BaseTerms != 2 || out.DynamicTerms != 1 {
		t.Errorf("unexpected status %+v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

type stubExtractor struct {
	terms []string
	err   error
}

func (e *stubExtractor) ExtractTerms(ctx context.Context, text string) ([]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.terms, nil
}

func TestHandleAddTermsFromText(t *testing.T) {
	srv := newTestServer(t, WithExtractor(&stubExtractor{terms: []string{"fire extinguisher", "whiteboard"}}))
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/terms", map[string]string{
		"text": "there is a fire extinguisher next to the whiteboard",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	entry, ok := srv.vocab.Entry("fire extinguisher")
	if !ok {
		t.Fatal("expected extracted term in vocabulary")
	}
	if entry.Source != models.SourceSceneDescription {
		t.Errorf("expected scene-description source, got %s", entry.Source)
	}
}

func TestHandleAddTermsTextWithoutExtractor(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/terms", map[string]string{
		"text": "a cup on the table",
	})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without an extractor, got %d", w.Code)
	}
}
