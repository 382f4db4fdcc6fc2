package workerapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/likealocal/tips-pipeline/internal/health"
)

type fakeDetector struct {
	lang string
}

func (f *fakeDetector) Detect(text string) (string, float64) { return f.lang, 0.9 }

type fakeTranslator struct{}

func (f *fakeTranslator) Translate(text, source, target string) string {
	return "translated:" + text
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(text string) []float32 {
	return []float32{1, 0, 0}
}

func newTestServer() *Server {
	return NewServer(&fakeDetector{lang: "es"}, &fakeTranslator{}, &fakeEmbedder{}, "eng_Latn", nil, zerolog.Nop())
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoCheckerIsHealthy(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealth_UnhealthyChecker(t *testing.T) {
	checker := health.NewServiceChecker(zerolog.Nop())
	detector := &fakeDetector{lang: "es"}
	srv := NewServer(detector, &fakeTranslator{}, &fakeEmbedder{}, "eng_Latn", checker, zerolog.Nop())

	rec := doRequest(t, srv, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 for a checker that has never evaluated healthy", rec.Code)
	}
}

func TestDetectLanguage(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/detect-language", DetectLanguageRequest{Text: "hola"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp DetectLanguageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Language != "es" {
		t.Fatalf("language = %q, want es", resp.Language)
	}
}

func TestTranslate_PassesThroughWhenSourceMatchesTarget(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/translate", TranslateRequest{Text: "hello", SourceLanguage: "en"})
	var resp TranslateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TranslatedText != "hello" {
		t.Fatalf("translated text = %q, want verbatim passthrough", resp.TranslatedText)
	}
}

func TestTranslate_TranslatesWhenSourceDiffers(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/translate", TranslateRequest{Text: "hola", SourceLanguage: "es"})
	var resp TranslateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TranslatedText != "translated:hola" {
		t.Fatalf("translated text = %q", resp.TranslatedText)
	}
}

func TestEmbed(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/embed", EmbedRequest{Text: "anything"})
	var resp EmbedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Vector) != 3 || resp.Vector[0] != 1 {
		t.Fatalf("vector = %v, want fake embedder output", resp.Vector)
	}
}

func TestProcessBatch_OrderPreservedAndTagged(t *testing.T) {
	srv := newTestServer()
	req := ProcessBatchRequest{Items: []BatchItem{
		{ID: 1, Text: "hola", SourceLanguage: "es"},
		{ID: 2, Text: "hello", SourceLanguage: "en"},
	}}
	rec := doRequest(t, srv, http.MethodPost, "/process-batch", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ProcessBatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].ID != 1 || resp.Results[1].ID != 2 {
		t.Fatalf("results out of order: %+v", resp.Results)
	}
	if resp.Results[0].TranslatedText != "translated:hola" {
		t.Fatalf("result[0] translated text = %q", resp.Results[0].TranslatedText)
	}
	if resp.Results[1].TranslatedText != "hello" {
		t.Fatalf("result[1] translated text = %q, want passthrough", resp.Results[1].TranslatedText)
	}
}

func TestProcessBatch_MalformedBodyIsBadRequest(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/process-batch", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
