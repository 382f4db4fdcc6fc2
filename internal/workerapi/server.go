// Package workerapi implements the Processing Worker's HTTP surface
// (§4.3): stateless request/response handlers over models loaded once per
// process.
package workerapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/likealocal/tips-pipeline/internal/health"
	"github.com/likealocal/tips-pipeline/internal/workerapi/detect"
	"github.com/likealocal/tips-pipeline/internal/workerapi/embed"
	"github.com/likealocal/tips-pipeline/internal/workerapi/recovery"
	"github.com/likealocal/tips-pipeline/internal/workerapi/respond"
	"github.com/likealocal/tips-pipeline/internal/workerapi/translate"
)

// Server holds the models loaded once at process start (§4.3.1) and serves
// the worker's HTTP routes.
type Server struct {
	detector   detect.Detector
	translator translate.Model
	embedder   embed.Model
	target     string // canonical two-letter target language
	checker    *health.ServiceChecker
	log        zerolog.Logger
}

// NewServer wires the worker's handlers around already-constructed models.
func NewServer(detector detect.Detector, translator translate.Model, embedder embed.Model, targetLanguageTag string, checker *health.ServiceChecker, log zerolog.Logger) *Server {
	return &Server{
		detector:   detector,
		translator: translator,
		embedder:   embedder,
		target:     canonicalTwoLetter(targetLanguageTag),
		checker:    checker,
		log:        log,
	}
}

// Router builds the mux.Router serving this worker's routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(recovery.Middleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/detect-language", s.handleDetectLanguage).Methods(http.MethodPost)
	r.HandleFunc("/translate", s.handleTranslate).Methods(http.MethodPost)
	r.HandleFunc("/embed", s.handleEmbed).Methods(http.MethodPost)
	r.HandleFunc("/process-batch", s.handleProcessBatch).Methods(http.MethodPost)
	return r
}

// handleHealth is cheap and never loads models (§4.3).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	code := http.StatusServiceUnavailable
	if s.checker == nil || s.checker.IsHealthy() {
		status = "healthy"
		code = http.StatusOK
	}
	respond.WriteJSON(w, code, map[string]string{"status": status})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	var req DetectLanguageRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.WriteBadRequest(w, "malformed request body")
		return
	}
	lang, _ := s.detector.Detect(req.Text)
	respond.WriteJSON(w, http.StatusOK, DetectLanguageResponse{Language: lang})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.WriteBadRequest(w, "malformed request body")
		return
	}
	source := req.SourceLanguage
	if source == "" {
		source, _ = s.detector.Detect(req.Text)
	}
	translated := s.translateOne(req.Text, source)
	respond.WriteJSON(w, http.StatusOK, TranslateResponse{TranslatedText: translated, SourceLanguage: source})
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req EmbedRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.WriteBadRequest(w, "malformed request body")
		return
	}
	respond.WriteJSON(w, http.StatusOK, EmbedResponse{Vector: s.embedder.Embed(req.Text)})
}

// translateOne applies §4.3 batch step (b): pass through verbatim when the
// detected/given source already matches the canonical target.
func (s *Server) translateOne(text, sourceLanguage string) string {
	if sourceLanguage == s.target {
		return text
	}
	return s.translator.Translate(text, sourceLanguage, s.target)
}

// handleProcessBatch implements §4.3's steady-state endpoint. Per-item
// failures are reported in that item's result slot; the batch as a whole
// still returns 200 unless decoding itself fails.
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req ProcessBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.WriteBadRequest(w, "malformed request body")
		return
	}

	results := make([]BatchResult, len(req.Items))
	for i, item := range req.Items {
		results[i] = s.processItem(item)
	}
	respond.WriteJSON(w, http.StatusOK, ProcessBatchResponse{Results: results})
}

func (s *Server) processItem(item BatchItem) (result BatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Int64("id", item.ID).Msg("worker: item processing panicked")
			result = BatchResult{ID: item.ID, Error: "internal error processing item"}
		}
	}()

	source := item.SourceLanguage
	if source == "" {
		source, _ = s.detector.Detect(item.Text)
	}
	translated := s.translateOne(item.Text, source)
	vector := s.embedder.Embed(translated)

	return BatchResult{
		ID:               item.ID,
		DetectedLanguage: source,
		TranslatedText:   translated,
		Vector:           vector,
	}
}
