package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/store"
)

// RecognitionHandler serves the recognition history.
type RecognitionHandler struct {
	store *store.Store
}

// NewRecognitionHandler creates a RecognitionHandler with the given store.
func NewRecognitionHandler(s *store.Store) *RecognitionHandler {
	return &RecognitionHandler{store: s}
}

type recognitionResponse struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	TimestampMs int64   `json:"timestamp"`
	CreatedAt   string  `json:"created_at"`
}

type listRecognitionsResponse struct {
	Recognitions []recognitionResponse `json:"recognitions"`
	Total        int                   `json:"total"`
}

type clearRecognitionsResponse struct {
	Deleted int64 `json:"deleted"`
}

// ServeHTTP handles GET /api/recognitions?limit=&session= and
// DELETE /api/recognitions.
func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodDelete:
		h.clear(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RecognitionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := h.store.Recognitions().List(r.URL.Query().Get("session"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recognitions")
		return
	}
	total, err := h.store.Recognitions().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count recognitions")
		return
	}

	response := listRecognitionsResponse{
		Recognitions: make([]recognitionResponse, 0, len(recs)),
		Total:        total,
	}
	for _, rec := range recs {
		response.Recognitions = append(response.Recognitions, recognitionResponse{
			ID:          rec.ID,
			SessionID:   rec.SessionID,
			Label:       rec.Label,
			Probability: rec.Probability,
			TimestampMs: rec.TimestampMs,
			CreatedAt:   rec.CreatedAt.Format(timeLayout),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *RecognitionHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Recognitions().Clear()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear recognitions")
		return
	}
	writeJSON(w, http.StatusOK, clearRecognitionsResponse{Deleted: n})
}

// VocabularyHandler serves the list of recognizable signs.
type VocabularyHandler struct {
	vocabulary classifier.Vocabulary
}

// NewVocabularyHandler creates a VocabularyHandler.
func NewVocabularyHandler(v classifier.Vocabulary) *VocabularyHandler {
	return &VocabularyHandler{vocabulary: v}
}

type vocabularyResponse struct {
	Signs []string `json:"signs"`
}

// ServeHTTP handles GET /api/vocabulary.
func (h *VocabularyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	signs := make([]string, 0, len(h.vocabulary))
	for _, s := range h.vocabulary {
		if s != "" {
			signs = append(signs, s)
		}
	}
	writeJSON(w, http.StatusOK, vocabularyResponse{Signs: signs})
}
