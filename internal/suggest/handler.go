package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/observability"
)

const maxRequestBytes = 1 << 20

// Request is the body of a suggestion request. Transcript and Keyword are
// required; an empty string counts as present.
type Request struct {
	Transcript *string `json:"transcript"`
	Keyword    *string `json:"keyword"`
	MaxTokens  int     `json:"maxTokens"`
}

// Response carries the model's answer
type Response struct {
	Response string `json:"response"`
}

// Handler serves POST requests for question suggestions and answers CORS
// preflight requests
type Handler struct {
	suggester *Suggester
	timeout   time.Duration // 0 means the request context only
	logger    zerolog.Logger
}

// NewHandler creates a handler backed by suggester
func NewHandler(suggester *Suggester, timeout time.Duration) *Handler {
	return &Handler{
		suggester: suggester,
		timeout:   timeout,
		logger:    observability.WithComponent("suggest"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// A body that is not JSON is treated like an empty object
	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		req = Request{}
	}

	if req.Transcript == nil {
		http.Error(w, "`transcript` is required", http.StatusBadRequest)
		return
	}
	if req.Keyword == nil {
		http.Error(w, "`keyword` is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := h.suggester.Suggest(ctx, *req.Transcript, *req.Keyword, req.MaxTokens)
	observability.RecordSuggestion(err == nil, time.Since(start))
	if err != nil {
		h.logger.Error().Err(err).Str("keyword", *req.Keyword).Msg("Question suggestion failed")
		http.Error(w, "suggestion failed", http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Response{Response: text}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode suggestion")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
