package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
)

const (
	maxSnippetBody = 1 << 20

	// SnippetAck prefixes the snippet in the acknowledgment message.
	SnippetAck = "This snippet was injected into VSCode: "

	relaySender = "relay"
)

// NotFoundHandler answers every unknown route.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "Route Not Found")
}

type snippetRequest struct {
	Snippet *string `json:"snippet"`
}

type snippetResponse struct {
	Message string `json:"message"`
}

// SnippetHandler handles POST /snippet.
type SnippetHandler struct {
	Publisher Publisher
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func (h SnippetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var req snippetRequest
	body := http.MaxBytesReader(w, r.Body, maxSnippetBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Snippet == nil {
		http.Error(w, "missing snippet", http.StatusBadRequest)
		return
	}

	env, err := message.Encode(message.CodeSnippet{Snippet: *req.Snippet})
	if err != nil {
		logger.Error("encode snippet", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	env.Sender = relaySender

	if err := h.Publisher.Publish(r.Context(), env); err != nil {
		logger.Error("publish snippet", "error", err)
		http.Error(w, "publish failed", http.StatusBadGateway)
		return
	}
	h.Metrics.Snippet()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(snippetResponse{Message: SnippetAck + *req.Snippet})
}
