package forward

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/billable/jobqueue/pkg/security"
)

type errorBody struct {
	Error string `json:"error"`
}

// Handler is the primary's write endpoint. It authenticates the bearer token,
// decodes a Command and executes it against the local registry.
type Handler struct {
	registry *Registry
	token    string
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates the write endpoint. An empty token rejects every request.
func NewHandler(reg *Registry, token string, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: reg,
		token:    token,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the endpoint on r at Path.
func (h *Handler) Mount(r chi.Router) {
	r.Post(Path, h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !security.TokenEqual(security.BearerToken(r.Header.Get("Authorization")), h.token) {
		h.logger.Warn("rejected write request", "remote", r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var cmd Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, security.MaxWriteBodySize))
	if err := dec.Decode(&cmd); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	result, err := h.registry.Exec(r.Context(), cmd)
	if err != nil {
		h.logger.Error("write operation failed", "command", cmd.String(), "error", err)
		msg := security.SanitizeErrorMessage(err.Error())
		if msg == "" {
			msg = "operation failed"
		}
		writeJSONError(w, http.StatusInternalServerError, msg)
		return
	}

	h.logger.Debug("write operation executed", "command", cmd.String(), "duration", time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
