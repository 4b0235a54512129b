package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"slackrelay/db"
	"slackrelay/models"
	"slackrelay/services/dispatcher"
	"slackrelay/services/envelopes"
	"slackrelay/services/idempotency"
)

const (
	httpIngestSource      = "http"
	maxIngestBodyBytes    = 64 * 1024
	defaultDeadLetterPage = 50
)

// MessageResponse is returned to producers posting over HTTP
type MessageResponse struct {
	Channel   string `json:"channel"`
	TS        string `json:"ts"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// MessagesHandler exposes the HTTP ingestion surface: producers that want a
// synchronous answer post the same wire shape here instead of the queue.
type MessagesHandler struct {
	codec       *envelopes.Codec
	guard       *idempotency.Guard
	dispatcher  *dispatcher.Dispatcher
	deadLetters db.DeadLetterRepository
	healthCheck func(ctx context.Context) error
}

func NewMessagesHandler(
	codec *envelopes.Codec,
	guard *idempotency.Guard,
	dispatcher *dispatcher.Dispatcher,
	deadLetters db.DeadLetterRepository,
	healthCheck func(ctx context.Context) error,
) *MessagesHandler {
	return &MessagesHandler{
		codec:       codec,
		guard:       guard,
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		healthCheck: healthCheck,
	}
}

// SetupEndpoints registers the handler's routes on the router
func (h *MessagesHandler) SetupEndpoints(router *mux.Router) {
	router.HandleFunc("/message", h.HandlePostMessage).Methods("POST")
	router.HandleFunc("/deadletters", h.HandleListDeadLetters).Methods("GET")
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")
}

// HandlePostMessage posts a message synchronously through the same pipeline
// the queue uses: codec validation, idempotency guard, retrying dispatcher
func (h *MessagesHandler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBodyBytes))
	if err != nil {
		log.Printf("❌ Failed to read ingestion request body: %v", err)
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	cmd, err := h.codec.Decode(string(body))
	if err != nil {
		log.Printf("⚠️ Rejecting invalid ingestion payload: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	postCmd, ok := cmd.(*models.PostMessageCommand)
	if !ok {
		http.Error(w, "expected a post message payload", http.StatusBadRequest)
		return
	}

	shouldProcess, err := h.guard.ShouldProcess(ctx, httpIngestSource, postCmd)
	if err != nil {
		log.Printf("⚠️ Idempotency check failed for HTTP ingestion, processing anyway: %v", err)
		shouldProcess = true
	}
	if !shouldProcess {
		writeJSON(w, http.StatusOK, MessageResponse{Duplicate: true})
		return
	}

	response, err := h.dispatcher.HandlePost(ctx, postCmd)
	if err != nil {
		log.Printf("❌ Failed to post ingested message: %v", err)
		http.Error(w, "failed to post message", http.StatusBadGateway)
		return
	}

	if err := h.guard.MarkProcessed(ctx, httpIngestSource, postCmd, "dispatched"); err != nil {
		log.Printf("⚠️ Failed to mark ingested message processed: %v", err)
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Channel: response.Channel,
		TS:      response.Timestamp,
	})
}

// HandleListDeadLetters returns recent dead letters for manual inspection
func (h *MessagesHandler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultDeadLetterPage)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	letters, err := h.deadLetters.List(r.Context(), limit)
	if err != nil {
		log.Printf("❌ Failed to list dead letters: %v", err)
		http.Error(w, "failed to list dead letters", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, letters)
}

// HandleHealth reports whether the queue store is reachable
func (h *MessagesHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.healthCheck(r.Context()); err != nil {
		log.Printf("❌ Health check failed: %v", err)
		http.Error(w, "queue store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}
