package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/store"
)

// HistoryAPI serves the REST surface over the message store: full-history
// retrieval and idempotent conversation deletion for an identity pair.
type HistoryAPI struct {
	logger *slog.Logger
	store  store.MessageStore
}

func NewHistoryAPI(logger *slog.Logger, msgStore store.MessageStore) *HistoryAPI {
	return &HistoryAPI{
		logger: logger.With(slog.String("component", "history_api")),
		store:  msgStore,
	}
}

// writeJSONError emits a 500 without disturbing the Content-Type already set
// on the response. http.Error would rewrite it to text/plain.
func writeJSONError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *HistoryAPI) Register(router *mux.Router) {
	router.HandleFunc("/history/{identityA}/{identityB}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/history/{identityA}/{identityB}", h.handleDelete).Methods(http.MethodDelete)
}

// handleGet returns the ordered conversation between the pair, in either
// direction. The optional limit query parameter caps the result; without
// it the full history is returned.
func (h *HistoryAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)

	limit := 0
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 {
			limit = lim
		}
	}

	msgs, err := h.store.History(r.Context(), vars["identityA"], vars["identityB"], limit)
	if err != nil {
		h.logger.Error("History read failed", slog.Any("error", err))
		writeJSONError(w, "failed to load chat")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	_ = json.NewEncoder(w).Encode(msgs)
}

// handleDelete removes the conversation in both directions. Deleting an
// already-empty conversation still succeeds.
func (h *HistoryAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)

	count, err := h.store.DeleteConversation(r.Context(), vars["identityA"], vars["identityB"])
	if err != nil {
		h.logger.Error("Conversation delete failed", slog.Any("error", err))
		writeJSONError(w, "failed to delete chat")
		return
	}
	h.logger.Info("Conversation deleted", slog.String("identityA", vars["identityA"]), slog.String("identityB", vars["identityB"]), slog.Int("count", count))
	_, _ = w.Write([]byte(`{"success":true}`))
}
