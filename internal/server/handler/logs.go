package handler

import (
	"log/slog"
	"net/http"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// LogsHandler serves the narration stream.
type LogsHandler struct {
	logs   domain.LogStore
	logger *slog.Logger
}

// NewLogsHandler creates a LogsHandler.
func NewLogsHandler(logs domain.LogStore, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		logs:   logs,
		logger: logger,
	}
}

// Tail returns the newest global entries.
// GET /api/logs?limit=100
func (h *LogsHandler) Tail(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.logs.Tail(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: tail logs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// TailByMarket returns the newest entries for one market.
// GET /api/markets/{id}/logs?limit=100
func (h *LogsHandler) TailByMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	opts := parseListOpts(r)

	entries, err := h.logs.TailByMarket(r.Context(), id, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: tail market logs failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
