package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// SettlementHandler exposes settled artifacts: transcripts, distribution
// results, per-winner disbursements, and the audit log.
type SettlementHandler struct {
	transcripts   domain.TranscriptStore
	distributions domain.DistributionStore
	audit         domain.AuditStore
	logger        *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(transcripts domain.TranscriptStore, distributions domain.DistributionStore, audit domain.AuditStore, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		transcripts:   transcripts,
		distributions: distributions,
		audit:         audit,
		logger:        logger,
	}
}

// GetTranscript returns a market's anchored transcript record with the raw
// bundle inline.
// GET /api/markets/{id}/transcript
func (h *SettlementHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	rec, err := h.transcripts.GetByMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transcript not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":   rec.MarketID,
		"cid":         rec.CID,
		"digest":      rec.Digest,
		"pinned":      rec.Pinned,
		"anchored_at": rec.AnchoredAt,
		"bundle":      rawBundle(rec.Bundle),
	})
}

// GetDistribution returns a market's distribution summary and disbursements.
// GET /api/markets/{id}/distribution
func (h *SettlementHandler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	res, err := h.distributions.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no distribution for market")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load distribution")
		return
	}

	disbursements, err := h.distributions.ListDisbursements(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list disbursements failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load disbursements")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":        res,
		"disbursements": disbursements,
	})
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit?limit=100
func (h *SettlementHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
