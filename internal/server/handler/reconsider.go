package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/reconsider"
)

// reconsiderationView is the wire shape of a reconsideration result.
type reconsiderationView struct {
	ID              string    `json:"id"`
	MarketID        string    `json:"market_id"`
	Recommendation  string    `json:"recommendation"`
	ConfidenceDelta int       `json:"confidence_delta"`
	NewOutcome      string    `json:"new_outcome"`
	Annotation      string    `json:"annotation,omitempty"`
	Reasoning       string    `json:"reasoning"`
	CreatedAt       time.Time `json:"created_at"`
}

func toReconsiderationView(res domain.ReconsiderationResult) reconsiderationView {
	return reconsiderationView{
		ID:              res.ID,
		MarketID:        res.MarketID,
		Recommendation:  string(res.Recommendation),
		ConfidenceDelta: res.ConfidenceDelta,
		NewOutcome:      res.NewOutcome.String(),
		Annotation:      res.Annotation,
		Reasoning:       res.Reasoning,
		CreatedAt:       res.CreatedAt,
	}
}

// ReconsiderHandler runs and lists advisory reconsiderations.
type ReconsiderHandler struct {
	orchestrator *reconsider.Orchestrator
	results      domain.ReconsiderationStore
	logger       *slog.Logger
}

// NewReconsiderHandler creates a ReconsiderHandler.
func NewReconsiderHandler(orchestrator *reconsider.Orchestrator, results domain.ReconsiderationStore, logger *slog.Logger) *ReconsiderHandler {
	return &ReconsiderHandler{
		orchestrator: orchestrator,
		results:      results,
		logger:       logger,
	}
}

// Run re-evaluates a settled market against new evidence and returns the
// advisory recommendation. The call is synchronous; generation pacing makes
// it take a few seconds.
// POST /api/markets/{id}/reconsider
func (h *ReconsiderHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req struct {
		EvidenceCID  string `json:"evidence_cid"`
		EvidenceDesc string `json:"evidence_description"`
		Submitter    string `json:"submitter"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EvidenceCID == "" && req.EvidenceDesc == "" {
		writeError(w, http.StatusBadRequest, "evidence_cid or evidence_description is required")
		return
	}

	res, err := h.orchestrator.Run(r.Context(), domain.ReconsiderationRequest{
		MarketID:     id,
		EvidenceCID:  req.EvidenceCID,
		EvidenceDesc: req.EvidenceDesc,
		Submitter:    req.Submitter,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketNotOpen):
			writeError(w, http.StatusConflict, "market is not settled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: reconsideration failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "reconsideration failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toReconsiderationView(res))
}

// List returns a market's reconsideration history.
// GET /api/markets/{id}/reconsiderations
func (h *ReconsiderHandler) List(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	results, err := h.results.ListByMarket(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reconsiderations")
		return
	}
	views := make([]reconsiderationView, 0, len(results))
	for _, res := range results {
		views = append(views, toReconsiderationView(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reconsiderations": views})
}
