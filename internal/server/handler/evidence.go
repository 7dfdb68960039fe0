package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/settle"
)

// evidenceRewardAmount is the reputation credit minted per accepted evidence
// submission.
const evidenceRewardAmount uint64 = 5

// EvidenceHandler accepts and lists evidence submissions.
type EvidenceHandler struct {
	evidence domain.EvidenceStore
	markets  domain.MarketStore
	executor *settle.Executor
	logger   *slog.Logger
}

// NewEvidenceHandler creates an EvidenceHandler. executor may be nil to
// disable submission rewards.
func NewEvidenceHandler(evidence domain.EvidenceStore, markets domain.MarketStore, executor *settle.Executor, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		evidence: evidence,
		markets:  markets,
		executor: executor,
		logger:   logger,
	}
}

// Submit appends one evidence item to a market.
// POST /api/markets/{id}/evidence
func (h *EvidenceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req struct {
		CID         string `json:"cid"`
		Description string `json:"description"`
		Submitter   string `json:"submitter"`
		Filename    string `json:"filename"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CID == "" && req.Description == "" {
		writeError(w, http.StatusBadRequest, "cid or description is required")
		return
	}
	if len(req.CID) > domain.MaxCIDLen {
		writeError(w, http.StatusBadRequest, "cid too long")
		return
	}

	market, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load market")
		return
	}
	if market.Status == domain.MarketStatusResolved {
		writeError(w, http.StatusConflict, "market already resolved")
		return
	}

	item := domain.EvidenceItem{
		ID:          uuid.NewString(),
		MarketID:    id,
		CID:         req.CID,
		Description: req.Description,
		Submitter:   req.Submitter,
		Filename:    req.Filename,
		SubmittedAt: time.Now().UTC(),
	}
	if err := h.evidence.Append(r.Context(), item); err != nil {
		if errors.Is(err, domain.ErrTooMuchEvidence) {
			writeError(w, http.StatusConflict, "evidence limit reached")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: append evidence failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store evidence")
		return
	}

	if h.executor != nil && req.Submitter != "" {
		if err := h.executor.RewardEvidence(r.Context(), req.Submitter, evidenceRewardAmount); err != nil {
			// Reward failure never rejects the submission.
			h.logger.WarnContext(r.Context(), "handler: evidence reward failed",
				slog.String("submitter", req.Submitter),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusCreated, item)
}

// List returns a market's evidence in submission order.
// GET /api/markets/{id}/evidence
func (h *EvidenceHandler) List(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	items, err := h.evidence.ListByMarket(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list evidence")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": items})
}
