package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// TriggerScheduler is the scheduling surface the resolution handler consumes.
type TriggerScheduler interface {
	Schedule(marketID string, delay time.Duration, sourceContent string) error
	Cancel(marketID string) bool
	Pending() []string
}

// SettlementOps is the executor surface the resolution handler consumes.
type SettlementOps interface {
	DisputeMarket(ctx context.Context, marketID string) error
	ResumeDistribution(ctx context.Context, marketID string) (domain.DistributionResult, error)
}

// ResolutionHandler triggers, schedules, and cancels resolution runs, and
// exposes the dispute and resume-distribution transitions.
type ResolutionHandler struct {
	scheduler TriggerScheduler
	executor  SettlementOps
	evidence  domain.EvidenceStore
	logger    *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(scheduler TriggerScheduler, executor SettlementOps, evidence domain.EvidenceStore, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		scheduler: scheduler,
		executor:  executor,
		evidence:  evidence,
		logger:    logger,
	}
}

// triggerBody is the optional request body for Trigger and Schedule.
// Pre-supplied evidence is appended to the market's evidence list before the
// run starts, and source content is handed to the first research pass.
type triggerBody struct {
	DelaySeconds  int    `json:"delay_seconds"`
	SourceContent string `json:"source_content"`
	Evidence      []struct {
		CID         string `json:"cid"`
		Description string `json:"description"`
		Submitter   string `json:"submitter"`
	} `json:"evidence"`
}

// decodeTriggerBody reads the optional JSON body. A missing body is valid and
// yields the zero value.
func decodeTriggerBody(r *http.Request) (triggerBody, error) {
	var body triggerBody
	if r.Body == nil || r.ContentLength == 0 {
		return body, nil
	}
	err := decodeBody(r, &body)
	return body, err
}

// appendEvidence stores pre-supplied evidence items so the research pass sees
// them alongside previously submitted material.
func (h *ResolutionHandler) appendEvidence(r *http.Request, marketID string, body triggerBody) error {
	for _, e := range body.Evidence {
		if e.CID == "" && e.Description == "" {
			continue
		}
		item := domain.EvidenceItem{
			ID:          uuid.New().String(),
			MarketID:    marketID,
			CID:         e.CID,
			Description: e.Description,
			Submitter:   e.Submitter,
			SubmittedAt: time.Now().UTC(),
		}
		if err := h.evidence.Append(r.Context(), item); err != nil {
			return err
		}
	}
	return nil
}

// Trigger starts a resolution run for a market immediately, optionally with
// pre-supplied evidence and source content for the first research pass. The
// run executes in the background; progress is observable on the log stream.
// POST /api/resolve/{id}
func (h *ResolutionHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	body, err := decodeTriggerBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.appendEvidence(r, id, body); err != nil {
		if errors.Is(err, domain.ErrTooMuchEvidence) {
			writeError(w, http.StatusConflict, "evidence limit reached")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store evidence")
		return
	}

	if err := h.scheduler.Schedule(id, 0, body.SourceContent); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trigger resolution failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"market_id": id,
		"state":     "triggered",
	})
}

// Schedule arms a delayed resolution trigger.
// POST /api/resolve/{id}/schedule  {"delay_seconds": 3600}
func (h *ResolutionHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	body, err := decodeTriggerBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.DelaySeconds < 0 {
		writeError(w, http.StatusBadRequest, "delay_seconds must be non-negative")
		return
	}
	if err := h.appendEvidence(r, id, body); err != nil {
		if errors.Is(err, domain.ErrTooMuchEvidence) {
			writeError(w, http.StatusConflict, "evidence limit reached")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store evidence")
		return
	}

	if err := h.scheduler.Schedule(id, time.Duration(body.DelaySeconds)*time.Second, body.SourceContent); err != nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"market_id":     id,
		"state":         "scheduled",
		"delay_seconds": body.DelaySeconds,
	})
}

// CancelSchedule disarms a pending trigger. Returns 404 when no trigger is
// pending (including when the run has already started).
// DELETE /api/resolve/{id}/schedule
func (h *ResolutionHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if !h.scheduler.Cancel(id) {
		writeError(w, http.StatusNotFound, "no pending resolution for market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"state":     "cancelled",
	})
}

// ListScheduled returns the market IDs with an armed trigger.
// GET /api/resolve/scheduled
func (h *ResolutionHandler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pending": h.scheduler.Pending()})
}

// Resume runs reward distribution for a market the ledger has already
// resolved, taking the committed outcome from the ledger. This is the operator
// recovery path for crashed runs and resolve conflicts.
// POST /api/resolve/{id}/resume
func (h *ResolutionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	res, err := h.executor.ResumeDistribution(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketNotOpen):
			writeError(w, http.StatusConflict, "market is not resolved on the ledger")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resume distribution failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "resume failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":   id,
		"distributed": res.Distributed,
		"failed":      res.Failed,
		"total":       res.Total,
	})
}

// Dispute transitions a resolved market to disputed.
// POST /api/markets/{id}/dispute
func (h *ResolutionHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if err := h.executor.DisputeMarket(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: dispute failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusConflict, "market cannot be disputed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"state":     "disputed",
	})
}
