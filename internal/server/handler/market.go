package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// MarketHandler serves market state endpoints.
type MarketHandler struct {
	markets domain.MarketStore
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets domain.MarketStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketView is the JSON shape returned for a market.
type marketView struct {
	ID               string     `json:"id"`
	Address          string     `json:"address,omitempty"`
	Question         string     `json:"question"`
	Status           string     `json:"status"`
	Outcome          string     `json:"outcome"`
	TotalYesStake    uint64     `json:"total_yes_stake"`
	TotalNoStake     uint64     `json:"total_no_stake"`
	EvidenceCount    int        `json:"evidence_count"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	TranscriptDigest []byte     `json:"transcript_digest,omitempty"`
}

func toMarketView(m domain.Market) marketView {
	return marketView{
		ID:               m.ID,
		Address:          m.Address,
		Question:         m.Question,
		Status:           string(m.Status),
		Outcome:          m.Outcome.String(),
		TotalYesStake:    m.TotalYesStake,
		TotalNoStake:     m.TotalNoStake,
		EvidenceCount:    m.EvidenceCount,
		CreatedAt:        m.CreatedAt,
		ResolvedAt:       m.ResolvedAt,
		TranscriptDigest: m.TranscriptDigest,
	}
}

// ListMarkets returns markets filtered by status.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusOpen
	}

	markets, err := h.markets.ListByStatus(r.Context(), status, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, toMarketView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": views})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketView(market))
}

// CreateMarket registers a market in the local store so it can accumulate
// evidence and be scheduled for resolution.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Question string `json:"question"`
		Address  string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "id and question are required")
		return
	}
	if len(req.Question) > domain.MaxQuestionLen {
		writeError(w, http.StatusBadRequest, "question too long")
		return
	}

	m := domain.Market{
		ID:        req.ID,
		Address:   req.Address,
		Question:  req.Question,
		Status:    domain.MarketStatusOpen,
		Outcome:   domain.OutcomeUnset,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.markets.Upsert(r.Context(), m); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("market_id", req.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, toMarketView(m))
}
