package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
)

// Handler exposes read-only ledger queries.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/balance", h.handleBalance)
	r.Get("/stock/card", h.handleHistory)
	r.Get("/stock/by-reference", h.handleByReference)
}

type entryResponse struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	LocationID   int64  `json:"location_id"`
	MovementType string `json:"movement_type"`
	Qty          string `json:"qty"`
	UnitCost     string `json:"unit_cost"`
	Balance      string `json:"balance"`
	RefType      string `json:"ref_type"`
	RefID        string `json:"ref_id"`
	CreatedBy    int64  `json:"created_by"`
	CreatedAt    string `json:"created_at"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:           e.ID,
		ProductID:    e.ProductID,
		LocationID:   e.LocationID,
		MovementType: string(e.MovementType),
		Qty:          e.Qty.String(),
		UnitCost:     e.UnitCost.String(),
		Balance:      e.Balance.String(),
		RefType:      e.RefType,
		RefID:        e.RefID.String(),
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	productID, locationID, ok := parsePair(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), productID, locationID)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":  productID,
		"location_id": locationID,
		"balance":     balance.String(),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	productID, locationID, ok := parsePair(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	filter := HistoryFilter{ProductID: productID, LocationID: locationID}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	entries, err := h.service.GetHistory(r.Context(), filter)
	if err != nil {
		if errors.Is(err, ErrInvalidMovement) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("get history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleByReference(w http.ResponseWriter, r *http.Request) {
	refType := r.URL.Query().Get("ref_type")
	refID, err := uuid.Parse(r.URL.Query().Get("ref_id"))
	if refType == "" || err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ref_type and ref_id are required")
		return
	}
	entries, err := h.service.GetByReference(r.Context(), refType, refID)
	if err != nil {
		h.logger.Error("get by reference", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func parsePair(r *http.Request) (int64, int64, bool) {
	q := r.URL.Query()
	productID, err1 := strconv.ParseInt(q.Get("product_id"), 10, 64)
	locationID, err2 := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if err1 != nil || err2 != nil || productID == 0 || locationID == 0 {
		return 0, 0, false
	}
	return productID, locationID, true
}
