package batch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
)

// Handler exposes batch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the batch handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/batches", h.create)
	r.Get("/batches/expiring", h.listExpiring)
	r.Get("/batches/expired", h.listExpired)
	r.Get("/batches/{id}", h.get)
	r.Get("/products/{id}/batches", h.listByProduct)
}

type createBatchRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	BatchNo   string `json:"batch_no" validate:"required"`
	Quantity  string `json:"quantity" validate:"required"`
	Unit      string `json:"unit"`
	Expiry    string `json:"expiry,omitempty"`
}

type batchResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	BatchNo   string `json:"batch_no"`
	Quantity  string `json:"quantity"`
	Unit      string `json:"unit"`
	Expiry    string `json:"expiry,omitempty"`
	Status    string `json:"status"`
}

func toBatchResponse(b Batch) batchResponse {
	resp := batchResponse{
		ID:        b.ID,
		ProductID: b.ProductID,
		BatchNo:   b.BatchNo,
		Quantity:  b.Quantity.String(),
		Unit:      b.Unit,
		Status:    string(b.Status),
	}
	if b.Expiry != nil {
		resp.Expiry = b.Expiry.Format("2006-01-02")
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity")
		return
	}
	in := CreateInput{ProductID: req.ProductID, BatchNo: req.BatchNo, Quantity: qty, Unit: req.Unit}
	if req.Expiry != "" {
		expiry, err := time.Parse("2006-01-02", req.Expiry)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expiry date")
			return
		}
		in.Expiry = &expiry
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(created))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(b))
}

func (h *Handler) listByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	batches, err := h.service.ListByProduct(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": toBatchResponses(batches)})
}

func (h *Handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid days")
			return
		}
		days = n
	}
	batches, err := h.service.GetExpiring(r.Context(), days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": toBatchResponses(batches)})
}

func (h *Handler) listExpired(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.GetExpired(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": toBatchResponses(batches)})
}

func toBatchResponses(batches []Batch) []batchResponse {
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	return out
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateBatch):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInsufficientBatchQuantity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Quantity", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("batch request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
