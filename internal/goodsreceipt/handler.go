package goodsreceipt

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler exposes goods receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers goods receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/post", h.post)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type receiptRequest struct {
	SupplierID int64                `json:"supplier_id" validate:"required,gt=0"`
	LocationID int64                `json:"location_id" validate:"required,gt=0"`
	ReceivedAt string               `json:"received_at,omitempty"`
	Note       string               `json:"note"`
	Lines      []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiptLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       string `json:"qty" validate:"required"`
	Unit      string `json:"unit"`
	UnitCost  string `json:"unit_cost"`
	BatchNo   string `json:"batch_no,omitempty"`
	Expiry    string `json:"expiry,omitempty"`
}

type receiptLineResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Qty       string `json:"qty"`
	Unit      string `json:"unit"`
	UnitCost  string `json:"unit_cost"`
	BatchNo   string `json:"batch_no,omitempty"`
	Expiry    string `json:"expiry,omitempty"`
}

type receiptResponse struct {
	ID         int64                 `json:"id"`
	Number     string                `json:"number"`
	SupplierID int64                 `json:"supplier_id"`
	LocationID int64                 `json:"location_id"`
	Status     string                `json:"status"`
	ReceivedAt time.Time             `json:"received_at"`
	Note       string                `json:"note,omitempty"`
	Total      string                `json:"total"`
	Lines      []receiptLineResponse `json:"lines,omitempty"`
}

func toReceiptResponse(doc GoodsReceipt) receiptResponse {
	resp := receiptResponse{
		ID:         doc.ID,
		Number:     doc.Number,
		SupplierID: doc.SupplierID,
		LocationID: doc.LocationID,
		Status:     string(doc.Status),
		ReceivedAt: doc.ReceivedAt,
		Note:       doc.Note,
		Total:      doc.Total().String(),
	}
	for _, line := range doc.Lines {
		lr := receiptLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Qty:       line.Qty.String(),
			Unit:      line.Unit,
			UnitCost:  line.UnitCost.String(),
			BatchNo:   line.BatchNo,
		}
		if line.Expiry != nil {
			lr.Expiry = line.Expiry.Format("2006-01-02")
		}
		resp.Lines = append(resp.Lines, lr)
	}
	return resp
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (CreateInput, bool) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return CreateInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateInput{}, false
	}
	input := CreateInput{SupplierID: req.SupplierID, LocationID: req.LocationID, Note: req.Note}
	if req.ReceivedAt != "" {
		at, err := time.Parse(time.RFC3339, req.ReceivedAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid received_at")
			return CreateInput{}, false
		}
		input.ReceivedAt = at
	}
	for _, line := range req.Lines {
		qty, err := decimal.NewFromString(line.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return CreateInput{}, false
		}
		cost := decimal.Zero
		if line.UnitCost != "" {
			cost, err = decimal.NewFromString(line.UnitCost)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_cost")
				return CreateInput{}, false
			}
		}
		li := LineInput{ProductID: line.ProductID, Qty: qty, Unit: line.Unit, UnitCost: cost, BatchNo: line.BatchNo}
		if line.Expiry != "" {
			expiry, err := time.Parse("2006-01-02", line.Expiry)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expiry")
				return CreateInput{}, false
			}
			li.Expiry = &expiry
		}
		input.Lines = append(input.Lines, li)
	}
	return input, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(doc))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Update(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(doc))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(doc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]receiptResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toReceiptResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"goods_receipts": out,
		"pagination":     shared.NewPagination(filter.Pagination.Page, filter.Pagination.PerPage, total),
	})
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Post(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusPosted)})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusCancelled)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func parseListFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("q"),
	}
	if v := q.Get("supplier_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplier_id")
			return ListFilter{}, false
		}
		filter.SupplierID = id
	}
	if v := q.Get("location_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location_id")
			return ListFilter{}, false
		}
		filter.LocationID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return ListFilter{}, false
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return ListFilter{}, false
		}
		filter.To = t
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter.Pagination = shared.NewPagination(page, perPage, 0)
	return filter, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyCancelled):
		httpx.Problem(w, http.StatusConflict, "Already Cancelled", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, masterdata.ErrUnknownReference):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Reference", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock), errors.Is(err, batch.ErrInsufficientBatchQuantity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("goods receipt request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
