package adjustment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler exposes stock adjustment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/adjustments", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type adjustmentRequest struct {
	LocationID int64                   `json:"location_id" validate:"required,gt=0"`
	ReasonCode string                  `json:"reason_code" validate:"required"`
	Note       string                  `json:"note"`
	Lines      []adjustmentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type adjustmentLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       string `json:"qty" validate:"required"`
	Unit      string `json:"unit"`
	UnitCost  string `json:"unit_cost"`
	Note      string `json:"note"`
}

type decisionRequest struct {
	Note string `json:"note"`
}

type adjustmentLineResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Qty       string `json:"qty"`
	Unit      string `json:"unit"`
	UnitCost  string `json:"unit_cost"`
	Movement  string `json:"movement_type"`
	Note      string `json:"note,omitempty"`
}

type adjustmentResponse struct {
	ID         int64                    `json:"id"`
	Number     string                   `json:"number"`
	LocationID int64                    `json:"location_id"`
	ReasonCode string                   `json:"reason_code"`
	Status     string                   `json:"status"`
	Note       string                   `json:"note,omitempty"`
	Lines      []adjustmentLineResponse `json:"lines,omitempty"`
}

func toAdjustmentResponse(doc Adjustment) adjustmentResponse {
	resp := adjustmentResponse{
		ID:         doc.ID,
		Number:     doc.Number,
		LocationID: doc.LocationID,
		ReasonCode: doc.ReasonCode,
		Status:     string(doc.Status),
		Note:       doc.Note,
	}
	for _, line := range doc.Lines {
		resp.Lines = append(resp.Lines, adjustmentLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Qty:       line.Qty.String(),
			Unit:      line.Unit,
			UnitCost:  line.UnitCost.String(),
			Movement:  string(line.MovementType()),
			Note:      line.Note,
		})
	}
	return resp
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (CreateInput, bool) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return CreateInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateInput{}, false
	}
	input := CreateInput{LocationID: req.LocationID, ReasonCode: req.ReasonCode, Note: req.Note}
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
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: qty, Unit: line.Unit, UnitCost: cost, Note: line.Note})
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
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(doc))
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
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(doc))
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
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(doc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), ReasonCode: q.Get("reason_code"), Search: q.Get("q")}
	if v := q.Get("location_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location_id")
			return
		}
		filter.LocationID = id
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter.Pagination = shared.NewPagination(page, perPage, 0)

	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]adjustmentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toAdjustmentResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"adjustments": out,
		"pagination":  shared.NewPagination(filter.Pagination.Page, filter.Pagination.PerPage, total),
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.Approve(r.Context(), id, shared.ActorFromContext(r.Context()), req.Note); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusApproved)})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.Reject(r.Context(), id, shared.ActorFromContext(r.Context()), req.Note); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusCancelled)})
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
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrReasonRequired), errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("adjustment request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
