package transfer

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

// Handler exposes stock transfer endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/post", h.post)
		r.Post("/{id}/receive", h.receive)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type transferRequest struct {
	SourceID int64                 `json:"source_id" validate:"required,gt=0"`
	DestID   int64                 `json:"dest_id" validate:"required,gt=0"`
	Note     string                `json:"note"`
	Lines    []transferLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type transferLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       string `json:"qty" validate:"required"`
	Unit      string `json:"unit"`
}

type receiveRequest struct {
	Lines []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiveLineRequest struct {
	LineID   int64  `json:"line_id" validate:"required,gt=0"`
	Received string `json:"received"`
	Damaged  string `json:"damaged"`
}

type transferLineResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	Qty         string `json:"qty"`
	Unit        string `json:"unit"`
	UnitCost    string `json:"unit_cost"`
	ReceivedQty string `json:"received_qty"`
	DamagedQty  string `json:"damaged_qty"`
	Status      string `json:"status"`
}

type transferResponse struct {
	ID       int64                  `json:"id"`
	Number   string                 `json:"number"`
	SourceID int64                  `json:"source_id"`
	DestID   int64                  `json:"dest_id"`
	Status   string                 `json:"status"`
	Note     string                 `json:"note,omitempty"`
	Lines    []transferLineResponse `json:"lines,omitempty"`
}

func toTransferResponse(doc Transfer) transferResponse {
	resp := transferResponse{
		ID:       doc.ID,
		Number:   doc.Number,
		SourceID: doc.SourceID,
		DestID:   doc.DestID,
		Status:   string(doc.Status),
		Note:     doc.Note,
	}
	for _, line := range doc.Lines {
		resp.Lines = append(resp.Lines, transferLineResponse{
			ID:          line.ID,
			ProductID:   line.ProductID,
			Qty:         line.Qty.String(),
			Unit:        line.Unit,
			UnitCost:    line.UnitCost.String(),
			ReceivedQty: line.ReceivedQty.String(),
			DamagedQty:  line.DamagedQty.String(),
			Status:      string(line.Status),
		})
	}
	return resp
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (CreateInput, bool) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return CreateInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateInput{}, false
	}
	input := CreateInput{SourceID: req.SourceID, DestID: req.DestID, Note: req.Note}
	for _, line := range req.Lines {
		qty, err := decimal.NewFromString(line.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
			return CreateInput{}, false
		}
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: qty, Unit: line.Unit})
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
	httpx.JSON(w, http.StatusCreated, toTransferResponse(doc))
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
	httpx.JSON(w, http.StatusOK, toTransferResponse(doc))
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
	httpx.JSON(w, http.StatusOK, toTransferResponse(doc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Search: q.Get("q")}
	if v := q.Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid source_id")
			return
		}
		filter.SourceID = id
	}
	if v := q.Get("dest_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid dest_id")
			return
		}
		filter.DestID = id
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter.Pagination = shared.NewPagination(page, perPage, 0)

	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]transferResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toTransferResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transfers":  out,
		"pagination": shared.NewPagination(filter.Pagination.Page, filter.Pagination.PerPage, total),
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
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusInTransit)})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipts := make([]ReceiveInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		rcv := ReceiveInput{LineID: line.LineID, Received: decimal.Zero, Damaged: decimal.Zero}
		var err error
		if line.Received != "" {
			if rcv.Received, err = decimal.NewFromString(line.Received); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid received qty")
				return
			}
		}
		if line.Damaged != "" {
			if rcv.Damaged, err = decimal.NewFromString(line.Damaged); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid damaged qty")
				return
			}
		}
		receipts = append(receipts, rcv)
	}
	doc, err := h.service.ReceiveItems(r.Context(), id, receipts, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(doc))
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
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyCancelled):
		httpx.Problem(w, http.StatusConflict, "Already Cancelled", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, masterdata.ErrUnknownReference):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Reference", err.Error())
	case errors.Is(err, ErrOverReceipt), errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Quantity Not Available", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("transfer request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
