package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
)

// Handler exposes the alert endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.snapshot)
		r.Get("/low-stock", h.lowStock)
		r.Get("/expiring", h.expiring)
		r.Get("/expired", h.expired)
	})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	var (
		snap Snapshot
		err  error
	)
	if r.URL.Query().Get("refresh") == "true" {
		snap, err = h.service.Refresh(r.Context())
	} else {
		snap, err = h.service.Snapshot(r.Context())
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"low_stock": alerts})
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be a positive integer")
			return
		}
		days = parsed
	}
	alerts, err := h.service.Expiring(r.Context(), days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expiring": alerts})
}

func (h *Handler) expired(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.Expired(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expired": alerts})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.logger.Error("alert request failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
