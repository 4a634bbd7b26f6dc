package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/internal/inventory/service"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/httputil"
	"github.com/rsm/retail-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	repo     *repository.AlertRepository
	disposal *service.DisposalService
	logger   *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(repo *repository.AlertRepository, disposal *service.DisposalService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		repo:     repo,
		disposal: disposal,
		logger:   log,
	}
}

// List lists alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	var open *bool
	if o := r.URL.Query().Get("open"); o != "" {
		v := o == "true"
		open = &v
	}

	alertType := r.URL.Query().Get("type")

	alerts, total, err := h.repo.List(r.Context(), open, alertType, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets an alert by ID
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	alert, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// CountOpen returns the number of open alerts
func (h *AlertHandler) CountOpen(w http.ResponseWriter, r *http.Request) {
	count, err := h.repo.CountOpen(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int64{"open": count})
}

// MarkRead marks an alert as read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.repo.MarkRead(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Resolve resolves an open alert without touching stock
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.disposal.ResolveAlert(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// DisposeExpiredRequest identifies the alert, lot and account to dispose
type DisposeExpiredRequest struct {
	AlertID   int64 `json:"alert_id" validate:"required"`
	LotID     int64 `json:"lot_id" validate:"required"`
	AccountID int64 `json:"account_id" validate:"required"`
}

// DisposeExpired writes off the expired lot behind an alert
func (h *AlertHandler) DisposeExpired(w http.ResponseWriter, r *http.Request) {
	var req DisposeExpiredRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.disposal.DisposeExpired(r.Context(), req.AlertID, req.LotID, req.AccountID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.BadRequest("invalid " + name)
	}
	return id, nil
}
