package handler

import (
	"net/http"

	"github.com/rsm/retail-backend/internal/inventory/service"
	"github.com/rsm/retail-backend/pkg/httputil"
	"github.com/rsm/retail-backend/pkg/logger"
)

// ScanHandler exposes manual alert scan triggers. The scheduler covers
// normal operation; these endpoints exist for operators who do not want to
// wait out the interval after fixing data.
type ScanHandler struct {
	scanner *service.AlertScanner
	logger  *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(scanner *service.AlertScanner, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scanner: scanner,
		logger:  log,
	}
}

// ScanAll triggers a full alert scan
func (h *ScanHandler) ScanAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scanner.ScanAll(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// ScanLowStock triggers a low stock scan
func (h *ScanHandler) ScanLowStock(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scanner.ScanLowStock(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// ScanExpiry triggers an expiry scan
func (h *ScanHandler) ScanExpiry(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scanner.ScanExpiry(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
