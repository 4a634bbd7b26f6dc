package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/internal/inventory/service"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/httputil"
	"github.com/rsm/retail-backend/pkg/logger"
)

// StockHandler handles stock ledger endpoints
type StockHandler struct {
	stock  *service.StockService
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(stock *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		stock:  stock,
		logger: log,
	}
}

// ReceiveStockRequest describes a delivery to book in
type ReceiveStockRequest struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	BranchID    *int64  `json:"branch_id,omitempty"`
	WarehouseID *int64  `json:"warehouse_id,omitempty"`
	LotCode     *string `json:"lot_code,omitempty"`
	ExpiredDate *string `json:"expired_date,omitempty"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
}

// Receive books a delivery in as a new lot
func (h *StockHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	var expiredDate *time.Time
	if req.ExpiredDate != nil {
		d, err := time.Parse("2006-01-02", *req.ExpiredDate)
		if err != nil {
			httputil.Error(w, errors.BadRequest("expired_date must be YYYY-MM-DD"))
			return
		}
		expiredDate = &d
	}

	lot, err := h.stock.Receive(r.Context(), &service.ReceiveStockInput{
		ProductID:   req.ProductID,
		BranchID:    req.BranchID,
		WarehouseID: req.WarehouseID,
		LotCode:     req.LotCode,
		ExpiredDate: expiredDate,
		Quantity:    req.Quantity,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lot)
}

// DeductStockRequest describes a manual deduction
type DeductStockRequest struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	BranchID    *int64 `json:"branch_id,omitempty"`
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	Reference   string `json:"reference,omitempty"`
}

// Deduct removes stock from a product x location
func (h *StockHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req DeductStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	key := repository.LocationKey{
		ProductID:   req.ProductID,
		BranchID:    req.BranchID,
		WarehouseID: req.WarehouseID,
	}
	if err := h.stock.DeductForSale(r.Context(), key, req.Quantity, req.Reference); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// QuantityRequest carries a bare quantity
type QuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// Reserve holds stock on an account
func (h *StockHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.adjustReservation(w, r, h.stock.Reserve)
}

// Release returns held stock on an account
func (h *StockHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.adjustReservation(w, r, h.stock.Release)
}

func (h *StockHandler) adjustReservation(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64, int) error) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req QuantityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := apply(r.Context(), id, req.Quantity); err != nil {
		httputil.Error(w, err)
		return
	}

	account, err := h.stock.GetAccount(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// Recount resets an account's on-hand quantity from its lots
func (h *StockHandler) Recount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	account, err := h.stock.Recount(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// GetAccount gets an account by ID
func (h *StockHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	account, err := h.stock.GetAccount(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// ListAccounts lists the accounts for a product
func (h *StockHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID < 1 {
		httputil.Error(w, errors.BadRequest("product_id query parameter is required"))
		return
	}

	accounts, err := h.stock.ListAccounts(r.Context(), productID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, accounts)
}

// ListLots lists the lots behind an account
func (h *StockHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lots, err := h.stock.ListLots(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// RecordAuditRequest describes a physical stock count
type RecordAuditRequest struct {
	BranchID   int64   `json:"branch_id" validate:"required"`
	ProductID  int64   `json:"product_id" validate:"required"`
	CountedQty int     `json:"counted_qty" validate:"gte=0"`
	ScannedBy  *string `json:"scanned_by,omitempty"`
}

// RecordAudit records a physical stock count
func (h *StockHandler) RecordAudit(w http.ResponseWriter, r *http.Request) {
	var req RecordAuditRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	audit, err := h.stock.RecordAudit(r.Context(), req.BranchID, req.ProductID, req.CountedQty, req.ScannedBy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, audit)
}

// ListAudits lists recent audits for a product
func (h *StockHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	audits, err := h.stock.ListAudits(r.Context(), productID, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, audits)
}
