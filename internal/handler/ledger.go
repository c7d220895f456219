package handler

import (
	"net/http"

	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	ledger service.LedgerService
	audit  service.AuditService
}

func NewLedgerHandler(ledger service.LedgerService, audit service.AuditService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, audit: audit}
}

// GetLedger godoc
// @Summary Current ledger of a bill
// @Tags bills
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Success 200 {object} dto.LedgerResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/bills/{billing_id}/ledger [get]
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	resp, err := h.ledger.GetLedger(c.Request.Context(), c.Param("billing_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ApplyDiscount godoc
// @Summary Apply a bill-level discount
// @Tags bills
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Param body body dto.ApplyDiscountRequest true "Discount"
// @Success 200 {object} dto.LedgerResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/bills/{billing_id}/discounts [post]
func (h *LedgerHandler) ApplyDiscount(c *gin.Context) {
	var req dto.ApplyDiscountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.BillingID = c.Param("billing_id")

	resp, err := h.ledger.ApplyDiscount(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CloseBill godoc
// @Summary Stamp the bill as closed
// @Tags bills
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Success 200 {object} dto.LedgerResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/bills/{billing_id}/close [post]
func (h *LedgerHandler) CloseBill(c *gin.Context) {
	resp, err := h.ledger.CloseBill(c.Request.Context(), actorID(c), c.Param("billing_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reconcile godoc
// @Summary Compare ledger totals with payment and refund rows
// @Tags bills
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Success 200 {object} dto.ReconcileResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/bills/{billing_id}/reconcile [get]
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	resp, err := h.ledger.Reconcile(c.Request.Context(), c.Param("billing_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListLogs godoc
// @Summary Audit trail of a bill, newest first
// @Tags bills
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Param page query int false "Page (1-based)"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} dto.AuditLogListResponse
// @Router /v1/bills/{billing_id}/logs [get]
func (h *LedgerHandler) ListLogs(c *gin.Context) {
	resp, err := h.audit.ListLogs(c.Request.Context(), c.Param("billing_id"),
		queryInt(c, "page", 1), queryInt(c, "page_size", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
