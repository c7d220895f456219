package handler

import (
	"net/http"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentsHandler struct {
	payments service.PaymentService
	refunds  service.RefundService
}

func NewPaymentsHandler(payments service.PaymentService, refunds service.RefundService) *PaymentsHandler {
	return &PaymentsHandler{payments: payments, refunds: refunds}
}

// RegisterPayment godoc
// @Summary Record one or more payment lines against a bill
// @Description All lines and the ledger update commit atomically. A repeated
// @Description idempotency_key for the same bill returns the current ledger unchanged.
// @Description Lines are attributed to the caja session open in scope (or the token scope).
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RegisterPaymentRequest true "Payment batch"
// @Success 201 {object} dto.LedgerResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/payments [post]
func (h *PaymentsHandler) RegisterPayment(c *gin.Context) {
	var req dto.RegisterPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Scope = scopeOr(c, req.Scope)
	resp, err := h.payments.RegisterPayment(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListPayments godoc
// @Summary Payment rows of a bill, oldest first
// @Tags bills
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Success 200 {array} dto.PaymentResponse
// @Router /v1/bills/{billing_id}/payments [get]
func (h *PaymentsHandler) ListPayments(c *gin.Context) {
	resp, err := h.payments.ListPayments(c.Request.Context(), c.Param("billing_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ProcessRefund godoc
// @Summary Refund part or all of a payment
// @Tags refunds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Param body body dto.RefundRequest true "Refund"
// @Success 201 {object} dto.ProcessRefundResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/payments/{id}/refunds [post]
func (h *PaymentsHandler) ProcessRefund(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", apierror.CodePaymentNotFound, "payment")
	if !ok {
		return
	}
	var req dto.RefundRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Scope = scopeOr(c, req.Scope)
	resp, err := h.refunds.ProcessRefund(c.Request.Context(), actorID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetRefundsByPayment godoc
// @Summary Refunds of a payment
// @Tags refunds
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {array} dto.RefundResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/payments/{id}/refunds [get]
func (h *PaymentsHandler) GetRefundsByPayment(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", apierror.CodePaymentNotFound, "payment")
	if !ok {
		return
	}
	resp, err := h.refunds.GetRefundsByPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetRefundsByBilling godoc
// @Summary Refunds of every payment of a bill
// @Tags bills
// @Produce json
// @Security BearerAuth
// @Param billing_id path string true "Billing ID"
// @Success 200 {array} dto.RefundResponse
// @Router /v1/bills/{billing_id}/refunds [get]
func (h *PaymentsHandler) GetRefundsByBilling(c *gin.Context) {
	resp, err := h.refunds.GetRefundsByBilling(c.Request.Context(), c.Param("billing_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
