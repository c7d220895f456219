package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type CajaHandler struct{ svc service.CajaService }

func NewCajaHandler(svc service.CajaService) *CajaHandler { return &CajaHandler{svc: svc} }

// Open godoc
// @Summary Open a caja session for a scope
// @Description scope defaults to the token's scope claim.
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenCajaRequest true "Opening data"
// @Success 201 {object} dto.CajaSessionResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/caja/open [post]
func (h *CajaHandler) Open(c *gin.Context) {
	var req dto.OpenCajaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Scope = scopeOr(c, req.Scope)

	resp, err := h.svc.OpenCaja(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary Close the open caja session of a scope
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CloseCajaRequest true "Counted balance"
// @Success 200 {object} dto.SessionReportResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/caja/close [post]
func (h *CajaHandler) Close(c *gin.Context) {
	var req dto.CloseCajaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Scope = scopeOr(c, req.Scope)

	resp, err := h.svc.CloseCaja(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetActive godoc
// @Summary Open caja session of a scope
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Param scope query string false "Scope (defaults to the token's scope)"
// @Success 200 {object} dto.CajaSessionResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/caja/active [get]
func (h *CajaHandler) GetActive(c *gin.Context) {
	resp, err := h.svc.GetActiveSession(c.Request.Context(), scopeOr(c, c.Query("scope")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetReport godoc
// @Summary Report of a caja session
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionReportResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/caja/{id}/report [get]
func (h *CajaHandler) GetReport(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", apierror.CodeSessionNotFound, "caja session")
	if !ok {
		return
	}
	resp, err := h.svc.GetSessionReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadReportPDF godoc
// @Summary Report of a caja session as PDF
// @Tags caja
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/caja/{id}/report.pdf [get]
func (h *CajaHandler) DownloadReportPDF(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", apierror.CodeSessionNotFound, "caja session")
	if !ok {
		return
	}
	// Rendered into a buffer so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := h.svc.WriteSessionReportPDF(c.Request.Context(), id, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="caja_%s.pdf"`, id))
	c.Data(http.StatusOK, mimePDF, buf.Bytes())
}

// History godoc
// @Summary Caja sessions, newest first
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Param scope query string false "Scope filter"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} dto.SessionHistoryResponse
// @Router /v1/caja/history [get]
func (h *CajaHandler) History(c *gin.Context) {
	resp, err := h.svc.GetSessionsHistory(c.Request.Context(), c.Query("scope"),
		queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ExportHistory godoc
// @Summary Caja sessions as an XLSX workbook
// @Tags caja
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param scope query string false "Scope filter"
// @Success 200 {file} binary
// @Router /v1/caja/history/export [get]
func (h *CajaHandler) ExportHistory(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.ExportSessionsHistory(c.Request.Context(), c.Query("scope"), &buf); err != nil {
		respondError(c, err)
		return
	}
	name := fmt.Sprintf("caja_sessions_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, mimeXLSX, buf.Bytes())
}
