package handlers

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/domain/employee"
	"backoffice/internal/domain/payslip"
	"backoffice/internal/infrastructure/http/v1/dto"
)

// EmployeeHandler issues employee business IDs.
type EmployeeHandler struct {
	*BaseHandler
	service *employee.Service
}

// NewEmployeeHandler creates an employee ID handler.
func NewEmployeeHandler(base *BaseHandler, service *employee.Service) *EmployeeHandler {
	return &EmployeeHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the employee ID endpoints on rg.
func (h *EmployeeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/next-id", h.PreviewNext)
	rg.POST("/ids", h.Next)
	rg.POST("/ids/learn", h.Learn)
}

// PreviewNext GET /employees/next-id?prefix=FE
func (h *EmployeeHandler) PreviewNext(c *gin.Context) {
	var q dto.PrefixQuery
	if !h.BindQuery(c, &q) {
		return
	}
	next, err := h.service.PreviewNextID(c.Request.Context(), q.Prefix)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.IdentifierResponse{ID: next})
}

// Next POST /employees/ids
func (h *EmployeeHandler) Next(c *gin.Context) {
	var req dto.NextEmployeeIDRequest
	if !h.BindJSON(c, &req) {
		return
	}
	next, err := h.service.NextID(c.Request.Context(), req.Prefix, req.CreatePrefix)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.IdentifierResponse{ID: next})
}

// Learn POST /employees/ids/learn
func (h *EmployeeHandler) Learn(c *gin.Context) {
	var req dto.LearnEmployeeIDRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ident, err := h.service.LearnManualID(c.Request.Context(), req.EmployeeID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLearned(ident))
}

// PayslipHandler issues payslip IDs.
type PayslipHandler struct {
	*BaseHandler
	service *payslip.Service
}

// NewPayslipHandler creates a payslip ID handler.
func NewPayslipHandler(base *BaseHandler, service *payslip.Service) *PayslipHandler {
	return &PayslipHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the payslip ID endpoints on rg.
func (h *PayslipHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/next-id", h.PreviewNext)
	rg.POST("/ids", h.Next)
}

// PreviewNext GET /payslips/next-id
func (h *PayslipHandler) PreviewNext(c *gin.Context) {
	next, err := h.service.PreviewNextID(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.IdentifierResponse{ID: next})
}

// Next POST /payslips/ids
func (h *PayslipHandler) Next(c *gin.Context) {
	next, err := h.service.NextID(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.IdentifierResponse{ID: next})
}
