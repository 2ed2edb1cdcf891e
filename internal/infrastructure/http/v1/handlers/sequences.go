package handlers

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/core/sequence"
	"backoffice/internal/infrastructure/http/v1/dto"
)

// SequenceHandler exposes counter administration.
type SequenceHandler struct {
	*BaseHandler
	admin sequence.Admin
}

// NewSequenceHandler creates a counter admin handler.
func NewSequenceHandler(base *BaseHandler, admin sequence.Admin) *SequenceHandler {
	return &SequenceHandler{BaseHandler: base, admin: admin}
}

// RegisterRoutes mounts the counter admin endpoints on rg.
func (h *SequenceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:key", h.Get)
	rg.PUT("/:key/active", h.SetActive)
}

// Create POST /sequences
func (h *SequenceHandler) Create(c *gin.Context) {
	var req dto.CreateSequenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	kind, prefix, err := sequence.ParseKey(req.Key)
	if err != nil {
		h.Error(c, err)
		return
	}
	if req.NextValue == 0 {
		req.NextValue = 1
	}

	info, err := h.admin.Create(c.Request.Context(), kind.Key(prefix), req.NextValue)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSequenceInfo(info, kind, prefix))
}

// Get GET /sequences/:key
func (h *SequenceHandler) Get(c *gin.Context) {
	kind, prefix, err := sequence.ParseKey(c.Param("key"))
	if err != nil {
		h.Error(c, err)
		return
	}
	info, err := h.admin.Get(c.Request.Context(), kind.Key(prefix))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSequenceInfo(info, kind, prefix))
}

// SetActive PUT /sequences/:key/active
func (h *SequenceHandler) SetActive(c *gin.Context) {
	kind, prefix, err := sequence.ParseKey(c.Param("key"))
	if err != nil {
		h.Error(c, err)
		return
	}
	var req dto.SetSequenceActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	key := kind.Key(prefix)
	if err := h.admin.SetActive(ctx, key, *req.Active); err != nil {
		h.Error(c, err)
		return
	}
	info, err := h.admin.Get(ctx, key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSequenceInfo(info, kind, prefix))
}
