package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"backoffice/internal/domain/labels"
	"backoffice/internal/infrastructure/http/v1/dto"
	"backoffice/internal/infrastructure/objectstore"
)

// HeaderArtifactKey names the stored artifact when the PDF is returned inline.
const HeaderArtifactKey = "X-Artifact-Key"

// LabelHandler serves label generation and stored artifacts.
type LabelHandler struct {
	*BaseHandler
	service   *labels.Service
	artifacts objectstore.Store
}

// NewLabelHandler creates a label handler. artifacts may be nil, in which
// case the artifact routes are not registered.
func NewLabelHandler(base *BaseHandler, service *labels.Service, artifacts objectstore.Store) *LabelHandler {
	return &LabelHandler{BaseHandler: base, service: service, artifacts: artifacts}
}

// RegisterRoutes mounts the label endpoints on rg.
func (h *LabelHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Generate)
	rg.GET("/next-serial", h.PreviewNext)
	if h.artifacts != nil {
		rg.GET("/artifacts/*key", h.GetArtifact)
		rg.DELETE("/artifacts/*key", h.DeleteArtifact)
	}
}

// Generate allocates serials and renders the label sheet.
// POST /labels
func (h *LabelHandler) Generate(c *gin.Context) {
	var req dto.GenerateLabelsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	productID, ok := h.ParseID(c, "productId", req.ProductID)
	if !ok {
		return
	}

	res, err := h.service.GenerateLabels(c.Request.Context(), productID, req.Count, req.Prefix)
	if err != nil {
		h.Error(c, err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, res.ContentType) == res.ContentType {
		c.Header(HeaderArtifactKey, res.ArtifactKey)
		c.Data(http.StatusCreated, res.ContentType, res.Artifact)
		return
	}
	h.Created(c, dto.FromLabelsResult(res))
}

// PreviewNext reports the serial the next batch would start at.
// GET /labels/next-serial?prefix=BX
func (h *LabelHandler) PreviewNext(c *gin.Context) {
	var q dto.PrefixQuery
	if !h.BindQuery(c, &q) {
		return
	}
	next, err := h.service.PreviewNextSerial(c.Request.Context(), q.Prefix)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.IdentifierResponse{ID: next})
}

// GetArtifact streams a stored label sheet.
// GET /labels/artifacts/*key
func (h *LabelHandler) GetArtifact(c *gin.Context) {
	key, ok := h.artifactKey(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	info, err := h.artifacts.Stat(ctx, key)
	if err != nil {
		h.Error(c, err)
		return
	}
	rc, err := h.artifacts.ReadFile(ctx, key)
	if err != nil {
		h.Error(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, nil)
}

// DeleteArtifact removes a stored label sheet. The barcodes stay.
// DELETE /labels/artifacts/*key
func (h *LabelHandler) DeleteArtifact(c *gin.Context) {
	key, ok := h.artifactKey(c)
	if !ok {
		return
	}
	if err := h.artifacts.Delete(c.Request.Context(), key); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

func (h *LabelHandler) artifactKey(c *gin.Context) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := objectstore.ValidateKey(key); err != nil {
		h.Error(c, err)
		return "", false
	}
	return key, true
}
