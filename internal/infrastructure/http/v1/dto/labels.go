package dto

import (
	"backoffice/internal/domain/labels"
)

// GenerateLabelsRequest asks for count barcode labels for a product.
type GenerateLabelsRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Count     int    `json:"count" binding:"required"`
	Prefix    string `json:"prefix" binding:"required"`
}

// LabelsResponse describes a committed and rendered batch.
type LabelsResponse struct {
	ArtifactKey  string   `json:"artifactKey"`
	CreatedCount int      `json:"createdCount"`
	Identifiers  []string `json:"identifiers"`
}

// FromLabelsResult maps a pipeline result.
func FromLabelsResult(r *labels.Result) LabelsResponse {
	return LabelsResponse{
		ArtifactKey:  r.ArtifactKey,
		CreatedCount: r.CreatedCount(),
		Identifiers:  r.Identifiers(),
	}
}

// PrefixQuery selects a prefix for preview endpoints.
type PrefixQuery struct {
	Prefix string `form:"prefix" binding:"required"`
}
