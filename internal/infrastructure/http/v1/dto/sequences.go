package dto

import (
	"time"

	"backoffice/internal/core/sequence"
)

// CreateSequenceRequest creates a counter such as EMPLOYEE:FE.
type CreateSequenceRequest struct {
	Key string `json:"key" binding:"required"`
	// NextValue defaults to 1.
	NextValue int64 `json:"nextValue" binding:"omitempty,min=1"`
}

// SetSequenceActiveRequest enables or disables allocation from a counter.
type SetSequenceActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SequenceResponse is the persisted state of one counter.
type SequenceResponse struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	Prefix    string    `json:"prefix"`
	NextValue int64     `json:"nextValue"`
	NextID    string    `json:"nextId,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromSequenceInfo maps counter state; kind and prefix come from the key.
func FromSequenceInfo(info *sequence.Info, kind sequence.Kind, prefix string) SequenceResponse {
	resp := SequenceResponse{
		Key:       info.Key,
		Kind:      kind.String(),
		Prefix:    prefix,
		NextValue: info.NextValue,
		Active:    info.Active,
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}
	if next, err := sequence.Format(kind, prefix, info.NextValue); err == nil {
		resp.NextID = next
	}
	return resp
}
