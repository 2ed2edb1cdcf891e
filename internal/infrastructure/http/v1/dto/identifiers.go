package dto

import (
	"backoffice/internal/core/sequence"
)

// NextEmployeeIDRequest allocates an employee ID under Prefix.
type NextEmployeeIDRequest struct {
	Prefix string `json:"prefix" binding:"required"`
	// CreatePrefix starts a counter for a prefix that has none yet.
	CreatePrefix bool `json:"createPrefix"`
}

// LearnEmployeeIDRequest reports a manually entered employee ID.
type LearnEmployeeIDRequest struct {
	EmployeeID string `json:"employeeId" binding:"required"`
}

// LearnEmployeeIDResponse reports the counter position after learning.
type LearnEmployeeIDResponse struct {
	Prefix    string `json:"prefix"`
	NextValue int64  `json:"nextValue"`
	// NextID is empty when the counter has moved past the ID width.
	NextID string `json:"nextId,omitempty"`
}

// FromLearned maps the identifier returned by LearnManualID.
func FromLearned(ident sequence.Identifier) LearnEmployeeIDResponse {
	resp := LearnEmployeeIDResponse{Prefix: ident.Prefix, NextValue: ident.Number}
	if next, err := sequence.Format(ident.Kind, ident.Prefix, ident.Number); err == nil {
		resp.NextID = next
	}
	return resp
}
