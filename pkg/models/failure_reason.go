package models

import (
	"errors"
	"time"
)

// ============================================================================
// Failure Categories
// ============================================================================

// FailureCategory classifies why an evaluation or a single question failed.
// Categories are the domain-side vocabulary for everything that can go wrong
// at the provider boundary; no SDK or HTTP error ever crosses into the domain.
type FailureCategory string

const (
	FailureParsingError        FailureCategory = "PARSING_ERROR"
	FailureTokenLimitExceeded  FailureCategory = "TOKEN_LIMIT_EXCEEDED"
	FailureContentGuardrail    FailureCategory = "CONTENT_GUARDRAIL"
	FailureModelRefusal        FailureCategory = "MODEL_REFUSAL"
	FailureNetworkTimeout      FailureCategory = "NETWORK_TIMEOUT"
	FailureRateLimitExceeded   FailureCategory = "RATE_LIMIT_EXCEEDED"
	FailureCreditLimitExceeded FailureCategory = "CREDIT_LIMIT_EXCEEDED"
	FailureAuthenticationError FailureCategory = "AUTHENTICATION_ERROR"
	FailureConfigurationError  FailureCategory = "CONFIGURATION_ERROR"
	FailureUnknown             FailureCategory = "UNKNOWN"
)

// ValidFailureCategories contains all valid failure category values.
var ValidFailureCategories = []FailureCategory{
	FailureParsingError,
	FailureTokenLimitExceeded,
	FailureContentGuardrail,
	FailureModelRefusal,
	FailureNetworkTimeout,
	FailureRateLimitExceeded,
	FailureCreditLimitExceeded,
	FailureAuthenticationError,
	FailureConfigurationError,
	FailureUnknown,
}

// IsValidFailureCategory checks if the given category is valid.
func IsValidFailureCategory(c FailureCategory) bool {
	for _, v := range ValidFailureCategories {
		if v == c {
			return true
		}
	}
	return false
}

// IsFatal returns true if a failure of this category aborts the whole
// evaluation. Every other category is recorded on the question it hit and
// the evaluation continues.
func (c FailureCategory) IsFatal() bool {
	return c == FailureAuthenticationError ||
		c == FailureCreditLimitExceeded ||
		c == FailureConfigurationError
}

// ============================================================================
// FailureReason
// ============================================================================

// FailureReason is the domain value describing a classified failure.
type FailureReason struct {
	Category         FailureCategory `json:"category"`
	Description      string          `json:"description"`
	TechnicalDetails string          `json:"technical_details,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	// Recoverable is true iff a retry could plausibly succeed.
	Recoverable bool `json:"recoverable"`
}

// NewFailureReason constructs a FailureReason stamped with the current time.
func NewFailureReason(category FailureCategory, description, technicalDetails string, recoverable bool) *FailureReason {
	return &FailureReason{
		Category:         category,
		Description:      description,
		TechnicalDetails: technicalDetails,
		OccurredAt:       time.Now().UTC(),
		Recoverable:      recoverable,
	}
}

// NewConfigurationFailure is a shorthand for the most common construction
// failure: invalid configuration detected before any external call.
func NewConfigurationFailure(description, technicalDetails string) *FailureReason {
	return NewFailureReason(FailureConfigurationError, description, technicalDetails, false)
}

// IsFatal reports whether this failure aborts the evaluation.
func (r *FailureReason) IsFatal() bool {
	return r.Category.IsFatal()
}

// AsError wraps the reason so it can travel an error return path.
func (r *FailureReason) AsError() error {
	return &FailureError{Reason: r}
}

// ============================================================================
// FailureError bridge
// ============================================================================

// FailureError carries a FailureReason across error returns. Infrastructure
// raises it; the orchestrator and the CLI read the reason back out with
// FailureReasonFromError and never inspect SDK error types.
type FailureError struct {
	Reason *FailureReason
	Cause  error
}

func (e *FailureError) Error() string {
	if e.Reason == nil {
		return "unclassified failure"
	}
	return e.Reason.Description
}

func (e *FailureError) Unwrap() error {
	return e.Cause
}

// NewFailureError wraps reason and its underlying cause into an error value.
func NewFailureError(reason *FailureReason, cause error) *FailureError {
	return &FailureError{Reason: reason, Cause: cause}
}

// FailureReasonFromError extracts a FailureReason from an error chain.
// Returns nil if the chain carries no classification.
func FailureReasonFromError(err error) *FailureReason {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return nil
}
