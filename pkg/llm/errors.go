package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/caliperhq/caliper-engine/pkg/logging"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// providerFailure builds the classified error returned for a failed
// provider call. The raw cause stays on the error chain but its text is
// sanitized before it lands in the failure details.
func providerFailure(provider, model string, status int, category models.FailureCategory, description string, recoverable bool, cause error) error {
	details := fmt.Sprintf("provider=%s model=%s", provider, model)
	if status > 0 {
		details += fmt.Sprintf(" status=%d", status)
	}
	if cause != nil {
		details += ": " + logging.SanitizeText(cause.Error())
	}
	return models.NewFailureError(models.NewFailureReason(category, description, details, recoverable), cause)
}

// classifyStatus maps an HTTP status from a provider API to a failure
// category. A 400 is a parsing failure when the body points at the
// structured-output request, otherwise the configuration is bad.
func classifyStatus(status int, body string) (models.FailureCategory, string, bool) {
	switch {
	case status == 401 || status == 403:
		return models.FailureAuthenticationError, "authentication failed", false
	case status == 402:
		return models.FailureCreditLimitExceeded, "provider credit limit exceeded", false
	case status == 408:
		return models.FailureNetworkTimeout, "provider request timed out", true
	case status == 429:
		return models.FailureRateLimitExceeded, "provider rate limit exceeded", true
	case status == 404:
		return models.FailureConfigurationError, "model or endpoint not found", false
	case status == 400:
		if schemaRelated(body) {
			return models.FailureParsingError, "provider rejected the structured output request", false
		}
		return models.FailureConfigurationError, "provider rejected the request", false
	case status >= 500:
		return models.FailureUnknown, "provider server error", true
	default:
		return models.FailureUnknown, fmt.Sprintf("unexpected provider status %d", status), false
	}
}

func schemaRelated(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "schema") ||
		strings.Contains(lower, "response_format") ||
		strings.Contains(lower, "json")
}

// finishFailure translates finish reasons that preclude a usable answer.
// Returns nil for normal completion.
func finishFailure(provider, model, finishReason, refusal string) error {
	switch {
	case refusal != "":
		reason := models.NewFailureReason(
			models.FailureModelRefusal,
			"model refused to answer",
			logging.TruncateString(refusal, maxContentDetail),
			false,
		)
		return models.NewFailureError(reason, nil)
	case finishReason == "length" || finishReason == "max_tokens":
		return providerFailure(provider, model, 0, models.FailureTokenLimitExceeded, "response truncated by token limit", false, nil)
	case finishReason == "content_filter":
		return providerFailure(provider, model, 0, models.FailureContentGuardrail, "response blocked by content filter", false, nil)
	case finishReason == "refusal":
		return providerFailure(provider, model, 0, models.FailureModelRefusal, "model refused to answer", false, nil)
	}
	return nil
}

// mapOpenAIError classifies SDK errors from OpenAI-compatible endpoints.
func mapOpenAIError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	var fe *models.FailureError
	if errors.As(err, &fe) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		category, description, recoverable := classifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
		return providerFailure(provider, model, apiErr.HTTPStatusCode, category, description, recoverable, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		category, description, recoverable := classifyStatus(reqErr.HTTPStatusCode, "")
		return providerFailure(provider, model, reqErr.HTTPStatusCode, category, description, recoverable, err)
	}

	return mapTransportError(provider, model, err)
}

// mapAnthropicError classifies SDK errors from the Anthropic API.
func mapAnthropicError(model string, err error) error {
	if err == nil {
		return nil
	}
	var fe *models.FailureError
	if errors.As(err, &fe) {
		return err
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		category, description, recoverable := classifyAnthropicType(string(apiErr.Type), apiErr.Message)
		return providerFailure(ProviderAnthropic, model, 0, category, description, recoverable, err)
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		category, description, recoverable := classifyStatus(reqErr.StatusCode, "")
		return providerFailure(ProviderAnthropic, model, reqErr.StatusCode, category, description, recoverable, err)
	}

	return mapTransportError(ProviderAnthropic, model, err)
}

// classifyAnthropicType maps the error type strings documented by the
// Anthropic API to failure categories.
func classifyAnthropicType(errType, message string) (models.FailureCategory, string, bool) {
	switch errType {
	case "authentication_error", "permission_error":
		return models.FailureAuthenticationError, "authentication failed", false
	case "rate_limit_error":
		return models.FailureRateLimitExceeded, "provider rate limit exceeded", true
	case "overloaded_error":
		return models.FailureUnknown, "provider overloaded", true
	case "not_found_error":
		return models.FailureConfigurationError, "model or endpoint not found", false
	case "api_error":
		return models.FailureUnknown, "provider server error", true
	case "invalid_request_error":
		lower := strings.ToLower(message)
		if strings.Contains(lower, "credit") || strings.Contains(lower, "billing") {
			return models.FailureCreditLimitExceeded, "provider credit limit exceeded", false
		}
		if schemaRelated(message) {
			return models.FailureParsingError, "provider rejected the structured output request", false
		}
		return models.FailureConfigurationError, "provider rejected the request", false
	default:
		return models.FailureUnknown, fmt.Sprintf("unexpected provider error type %q", errType), false
	}
}

// mapTransportError classifies errors that never got a provider response.
// Context cancellation passes through untouched so interrupts stay visible
// to the orchestrator.
func mapTransportError(provider, model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return providerFailure(provider, model, 0, models.FailureNetworkTimeout, "request timed out", true, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return providerFailure(provider, model, 0, models.FailureNetworkTimeout, "request timed out", true, err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return providerFailure(provider, model, 0, models.FailureNetworkTimeout, "request timed out", true, err)
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"):
		return providerFailure(provider, model, 0, models.FailureNetworkTimeout, "connection failed", true, err)
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "invalid api key"):
		return providerFailure(provider, model, 0, models.FailureAuthenticationError, "authentication failed", false, err)
	case strings.Contains(lower, "rate limit"):
		return providerFailure(provider, model, 0, models.FailureRateLimitExceeded, "provider rate limit exceeded", true, err)
	default:
		return providerFailure(provider, model, 0, models.FailureUnknown, "llm request failed", false, err)
	}
}
