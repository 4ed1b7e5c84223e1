package llm

import "strings"

// ErrorKind buckets provider failures for failover decisions.
type ErrorKind int8

const (
	// KindRateLimit is a 429 or quota error; retryable on another provider.
	KindRateLimit ErrorKind = iota
	// KindTransient is a 5xx, timeout, or connection error.
	KindTransient
	// KindEmptyResponse is an HTTP 200 with no content.
	KindEmptyResponse
	// KindAuth is a 401/403 or bad API key; the provider is unusable but
	// the next one may still work.
	KindAuth
	// KindBadPrompt is a malformed or rejected request.
	KindBadPrompt
	// KindUnknown is anything unclassified.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindEmptyResponse:
		return "empty_response"
	case KindAuth:
		return "auth"
	case KindBadPrompt:
		return "bad_prompt"
	default:
		return "unknown"
	}
}

// ClassifyError buckets a provider error from its message. SDKs wrap HTTP
// failures in their own types, so string matching on the status markers is
// the lowest common denominator across all three providers.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return KindRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return KindAuth
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "context length"):
		return KindBadPrompt
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "529") || strings.Contains(msg, "overloaded"):
		return KindTransient
	case strings.Contains(msg, "empty response"):
		return KindEmptyResponse
	default:
		return KindUnknown
	}
}
