package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for different failure scenarios
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeDomainViolation = "DOMAIN_VIOLATION"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

var (
	// ErrConfiguration matches every ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("configuration error")
	// ErrDomainViolation matches every DomainViolationError via errors.Is.
	ErrDomainViolation = errors.New("domain violation")
	// ErrNotFound is returned by stores when a run does not exist.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError is raised at startup when distributions, weights or
// rule-set selection are malformed. No record is produced after one.
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error for '%s': %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// DomainViolationError reports a value outside the declared vocabulary.
type DomainViolationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

// Error implements the error interface
func (e *DomainViolationError) Error() string {
	return fmt.Sprintf("domain violation for field '%s' (value %v): %s", e.Field, e.Value, e.Message)
}

func (e *DomainViolationError) Unwrap() error {
	return ErrDomainViolation
}

// NewDomainViolationError creates a new DomainViolationError
func NewDomainViolationError(field string, value interface{}, message string) *DomainViolationError {
	return &DomainViolationError{Field: field, Value: value, Message: message}
}

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// CodeOf maps an error onto one of the error codes above.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return ErrCodeConfiguration
	case errors.Is(err, ErrDomainViolation):
		return ErrCodeDomainViolation
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}
