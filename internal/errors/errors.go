package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ValidationError reports malformed input: login options, retry policies,
// secret references or a login response that does not have the expected
// shape. It is never retried.
type ValidationError struct {
	Subject string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("invalid %s", e.Subject)
	}
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Reasons, "; "))
}

// Invalid builds a ValidationError for subject.
func Invalid(subject string, reasons ...string) *ValidationError {
	return &ValidationError{Subject: subject, Reasons: reasons}
}

// APIError is a non-2xx response from the secret service.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("vault API error: %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	if len(e.Messages) > 0 {
		msg += ": " + strings.Join(e.Messages, ", ")
	}
	return msg
}

// TransientError wraps a failure that may succeed when retried, such as a
// refused connection or a timeout.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AuthenticationError is a terminal rejection by the secret service. The
// underlying error is kept for diagnostics but the message is normalized.
type AuthenticationError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Op == "" || e.Op == "login" || strings.HasPrefix(e.Op, "login ") {
		return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("%s rejected (status %d)", e.Op, e.StatusCode)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError carries the last underlying error once a retry
// policy has run out of attempts.
type RetriesExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%v (%s gave up after %d attempts)", e.Err, e.Op, e.Attempts)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP-like status carried by err, or 0 when the
// error has none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	return 0
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsAuthentication reports whether err is or wraps an AuthenticationError.
func IsAuthentication(err error) bool {
	var a *AuthenticationError
	return errors.As(err, &a)
}

// IsRetriesExhausted reports whether err is or wraps a RetriesExhaustedError.
func IsRetriesExhausted(err error) bool {
	var r *RetriesExhaustedError
	return errors.As(err, &r)
}

// IsTerminal reports whether retrying err cannot help: the service rejected
// the request with a 4xx status.
func IsTerminal(err error) bool {
	if IsAuthentication(err) {
		return true
	}
	status := StatusCode(err)
	return status >= 400 && status < 500
}

// IsRetryable checks if an error is retryable. Validation failures,
// cancellation and 4xx rejections are not; 5xx responses, network failures
// and anything unclassified are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsTerminal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Suggest returns a hint for common Vault failures, or "" when there is
// nothing useful to say.
func Suggest(err error) string {
	if err == nil {
		return ""
	}

	switch StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return "Check the login backend options (username, password, role)"
	case http.StatusForbidden:
		return "The token policy does not allow this path. Check the policies attached to the login role"
	case http.StatusNotFound:
		return "Verify the secret path and the mount it lives under"
	case http.StatusServiceUnavailable:
		return "Vault may be sealed or in standby. Check 'vault status'"
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check VAULT_ADDR and that the server is reachable"
	}

	return ""
}

// ForUser wraps err in a UserError carrying a suggestion when one applies.
func ForUser(message string, err error) error {
	if err == nil {
		return nil
	}
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}
	return UserError{
		Message:    message,
		Details:    err.Error(),
		Suggestion: Suggest(err),
		Err:        err,
	}
}
