// Package resilience provides the fault-tolerant execution layer: a
// recovery executor with retry/fallback/degrade strategies, per-operation
// circuit breakers and cooldown-limited alerting.
package resilience

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category classifies a failure by the subsystem it originated from.
type Category string

const (
	CategorySystem          Category = "SYSTEM"
	CategorySession         Category = "SESSION"
	CategoryPerformance     Category = "PERFORMANCE"
	CategoryValidation      Category = "VALIDATION"
	CategoryNetwork         Category = "NETWORK"
	CategoryAuthentication  Category = "AUTHENTICATION"
	CategoryAuthorization   Category = "AUTHORIZATION"
	CategoryExternalService Category = "EXTERNAL_SERVICE"
)

// Severity ranks how urgently a failure needs attention.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alertable reports whether the severity is high enough to page on.
func (s Severity) Alertable() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ErrorContext identifies the call site an operation runs under. Component
// and Operation form the circuit breaker key and the alert cooldown key.
type ErrorContext struct {
	Category  Category
	Severity  Severity
	Component string
	Operation string
	SessionID string
	Metadata  map[string]any
}

// EnhancedError wraps a failure with its full call-site context and a
// derived short code suitable for log correlation.
type EnhancedError struct {
	Category  Category
	Severity  Severity
	Component string
	Operation string
	SessionID string
	Metadata  map[string]any
	Timestamp time.Time
	Code      string
	Err       error
}

// Enhance wraps err with ctx. An error that is already enhanced is returned
// unchanged so context from the innermost call site wins.
func Enhance(err error, ctx ErrorContext, now time.Time) *EnhancedError {
	var enhanced *EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced
	}
	return &EnhancedError{
		Category:  ctx.Category,
		Severity:  ctx.Severity,
		Component: ctx.Component,
		Operation: ctx.Operation,
		SessionID: ctx.SessionID,
		Metadata:  ctx.Metadata,
		Timestamp: now,
		Code:      errorCode(ctx.Category, ctx.Component, now),
		Err:       err,
	}
}

func (e *EnhancedError) Error() string {
	return fmt.Sprintf("%s.%s: %v [%s/%s %s]", e.Component, e.Operation, e.Err, e.Category, e.Severity, e.Code)
}

func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// LogAttrs returns the error's context as slog key/value pairs.
func (e *EnhancedError) LogAttrs() []any {
	attrs := []any{
		"code", e.Code,
		"category", string(e.Category),
		"severity", string(e.Severity),
		"component", e.Component,
		"operation", e.Operation,
	}
	if e.SessionID != "" {
		attrs = append(attrs, "session_id", e.SessionID)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
	}
	return attrs
}

// errorCode derives a compact correlation code from the failure context:
// the first three characters of category and component plus the timestamp
// in base36.
func errorCode(category Category, component string, ts time.Time) string {
	return head3(string(category)) + head3(component) + strconv.FormatInt(ts.UnixMilli(), 36)
}

func head3(s string) string {
	s = strings.ToUpper(s)
	if len(s) > 3 {
		return s[:3]
	}
	return s
}
