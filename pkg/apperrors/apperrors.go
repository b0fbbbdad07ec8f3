// Package apperrors defines the error taxonomy shared by the deviation engine.
//
// Every error type carries a stable code in CATEGORY.SPECIFIC form and matches
// one of the package sentinels through errors.Is, so callers never need to
// compare messages.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below.
var (
	ErrNotFound          = errors.New("not found")
	ErrDataAccess        = errors.New("data access failure")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTenantRequired    = errors.New("tenant id required")
	ErrDelivery          = errors.New("notification delivery failed")
	ErrValidation        = errors.New("validation failed")
)

// Coder is implemented by every error in this package.
type Coder interface {
	Code() string
}

// NotFoundError reports a missing project, alert, configuration or notification.
type NotFoundError struct {
	Resource string
	ID       string
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Code() string {
	return strings.ToUpper(e.Resource) + ".NOT_FOUND"
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DataAccessError wraps a transient failure of the data layer.
type DataAccessError struct {
	Op  string
	Err error
}

func DataAccess(op string, err error) *DataAccessError {
	return &DataAccessError{Op: op, Err: err}
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Code() string { return "STORAGE.DATA_ACCESS" }

func (e *DataAccessError) Unwrap() error { return e.Err }

func (e *DataAccessError) Is(target error) bool { return target == ErrDataAccess }

// InvalidTransitionError is returned when a lifecycle transition is not allowed.
type InvalidTransitionError struct {
	AlertID string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	if e.AlertID == "" {
		return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("alert %s: invalid transition %s -> %s", e.AlertID, e.From, e.To)
}

func (e *InvalidTransitionError) Code() string { return "ALERT.INVALID_TRANSITION" }

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// TenantRequiredError rejects a call made without a tenant id.
type TenantRequiredError struct {
	Op string
}

func TenantRequired(op string) *TenantRequiredError {
	return &TenantRequiredError{Op: op}
}

func (e *TenantRequiredError) Error() string {
	return fmt.Sprintf("%s: tenant id is required", e.Op)
}

func (e *TenantRequiredError) Code() string { return "TENANT.REQUIRED" }

func (e *TenantRequiredError) Is(target error) bool { return target == ErrTenantRequired }

// DeliveryError describes a failed attempt on one notification channel.
// StatusCode is zero when no HTTP response was received.
type DeliveryError struct {
	Channel    string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery: status %d", e.Channel, e.StatusCode)
	}
	return fmt.Sprintf("%s delivery: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Code() string {
	return "NOTIFICATION." + strings.ToUpper(e.Channel) + "_FAILED"
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// ValidationError lists every problem found in a rejected write. Subject
// names what was rejected; empty means an alert configuration.
type ValidationError struct {
	Subject  string
	Problems []string
}

// InvalidRequest rejects a request argument other than a configuration.
func InvalidRequest(subject string, problems ...string) *ValidationError {
	return &ValidationError{Subject: subject, Problems: problems}
}

func (e *ValidationError) Error() string {
	subject := e.Subject
	if subject == "" {
		subject = "configuration"
	}
	return "invalid " + subject + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Code() string {
	if e.Subject == "" {
		return "CONFIG.VALIDATION"
	}
	return "REQUEST.VALIDATION"
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Code returns the code of the first coded error in err's chain, or "INTERNAL".
func Code(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return "INTERNAL"
}

// IsRetryable reports whether err is worth another attempt.
// Client errors returned by a webhook (4xx other than 408 and 429) are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		switch {
		case de.StatusCode == 408, de.StatusCode == 429:
			return true
		case de.StatusCode >= 400 && de.StatusCode < 500:
			return false
		}
		return true
	}
	return errors.Is(err, ErrDataAccess)
}
