package models

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

type ConflictReason string

const (
	ConflictBooking      ConflictReason = "booking"
	ConflictAvailability ConflictReason = "availability"
)

// ConflictError carries the window the caller collided with so it can pick another slot.
// For ConflictAvailability the window is the rejected candidate itself.
type ConflictError struct {
	Reason      ConflictReason
	BookingID   string
	Start       time.Time
	End         time.Time
	BufferHours int
}

func (e *ConflictError) Error() string {
	if e.Reason == ConflictAvailability {
		return fmt.Sprintf("interval %s - %s is outside the provider's declared availability",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("interval conflicts with booking %s (%s - %s, buffer %dh)",
		e.BookingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.BufferHours)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ForbiddenError means the principal is not a party allowed to perform the action.
type ForbiddenError struct {
	ActorID   string
	BookingID string
	Action    string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s is not allowed to %s booking %s", e.ActorID, e.Action, e.BookingID)
}

// TransitionError is an illegal lifecycle move. It is never retried automatically.
type TransitionError struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("booking %s: invalid transition %s -> %s", e.BookingID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

type GatewayErrorKind string

const (
	GatewayTimeout     GatewayErrorKind = "timeout"
	GatewayUnavailable GatewayErrorKind = "unavailable"
	GatewayRejected    GatewayErrorKind = "rejected"
)

// GatewayError wraps a payment gateway failure. BookingID is set when the booking survived the failure.
type GatewayError struct {
	Kind      GatewayErrorKind
	Op        string
	BookingID string
	Err       error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("payment gateway %s: %s", e.Op, e.Kind)
	if e.BookingID != "" {
		msg += " (booking " + e.BookingID + " kept pending)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// RollbackError means a compensating action failed and the reservation may be orphaned.
// It requires operator intervention.
type RollbackError struct {
	BookingID string
	Cause     error
	Err       error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback of booking %s failed after %v: %v", e.BookingID, e.Cause, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}

func IsTransition(err error) bool {
	var target *TransitionError
	return errors.As(err, &target)
}

// GatewayKind returns the kind of a wrapped GatewayError, if any.
func GatewayKind(err error) (GatewayErrorKind, bool) {
	var target *GatewayError
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return "", false
}
