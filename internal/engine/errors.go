package engine

import "fmt"

// Error taxonomy surfaced by lifecycle operations. Handlers map these onto
// HTTP statuses; nothing is ever silently dropped.

// ValidationError: malformed input. Maps to 400 with per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// NotFoundError: unknown ride or user. Maps to 404.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError: the ride is not in the state the operation requires, or the
// actor already holds an active ride. Maps to 400.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// ForbiddenError: the actor is not a party to the ride. Maps to 403.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// UnavailableError: a dependency (payment gateway) is not configured or not
// reachable. Maps to 503.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string { return e.Reason }
