// Package apperr defines the structured errors every service returns and the
// single place they are rendered to HTTP clients.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidStatusTransition
	KindInsufficientBalance
	KindSelfHire
	KindForbidden
	KindDuplicateReview
	KindInvalidRating
	KindValidation
	KindConflict
	KindUnauthorized
)

// Error is a locally recoverable failure with a machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches another *Error of the same Kind. A target with a Code also has to match the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is checks by kind.
var (
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrInvalidStatusTransition = &Error{Kind: KindInvalidStatusTransition}
	ErrInsufficientBalance     = &Error{Kind: KindInsufficientBalance}
	ErrSelfHire                = &Error{Kind: KindSelfHire}
	ErrForbidden               = &Error{Kind: KindForbidden}
	ErrDuplicateReview         = &Error{Kind: KindDuplicateReview}
	ErrInvalidRating           = &Error{Kind: KindInvalidRating}
	ErrValidation              = &Error{Kind: KindValidation}
	ErrConflict                = &Error{Kind: KindConflict}
	ErrUnauthorized            = &Error{Kind: KindUnauthorized}
)

func NotFound(resource string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    resourceCode(resource) + "_NOT_FOUND",
		Message: resource + " not found",
	}
}

func InvalidStatusTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidStatusTransition,
		Code:    "INVALID_STATUS_TRANSITION",
		Message: fmt.Sprintf("cannot transition job from '%s' to '%s'", from, to),
		Details: map[string]any{"currentStatus": from, "attemptedStatus": to},
	}
}

func InsufficientBalance(required, available int64) *Error {
	return &Error{
		Kind:    KindInsufficientBalance,
		Code:    "INSUFFICIENT_BALANCE",
		Message: "not enough shells for this transaction",
		Details: map[string]any{"required": required, "available": available},
	}
}

func SelfHire() *Error {
	return &Error{Kind: KindSelfHire, Code: "SELF_HIRE", Message: "an agent cannot hire itself"}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func DuplicateReview() *Error {
	return &Error{Kind: KindDuplicateReview, Code: "ALREADY_REVIEWED", Message: "this job has already been reviewed by the reviewer"}
}

func InvalidRating(rating float64) *Error {
	return &Error{
		Kind:    KindInvalidRating,
		Code:    "INVALID_RATING",
		Message: "rating must be an integer between 1 and 5",
		Details: map[string]any{"rating": rating},
	}
}

func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]any{"field": field},
	}
}

// ValidationCode is a validation failure with a more specific code than VALIDATION_ERROR.
func ValidationCode(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Details: details}
}

func Conflict(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Details: details}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

// Status maps a kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidStatusTransition, KindInsufficientBalance, KindSelfHire, KindInvalidRating, KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindDuplicateReview, KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type body struct {
	Error payload `json:"error"`
}

type payload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Write renders err as the JSON error envelope. Errors that are not *Error are
// logged and reported as a generic internal error.
func Write(w http.ResponseWriter, log *slog.Logger, err error) {
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind == KindInternal {
		if log == nil {
			log = slog.Default()
		}
		log.Error("unexpected error", "error", err)
		ae = &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(ae.Kind))
	_ = json.NewEncoder(w).Encode(body{Error: payload{Code: ae.Code, Message: ae.Message, Details: ae.Details}})
}

var codeReplacer = strings.NewReplacer(" ", "_", "-", "_")

func resourceCode(resource string) string {
	return codeReplacer.Replace(strings.ToUpper(resource))
}
