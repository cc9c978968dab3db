package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind groups error codes into the failure classes operators and callers
// branch on.
type Kind string

const (
	KindFormatInvalid       Kind = "format_invalid"
	KindPrefixInvalid       Kind = "prefix_invalid"
	KindSignatureInvalid    Kind = "signature_invalid"
	KindExpired             Kind = "expired"
	KindSecretMissing       Kind = "secret_missing"
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindRevoked             Kind = "revoked"
	KindNotActive           Kind = "not_active"
	KindActiveCardExists    Kind = "active_card_exists"
	KindEventNotFound       Kind = "event_not_found"
	KindDuplicateRedemption Kind = "duplicate_redemption"
	KindAlreadyAnnulled     Kind = "already_annulled"
	KindNotAnnullable       Kind = "not_annullable"
	KindWindowExpired       Kind = "window_expired"
	KindContention          Kind = "contention"
	KindInternal            Kind = "internal"
)

// Error is a typed failure with a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so wrapped copies of a
// sentinel still compare equal with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Wrap attaches a cause to a sentinel without losing its code.
func Wrap(sentinel *Error, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: sentinel.Msg, Err: err}
}

// Internal wraps an unexpected failure as an opaque internal error.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stderrors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Msg: op, Err: err}
}

// KindOf reports the kind of err, defaulting to KindInternal for untyped
// errors.
func KindOf(err error) Kind {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// CodeOf reports the machine-readable code of err.
func CodeOf(err error) string {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Code
	}
	return ErrInternal.Code
}

// Credential errors
var (
	ErrFormatInvalid    = New(KindFormatInvalid, "format_invalid", "token format is invalid")
	ErrPrefixInvalid    = New(KindPrefixInvalid, "prefix_invalid", "token prefix is invalid")
	ErrSignatureInvalid = New(KindSignatureInvalid, "signature_invalid", "token signature is invalid")
	ErrExpired          = New(KindExpired, "token_expired", "token is expired")
	ErrSecretMissing    = New(KindSecretMissing, "secret_missing", "signing secret is not configured")
	ErrInvalidInput     = New(KindInvalidInput, "invalid_input", "invalid input")
)

// Card lifecycle errors
var (
	ErrCardNotFound     = New(KindNotFound, "card_not_found", "card not found")
	ErrPersonNotFound   = New(KindNotFound, "person_not_found", "person not found")
	ErrCardRevoked      = New(KindRevoked, "card_revoked", "card is revoked")
	ErrCardNotActive    = New(KindNotActive, "card_not_active", "card is not active")
	ErrActiveCardExists = New(KindActiveCardExists, "active_card_exists", "person already holds an active card")
)

// Sale and redemption errors
var (
	ErrEventNotFound       = New(KindEventNotFound, "event_not_found", "event not found")
	ErrDuplicateRedemption = New(KindDuplicateRedemption, "duplicate", "card already redeemed for this event")
	ErrRedemptionNotFound  = New(KindNotFound, "redemption_not_found", "redemption not found")
	ErrAlreadyAnnulled     = New(KindAlreadyAnnulled, "already_annulled", "redemption already annulled")
	ErrNotAnnullable       = New(KindNotAnnullable, "not_annullable", "redemption outcome cannot be annulled")
	ErrWindowExpired       = New(KindWindowExpired, "annulment_window_expired", "annulment window has expired")
)

// Store errors
var (
	ErrContention = New(KindContention, "busy", "store is busy, retry later")
	ErrInternal   = New(KindInternal, "internal_error", "internal error")
)
