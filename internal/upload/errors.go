package upload

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/picfort/picfort/internal/storage"
)

// Kind classifies a pipeline failure. The orchestrator is the only place
// that decides cleanup and status mapping, so every stage surfaces one of
// these instead of a raw provider error.
type Kind int

const (
	// KindValidation marks a user-correctable input problem (bad format,
	// size, dimensions). Not retryable.
	KindValidation Kind = iota
	// KindPolicy marks a quota or address-block refusal.
	KindPolicy
	// KindModerationBlocked marks content rejected by the safety provider
	// under a reject action. May trigger the blacklist side effect.
	KindModerationBlocked
	// KindTransientBackend marks a network or protocol failure talking to a
	// storage backend or provider. Retryable.
	KindTransientBackend
	// KindConfiguration marks missing credentials or site settings, an
	// operator problem rather than an uploader one.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPolicy:
		return "policy"
	case KindModerationBlocked:
		return "moderation_blocked"
	case KindTransientBackend:
		return "transient_backend"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the typed failure every pipeline stage surfaces.
type Error struct {
	Kind    Kind
	Message string
	// Backend is set when the failure came from a storage backend or
	// moderation provider.
	Backend storage.Type
	// Limit carries the violated bound for validation failures, e.g.
	// "10MB" or "min 64px".
	Limit string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the failure kind to the response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindModerationBlocked, KindConfiguration:
		return http.StatusBadRequest
	case KindPolicy:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts a typed pipeline failure from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func validationErr(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func policyErr(format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

func moderationBlockedErr(label string) *Error {
	return &Error{
		Kind:    KindModerationBlocked,
		Message: "image rejected by content moderation",
		Limit:   label,
	}
}

func backendErr(backend storage.Type, err error) *Error {
	return &Error{
		Kind:    KindTransientBackend,
		Message: fmt.Sprintf("storage backend %s failed", backend),
		Backend: backend,
		Err:     err,
	}
}

func configErr(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}
