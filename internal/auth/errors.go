package auth

import (
	"errors"

	"github.com/ortaizi/sync-service/internal/domain"
)

var (
	// ErrInvalidDomain rejects stage-1 emails outside the institution
	// allow-list. Never retried; no user row is created.
	ErrInvalidDomain = errors.New("email domain not allowed")

	// ErrIdentityNotEstablished enforces stage ordering: stage 2 requires a
	// prior successful provider sign-in.
	ErrIdentityNotEstablished = errors.New("identity not established")

	// ErrInstitutionAuthFailed is terminal for the attempt, not transient.
	ErrInstitutionAuthFailed = errors.New("institution authentication failed")

	// ErrRateLimited rejects an identifier that exceeded the per-minute
	// sign-in budget.
	ErrRateLimited = errors.New("too many sign-in attempts")

	// ErrProviderDisabled is returned when identity-provider credentials are
	// not configured.
	ErrProviderDisabled = errors.New("identity provider disabled")
)

// InstitutionError carries the institution's localized failure message
// alongside ErrInstitutionAuthFailed.
type InstitutionError struct {
	Msg domain.Message
}

func (e *InstitutionError) Error() string { return e.Msg.En }
func (e *InstitutionError) Unwrap() error { return ErrInstitutionAuthFailed }
