package domain

import "errors"

var (
	// ErrAccessDenied is returned when an operation that requires a signed-in
	// session is attempted without one, or against a record the session does
	// not own. It is handled by forcing the sign-in view, never shown raw.
	ErrAccessDenied = errors.New("access denied")

	// ErrJobNotFound is returned by stores when a job id does not exist
	// within the caller's owner scope.
	ErrJobNotFound = errors.New("job not found")
)

// Auth error codes. The set is fixed: gateways must classify whatever their
// backend returns into one of these, so nothing above the gateway ever
// matches on error text.
const (
	AuthCodeUserNotFound  = "user-not-found"
	AuthCodeWrongPassword = "wrong-password"
	AuthCodeInvalidEmail  = "invalid-email"
	AuthCodeEmailInUse    = "email-in-use"
	AuthCodeWeakPassword  = "weak-password"
	AuthCodeRateLimited   = "rate-limited"
	AuthCodeUnknown       = "unknown"
)

// AuthError is a classified failure from an auth gateway call.
type AuthError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthError creates a classified auth error. Unrecognized codes are
// coerced to AuthCodeUnknown so the fixed set stays fixed.
func NewAuthError(code, message string, cause error) *AuthError {
	switch code {
	case AuthCodeUserNotFound, AuthCodeWrongPassword, AuthCodeInvalidEmail,
		AuthCodeEmailInUse, AuthCodeWeakPassword, AuthCodeRateLimited:
	default:
		code = AuthCodeUnknown
	}
	return &AuthError{Code: code, Message: message, Cause: cause}
}

// AuthCodeOf extracts the auth code from err, or AuthCodeUnknown if err does
// not carry one.
func AuthCodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return AuthCodeUnknown
}

// StoreError wraps a failure from the job store. The cause is opaque to the
// engine; it is logged and surfaced as a single notification, never retried.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return "job store " + e.Op + ": " + e.Cause.Error()
	}
	return "job store " + e.Op + " failed"
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError wraps cause as a store failure for operation op.
func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{Op: op, Cause: cause}
}
