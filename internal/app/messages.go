package app

import "github.com/tradieiq/engine/internal/domain"

// User-visible notification text. Error codes travel through the API as-is;
// these strings are what a screen is expected to show for them.
const (
	MsgAccessDenied = "Please sign in to continue."
	MsgStoreFailure = "Couldn't reach the job service. Your change may not have been saved."
	MsgJobGone      = "That job is no longer available."
)

var authMessages = map[string]string{
	domain.AuthCodeUserNotFound:  "No account found with that email.",
	domain.AuthCodeWrongPassword: "Incorrect email or password.",
	domain.AuthCodeInvalidEmail:  "That email address doesn't look right.",
	domain.AuthCodeEmailInUse:    "An account with that email already exists.",
	domain.AuthCodeWeakPassword:  "Password must be at least 8 characters.",
	domain.AuthCodeRateLimited:   "Too many attempts. Please wait a moment and try again.",
	domain.AuthCodeUnknown:       "Something went wrong. Please try again.",
}

// MessageFor returns the notification text for an auth error code.
func MessageFor(code string) string {
	if msg, ok := authMessages[code]; ok {
		return msg
	}
	return authMessages[domain.AuthCodeUnknown]
}
