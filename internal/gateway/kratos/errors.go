package kratos

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	kratosclient "github.com/ory/kratos-client-go"

	"github.com/tradieiq/engine/internal/domain"
)

// Kratos UI message ids, the stable machine-readable part of flow error
// bodies. See https://www.ory.sh/docs/kratos/concepts/ui-messages.
const (
	msgMissingProperty    = 4000001
	msgPropertyMissing    = 4000002
	msgPasswordPolicy     = 4000005
	msgInvalidCredentials = 4000006
	msgAccountExists      = 4000007
	msgPasswordTooShort   = 4000031
	msgPasswordTooLong    = 4000032
	msgPasswordBreached   = 4000034
	msgAccountNotFound    = 4000035
)

// classify turns a failed Kratos call into a domain.AuthError. Flow errors
// carry their detail in the response body; anything else falls back to the
// HTTP status.
func classify(op string, resp *http.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	var apiErr *kratosclient.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		return classifyBody(op, status, apiErr.Body(), err)
	}
	if status != 0 {
		return classifyStatus(op, status, err)
	}
	return domain.NewAuthError(domain.AuthCodeUnknown, op+" failed", err)
}

// classifyBody is the body-level half of classify, split out so tests can
// feed it captured responses directly.
func classifyBody(op string, status int, body []byte, cause error) error {
	var flow flowErrorBody
	if jsonErr := json.Unmarshal(body, &flow); jsonErr == nil {
		// Top-level flow messages first, then per-field node messages.
		for _, m := range flow.UI.Messages {
			if code, ok := codeForMessageID(m.ID, ""); ok {
				return domain.NewAuthError(code, m.Text, cause)
			}
		}
		for _, n := range flow.UI.Nodes {
			for _, m := range n.Messages {
				if code, ok := codeForMessageID(m.ID, n.Attributes.Name); ok {
					return domain.NewAuthError(code, m.Text, cause)
				}
			}
		}
		if flow.Error != nil {
			if code, ok := codeForText(flow.Error.Message + " " + flow.Error.Reason); ok {
				return domain.NewAuthError(code, flow.Error.Message, cause)
			}
		}
	}

	if status != 0 {
		return classifyStatus(op, status, cause)
	}
	if code, ok := codeForText(string(body)); ok {
		return domain.NewAuthError(code, op+" failed", cause)
	}
	return domain.NewAuthError(domain.AuthCodeUnknown, op+" failed", cause)
}

func classifyStatus(op string, status int, cause error) error {
	switch status {
	case http.StatusTooManyRequests:
		return domain.NewAuthError(domain.AuthCodeRateLimited, "too many requests", cause)
	case http.StatusUnauthorized:
		return domain.NewAuthError(domain.AuthCodeWrongPassword, "authentication failed", cause)
	case http.StatusConflict:
		return domain.NewAuthError(domain.AuthCodeEmailInUse, "account already exists", cause)
	default:
		return domain.NewAuthError(domain.AuthCodeUnknown, op+" failed", cause)
	}
}

// codeForMessageID maps a Kratos UI message id to an auth code. field is the
// form node the message was attached to, used to tell a bad email apart from
// other validation failures.
func codeForMessageID(id int64, field string) (string, bool) {
	switch id {
	case msgInvalidCredentials:
		return domain.AuthCodeWrongPassword, true
	case msgAccountExists:
		return domain.AuthCodeEmailInUse, true
	case msgAccountNotFound:
		return domain.AuthCodeUserNotFound, true
	case msgPasswordPolicy, msgPasswordTooShort, msgPasswordTooLong, msgPasswordBreached:
		return domain.AuthCodeWeakPassword, true
	case msgMissingProperty, msgPropertyMissing:
		if strings.Contains(field, "email") {
			return domain.AuthCodeInvalidEmail, true
		}
	}
	return "", false
}

// codeForText is the last resort for bodies without usable message ids.
func codeForText(text string) (string, bool) {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "credentials are invalid", "invalid credentials", "authentication failed"):
		return domain.AuthCodeWrongPassword, true
	case containsAny(lower, "exists already", "already exists", "already registered"):
		return domain.AuthCodeEmailInUse, true
	case containsAny(lower, "account does not exist"):
		return domain.AuthCodeUserNotFound, true
	case strings.Contains(lower, "password") && containsAny(lower, "policy", "too short", "length", "breaches", "similar"):
		return domain.AuthCodeWeakPassword, true
	case containsAny(lower, "is not valid \"email\"", "invalid email", "malformed email"):
		return domain.AuthCodeInvalidEmail, true
	case containsAny(lower, "too many requests", "rate limit"):
		return domain.AuthCodeRateLimited, true
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// flowErrorBody covers the two error shapes Kratos returns: a flow document
// with UI messages, or a plain error envelope.
type flowErrorBody struct {
	UI struct {
		Messages []uiMessage `json:"messages"`
		Nodes    []struct {
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
			Messages []uiMessage `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error *struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

type uiMessage struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}
