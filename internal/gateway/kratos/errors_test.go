package kratos

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradieiq/engine/internal/domain"
)

func TestClassifyBody(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{
			name:     "invalid credentials from flow message",
			status:   http.StatusBadRequest,
			body:     `{"id":"f1","ui":{"messages":[{"id":4000006,"text":"The provided credentials are invalid, check for spelling mistakes in your password or username, email address, or phone number.","type":"error"}]}}`,
			wantCode: domain.AuthCodeWrongPassword,
		},
		{
			name:     "account exists from flow message",
			status:   http.StatusBadRequest,
			body:     `{"ui":{"messages":[{"id":4000007,"text":"An account with the same identifier (email, phone, username, ...) exists already.","type":"error"}]}}`,
			wantCode: domain.AuthCodeEmailInUse,
		},
		{
			name:     "account does not exist",
			status:   http.StatusBadRequest,
			body:     `{"ui":{"messages":[{"id":4000035,"text":"This account does not exist or has not setup sign in with code.","type":"error"}]}}`,
			wantCode: domain.AuthCodeUserNotFound,
		},
		{
			name:     "breached password on the password node",
			status:   http.StatusBadRequest,
			body:     `{"ui":{"nodes":[{"attributes":{"name":"password"},"messages":[{"id":4000034,"text":"The password has been found in data breaches and must no longer be used.","type":"error"}]}]}}`,
			wantCode: domain.AuthCodeWeakPassword,
		},
		{
			name:     "short password policy violation",
			status:   http.StatusBadRequest,
			body:     `{"ui":{"nodes":[{"attributes":{"name":"password"},"messages":[{"id":4000031,"text":"The password must be at least 8 characters long, but got 4.","type":"error"}]}]}}`,
			wantCode: domain.AuthCodeWeakPassword,
		},
		{
			name:     "missing email trait",
			status:   http.StatusBadRequest,
			body:     `{"ui":{"nodes":[{"attributes":{"name":"traits.email"},"messages":[{"id":4000002,"text":"Property email is missing.","type":"error"}]}]}}`,
			wantCode: domain.AuthCodeInvalidEmail,
		},
		{
			name:     "missing property on another field falls back to status",
			status:   http.StatusBadRequest,
			body:     `{"ui":{"nodes":[{"attributes":{"name":"traits.phone"},"messages":[{"id":4000002,"text":"Property phone is missing.","type":"error"}]}]}}`,
			wantCode: domain.AuthCodeUnknown,
		},
		{
			name:     "error envelope classified by text",
			status:   0,
			body:     `{"error":{"id":"request_rejected","message":"An account with the same identifier exists already","reason":""}}`,
			wantCode: domain.AuthCodeEmailInUse,
		},
		{
			name:     "rate limited by status",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"id":"too_many_requests","message":"slow down"}}`,
			wantCode: domain.AuthCodeRateLimited,
		},
		{
			name:     "unauthorized by status",
			status:   http.StatusUnauthorized,
			body:     `{}`,
			wantCode: domain.AuthCodeWrongPassword,
		},
		{
			name:     "conflict by status",
			status:   http.StatusConflict,
			body:     `{}`,
			wantCode: domain.AuthCodeEmailInUse,
		},
		{
			name:     "opaque server failure",
			status:   http.StatusInternalServerError,
			body:     `<html>upstream error</html>`,
			wantCode: domain.AuthCodeUnknown,
		},
		{
			name:     "plain text body without status",
			status:   0,
			body:     `The provided credentials are invalid`,
			wantCode: domain.AuthCodeWrongPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyBody("sign in", tt.status, []byte(tt.body), errors.New("kratos call failed"))
			assert.Equal(t, tt.wantCode, domain.AuthCodeOf(err))
		})
	}
}

func TestClassify_NoResponse(t *testing.T) {
	err := classify("sign in", nil, errors.New("dial tcp: connection refused"))
	assert.Equal(t, domain.AuthCodeUnknown, domain.AuthCodeOf(err))
}

func TestClassify_StatusOnly(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests}
	err := classify("sign in", resp, errors.New("429"))
	assert.Equal(t, domain.AuthCodeRateLimited, domain.AuthCodeOf(err))
}

func TestCodeForText(t *testing.T) {
	code, ok := codeForText("the password can not be used because the password length must be at least 8 characters")
	assert.True(t, ok)
	assert.Equal(t, domain.AuthCodeWeakPassword, code)

	_, ok = codeForText("completely unrelated failure")
	assert.False(t, ok)
}
