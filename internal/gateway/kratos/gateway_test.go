package kratos

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kratosclient "github.com/ory/kratos-client-go"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient("http://127.0.0.1:4433", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)

	_, err = NewClient("not a url", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestGateway_TokenPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session", "token")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	g := New(testClient(t), path, logger)
	t.Cleanup(g.Close)

	token := "ory_st_abc123"
	g.storeToken(&token)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, token, string(data))

	// A fresh gateway picks the token back up.
	g2 := New(testClient(t), path, logger)
	t.Cleanup(g2.Close)
	assert.Equal(t, token, g2.token)

	g.clearToken()
	_, err = os.ReadFile(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	g.clearToken()
}

func TestGateway_StoreTokenIgnoresEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	g := New(testClient(t), path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(g.Close)

	g.storeToken(nil)
	empty := ""
	g.storeToken(&empty)

	_, err := os.ReadFile(path)
	assert.True(t, os.IsNotExist(err))
}

func TestIdentityFrom(t *testing.T) {
	assert.Empty(t, identityFrom(nil).ID)

	s := &kratosclient.Session{}
	assert.Empty(t, identityFrom(s).ID)

	s.Identity = &kratosclient.Identity{
		Id: "kratos-id-1",
		Traits: map[string]interface{}{
			"email": "tradie@example.com",
			"name":  "Tradie",
		},
	}
	ident := identityFrom(s)
	assert.Equal(t, "kratos-id-1", ident.ID)
	assert.Equal(t, "tradie@example.com", ident.Email)
	assert.Equal(t, "Tradie", ident.DisplayName)

	// Structured name traits are skipped rather than mangled.
	s.Identity.Traits = map[string]interface{}{
		"email": "tradie@example.com",
		"name":  map[string]interface{}{"first": "T", "last": "R"},
	}
	ident = identityFrom(s)
	assert.Equal(t, "tradie@example.com", ident.Email)
	assert.Empty(t, ident.DisplayName)
}
