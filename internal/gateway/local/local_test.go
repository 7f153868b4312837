package local

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradieiq/engine/internal/domain"
)

func newTestGateway(t *testing.T, seed ...SeedUser) *Gateway {
	t.Helper()
	g, err := New(seed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

// collect registers a listener and returns a channel of notifications. The
// first value is always the replayed startup state.
func collect(g *Gateway) chan *domain.Identity {
	ch := make(chan *domain.Identity, 16)
	g.OnChange(func(id *domain.Identity) { ch <- id })
	return ch
}

func next(t *testing.T, ch chan *domain.Identity) *domain.Identity {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an identity notification")
		return nil
	}
}

func TestGateway_StartupNotifiesSignedOut(t *testing.T) {
	g := newTestGateway(t)

	ch := collect(g)
	assert.Nil(t, next(t, ch))
	assert.Nil(t, g.Current())
}

func TestGateway_SignUpThenSignIn(t *testing.T) {
	g := newTestGateway(t)
	ch := collect(g)
	next(t, ch) // startup

	id, err := g.SignUp(context.Background(), "Tradie@Example.com ", "password1")
	require.NoError(t, err)
	assert.Equal(t, "tradie@example.com", id.Email, "emails are normalized")
	assert.NotEmpty(t, id.ID)

	got := next(t, ch)
	require.NotNil(t, got)
	assert.Equal(t, id.ID, got.ID)

	// Same account, fresh session.
	again, err := g.SignIn(context.Background(), "tradie@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, id.ID, again.ID)

	got = next(t, ch)
	require.NotNil(t, got)
	assert.Equal(t, id.ID, got.ID)
}

func TestGateway_SignUpValidation(t *testing.T) {
	g := newTestGateway(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{name: "malformed email", email: "not-an-email", password: "password1", wantCode: domain.AuthCodeInvalidEmail},
		{name: "display name form rejected", email: "Tradie <t@example.com>", password: "password1", wantCode: domain.AuthCodeInvalidEmail},
		{name: "short password", email: "t@example.com", password: "short", wantCode: domain.AuthCodeWeakPassword},
		{name: "seven characters", email: "t@example.com", password: "1234567", wantCode: domain.AuthCodeWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.SignUp(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.AuthCodeOf(err))
		})
	}
}

func TestGateway_SignUpDuplicateEmail(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.SignUp(context.Background(), "t@example.com", "password1")
	require.NoError(t, err)

	_, err = g.SignUp(context.Background(), "T@Example.com", "different1")
	assert.Equal(t, domain.AuthCodeEmailInUse, domain.AuthCodeOf(err))
}

func TestGateway_SignInFailures(t *testing.T) {
	g := newTestGateway(t, SeedUser{Email: "seed@example.com", Password: "password1", DisplayName: "Seed"})

	_, err := g.SignIn(context.Background(), "nobody@example.com", "password1")
	assert.Equal(t, domain.AuthCodeUserNotFound, domain.AuthCodeOf(err))

	_, err = g.SignIn(context.Background(), "seed@example.com", "wrong-password")
	assert.Equal(t, domain.AuthCodeWrongPassword, domain.AuthCodeOf(err))

	_, err = g.SignIn(context.Background(), "???", "password1")
	assert.Equal(t, domain.AuthCodeInvalidEmail, domain.AuthCodeOf(err))
}

func TestGateway_SeededUserCanSignIn(t *testing.T) {
	g := newTestGateway(t, SeedUser{Email: "seed@example.com", Password: "password1", DisplayName: "Seed"})

	id, err := g.SignIn(context.Background(), "seed@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, "Seed", id.DisplayName)

	cur := g.Current()
	require.NotNil(t, cur)
	assert.Equal(t, id.ID, cur.ID)
}

func TestGateway_SignInRateLimit(t *testing.T) {
	g := newTestGateway(t, SeedUser{Email: "seed@example.com", Password: "password1"})

	// Burn through the burst with bad attempts.
	for i := 0; i < attemptBurst; i++ {
		_, err := g.SignIn(context.Background(), "seed@example.com", "wrong")
		assert.Equal(t, domain.AuthCodeWrongPassword, domain.AuthCodeOf(err))
	}

	// Even the right password is rejected now.
	_, err := g.SignIn(context.Background(), "seed@example.com", "password1")
	assert.Equal(t, domain.AuthCodeRateLimited, domain.AuthCodeOf(err))

	// Other accounts are unaffected.
	_, err = g.SignIn(context.Background(), "other@example.com", "password1")
	assert.Equal(t, domain.AuthCodeUserNotFound, domain.AuthCodeOf(err))
}

func TestGateway_SignOut(t *testing.T) {
	g := newTestGateway(t, SeedUser{Email: "seed@example.com", Password: "password1"})
	ch := collect(g)
	next(t, ch) // startup

	_, err := g.SignIn(context.Background(), "seed@example.com", "password1")
	require.NoError(t, err)
	require.NotNil(t, next(t, ch))

	require.NoError(t, g.SignOut(context.Background()))
	assert.Nil(t, next(t, ch))
	assert.Nil(t, g.Current())
}

func TestGateway_RejectsBadSeed(t *testing.T) {
	_, err := New([]SeedUser{{Email: "not-an-email", Password: "password1"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
