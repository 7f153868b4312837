// Package local implements a self-contained auth gateway for development and
// tests. Accounts live in memory, passwords are stored as bcrypt hashes, and
// sign-in attempts are rate limited per email so the engine's rate-limited
// error path can be exercised without a real identity provider.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/tradieiq/engine/internal/domain"
	"github.com/tradieiq/engine/internal/gateway"
)

const minPasswordLen = 8

// Sign-in attempts per email: a burst of five, refilling one slot every
// thirty seconds.
const (
	attemptBurst = 5
	attemptEvery = 30 * time.Second
)

type account struct {
	id    string
	email string
	name  string
	hash  []byte
}

func (a *account) identity() domain.Identity {
	return domain.Identity{ID: a.id, Email: a.email, DisplayName: a.name}
}

// SeedUser is an account created at startup, typically from configuration.
type SeedUser struct {
	Email       string
	Password    string
	DisplayName string
}

// Gateway is an in-memory domain.AuthGateway.
type Gateway struct {
	logger    *slog.Logger
	broadcast *gateway.Broadcaster

	mu       sync.Mutex
	accounts map[string]*account
	limiters map[string]*rate.Limiter
}

// New builds the gateway with the given seed accounts and publishes the
// startup notification. Nothing persists between runs, so the engine always
// starts signed out.
func New(seed []SeedUser, logger *slog.Logger) (*Gateway, error) {
	accounts := make(map[string]*account, len(seed))
	for _, s := range seed {
		email := normalizeEmail(s.Email)
		if !validEmail(email) {
			return nil, fmt.Errorf("seed user %q: malformed email", s.Email)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %q: %w", s.Email, err)
		}
		accounts[email] = &account{
			id:    uuid.NewString(),
			email: email,
			name:  s.DisplayName,
			hash:  hash,
		}
	}

	g := &Gateway{
		logger:    logger,
		broadcast: gateway.NewBroadcaster(logger),
		accounts:  accounts,
		limiters:  make(map[string]*rate.Limiter),
	}

	g.logger.Info("Local auth gateway ready", slog.Int("seed_accounts", len(seed)))
	g.broadcast.Notify(nil)
	return g, nil
}

func (g *Gateway) SignIn(_ context.Context, email, password string) (domain.Identity, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeInvalidEmail, "malformed email address", nil)
	}
	if !g.limiter(email).Allow() {
		g.logger.Warn("Sign-in rate limit hit", slog.String("email", email))
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeRateLimited, "too many sign-in attempts", nil)
	}

	g.mu.Lock()
	acct, ok := g.accounts[email]
	g.mu.Unlock()
	if !ok {
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeUserNotFound, "no account for that email", nil)
	}

	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeWrongPassword, "password mismatch", err)
	}

	id := acct.identity()
	g.logger.Info("Signed in", slog.String("user_id", id.ID))
	g.broadcast.Notify(&id)
	return id, nil
}

func (g *Gateway) SignUp(_ context.Context, email, password string) (domain.Identity, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeInvalidEmail, "malformed email address", nil)
	}
	if len(password) < minPasswordLen {
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeWeakPassword, "password shorter than 8 characters", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeUnknown, "hash password", err)
	}

	g.mu.Lock()
	if _, exists := g.accounts[email]; exists {
		g.mu.Unlock()
		return domain.Identity{}, domain.NewAuthError(domain.AuthCodeEmailInUse, "account already exists", nil)
	}
	acct := &account{id: uuid.NewString(), email: email, hash: hash}
	g.accounts[email] = acct
	g.mu.Unlock()

	id := acct.identity()
	g.logger.Info("Account created", slog.String("user_id", id.ID))
	g.broadcast.Notify(&id)
	return id, nil
}

// SignOut publishes a signed-out notification. Like the hosted providers it
// stands in for, it succeeds even when no session is active.
func (g *Gateway) SignOut(context.Context) error {
	g.logger.Info("Signed out")
	g.broadcast.Notify(nil)
	return nil
}

func (g *Gateway) OnChange(fn func(*domain.Identity)) {
	g.broadcast.OnChange(fn)
}

func (g *Gateway) Current() *domain.Identity {
	return g.broadcast.Current()
}

// Close stops the notification dispatcher.
func (g *Gateway) Close() {
	g.broadcast.Close()
}

func (g *Gateway) limiter(email string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[email]
	if !ok {
		l = rate.NewLimiter(rate.Every(attemptEvery), attemptBurst)
		g.limiters[email] = l
	}
	return l
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
