package kratos

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kratosclient "github.com/ory/kratos-client-go"

	"github.com/tradieiq/engine/internal/domain"
	"github.com/tradieiq/engine/internal/gateway"
)

// Gateway implements domain.AuthGateway on Kratos native flows. The session
// token is persisted to disk so a restart resumes a signed-in session the way
// the hosted identity providers this engine grew up with do.
type Gateway struct {
	client    *Client
	logger    *slog.Logger
	broadcast *gateway.Broadcaster
	tokenPath string

	mu    sync.Mutex
	token string
}

// New builds the gateway and loads any persisted session token. No
// notification is published until Start runs.
func New(client *Client, tokenPath string, logger *slog.Logger) *Gateway {
	g := &Gateway{
		client:    client,
		logger:    logger,
		broadcast: gateway.NewBroadcaster(logger),
		tokenPath: tokenPath,
	}

	if tokenPath != "" {
		if data, err := os.ReadFile(tokenPath); err == nil {
			g.token = strings.TrimSpace(string(data))
		}
	}
	return g
}

// Start publishes the startup notification: the resumed identity if the
// persisted session token is still valid, signed-out otherwise. Kratos being
// unreachable is not fatal; the engine starts signed out and the token is
// kept for the next run.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	token := g.token
	g.mu.Unlock()

	if token == "" {
		g.logger.Info("No persisted session, starting signed out")
		g.broadcast.Notify(nil)
		return
	}

	session, resp, err := g.client.Frontend().ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			g.logger.Info("Persisted session is no longer valid")
			g.clearToken()
		} else {
			g.logger.Warn("Failed to resume session", slog.String("error", err.Error()))
		}
		g.broadcast.Notify(nil)
		return
	}

	ident := identityFrom(session)
	g.logger.Info("Resumed session", slog.String("user_id", ident.ID))
	g.broadcast.Notify(&ident)
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	flow, resp, err := g.client.Frontend().CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return domain.Identity{}, classify("create login flow", resp, err)
	}

	body := kratosclient.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	}
	success, resp, err := g.client.Frontend().
		UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(kratosclient.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		return domain.Identity{}, classify("sign in", resp, err)
	}

	ident := identityFrom(&success.Session)
	g.storeToken(success.SessionToken)
	g.logger.Info("Signed in", slog.String("user_id", ident.ID))
	g.broadcast.Notify(&ident)
	return ident, nil
}

func (g *Gateway) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	flow, resp, err := g.client.Frontend().CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return domain.Identity{}, classify("create registration flow", resp, err)
	}

	body := kratosclient.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits:   map[string]interface{}{"email": email},
	}
	success, resp, err := g.client.Frontend().
		UpdateRegistrationFlow(ctx).
		Flow(flow.Id).
		UpdateRegistrationFlowBody(kratosclient.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&body)).
		Execute()
	if err != nil {
		return domain.Identity{}, classify("sign up", resp, err)
	}

	// The after-registration hook issues a session directly; without the
	// hook, fall back to a login flow for the fresh account.
	if success.SessionToken == nil || success.Session == nil {
		g.logger.Info("Registration issued no session, signing in")
		return g.SignIn(ctx, email, password)
	}

	ident := identityFrom(success.Session)
	g.storeToken(success.SessionToken)
	g.logger.Info("Account created", slog.String("user_id", ident.ID))
	g.broadcast.Notify(&ident)
	return ident, nil
}

// SignOut revokes the Kratos session. A session Kratos no longer recognizes
// counts as signed out; any other failure keeps the session and surfaces the
// error.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	token := g.token
	g.mu.Unlock()

	if token != "" {
		resp, err := g.client.Frontend().
			PerformNativeLogout(ctx).
			PerformNativeLogoutBody(kratosclient.PerformNativeLogoutBody{SessionToken: token}).
			Execute()
		if err != nil && (resp == nil || resp.StatusCode != http.StatusUnauthorized) {
			return classify("sign out", resp, err)
		}
	}

	g.clearToken()
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

func (g *Gateway) storeToken(token *string) {
	if token == nil || *token == "" {
		return
	}

	g.mu.Lock()
	g.token = *token
	g.mu.Unlock()

	if g.tokenPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.tokenPath), 0o700); err != nil {
		g.logger.Warn("Failed to create session token directory", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(g.tokenPath, []byte(*token), 0o600); err != nil {
		g.logger.Warn("Failed to persist session token", slog.String("error", err.Error()))
	}
}

func (g *Gateway) clearToken() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()

	if g.tokenPath == "" {
		return
	}
	if err := os.Remove(g.tokenPath); err != nil && !os.IsNotExist(err) {
		g.logger.Warn("Failed to remove session token", slog.String("error", err.Error()))
	}
}

// identityFrom extracts the engine identity from a Kratos session. Identity
// traits follow the default email schema; a name trait is carried through
// when the schema has one.
func identityFrom(s *kratosclient.Session) domain.Identity {
	var ident domain.Identity
	if s == nil || s.Identity == nil {
		return ident
	}

	ident.ID = s.Identity.Id
	if traits, ok := s.Identity.Traits.(map[string]interface{}); ok {
		if email, ok := traits["email"].(string); ok {
			ident.Email = email
		}
		if name, ok := traits["name"].(string); ok {
			ident.DisplayName = name
		}
	}
	return ident
}
