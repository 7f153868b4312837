// Package app wires the session store, the job cache, and the view state into
// one controller. Every mutation of engine state goes through a controller
// method; the controller decides which screen is visible, gates job
// operations on the session state, and hands a fresh snapshot to the renderer
// after each change.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tradieiq/engine/internal/domain"
	"github.com/tradieiq/engine/internal/jobcache"
	"github.com/tradieiq/engine/internal/session"
)

// Controller owns the engine's application state. It is safe for concurrent
// use: view state and the notification live behind mu, the session store and
// job cache guard themselves, and auth calls are serialized by authMu so two
// sign-in attempts can never interleave.
type Controller struct {
	gateway  domain.AuthGateway
	store    domain.JobStore
	renderer domain.Renderer
	features domain.FeatureFlags
	logger   *slog.Logger

	session *session.Store
	cache   *jobcache.Cache

	runCtx context.Context

	authMu sync.Mutex

	mu     sync.RWMutex
	view   domain.ViewState
	notice *domain.Notification
}

func New(gateway domain.AuthGateway, store domain.JobStore, renderer domain.Renderer, features domain.FeatureFlags, logger *slog.Logger) *Controller {
	return &Controller{
		gateway:  gateway,
		store:    store,
		renderer: renderer,
		features: features,
		logger:   logger,
		session:  session.NewStore(),
		cache:    jobcache.New(store, logger),
		view:     domain.ViewState{Screen: domain.ScreenLoading, Tab: domain.TabOverview},
	}
}

// Start registers the controller with the auth gateway. The gateway replays
// the current identity to late listeners, so the loading screen is left as
// soon as the gateway knows whether a session exists. ctx bounds every
// subscription the controller opens.
func (c *Controller) Start(ctx context.Context) {
	c.runCtx = ctx
	c.gateway.OnChange(c.handleAuthChange)
	c.logger.Info("Controller started")
}

// Shutdown cancels the live job subscription, if any. It does not sign the
// user out; a persisted session is picked up again on the next start.
func (c *Controller) Shutdown() {
	c.cache.Deactivate()
	c.logger.Info("Controller stopped")
}

// handleAuthChange is the single listener driving the session state machine.
// It runs on the gateway's dispatch goroutine and must not hold mu while
// touching the cache lifecycle: Deactivate waits for the delivery goroutine,
// which itself takes mu in handleCachePush.
func (c *Controller) handleAuthChange(id *domain.Identity) {
	if id == nil {
		// Stop and clear the feed before the session flips, so a snapshot
		// taken mid-transition never pairs a signed-out view with jobs.
		c.cache.Deactivate()
	}

	c.mu.Lock()
	change := c.session.Apply(id)
	if !change.First && change.From == change.To && !change.Switched {
		c.mu.Unlock()
		return
	}

	switch change.To {
	case session.SignedIn:
		c.view = domain.ViewState{Screen: domain.ScreenDashboard, Tab: domain.TabOverview}
	case session.SignedOut:
		c.view = domain.ViewState{Screen: domain.ScreenSignIn, Tab: domain.TabOverview}
	}
	c.notice = nil
	c.mu.Unlock()

	c.logger.Info("Session changed",
		slog.String("from", change.From.String()),
		slog.String("to", change.To.String()),
		slog.Bool("switched", change.Switched),
	)

	if id != nil {
		if err := c.cache.Activate(c.runCtx, id.ID, c.handleCachePush); err != nil {
			c.logger.Error("Failed to activate job cache", slog.String("error", err.Error()))
			c.mu.Lock()
			c.notice = &domain.Notification{Level: domain.NoticeError, Message: MsgStoreFailure}
			c.mu.Unlock()
		}
	}

	c.render()
}

// handleCachePush runs on the cache's delivery goroutine after every replace.
// If the replace removed the job the detail screen is showing, the view falls
// back to the dashboard.
func (c *Controller) handleCachePush(jobs []domain.Job, _ domain.Aggregates) {
	c.mu.Lock()
	if c.view.Screen == domain.ScreenJobDetail && !jobExists(jobs, c.view.SelectedJobID) {
		c.logger.Info("Selected job left the cache, returning to dashboard",
			slog.String("job_id", c.view.SelectedJobID),
		)
		c.view = domain.ViewState{Screen: domain.ScreenDashboard, Tab: domain.TabOverview}
		c.notice = &domain.Notification{Level: domain.NoticeInfo, Message: MsgJobGone}
	}
	c.mu.Unlock()

	c.render()
}

// SignIn authenticates against the gateway. The screen change on success
// arrives through the gateway notification, not from this call.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	return c.authCall(ctx, "sign in", func(ctx context.Context) error {
		_, err := c.gateway.SignIn(ctx, email, password)
		return err
	})
}

// SignUp registers a new account and signs it in.
func (c *Controller) SignUp(ctx context.Context, email, password string) error {
	return c.authCall(ctx, "sign up", func(ctx context.Context) error {
		_, err := c.gateway.SignUp(ctx, email, password)
		return err
	})
}

// SignOut ends the current session.
func (c *Controller) SignOut(ctx context.Context) error {
	return c.authCall(ctx, "sign out", c.gateway.SignOut)
}

// authCall runs one gateway attempt with the busy flag raised. The flag is
// cleared on every exit path; a failure becomes a user-visible notification
// and the error is returned unchanged for the transport layer to map.
func (c *Controller) authCall(ctx context.Context, op string, fn func(context.Context) error) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.setBusy(true)
	defer c.setBusy(false)

	if err := fn(ctx); err != nil {
		code := domain.AuthCodeOf(err)
		c.logger.Warn("Auth call failed",
			slog.String("op", op),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		c.mu.Lock()
		c.notice = &domain.Notification{Level: domain.NoticeError, Message: MessageFor(code)}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	c.view.Busy = busy
	if busy {
		c.notice = nil
	}
	c.mu.Unlock()
	c.render()
}

// CreateJob writes a new job for the signed-in owner and returns the id the
// store assigned. The cache is not touched: the job appears on the dashboard
// with the next push.
func (c *Controller) CreateJob(ctx context.Context, draft domain.JobDraft) (string, error) {
	ident, err := c.requireSignedIn()
	if err != nil {
		return "", err
	}

	id, err := c.store.Create(ctx, ident.ID, draft)
	if err != nil {
		return "", c.storeFailed("create job", err)
	}

	c.logger.Info("Job created", slog.String("job_id", id))
	return id, nil
}

// UpdateJob applies a partial update to an owned job. An empty patch is a
// no-op.
func (c *Controller) UpdateJob(ctx context.Context, jobID string, patch domain.JobPatch) error {
	ident, err := c.requireSignedIn()
	if err != nil {
		return err
	}
	if patch.IsZero() {
		return nil
	}

	if err := c.store.Update(ctx, ident.ID, jobID, patch); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return c.storeFailed("update job", err)
	}
	return nil
}

// DeleteJob removes an owned job. If the deleted job is currently selected,
// the view falls back to the dashboard when the next push confirms the
// removal, not here.
func (c *Controller) DeleteJob(ctx context.Context, jobID string) error {
	ident, err := c.requireSignedIn()
	if err != nil {
		return err
	}

	if err := c.store.Delete(ctx, ident.ID, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return c.storeFailed("delete job", err)
	}
	return nil
}

// SelectJob switches to the detail screen for a job in the current cache.
// Selecting an id that is not cached (a stale click after a replace) is a
// no-op.
func (c *Controller) SelectJob(jobID string) error {
	if _, err := c.requireSignedIn(); err != nil {
		return err
	}
	if !c.cache.Contains(jobID) {
		return nil
	}

	c.mu.Lock()
	c.view = domain.ViewState{
		Screen:        domain.ScreenJobDetail,
		SelectedJobID: jobID,
		Tab:           domain.TabOverview,
	}
	c.mu.Unlock()

	c.render()
	return nil
}

// Back leaves the detail screen. On any other screen it does nothing.
func (c *Controller) Back() {
	c.mu.Lock()
	if c.view.Screen != domain.ScreenJobDetail {
		c.mu.Unlock()
		return
	}
	c.view = domain.ViewState{Screen: domain.ScreenDashboard, Tab: domain.TabOverview}
	c.mu.Unlock()

	c.render()
}

// SwitchTab changes the active pane on the detail screen. Outside the detail
// screen it is a no-op.
func (c *Controller) SwitchTab(tab domain.Tab) error {
	if _, err := c.requireSignedIn(); err != nil {
		return err
	}
	if !domain.ValidTab(tab) {
		return fmt.Errorf("unknown tab %q", tab)
	}

	c.mu.Lock()
	if c.view.Screen != domain.ScreenJobDetail || c.view.Tab == tab {
		c.mu.Unlock()
		return nil
	}
	c.view.Tab = tab
	c.mu.Unlock()

	c.render()
	return nil
}

// Snapshot assembles the current frame for the render layer. Jobs and
// aggregates come from the cache; the slice is a copy the caller may keep.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.RLock()
	view := c.view
	var notice *domain.Notification
	if c.notice != nil {
		n := *c.notice
		notice = &n
	}
	c.mu.RUnlock()

	return domain.Snapshot{
		View:       view,
		Jobs:       c.cache.Jobs(),
		Aggregates: c.cache.Aggregates(),
		Features:   c.features,
		Notice:     notice,
	}
}

// requireSignedIn gates every identity-scoped operation. While signed out it
// forces the sign-in screen and surfaces an access-denied notification; while
// the session is still loading it rejects without touching the view, so the
// loading screen is only ever left by the first gateway notification.
func (c *Controller) requireSignedIn() (domain.Identity, error) {
	if ident, ok := c.session.Identity(); ok {
		return ident, nil
	}

	if c.session.State() == session.SignedOut {
		c.mu.Lock()
		c.view = domain.ViewState{Screen: domain.ScreenSignIn, Tab: domain.TabOverview}
		c.notice = &domain.Notification{Level: domain.NoticeError, Message: MsgAccessDenied}
		c.mu.Unlock()
		c.render()
	}
	return domain.Identity{}, domain.ErrAccessDenied
}

// storeFailed logs a store error, surfaces it as a notification, and wraps it
// for the caller.
func (c *Controller) storeFailed(op string, err error) error {
	c.logger.Error("Store call failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	c.mu.Lock()
	c.notice = &domain.Notification{Level: domain.NoticeError, Message: MsgStoreFailure}
	c.mu.Unlock()
	c.render()
	return domain.NewStoreError(op, err)
}

func (c *Controller) render() {
	if c.renderer == nil {
		return
	}
	c.renderer.Render(c.Snapshot())
}

func jobExists(jobs []domain.Job, id string) bool {
	for i := range jobs {
		if jobs[i].ID == id {
			return true
		}
	}
	return false
}
