package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradieiq/engine/internal/domain"
)

// fakeGateway drives the controller with scripted notifications. Tests call
// notify directly, standing in for the broadcaster's dispatch goroutine.
type fakeGateway struct {
	mu      sync.Mutex
	fn      func(*domain.Identity)
	current *domain.Identity

	signInErr  error
	signUpErr  error
	signOutErr error
	signInHook func()
}

func (g *fakeGateway) OnChange(fn func(*domain.Identity)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = fn
}

func (g *fakeGateway) notify(id *domain.Identity) {
	g.mu.Lock()
	g.current = id
	fn := g.fn
	g.mu.Unlock()
	fn(id)
}

func (g *fakeGateway) Current() *domain.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *fakeGateway) SignIn(_ context.Context, email, _ string) (domain.Identity, error) {
	if g.signInHook != nil {
		g.signInHook()
	}
	if g.signInErr != nil {
		return domain.Identity{}, g.signInErr
	}
	id := domain.Identity{ID: "user-" + email, Email: email}
	g.notify(&id)
	return id, nil
}

func (g *fakeGateway) SignUp(_ context.Context, email, _ string) (domain.Identity, error) {
	if g.signUpErr != nil {
		return domain.Identity{}, g.signUpErr
	}
	id := domain.Identity{ID: "user-" + email, Email: email}
	g.notify(&id)
	return id, nil
}

func (g *fakeGateway) SignOut(context.Context) error {
	if g.signOutErr != nil {
		return g.signOutErr
	}
	g.notify(nil)
	return nil
}

// scriptedSub mirrors the store subscriptions the cache consumes in
// production; tests push snapshots into it by hand.
type scriptedSub struct {
	ch       chan []domain.Job
	mu       sync.Mutex
	canceled bool
	onCancel func()
}

func (s *scriptedSub) Jobs() <-chan []domain.Job { return s.ch }

func (s *scriptedSub) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return
	}
	s.canceled = true
	if s.onCancel != nil {
		s.onCancel()
	}
	close(s.ch)
}

// scriptedStore records every call so tests can assert write payloads and
// subscription lifecycle ordering.
type scriptedStore struct {
	mu     sync.Mutex
	events []string
	subs   []*scriptedSub
	nextID int

	createErr error
	updateErr error
	deleteErr error
}

func (f *scriptedStore) Create(_ context.Context, ownerID string, draft domain.JobDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.events = append(f.events, fmt.Sprintf("create:%s:%s", ownerID, draft.Client))
	return id, nil
}

func (f *scriptedStore) Update(_ context.Context, ownerID, jobID string, _ domain.JobPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.events = append(f.events, fmt.Sprintf("update:%s:%s", ownerID, jobID))
	return nil
}

func (f *scriptedStore) Delete(_ context.Context, ownerID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.events = append(f.events, fmt.Sprintf("delete:%s:%s", ownerID, jobID))
	return nil
}

func (f *scriptedStore) Subscribe(_ context.Context, ownerID string) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &scriptedSub{ch: make(chan []domain.Job, 8)}
	sub.onCancel = func() { f.record("cancel:" + ownerID) }
	f.events = append(f.events, "subscribe:"+ownerID)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *scriptedStore) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *scriptedStore) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *scriptedStore) lastSub() *scriptedSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

// captureRenderer keeps every snapshot the controller pushes.
type captureRenderer struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
	ch    chan domain.Snapshot
}

func newCaptureRenderer() *captureRenderer {
	return &captureRenderer{ch: make(chan domain.Snapshot, 64)}
}

func (r *captureRenderer) Render(s domain.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	select {
	case r.ch <- s:
	default:
	}
}

// waitFor blocks until a rendered snapshot satisfies cond.
func (r *captureRenderer) waitFor(t *testing.T, cond func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching snapshot")
			return domain.Snapshot{}
		}
	}
}

// sawBusy reports whether any rendered snapshot had the busy flag raised.
func (r *captureRenderer) sawBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snaps {
		if s.View.Busy {
			return true
		}
	}
	return false
}

func newTestController(t *testing.T) (*Controller, *fakeGateway, *scriptedStore, *captureRenderer) {
	t.Helper()

	gw := &fakeGateway{}
	store := &scriptedStore{}
	renderer := newCaptureRenderer()
	features := domain.FeatureFlags{GoogleSignIn: true, Recording: true}

	ctrl := New(gw, store, renderer, features, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Shutdown)

	return ctrl, gw, store, renderer
}

func signIn(t *testing.T, gw *fakeGateway, ownerID string) {
	t.Helper()
	gw.notify(&domain.Identity{ID: ownerID, Email: ownerID + "@example.com"})
}

func TestController_LoadingUntilFirstNotification(t *testing.T) {
	ctrl, gw, _, _ := newTestController(t)

	assert.Equal(t, domain.ScreenLoading, ctrl.Snapshot().View.Screen)

	// Identity-scoped calls are rejected while loading, and the rejection
	// does not leave the loading screen: only the first gateway notification
	// may do that.
	_, err := ctrl.CreateJob(context.Background(), domain.JobDraft{Client: "Acme"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.Equal(t, domain.ScreenLoading, ctrl.Snapshot().View.Screen)
	assert.Nil(t, ctrl.Snapshot().Notice)

	gw.notify(nil)
	assert.Equal(t, domain.ScreenSignIn, ctrl.Snapshot().View.Screen)
}

func TestController_FirstNotificationWithIdentity(t *testing.T) {
	ctrl, gw, store, _ := newTestController(t)

	signIn(t, gw, "owner-a")

	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenDashboard, snap.View.Screen)
	assert.Equal(t, []string{"subscribe:owner-a"}, store.eventLog())
	assert.True(t, snap.Features.GoogleSignIn)
	assert.True(t, snap.Features.Recording)
}

func TestController_AccessDeniedWhileSignedOut(t *testing.T) {
	ctrl, gw, store, _ := newTestController(t)
	gw.notify(nil)

	_, err := ctrl.CreateJob(context.Background(), domain.JobDraft{Client: "Acme"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.ErrorIs(t, ctrl.SelectJob("job-1"), domain.ErrAccessDenied)
	assert.ErrorIs(t, ctrl.SwitchTab(domain.TabTasks), domain.ErrAccessDenied)
	assert.ErrorIs(t, ctrl.UpdateJob(context.Background(), "job-1", domain.JobPatch{}), domain.ErrAccessDenied)
	assert.ErrorIs(t, ctrl.DeleteJob(context.Background(), "job-1"), domain.ErrAccessDenied)

	// Nothing reached the store and the view was forced to sign-in with a
	// notification.
	assert.Empty(t, store.eventLog())
	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenSignIn, snap.View.Screen)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeError, snap.Notice.Level)
	assert.Equal(t, MsgAccessDenied, snap.Notice.Message)
}

func TestController_PushPopulatesSnapshot(t *testing.T) {
	ctrl, gw, store, renderer := newTestController(t)
	signIn(t, gw, "owner-a")

	now := time.Now()
	store.lastSub().ch <- []domain.Job{
		{ID: "job-1", OwnerID: "owner-a", Client: "Acme", Address: "1 Main St", Value: "$1,500", Status: domain.JobStatusNew, CreatedAt: now, UpdatedAt: now},
	}

	renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 1 })

	snap := ctrl.Snapshot()
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "Acme", snap.Jobs[0].Client)
	assert.Equal(t, "1 Main St", snap.Jobs[0].Address)
	assert.Equal(t, "$1,500", snap.Jobs[0].Value)
	assert.Equal(t, 1, snap.Aggregates.ActiveCount)
	assert.InDelta(t, 1500.0, snap.Aggregates.TotalValue, 0.001)
}

func TestController_SelectJob(t *testing.T) {
	ctrl, gw, store, renderer := newTestController(t)
	signIn(t, gw, "owner-a")

	store.lastSub().ch <- []domain.Job{{ID: "job-1", OwnerID: "owner-a", Client: "Acme"}}
	renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 1 })

	// Selecting an id that is not cached is a no-op, not an error.
	require.NoError(t, ctrl.SelectJob("job-404"))
	assert.Equal(t, domain.ScreenDashboard, ctrl.Snapshot().View.Screen)

	require.NoError(t, ctrl.SelectJob("job-1"))
	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenJobDetail, snap.View.Screen)
	assert.Equal(t, "job-1", snap.View.SelectedJobID)
	assert.Equal(t, domain.TabOverview, snap.View.Tab)
}

func TestController_SwitchTabAndBack(t *testing.T) {
	ctrl, gw, store, renderer := newTestController(t)
	signIn(t, gw, "owner-a")

	store.lastSub().ch <- []domain.Job{{ID: "job-1", OwnerID: "owner-a"}}
	renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 1 })

	// Tab switches outside the detail screen change nothing.
	require.NoError(t, ctrl.SwitchTab(domain.TabTasks))
	assert.Equal(t, domain.TabOverview, ctrl.Snapshot().View.Tab)

	require.NoError(t, ctrl.SelectJob("job-1"))
	require.NoError(t, ctrl.SwitchTab(domain.TabMaterials))
	assert.Equal(t, domain.TabMaterials, ctrl.Snapshot().View.Tab)

	assert.Error(t, ctrl.SwitchTab(domain.Tab("sideways")))

	ctrl.Back()
	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenDashboard, snap.View.Screen)
	assert.Empty(t, snap.View.SelectedJobID)

	// Back on the dashboard stays put.
	ctrl.Back()
	assert.Equal(t, domain.ScreenDashboard, ctrl.Snapshot().View.Screen)
}

func TestController_PushRemovingSelectedJobFallsBack(t *testing.T) {
	ctrl, gw, store, renderer := newTestController(t)
	signIn(t, gw, "owner-a")

	sub := store.lastSub()
	sub.ch <- []domain.Job{{ID: "job-1"}, {ID: "job-2"}}
	renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 2 })

	require.NoError(t, ctrl.SelectJob("job-2"))

	// The selected job disappears with the next replace.
	sub.ch <- []domain.Job{{ID: "job-1"}}
	snap := renderer.waitFor(t, func(s domain.Snapshot) bool {
		return s.View.Screen == domain.ScreenDashboard && len(s.Jobs) == 1
	})
	assert.Empty(t, snap.View.SelectedJobID)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeInfo, snap.Notice.Level)

	// A replace that keeps the selected job leaves the detail screen alone.
	require.NoError(t, ctrl.SelectJob("job-1"))
	sub.ch <- []domain.Job{{ID: "job-1"}, {ID: "job-3"}}
	snap = renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 2 })
	assert.Equal(t, domain.ScreenJobDetail, snap.View.Screen)
	assert.Equal(t, "job-1", snap.View.SelectedJobID)
}

func TestController_SignOutCancelsBeforeClearing(t *testing.T) {
	ctrl, gw, store, renderer := newTestController(t)
	signIn(t, gw, "owner-a")

	store.lastSub().ch <- []domain.Job{{ID: "job-1"}}
	renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 1 })

	gw.notify(nil)

	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenSignIn, snap.View.Screen)
	assert.Empty(t, snap.Jobs)
	assert.Equal(t, []string{"subscribe:owner-a", "cancel:owner-a"}, store.eventLog())
}

func TestController_AccountSwitchNeverMixesOwners(t *testing.T) {
	ctrl, gw, store, renderer := newTestController(t)

	signIn(t, gw, "owner-a")
	store.lastSub().ch <- []domain.Job{{ID: "a-1", OwnerID: "owner-a"}}
	renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 1 })

	// Direct switch without an intervening sign-out notification.
	signIn(t, gw, "owner-b")

	assert.Equal(t,
		[]string{"subscribe:owner-a", "cancel:owner-a", "subscribe:owner-b"},
		store.eventLog(),
	)
	assert.Empty(t, ctrl.Snapshot().Jobs, "previous owner's jobs are cleared before the new feed starts")

	store.lastSub().ch <- []domain.Job{{ID: "b-1", OwnerID: "owner-b"}, {ID: "b-2", OwnerID: "owner-b"}}
	snap := renderer.waitFor(t, func(s domain.Snapshot) bool { return len(s.Jobs) == 2 })
	for _, j := range snap.Jobs {
		assert.Equal(t, "owner-b", j.OwnerID)
	}
}

func TestController_SignInFailureSurfacesNotice(t *testing.T) {
	ctrl, gw, _, renderer := newTestController(t)
	gw.notify(nil)
	gw.signInErr = domain.NewAuthError(domain.AuthCodeWrongPassword, "wrong password", nil)

	err := ctrl.SignIn(context.Background(), "a@example.com", "nope")
	assert.Equal(t, domain.AuthCodeWrongPassword, domain.AuthCodeOf(err))

	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenSignIn, snap.View.Screen, "a failed attempt stays on sign-in")
	assert.False(t, snap.View.Busy, "busy is cleared on the failure path")
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeError, snap.Notice.Level)
	assert.Equal(t, MessageFor(domain.AuthCodeWrongPassword), snap.Notice.Message)
	assert.True(t, renderer.sawBusy(), "busy was raised while the call ran")
}

func TestController_SignInSuccess(t *testing.T) {
	ctrl, gw, _, renderer := newTestController(t)
	gw.notify(nil)

	require.NoError(t, ctrl.SignIn(context.Background(), "a@example.com", "password1"))

	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenDashboard, snap.View.Screen)
	assert.False(t, snap.View.Busy)
	assert.Nil(t, snap.Notice)
	assert.True(t, renderer.sawBusy())
}

func TestController_SignUpThenSignOut(t *testing.T) {
	ctrl, gw, _, _ := newTestController(t)
	gw.notify(nil)

	require.NoError(t, ctrl.SignUp(context.Background(), "new@example.com", "password1"))
	assert.Equal(t, domain.ScreenDashboard, ctrl.Snapshot().View.Screen)

	require.NoError(t, ctrl.SignOut(context.Background()))
	snap := ctrl.Snapshot()
	assert.Equal(t, domain.ScreenSignIn, snap.View.Screen)
	assert.False(t, snap.View.Busy)
}

func TestController_ConcurrentSignInsDoNotInterleave(t *testing.T) {
	ctrl, gw, _, _ := newTestController(t)
	gw.notify(nil)

	gate := make(chan struct{})
	var inFlight, overlapped atomic.Int32
	gw.signInHook = func() {
		if inFlight.Add(1) > 1 {
			overlapped.Add(1)
		}
		<-gate
		inFlight.Add(-1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.SignIn(context.Background(), "a@example.com", "password1")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Zero(t, overlapped.Load(), "auth attempts must run one at a time")
}

func TestController_JobWritesAreFireAndForget(t *testing.T) {
	ctrl, gw, store, _ := newTestController(t)
	signIn(t, gw, "owner-a")

	id, err := ctrl.CreateJob(context.Background(), domain.JobDraft{Client: "Acme", Address: "1 Main St", Value: "$1,500"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	// The cache is untouched until the store pushes.
	assert.Empty(t, ctrl.Snapshot().Jobs)

	status := domain.JobStatusCompleted
	require.NoError(t, ctrl.UpdateJob(context.Background(), id, domain.JobPatch{Status: &status}))
	require.NoError(t, ctrl.DeleteJob(context.Background(), id))

	assert.Equal(t, []string{
		"subscribe:owner-a",
		"create:owner-a:Acme",
		"update:owner-a:job-1",
		"delete:owner-a:job-1",
	}, store.eventLog())

	// An empty patch never reaches the store.
	require.NoError(t, ctrl.UpdateJob(context.Background(), id, domain.JobPatch{}))
	assert.Len(t, store.eventLog(), 4)
}

func TestController_StoreFailureSurfacesNotice(t *testing.T) {
	ctrl, gw, store, _ := newTestController(t)
	signIn(t, gw, "owner-a")
	store.createErr = errors.New("backend down")

	_, err := ctrl.CreateJob(context.Background(), domain.JobDraft{Client: "Acme"})

	var storeErr *domain.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "create job", storeErr.Op)

	snap := ctrl.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeError, snap.Notice.Level)
	assert.Equal(t, MsgStoreFailure, snap.Notice.Message)
	assert.Equal(t, domain.ScreenDashboard, snap.View.Screen, "store failures do not change the screen")
}

func TestController_JobNotFoundPassesThrough(t *testing.T) {
	ctrl, gw, store, _ := newTestController(t)
	signIn(t, gw, "owner-a")
	store.updateErr = domain.ErrJobNotFound
	store.deleteErr = domain.ErrJobNotFound

	status := domain.JobStatusQuoted
	assert.ErrorIs(t, ctrl.UpdateJob(context.Background(), "job-404", domain.JobPatch{Status: &status}), domain.ErrJobNotFound)
	assert.ErrorIs(t, ctrl.DeleteJob(context.Background(), "job-404"), domain.ErrJobNotFound)

	// Not-found is the caller's problem, not a user-facing notification.
	assert.Nil(t, ctrl.Snapshot().Notice)
}
