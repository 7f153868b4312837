package domain

import "context"

// AuthGateway is the external authentication collaborator. Sign-in, sign-up,
// and sign-out are single attempts: the gateway classifies failures into
// AuthError codes and never retries. State transitions are not derived from
// these return values; they arrive through OnChange.
type AuthGateway interface {
	// SignIn authenticates an existing user. On success the gateway also
	// emits an OnChange notification carrying the identity.
	SignIn(ctx context.Context, email, password string) (Identity, error)

	// SignUp registers a new user and signs them in, emitting an OnChange
	// notification on success.
	SignUp(ctx context.Context, email, password string) (Identity, error)

	// SignOut ends the current session and emits an OnChange notification
	// with nil.
	SignOut(ctx context.Context) error

	// OnChange registers fn for identity change notifications. The gateway
	// calls fn once with the startup identity (or nil) and again after every
	// sign-in and sign-out. Notifications are delivered in order on a single
	// dispatch goroutine; a listener registered after the startup
	// notification still receives the current state first.
	OnChange(fn func(*Identity))

	// Current returns the identity as of the most recent notification, or
	// nil before the first one and while signed out.
	Current() *Identity
}

// JobStore is the external persistence collaborator. Every operation is
// scoped to an owner: ids outside that scope behave as if they do not exist.
type JobStore interface {
	// Create persists a new job for ownerID and returns the id the backend
	// assigned. The created record starts with status "new".
	Create(ctx context.Context, ownerID string, draft JobDraft) (string, error)

	// Update applies a partial update to an owned job and bumps its
	// UpdatedAt. Returns ErrJobNotFound if the id is absent or owned by
	// someone else.
	Update(ctx context.Context, ownerID, jobID string, patch JobPatch) error

	// Delete removes an owned job. Returns ErrJobNotFound if the id is
	// absent or owned by someone else.
	Delete(ctx context.Context, ownerID, jobID string) error

	// Subscribe opens a live query over ownerID's jobs ordered by UpdatedAt
	// descending. Each push on the subscription carries the full current
	// result set, starting with an initial snapshot.
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}

// Subscription is one live query feed. Pushes are delivered in the order the
// backend emits them and the channel is closed once Cancel returns.
type Subscription interface {
	// Jobs is the push channel. Every element is a complete snapshot; the
	// receiver replaces, never merges.
	Jobs() <-chan []Job

	// Cancel stops delivery. When it returns no further push will be sent
	// and the Jobs channel is closed. Cancel is idempotent.
	Cancel()
}

// Renderer consumes snapshots. Render must not block: the controller calls
// it after every state change on whichever goroutine caused the change.
type Renderer interface {
	Render(Snapshot)
}
