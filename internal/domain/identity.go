package domain

// Identity is an authenticated user as reported by the auth gateway. The
// engine never creates identities itself; it only observes the ones the
// gateway notifies it about.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}
