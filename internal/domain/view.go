package domain

// Screen identifies which of the engine's screens is visible.
type Screen string

const (
	ScreenLoading   Screen = "loading"
	ScreenSignIn    Screen = "sign-in"
	ScreenDashboard Screen = "dashboard"
	ScreenJobDetail Screen = "job-detail"
)

// Tab identifies the active pane on the job-detail screen.
type Tab string

const (
	TabOverview   Tab = "overview"
	TabTranscript Tab = "transcript"
	TabTasks      Tab = "tasks"
	TabMaterials  Tab = "materials"
)

// ValidTab reports whether t is one of the job-detail tabs.
func ValidTab(t Tab) bool {
	switch t {
	case TabOverview, TabTranscript, TabTasks, TabMaterials:
		return true
	}
	return false
}

// ViewState is the controller's derived view selection. It is never
// persisted; SelectedJobID and Tab are only meaningful while Screen is
// ScreenJobDetail. Busy is set while an auth call is in flight so the render
// layer can disable the triggering control.
type ViewState struct {
	Screen        Screen
	SelectedJobID string
	Tab           Tab
	Busy          bool
}

// Notification levels
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notification is a single user-visible message. The controller keeps only
// the most recent one; the render layer decides how long to show it.
type Notification struct {
	Level   string
	Message string
}

// FeatureFlags are presentation toggles carried verbatim from configuration
// into every snapshot. The engine never infers them.
type FeatureFlags struct {
	GoogleSignIn bool
	Recording    bool
}

// Snapshot is everything the render layer needs to draw one frame: the view
// selection, the jobs visible to the current session, their aggregates, the
// feature flags, and the last notification (nil when there is none).
type Snapshot struct {
	View       ViewState
	Jobs       []Job
	Aggregates Aggregates
	Features   FeatureFlags
	Notice     *Notification
}
