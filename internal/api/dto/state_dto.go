package dto

import (
	"github.com/tradieiq/engine/internal/domain"
)

type ViewDTO struct {
	Screen        string `json:"screen"`
	SelectedJobID string `json:"selected_job_id,omitempty"`
	Tab           string `json:"tab,omitempty"`
	Busy          bool   `json:"busy"`
}

type AggregatesDTO struct {
	Total       int            `json:"total"`
	ActiveCount int            `json:"active_count"`
	TodayCount  int            `json:"today_count"`
	TotalValue  float64        `json:"total_value"`
	ByStatus    map[string]int `json:"by_status"`
}

type NotificationDTO struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type FeaturesDTO struct {
	GoogleSignIn bool `json:"google_signin"`
	Recording    bool `json:"recording"`
}

// StateResponse is one engine snapshot: everything a client needs to draw a
// frame.
type StateResponse struct {
	View       ViewDTO          `json:"view"`
	Jobs       []JobDTO         `json:"jobs"`
	Aggregates AggregatesDTO    `json:"aggregates"`
	Features   FeaturesDTO      `json:"features"`
	Notice     *NotificationDTO `json:"notice,omitempty"`
}

func StateFrom(snap domain.Snapshot) StateResponse {
	resp := StateResponse{
		View: ViewDTO{
			Screen:        string(snap.View.Screen),
			SelectedJobID: snap.View.SelectedJobID,
			Tab:           string(snap.View.Tab),
			Busy:          snap.View.Busy,
		},
		Jobs: JobsFrom(snap.Jobs),
		Aggregates: AggregatesDTO{
			Total:       snap.Aggregates.Total,
			ActiveCount: snap.Aggregates.ActiveCount,
			TodayCount:  snap.Aggregates.TodayCount,
			TotalValue:  snap.Aggregates.TotalValue,
			ByStatus:    snap.Aggregates.ByStatus,
		},
		Features: FeaturesDTO{
			GoogleSignIn: snap.Features.GoogleSignIn,
			Recording:    snap.Features.Recording,
		},
	}
	if snap.Notice != nil {
		resp.Notice = &NotificationDTO{
			Level:   snap.Notice.Level,
			Message: snap.Notice.Message,
		}
	}
	return resp
}
