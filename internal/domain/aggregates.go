package domain

import (
	"strconv"
	"strings"
	"time"
)

// Aggregates are the dashboard figures derived from the full job list. They
// are recomputed from scratch on every cache push; there is no incremental
// bookkeeping to get out of sync.
type Aggregates struct {
	Total       int
	ActiveCount int
	TodayCount  int
	TotalValue  float64
	ByStatus    map[string]int
}

// ComputeAggregates derives the dashboard aggregates from jobs. ActiveCount
// counts jobs with status new or in_progress; TodayCount counts jobs created
// on the same calendar day as now, in now's location; TotalValue sums the
// parsed value strings.
func ComputeAggregates(jobs []Job, now time.Time) Aggregates {
	agg := Aggregates{
		Total:    len(jobs),
		ByStatus: make(map[string]int, len(Statuses)),
	}
	for _, s := range Statuses {
		agg.ByStatus[s] = 0
	}

	ny, nm, nd := now.Date()
	for _, j := range jobs {
		if _, ok := agg.ByStatus[j.Status]; ok {
			agg.ByStatus[j.Status]++
		}
		if j.Status == JobStatusNew || j.Status == JobStatusInProgress {
			agg.ActiveCount++
		}
		jy, jm, jd := j.CreatedAt.In(now.Location()).Date()
		if jy == ny && jm == nm && jd == nd {
			agg.TodayCount++
		}
		agg.TotalValue += ParseValue(j.Value)
	}
	return agg
}

// ParseValue turns a display value string like "$1,500.50" into a number.
// Dollar signs, commas, and surrounding whitespace are ignored; anything that
// still fails to parse, including the empty string, counts as 0.
func ParseValue(s string) float64 {
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
