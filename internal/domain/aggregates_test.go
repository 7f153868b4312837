package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "plain number", input: "1500", expected: 1500},
		{name: "dollar sign", input: "$1500", expected: 1500},
		{name: "dollar sign and comma", input: "$1,500", expected: 1500},
		{name: "multiple commas", input: "$1,234,567", expected: 1234567},
		{name: "decimal", input: "$2,450.75", expected: 2450.75},
		{name: "surrounding whitespace", input: " $800 ", expected: 800},
		{name: "empty string", input: "", expected: 0},
		{name: "unparsable text", input: "about three grand", expected: 0},
		{name: "currency word", input: "1500 AUD", expected: 0},
		{name: "negative adjustment", input: "-$250", expected: -250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseValue(tt.input))
		})
	}
}

func TestComputeAggregates(t *testing.T) {
	now := time.Date(2025, time.March, 14, 15, 0, 0, 0, time.UTC)
	today := now.Add(-2 * time.Hour)
	yesterday := now.AddDate(0, 0, -1)

	jobs := []Job{
		{Status: JobStatusNew, Value: "$1,500", CreatedAt: today},
		{Status: JobStatusInProgress, Value: "$2,000.50", CreatedAt: yesterday},
		{Status: JobStatusQuoted, Value: "800", CreatedAt: today},
		{Status: JobStatusCompleted, Value: "", CreatedAt: yesterday},
		{Status: JobStatusCompleted, Value: "not a number", CreatedAt: today},
	}

	agg := ComputeAggregates(jobs, now)

	assert.Equal(t, 5, agg.Total)
	assert.Equal(t, 2, agg.ActiveCount, "new and in_progress are active")
	assert.Equal(t, 3, agg.TodayCount)
	assert.InDelta(t, 4300.50, agg.TotalValue, 0.001)
	assert.Equal(t, 1, agg.ByStatus[JobStatusNew])
	assert.Equal(t, 1, agg.ByStatus[JobStatusQuoted])
	assert.Equal(t, 1, agg.ByStatus[JobStatusInProgress])
	assert.Equal(t, 2, agg.ByStatus[JobStatusCompleted])
}

func TestComputeAggregates_Empty(t *testing.T) {
	agg := ComputeAggregates(nil, time.Now())

	assert.Equal(t, 0, agg.Total)
	assert.Equal(t, 0, agg.ActiveCount)
	assert.Equal(t, 0, agg.TodayCount)
	assert.Equal(t, float64(0), agg.TotalValue)
	// Every status is present even when no job carries it.
	assert.Len(t, agg.ByStatus, len(Statuses))
}

func TestComputeAggregates_TodayUsesCalendarDay(t *testing.T) {
	// 00:30 local: a job from 23:50 the previous day is not "today" even
	// though it is less than an hour old.
	now := time.Date(2025, time.March, 14, 0, 30, 0, 0, time.UTC)
	jobs := []Job{
		{Status: JobStatusNew, CreatedAt: time.Date(2025, time.March, 13, 23, 50, 0, 0, time.UTC)},
		{Status: JobStatusNew, CreatedAt: time.Date(2025, time.March, 14, 0, 5, 0, 0, time.UTC)},
	}

	agg := ComputeAggregates(jobs, now)

	assert.Equal(t, 1, agg.TodayCount)
}
