package calsync

import (
	"errors"
	"testing"
	"time"

	"github.com/qzwhatnext/engine/internal/calendar"
)

func TestClassifyDrift(t *testing.T) {
	start := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	tests := []struct {
		name          string
		raw           *calendar.RawEvent
		taskTitle     string
		wantTime      bool
		wantTitle     bool
	}{
		{
			name:      "unchanged",
			raw:       &calendar.RawEvent{Title: "Write report", Start: start, End: end},
			taskTitle: "Write report",
		},
		{
			name:      "title edited on calendar",
			raw:       &calendar.RawEvent{Title: "Write quarterly report", Start: start, End: end},
			taskTitle: "Write report",
			wantTitle: true,
		},
		{
			name:      "moved to a new start time",
			raw:       &calendar.RawEvent{Title: "Write report", Start: start.Add(time.Hour), End: end.Add(time.Hour)},
			taskTitle: "Write report",
			wantTime:  true,
		},
		{
			name:      "stretched without moving",
			raw:       &calendar.RawEvent{Title: "Write report", Start: start, End: end.Add(15 * time.Minute)},
			taskTitle: "Write report",
			wantTime:  true,
		},
		{
			name:      "moved and renamed",
			raw:       &calendar.RawEvent{Title: "Draft report", Start: start.Add(time.Hour), End: end.Add(time.Hour)},
			taskTitle: "Write report",
			wantTime:  true,
			wantTitle: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotTime, gotTitle := classifyDrift(tc.raw, tc.taskTitle, start, end)
			if gotTime != tc.wantTime {
				t.Errorf("timeChanged = %v, want %v", gotTime, tc.wantTime)
			}
			if gotTitle != tc.wantTitle {
				t.Errorf("titleChanged = %v, want %v", gotTitle, tc.wantTitle)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain network error", errors.New("dial tcp: connection refused"), false},
		{"invalid grant", errors.New("oauth2: \"invalid_grant\" \"Token has been expired or revoked\""), true},
		{"unauthorized status", errors.New("oauth2: cannot fetch token: 401 Unauthorized"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isAuthError(tc.err); got != tc.want {
				t.Errorf("isAuthError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
