package models

import (
	"errors"
	"testing"
	"time"
)

func TestCompletionPercentage(t *testing.T) {
	tests := []struct {
		name     string
		consumed int
		total    int
		expected int
	}{
		{name: "no steps consumed", consumed: 0, total: 5, expected: 0},
		{name: "partial rounds down", consumed: 1, total: 3, expected: 33},
		{name: "two of five", consumed: 2, total: 5, expected: 40},
		{name: "all consumed", consumed: 5, total: 5, expected: 100},
		{name: "consumed beyond total clamps", consumed: 7, total: 5, expected: 100},
		{name: "empty board", consumed: 0, total: 0, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompletionPercentage(tt.consumed, tt.total)
			if got != tt.expected {
				t.Errorf("CompletionPercentage(%d, %d) = %d, expected %d", tt.consumed, tt.total, got, tt.expected)
			}
		})
	}
}

func TestCompletionPercentageMonotonic(t *testing.T) {
	const total = 7
	prev := 0
	for consumed := 0; consumed <= total+2; consumed++ {
		got := CompletionPercentage(consumed, total)
		if got < prev {
			t.Fatalf("completion percentage decreased from %d to %d at consumed=%d", prev, got, consumed)
		}
		prev = got
	}
}

func TestRatingsValidate(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name    string
		ratings Ratings
		wantErr bool
	}{
		{name: "nil ratings allowed", ratings: Ratings{}, wantErr: false},
		{name: "valid ratings", ratings: Ratings{Satisfaction: intPtr(4), Difficulty: intPtr(2)}, wantErr: false},
		{name: "boundary ratings", ratings: Ratings{Satisfaction: intPtr(1), Difficulty: intPtr(5)}, wantErr: false},
		{name: "satisfaction too low", ratings: Ratings{Satisfaction: intPtr(0)}, wantErr: true},
		{name: "difficulty too high", ratings: Ratings{Difficulty: intPtr(6)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ratings.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRating) {
				t.Errorf("expected ErrInvalidRating, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	terminal := map[ExecutionStatus]bool{
		ExecutionNotStarted: false,
		ExecutionActive:     false,
		ExecutionPaused:     false,
		ExecutionCompleted:  true,
		ExecutionAbandoned:  true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, expected %v", status, status.Terminal(), want)
		}
	}
}

func TestExecutionRecordDurationSeconds(t *testing.T) {
	started := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	rec := ExecutionRecord{StartedAt: started}

	if d := rec.DurationSeconds(); d != 0 {
		t.Errorf("non-terminal record duration = %d, expected 0", d)
	}

	completed := started.Add(95 * time.Second)
	rec.CompletedAt = &completed
	if d := rec.DurationSeconds(); d != 95 {
		t.Errorf("duration = %d, expected 95", d)
	}
}
