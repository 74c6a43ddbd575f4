package models

import (
	"errors"
	"strings"
	"testing"
)

func validStep() BoardStep {
	return BoardStep{
		ID:              "step_1",
		OrderIndex:      0,
		Title:           "Brush teeth",
		StepType:        StepTypeTask,
		DurationSeconds: 120,
		TimerSettings: TimerSettings{
			AutoStart:               true,
			WarningThresholdSeconds: 30,
			Notification:            NotificationConfig{Channel: ChannelVisual, Intensity: IntensityNormal},
		},
	}
}

func TestBoardStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BoardStep)
		wantErr error
	}{
		{name: "valid step", mutate: func(s *BoardStep) {}, wantErr: nil},
		{name: "empty ID", mutate: func(s *BoardStep) { s.ID = "" }, wantErr: ErrEmptyStepID},
		{name: "invalid step type", mutate: func(s *BoardStep) { s.StepType = "nap" }, wantErr: ErrInvalidStepType},
		{name: "negative duration", mutate: func(s *BoardStep) { s.DurationSeconds = -1 }, wantErr: ErrInvalidDuration},
		{name: "duration above cap", mutate: func(s *BoardStep) { s.DurationSeconds = MaxStepDurationSeconds + 1 }, wantErr: ErrDurationTooLong},
		{name: "zero duration is untimed not invalid", mutate: func(s *BoardStep) { s.DurationSeconds = 0 }, wantErr: nil},
		{name: "negative warning threshold", mutate: func(s *BoardStep) { s.TimerSettings.WarningThresholdSeconds = -5 }, wantErr: ErrInvalidWarning},
		{name: "title too long", mutate: func(s *BoardStep) { s.Title = strings.Repeat("x", MaxStepTitleLength+1) }, wantErr: ErrStepTitleTooLong},
		{name: "invalid channel", mutate: func(s *BoardStep) { s.TimerSettings.Notification.Channel = "smoke" }, wantErr: ErrInvalidChannel},
		{name: "invalid intensity", mutate: func(s *BoardStep) { s.TimerSettings.Notification.Intensity = "loud" }, wantErr: ErrInvalidIntensity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := validStep()
			tt.mutate(&step)
			err := step.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBoardValidate(t *testing.T) {
	step := validStep()

	board := Board{ID: "board_1", Name: "Morning routine", Steps: []BoardStep{step}}
	if err := board.Validate(); err != nil {
		t.Errorf("expected valid board, got %v", err)
	}

	board.ID = ""
	if err := board.Validate(); !errors.Is(err, ErrEmptyBoardID) {
		t.Errorf("expected ErrEmptyBoardID, got %v", err)
	}

	board.ID = "board_1"
	board.Steps[0].StepType = "bogus"
	err := board.Validate()
	if !errors.Is(err, ErrInvalidStepType) {
		t.Errorf("expected wrapped ErrInvalidStepType, got %v", err)
	}
}

func TestUntimed(t *testing.T) {
	step := validStep()
	if step.Untimed() {
		t.Error("step with duration should not be untimed")
	}
	step.DurationSeconds = 0
	if !step.Untimed() {
		t.Error("zero-duration step should be untimed")
	}
}

func TestIsValidStepType(t *testing.T) {
	for _, st := range []StepType{StepTypeTask, StepTypeBreak, StepTypeNote, StepTypeTransition, StepTypeCheckIn} {
		if !IsValidStepType(st) {
			t.Errorf("expected %q to be valid", st)
		}
	}
	if IsValidStepType("work") {
		t.Error("expected unknown step type to be invalid")
	}
}
