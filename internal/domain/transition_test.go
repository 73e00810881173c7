package domain

import (
	"errors"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		wantErr  error
	}{
		{JobStatusQueued, JobStatusRunning, nil},
		{JobStatusQueued, JobStatusFailed, nil},
		{JobStatusRunning, JobStatusCompleted, nil},
		{JobStatusRunning, JobStatusFailed, nil},
		{JobStatusRunning, JobStatusRunning, nil},
		{JobStatusQueued, JobStatusCompleted, ErrInvalidTransition},
		{JobStatusRunning, JobStatusQueued, ErrInvalidTransition},
		{JobStatusCompleted, JobStatusFailed, ErrTerminalState},
		{JobStatusFailed, JobStatusCompleted, ErrTerminalState},
		{JobStatusFailed, JobStatusFailed, ErrTerminalState},
	}
	for _, tc := range tests {
		err := ValidateTransition(tc.from, tc.to)
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s -> %s: err = %v, want %v", tc.from, tc.to, err, tc.wantErr)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Video-Fast "); err != nil || m != ModeVideoFast {
		t.Fatalf("ParseMode = %q, %v", m, err)
	}
	if _, err := ParseMode("gif"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseMode(gif) err = %v, want ErrValidation", err)
	}
}

func TestJobInputValidate(t *testing.T) {
	if err := (JobInput{}).Validate(ModeImage); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing brand err = %v", err)
	}
	if err := (JobInput{BrandName: "Kopi"}).Validate(ModeVideoFast); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing brain err = %v", err)
	}
	if err := (JobInput{BrainID: "job-1"}).Validate(ModeVideoFast); err != nil {
		t.Fatalf("video-fast with brain: %v", err)
	}
}
