package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "@every 30s"},
		{spec: "@hourly"},
		{spec: "*/5 * * * *"},
		{spec: "0 */5 * * * *"},
		{spec: "", wantErr: true},
		{spec: "every thirty seconds", wantErr: true},
		{spec: "61 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestRunnerAdd(t *testing.T) {
	r := New(context.Background(), quietLogger())

	if err := r.Add("poll", "@every 1h", func(context.Context) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("broken", "not a schedule", func(context.Context) {}); err == nil {
		t.Error("expected error for an invalid schedule")
	}
	if r.Jobs() != 1 {
		t.Errorf("jobs = %d, want 1", r.Jobs())
	}
}

func TestRunnerRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, quietLogger())
	ran := make(chan struct{}, 1)
	if err := r.Add("tick", "@every 1s", func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	r.Start()
	defer r.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
