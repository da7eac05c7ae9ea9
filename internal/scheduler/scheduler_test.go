package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"property_agent/internal/model"
)

type mockRunner struct {
	mu    sync.Mutex
	calls int
	err   error
	ran   chan struct{}
}

func (r *mockRunner) RunOnce(context.Context) (model.RunReport, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.ran != nil {
		r.ran <- struct{}{}
	}
	return model.RunReport{}, r.err
}

func (r *mockRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: DefaultSchedule},
		{spec: "*/5 * * * *"},
		{spec: "@daily"},
		{spec: "not a schedule", wantErr: true},
		{spec: "61 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := New(&mockRunner{}, tt.spec, nil, discardLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestRunTriggersOnStart(t *testing.T) {
	runner := &mockRunner{ran: make(chan struct{}, 1), err: ErrRunInProgress}
	s, err := New(runner, DefaultSchedule, time.UTC, discardLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("run on start did not happen")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if got := runner.count(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestRunWithoutStartRun(t *testing.T) {
	runner := &mockRunner{}
	s, err := New(runner, DefaultSchedule, time.UTC, discardLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.SetRunOnStart(false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if got := runner.count(); got != 0 {
		t.Errorf("runs = %d, want 0", got)
	}
}
