package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

type countingSweeper struct {
	calls atomic.Int32
	fired chan struct{}
	err   error
}

func (c *countingSweeper) Run(ctx context.Context) (service.SweepResult, error) {
	c.calls.Add(1)
	if c.fired != nil {
		select {
		case c.fired <- struct{}{}:
		default:
		}
	}
	return service.SweepResult{Reminded: 1}, c.err
}

func TestNewSweepWorkerRejectsBadSchedule(t *testing.T) {
	if _, err := NewSweepWorker(&countingSweeper{}, "every tuesday", 0, nil); err == nil {
		t.Fatal("expected schedule error")
	}
	for _, schedule := range []string{"@daily", "0 6 * * *", "@every 1h"} {
		if _, err := NewSweepWorker(&countingSweeper{}, schedule, 0, nil); err != nil {
			t.Errorf("%q: %v", schedule, err)
		}
	}
}

func TestRunOnceCallsSweeper(t *testing.T) {
	s := &countingSweeper{err: errors.New("db down")}
	w, err := NewSweepWorker(s, "@daily", time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w.RunOnce(context.Background())
	w.RunOnce(context.Background())
	if s.calls.Load() != 2 {
		t.Errorf("calls = %d", s.calls.Load())
	}
}

func TestStartFiresOnSchedule(t *testing.T) {
	s := &countingSweeper{fired: make(chan struct{}, 1)}
	w, err := NewSweepWorker(s, "@every 1s", 0, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case <-s.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep never fired")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start returned %v", err)
	}
}
