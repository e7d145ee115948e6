package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/embedrec/backfill"
)

func TestBackfillServiceInvalidCron(t *testing.T) {
	r := backfill.NewRunner(nil, nil, backfill.Options{CategoryCron: "not a cron"}, zerolog.Nop())
	svc := &backfillService{runner: r, stopTimeout: time.Second}

	err := svc.Serve(context.Background())
	if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Fatalf("Serve() error = %v, want ErrTerminateSupervisorTree", err)
	}
}

func TestBackfillServiceStopsRunner(t *testing.T) {
	r := backfill.NewRunner(nil, nil, backfill.Options{Workers: 2}, zerolog.Nop())
	svc := &backfillService{runner: r, stopTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if err := r.Submit(backfill.AllCategoriesJob{}); !errors.Is(err, backfill.ErrStopped) {
		t.Errorf("Submit() after stop = %v, want ErrStopped", err)
	}
	if svc.String() != "backfill-runner" {
		t.Errorf("String() = %q", svc.String())
	}
}
