package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRun_ImmediateThenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		Run(ctx, 10*time.Millisecond, func(context.Context) {
			if runs.Add(1) == 3 {
				cancel()
			}
		}, quiet)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRun_FirstRunIsImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan time.Time, 1)
	begin := time.Now()
	go Run(ctx, time.Hour, func(context.Context) {
		select {
		case started <- time.Now():
		default:
		}
	}, quiet)

	select {
	case at := <-started:
		assert.Less(t, at.Sub(begin), time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestRun_SurvivesPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		Run(ctx, 5*time.Millisecond, func(context.Context) {
			if runs.Add(1) >= 2 {
				cancel()
				return
			}
			panic("cycle exploded")
		}, quiet)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not survive the panic")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestRun_CancelledContextReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		Run(ctx, time.Hour, func(context.Context) { runs.Add(1) }, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler ignored cancellation")
	}
	assert.LessOrEqual(t, runs.Load(), int32(1))
}
