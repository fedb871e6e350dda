package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
	fail  bool
}

func (p *countingPurger) PurgeExpired(context.Context) (int, error) {
	p.calls.Add(1)
	if p.fail {
		return 0, errors.New("store down")
	}
	return 1, nil
}

func TestRunPurgesUntilCancelled(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, p, 2*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 2*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunSurvivesErrors(t *testing.T) {
	p := &countingPurger{fail: true}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, p, 2*time.Millisecond)
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 2*time.Millisecond)
	assert.True(t, p.fail)
}
