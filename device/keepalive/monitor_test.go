package keepalive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProber answers from a list of results, repeating the last one.
type scriptedProber struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (p *scriptedProber) MainCodeRunning(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.calls, len(p.results)-1)
	p.calls++
	return p.results[i] == nil, p.results[i]
}

var errNoReply = errors.New("no reply")

func TestNew_Defaults(t *testing.T) {
	m := New(&scriptedProber{results: []error{nil}}, Config{})
	assert.Equal(t, DefaultInterval, m.cfg.Interval)
	assert.Equal(t, DefaultFailureThreshold, m.cfg.FailureThreshold)
	assert.NotNil(t, m.log)
}

func TestCheck_LostAfterThreshold(t *testing.T) {
	p := &scriptedProber{results: []error{errNoReply}}
	m := New(p, Config{FailureThreshold: 3})

	var lost []error
	m.SetOnLost(func(err error) { lost = append(lost, err) })

	ctx := context.Background()
	m.Check(ctx)
	m.Check(ctx)
	assert.Empty(t, lost)
	assert.False(t, m.Status().Lost)

	m.Check(ctx)
	require.Len(t, lost, 1)
	assert.ErrorIs(t, lost[0], errNoReply)
	assert.True(t, m.Status().Lost)

	// Further failures do not fire again.
	m.Check(ctx)
	assert.Len(t, lost, 1)
	assert.Equal(t, 4, m.Status().Failures)
}

func TestCheck_RecoveredOnNextSuccess(t *testing.T) {
	p := &scriptedProber{results: []error{errNoReply, errNoReply, nil}}
	m := New(p, Config{FailureThreshold: 2})

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }

	lost, recovered := 0, 0
	m.SetOnLost(func(error) { lost++ })
	m.SetOnRecovered(func() { recovered++ })

	ctx := context.Background()
	m.Check(ctx)
	m.Check(ctx)
	m.Check(ctx)
	m.Check(ctx)

	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, recovered)

	st := m.Status()
	assert.False(t, st.Lost)
	assert.Zero(t, st.Failures)
	assert.True(t, st.MainCode)
	assert.Equal(t, now, st.LastSeen)
}

func TestCheck_SuccessResetsFailures(t *testing.T) {
	p := &scriptedProber{results: []error{errNoReply, nil, errNoReply, errNoReply}}
	m := New(p, Config{FailureThreshold: 3})

	lost := 0
	m.SetOnLost(func(error) { lost++ })

	ctx := context.Background()
	for range 4 {
		m.Check(ctx)
	}
	assert.Zero(t, lost)
	assert.Equal(t, 2, m.Status().Failures)
}

func TestCheck_CanceledContextIgnored(t *testing.T) {
	p := &scriptedProber{results: []error{context.Canceled}}
	m := New(p, Config{FailureThreshold: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Check(ctx)

	assert.Zero(t, m.Status().Failures)
}

func TestStartStop(t *testing.T) {
	p := &scriptedProber{results: []error{nil}}
	m := New(p, Config{Interval: time.Millisecond})

	done := make(chan struct{})
	go func() {
		m.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.calls >= 2
	}, time.Second, time.Millisecond)

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
