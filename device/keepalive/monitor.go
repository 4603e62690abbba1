// Package keepalive watches that a board keeps answering.
//
// The Monitor periodically asks the board which code it is running. After
// FailureThreshold consecutive failed queries the board is considered lost
// and OnLost fires once; the first successful query afterwards fires
// OnRecovered. The query shares the board's message stream with user
// commands, so it exercises concurrent requests in normal operation.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultInterval is the default time between queries.
	DefaultInterval = 5 * time.Second

	// DefaultFailureThreshold is the number of consecutive failed queries
	// after which the board is considered lost.
	DefaultFailureThreshold = 3
)

// Prober queries the board's running code.
type Prober interface {
	MainCodeRunning(ctx context.Context) (bool, error)
}

// Status is a snapshot of the monitor's view of the board.
type Status struct {
	LastSeen time.Time
	MainCode bool
	Failures int
	Lost     bool
}

// Config configures a keep-alive Monitor.
type Config struct {
	// Interval between queries. Default: 5 seconds.
	Interval time.Duration

	// FailureThreshold is the number of consecutive failures before OnLost
	// fires. Default: 3.
	FailureThreshold int

	// Logger for keep-alive events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Monitor tracks board liveness.
type Monitor struct {
	cfg         Config
	prober      Prober
	log         *slog.Logger
	mu          sync.Mutex
	status      Status
	onLost      func(err error)
	onRecovered func()
	cancel      context.CancelFunc

	// nowFn allows overriding time.Now() for testing.
	nowFn func() time.Time
}

// New creates a keep-alive monitor querying prober.
func New(prober Prober, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:    cfg,
		prober: prober,
		log:    logger.WithGroup("keepalive"),
		nowFn:  time.Now,
	}
}

// SetOnLost sets the callback invoked when the board stops answering. err
// is the last query failure.
func (m *Monitor) SetOnLost(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLost = fn
}

// SetOnRecovered sets the callback invoked when a lost board answers again.
func (m *Monitor) SetOnRecovered(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecovered = fn
}

// Status returns the current liveness state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Check runs one query and updates the liveness state.
func (m *Monitor) Check(ctx context.Context) {
	running, err := m.prober.MainCodeRunning(ctx)
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	var fireLost, fireRecovered bool
	if err != nil {
		m.status.Failures++
		if !m.status.Lost && m.status.Failures >= m.cfg.FailureThreshold {
			m.status.Lost = true
			fireLost = true
		}
	} else {
		fireRecovered = m.status.Lost
		m.status = Status{
			LastSeen: m.nowFn(),
			MainCode: running,
		}
	}
	failures := m.status.Failures
	onLost := m.onLost
	onRecovered := m.onRecovered
	m.mu.Unlock()

	if err != nil {
		m.log.Debug("keep-alive query failed", "failures", failures, "error", err)
	}

	// Fire callbacks outside the lock
	if fireLost {
		m.log.Warn("board stopped responding", "failures", failures)
		if onLost != nil {
			onLost(err)
		}
	}
	if fireRecovered {
		m.log.Info("board responding again", "main_code", running)
		if onRecovered != nil {
			onRecovered()
		}
	}
}

// Start begins the periodic query loop. Blocks until the context is
// cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Stop cancels the monitor's context, stopping the query loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
