package sync

import (
	"context"
	"log/slog"
	"net/http"
	gosync "sync"
	"time"
)

// ProbeMonitor implements Connectivity by probing an HTTP endpoint on a
// ticker and emitting reachability transitions. Only transitions are
// emitted — consumers subscribe to changes, they do not poll.
type ProbeMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu        gosync.Mutex
	reachable bool

	changes chan bool
	done    chan struct{}
}

// NewProbeMonitor creates a monitor probing url every interval. Call Run to
// start probing.
func NewProbeMonitor(url string, interval time.Duration, client *http.Client, logger *slog.Logger) *ProbeMonitor {
	if client == nil {
		client = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ProbeMonitor{
		url:      url,
		interval: interval,
		client:   client,
		logger:   logger,
		changes:  make(chan bool, 1),
		done:     make(chan struct{}),
	}
}

// Reachable returns the last observed reachability.
func (m *ProbeMonitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reachable
}

// Changes returns the transition channel. Sends are dropped rather than
// blocked when the consumer lags; reachability is level-based state, so a
// missed intermediate transition is harmless.
func (m *ProbeMonitor) Changes() <-chan bool {
	return m.changes
}

// Run probes until ctx is canceled. The first probe fires immediately so
// startup state is accurate.
func (m *ProbeMonitor) Run(ctx context.Context) error {
	defer close(m.done)

	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, m.url, nil)
	if err != nil {
		m.logger.Warn("connectivity probe misconfigured", slog.String("error", err.Error()))
		return
	}

	resp, err := m.client.Do(req)

	reachable := err == nil
	if resp != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	changed := reachable != m.reachable
	m.reachable = reachable
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("connectivity changed", slog.Bool("reachable", reachable))

	select {
	case m.changes <- reachable:
	default:
	}
}
