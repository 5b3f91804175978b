package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bmsbridge-launcher/internal/state"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultRequestTimeout = 1500 * time.Millisecond
)

// HealthResultType distinguishes a published state from a failed poll
type HealthResultType string

const (
	// HealthUpdated carries a new last-known state (from a poll or a manual override)
	HealthUpdated HealthResultType = "health_updated"

	// HealthPollError means the endpoint could not be read; last-known is unchanged
	HealthPollError HealthResultType = "poll_error"
)

// HealthResult is one observation from the poller
type HealthResult struct {
	Type      HealthResultType
	State     state.ServerHealthState
	Manual    bool
	Error     error
	Latency   time.Duration
	Timestamp time.Time
}

// HealthPoller polls /api/health on an interval and keeps the last known state
type HealthPoller struct {
	client *APIClient
	logger *zap.SugaredLogger

	mu         sync.RWMutex
	lastKnown  state.ServerHealthState
	lastCheck  time.Time
	lastError  error
	monitoring bool
	generation uint64
	stopTicks  context.CancelFunc

	inFlight atomic.Bool

	resultsCh chan HealthResult

	// Lifetime of the poller
	ctx    context.Context
	cancel context.CancelFunc

	interval time.Duration
}

// NewHealthPoller creates a poller using client. interval <= 0 selects the default.
func NewHealthPoller(client *APIClient, interval time.Duration, logger *zap.SugaredLogger) *HealthPoller {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &HealthPoller{
		client:    client,
		logger:    logger,
		lastKnown: state.Stopped(),
		resultsCh: make(chan HealthResult, 32),
		ctx:       ctx,
		cancel:    cancel,
		interval:  interval,
	}
}

// StartMonitoring begins interval polling. Calling it while monitoring is a no-op.
func (hp *HealthPoller) StartMonitoring() {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if hp.monitoring || hp.ctx.Err() != nil {
		return
	}

	hp.monitoring = true
	hp.generation++
	ctx, cancel := context.WithCancel(hp.ctx)
	hp.stopTicks = cancel

	hp.logger.Infow("Starting health monitoring",
		"base_url", hp.client.BaseURL(),
		"interval", hp.interval)

	go hp.monitor(ctx, hp.generation)
}

// StopMonitoring stops scheduling ticks. A tick already in flight will not publish.
func (hp *HealthPoller) StopMonitoring() {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if !hp.monitoring {
		return
	}

	hp.monitoring = false
	hp.generation++
	if hp.stopTicks != nil {
		hp.stopTicks()
		hp.stopTicks = nil
	}
	hp.logger.Info("Stopped health monitoring")
}

// IsMonitoring reports whether the poll timer is active
func (hp *HealthPoller) IsMonitoring() bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.monitoring
}

// ManuallySetState publishes s immediately, bypassing the network.
// It works whether or not monitoring is active.
func (hp *HealthPoller) ManuallySetState(s state.ServerHealthState) {
	hp.mu.Lock()
	hp.lastKnown = s
	hp.mu.Unlock()

	hp.logger.Debugw("Health state set manually", "server_status", s.ServerStatus)
	hp.deliver(HealthResult{
		Type:      HealthUpdated,
		State:     s,
		Manual:    true,
		Timestamp: time.Now(),
	})
}

// LastKnownState returns the last published state
func (hp *HealthPoller) LastKnownState() state.ServerHealthState {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.lastKnown
}

// LastCheck returns the time and error of the last completed poll
func (hp *HealthPoller) LastCheck() (time.Time, error) {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.lastCheck, hp.lastError
}

// ResultsChannel returns the channel observations are delivered on
func (hp *HealthPoller) ResultsChannel() <-chan HealthResult {
	return hp.resultsCh
}

// Shutdown stops monitoring for good (safe to call multiple times)
func (hp *HealthPoller) Shutdown() {
	hp.StopMonitoring()
	hp.cancel()
}

// monitor drives ticks until ctx is cancelled
func (hp *HealthPoller) monitor(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(hp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hp.logger.Debugw("Health monitor loop exiting", "generation", gen)
			return
		case <-ticker.C:
			go hp.tick(ctx, gen)
		}
	}
}

// tick performs one poll. Only one request is in flight at a time; a tick
// that finds one running is skipped.
func (hp *HealthPoller) tick(ctx context.Context, gen uint64) {
	if !hp.inFlight.CompareAndSwap(false, true) {
		hp.logger.Debug("Previous health check still in flight, skipping tick")
		return
	}
	defer hp.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			hp.logger.Errorw("Health tick panicked", "panic", r)
			hp.publish(gen, HealthResult{
				Type:      HealthPollError,
				Error:     fmt.Errorf("health check panicked: %v", r),
				Timestamp: time.Now(),
			})
		}
	}()

	hp.publish(gen, hp.check(ctx))
}

// check turns one API call into an observation
func (hp *HealthPoller) check(ctx context.Context) HealthResult {
	start := time.Now()
	health, err := hp.client.Health(ctx)

	var statusErr *HealthStatusError
	switch {
	case err == nil:
		return HealthResult{Type: HealthUpdated, State: health, Latency: time.Since(start), Timestamp: time.Now()}
	case errors.As(err, &statusErr):
		// A non-2xx answer is itself a health observation
		return HealthResult{Type: HealthUpdated, State: health, Error: err, Latency: time.Since(start), Timestamp: time.Now()}
	default:
		return HealthResult{Type: HealthPollError, Error: err, Latency: time.Since(start), Timestamp: time.Now()}
	}
}

// publish records and delivers a poll result unless the session that
// produced it has been stopped or superseded
func (hp *HealthPoller) publish(gen uint64, res HealthResult) {
	hp.mu.Lock()
	if !hp.monitoring || hp.generation != gen {
		hp.mu.Unlock()
		hp.logger.Debugw("Discarding stale health result", "type", res.Type, "generation", gen)
		return
	}

	previous := hp.lastKnown
	hp.lastCheck = res.Timestamp
	hp.lastError = res.Error
	if res.Type == HealthUpdated {
		hp.lastKnown = res.State
	}
	hp.mu.Unlock()

	if res.Type == HealthUpdated && previous.ServerStatus != res.State.ServerStatus {
		hp.logger.Infow("Health status changed",
			"from", previous.ServerStatus,
			"to", res.State.ServerStatus,
			"bms", res.State.BMSStatus,
			"latency", res.Latency)
	} else if res.Type == HealthPollError {
		hp.logger.Debugw("Health poll failed", "error", res.Error, "latency", res.Latency)
	}

	hp.deliver(res)
}

// deliver hands a result to the consumer without dropping it
func (hp *HealthPoller) deliver(res HealthResult) {
	select {
	case hp.resultsCh <- res:
	case <-hp.ctx.Done():
	}
}
