package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ponyo877/livebid/cli/domain"
)

const DefaultCreditInterval = 25 * time.Minute

// CreditHandler receives every successful metering poll.
type CreditHandler interface {
	OnCreditTick(ctx context.Context, tick domain.CreditTick)
}

// CreditMonitor polls the metering endpoint on a fixed interval for as long
// as a session is live.
type CreditMonitor struct {
	meter        Meter
	livestreamID string
	interval     time.Duration
	handler      CreditHandler
	log          *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewCreditMonitor(meter Meter, livestreamID string, interval time.Duration, handler CreditHandler, log *slog.Logger) *CreditMonitor {
	if interval <= 0 {
		interval = DefaultCreditInterval
	}
	return &CreditMonitor{
		meter:        meter,
		livestreamID: livestreamID,
		interval:     interval,
		handler:      handler,
		log:          log.With("component", "credit_monitor"),
	}
}

// Start launches the poll loop. Only the first call has any effect.
func (m *CreditMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop cancels the poll loop and waits for it to return. It is safe to call
// more than once and before Start.
func (m *CreditMonitor) Stop() {
	m.mu.Lock()
	m.started = true
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *CreditMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Debug("credit monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("credit monitor stopped")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *CreditMonitor) poll(ctx context.Context) {
	tick, err := m.meter.ProcessCreditDeduction(ctx, m.livestreamID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("credit poll failed", "livestream_id", m.livestreamID, "error", err)
		return
	}
	m.log.Info("credit poll",
		"livestream_id", m.livestreamID,
		"deducted", tick.Deducted,
		"remaining", tick.RemainingCredits,
		"consumed", tick.TotalConsumed,
	)
	m.handler.OnCreditTick(ctx, tick)
}
