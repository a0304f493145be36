package eventmanager

import (
	"context"
	"time"
)

// Run processes queued events whenever something is enqueued and at least
// every process interval, and ticks timer-capable projections every timer
// interval. Processing errors are logged. When ctx is cancelled Run drains
// the queue one last time and returns the result of that drain.
func (m *Manager) Run(ctx context.Context) error {
	processTicker := time.NewTicker(m.processInterval)
	defer processTicker.Stop()
	timerTicker := time.NewTicker(m.timerInterval)
	defer timerTicker.Stop()

	m.logger.Info("event loop started",
		"process_interval", m.processInterval,
		"timer_interval", m.timerInterval)

	for {
		select {
		case <-ctx.Done():
			_, _, err := m.Process(context.WithoutCancel(ctx))
			if err != nil {
				m.logger.Error("final drain failed", "error", err)
			}
			m.logger.Info("event loop stopped")
			return err
		case <-m.signal:
			m.processLogged(ctx)
		case <-processTicker.C:
			m.processLogged(ctx)
		case <-timerTicker.C:
			if err := m.ProcessTimerTick(ctx); err != nil {
				m.logger.Error("timer tick failed", "error", err)
			}
		}
	}
}

func (m *Manager) processLogged(ctx context.Context) {
	if _, _, err := m.Process(ctx); err != nil {
		m.logger.Error("process failed", "error", err)
	}
}
