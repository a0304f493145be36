// Package tui provides a terminal monitor for wingman using bubbletea.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

// StatsGetter provides access to manager statistics.
type StatsGetter interface {
	Stats() eventmanager.Stats
}

// TUI is the terminal monitor: a live event feed next to the projection states.
type TUI struct {
	updates     <-chan events.Update
	onQuit      func()
	statsGetter StatsGetter
	maxEvents   int
}

// Option configures the TUI.
type Option func(*TUI)

// New creates a new TUI reading updates from the given channel.
func New(updates <-chan events.Update, opts ...Option) *TUI {
	t := &TUI{
		updates:   updates,
		maxEvents: defaultMaxEvents,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithOnQuit sets the callback invoked when the user quits.
func WithOnQuit(fn func()) Option {
	return func(t *TUI) {
		t.onQuit = fn
	}
}

// WithStatsGetter sets the stats provider for the header.
func WithStatsGetter(sg StatsGetter) Option {
	return func(t *TUI) {
		t.statsGetter = sg
	}
}

// WithMaxEvents bounds the event feed.
func WithMaxEvents(n int) Option {
	return func(t *TUI) {
		if n > 0 {
			t.maxEvents = n
		}
	}
}

// Run starts the TUI and blocks until the user quits, the update channel
// closes, or ctx is cancelled. Without an interactive terminal of usable size
// it prints one line per event instead.
func (t *TUI) Run(ctx context.Context) error {
	if !isTerminal() || terminalTooSmall() {
		return t.runSimple(ctx)
	}

	m := newModel(t.updates, t.onQuit, t.statsGetter, t.maxEvents)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
