package tui

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npratt/wingman/internal/events"
)

const (
	// defaultMaxEvents is the default number of event lines kept in the feed.
	defaultMaxEvents = 1000
	// tickInterval is the interval for periodic stats sync.
	tickInterval = 2 * time.Second
)

// channelClosedMsg signals that the update channel was closed.
type channelClosedMsg struct{}

// tickMsg signals a periodic tick for stats synchronization.
type tickMsg time.Time

// waitForUpdate creates a command that waits for the next update.
// Returns channelClosedMsg if the channel is closed.
func waitForUpdate(ch <-chan events.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return updateMsg(u)
	}
}

// doTick creates a command that waits for the tick interval and sends a tickMsg.
func doTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case updateMsg:
		m.handleUpdate(events.Update(msg))
		return m, waitForUpdate(m.updates)

	case channelClosedMsg:
		slog.Info("update channel closed, exiting TUI")
		return m, tea.Quit

	case tickMsg:
		m.handleTick()
		return m, doTick()

	default:
		return m, nil
	}
}

// handleKey processes keyboard input and returns the updated model and command.
func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c", "q":
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "tab":
		m.toggleFocus()
		return m, nil

	case "s":
		m.showStates = !m.showStates
		if !m.statesVisible() {
			m.focusedPane = FocusEvents
		}
		m.resize()
		return m, nil
	}

	if m.focusedPane == FocusStates {
		switch key {
		case "left", "h", "[":
			m.cycleSelection(-1)
			return m, nil
		case "right", "l", "]":
			m.cycleSelection(1)
			return m, nil
		}
		var cmd tea.Cmd
		m.stateView, cmd = m.stateView.Update(msg)
		return m, cmd
	}

	switch key {
	case "up", "k":
		m.autoScroll = false
		if m.scrollPos > 0 {
			m.scrollPos--
		}
		return m, nil

	case "down", "j":
		maxScroll := len(m.eventLines) - m.visibleLines()
		if m.scrollPos < maxScroll {
			m.scrollPos++
		}
		if m.scrollPos >= maxScroll {
			m.autoScroll = true
		}
		return m, nil

	case "home", "g":
		m.autoScroll = false
		m.scrollPos = 0
		return m, nil

	case "end", "G":
		m.autoScroll = true
		m.scrollPos = max(0, len(m.eventLines)-m.visibleLines())
		return m, nil

	case "[", "]":
		// Cycle the state pane without leaving the feed.
		if key == "[" {
			m.cycleSelection(-1)
		} else {
			m.cycleSelection(1)
		}
		return m, nil

	default:
		return m, nil
	}
}

// handleUpdate records a processed event and the states that followed it.
func (m *model) handleUpdate(u events.Update) {
	m.seen++
	m.setStates(u.States)

	text := events.Format(u.Event)
	if text == "" {
		return
	}
	m.eventLines = append(m.eventLines, eventLine{
		Time:  u.Event.Base().ProcessedTime(),
		Text:  text,
		Style: StyleForEvent(u.Event),
	})

	if over := len(m.eventLines) - m.maxEvents; over > 0 {
		m.eventLines = m.eventLines[over:]
		m.scrollPos = max(0, m.scrollPos-over)
	}

	if m.autoScroll {
		m.scrollPos = max(0, len(m.eventLines)-m.visibleLines())
	}
}

// handleTick syncs manager stats for the header.
func (m *model) handleTick() {
	if m.statsGetter == nil {
		return
	}
	m.stats = m.statsGetter.Stats()
}
