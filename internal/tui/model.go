package tui

import (
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

// FocusedPane represents which pane currently has keyboard focus.
type FocusedPane int

const (
	// FocusEvents means the event feed has focus (default).
	FocusEvents FocusedPane = iota
	// FocusStates means the projection state pane has focus.
	FocusStates
)

// eventLine represents a formatted event for display.
type eventLine struct {
	Time  time.Time
	Text  string
	Style lipgloss.Style
}

// Layout size constants.
const (
	// eventsWidthPercent is the share of the inner width given to the feed.
	eventsWidthPercent = 60
	// minEventsCols is the minimum width for the feed.
	minEventsCols = 40
	// minStatesCols is the minimum width for the state pane.
	minStatesCols = 30
	// paneGap is the width of the column separator.
	paneGap = 3
	// chromeRows covers border (2), header (2), dividers (2) and footer (1).
	chromeRows = 7
)

// model is the bubbletea model for the TUI.
type model struct {
	// Update source
	updates <-chan events.Update

	// Event feed
	eventLines []eventLine
	maxEvents  int
	seen       int

	// Projection states
	states    events.States
	names     []string
	selected  int
	stateView viewport.Model

	// Stats provider
	stats       eventmanager.Stats
	statsGetter StatsGetter

	// UI state
	width       int
	height      int
	scrollPos   int
	autoScroll  bool
	showStates  bool
	focusedPane FocusedPane

	onQuit func()
}

// updateMsg wraps an update for the bubbletea message system.
type updateMsg events.Update

// newModel creates a new model with the given configuration.
func newModel(updates <-chan events.Update, onQuit func(), statsGetter StatsGetter, maxEvents int) model {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return model{
		updates:     updates,
		maxEvents:   maxEvents,
		states:      events.States{},
		stateView:   viewport.New(0, 0),
		statsGetter: statsGetter,
		autoScroll:  true,
		showStates:  true,
		onQuit:      onQuit,
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.updates),
		doTick(),
	)
}

// innerWidth is the width inside the container border.
func (m model) innerWidth() int {
	return safeWidth(m.width - 4)
}

// bodyHeight is the number of rows available to the feed and state pane.
func (m model) bodyHeight() int {
	return max(1, m.height-chromeRows)
}

// visibleLines returns the number of event lines that fit in the feed.
func (m model) visibleLines() int {
	return m.bodyHeight()
}

// statesVisible reports whether the state pane is open and fits.
func (m model) statesVisible() bool {
	return m.showStates && m.innerWidth() >= minEventsCols+minStatesCols+paneGap
}

// paneWidths splits the inner width between the feed and the state pane.
func (m model) paneWidths() (eventsW, statesW int) {
	w := m.innerWidth()
	if !m.statesVisible() {
		return w, 0
	}
	eventsW = max(minEventsCols, w*eventsWidthPercent/100)
	statesW = w - eventsW - paneGap
	if statesW < minStatesCols {
		statesW = minStatesCols
		eventsW = w - statesW - paneGap
	}
	return eventsW, statesW
}

// resize recomputes the state viewport dimensions.
func (m *model) resize() {
	_, statesW := m.paneWidths()
	m.stateView.Width = max(1, statesW)
	// One row is taken by the projection name.
	m.stateView.Height = max(1, m.bodyHeight()-1)
	m.refreshStateView()
}

// setStates replaces the projection states and keeps the selection on the
// same projection where possible.
func (m *model) setStates(states events.States) {
	if states == nil {
		return
	}
	current := m.selectedName()
	m.states = states
	m.names = slices.Sorted(maps.Keys(states))
	m.selected = 0
	if i := slices.Index(m.names, current); i >= 0 {
		m.selected = i
	}
	m.refreshStateView()
}

// selectedName returns the projection shown in the state pane.
func (m model) selectedName() string {
	if m.selected < 0 || m.selected >= len(m.names) {
		return ""
	}
	return m.names[m.selected]
}

// cycleSelection moves the state pane to the next or previous projection.
func (m *model) cycleSelection(delta int) {
	if len(m.names) == 0 {
		return
	}
	m.selected = (m.selected + delta + len(m.names)) % len(m.names)
	m.stateView.GotoTop()
	m.refreshStateView()
}

// refreshStateView renders the selected state into the viewport.
func (m *model) refreshStateView() {
	name := m.selectedName()
	if name == "" {
		m.stateView.SetContent("no projections yet")
		return
	}
	m.stateView.SetContent(renderState(m.states[name]))
}

// toggleFocus switches focus between the feed and the state pane.
func (m *model) toggleFocus() {
	if !m.statesVisible() {
		m.focusedPane = FocusEvents
		return
	}
	switch m.focusedPane {
	case FocusEvents:
		m.focusedPane = FocusStates
	case FocusStates:
		m.focusedPane = FocusEvents
	}
}
