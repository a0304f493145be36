package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/projection"
)

const (
	minWidth  = 60
	minHeight = 15
)

// View implements tea.Model. This renders the full TUI display.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.width < minWidth || m.height < minHeight {
		return m.renderTooSmall()
	}

	body := m.renderEvents()
	if m.statesVisible() {
		sep := styles.Divider.Render(strings.TrimRight(strings.Repeat(" │ \n", m.bodyHeight()), "\n"))
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, sep, m.renderStates())
	}

	sections := []string{
		m.renderHeader(),
		m.renderDivider(),
		body,
		m.renderDivider(),
		m.renderFooter(),
	}

	rendered := styles.UnfocusedBorder.
		Width(safeWidth(m.width - 2)).
		Render(strings.Join(sections, "\n"))

	return lipgloss.Place(m.width, m.height, lipgloss.Left, lipgloss.Top, rendered)
}

// renderTooSmall renders a minimal message for terminals that are too small.
func (m model) renderTooSmall() string {
	return fmt.Sprintf("Terminal too small (%dx%d). Need %dx%d minimum.",
		m.width, m.height, minWidth, minHeight)
}

// renderHeader renders the title with counters and a ship summary line.
func (m model) renderHeader() string {
	w := m.innerWidth()

	title := styles.Title.Render("WINGMAN")
	counters := styles.Counter.Render(fmt.Sprintf("events: %d  history: %d  queued: %d",
		m.seen, m.stats.History, m.stats.Queued))
	titleLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		title,
		strings.Repeat(" ", max(1, w-lipgloss.Width(title)-lipgloss.Width(counters))),
		counters,
	)

	return titleLine + "\n" + shipSummary(m.states)
}

// shipSummary describes location, docking, combat and idleness in one line.
func shipSummary(states events.States) string {
	var parts []string

	if loc, ok := states[projection.NameLocation].(projection.LocationState); ok && loc.StarSystem != "" {
		parts = append(parts, styles.Ship.Render(loc.StarSystem))
	}
	if dock, ok := states[projection.NameDockingState].(projection.DockingStateData); ok && dock.Docked {
		text := "docked"
		if dock.StationName != "" {
			text += " at " + dock.StationName
		}
		parts = append(parts, styles.Docked.Render(text))
	}
	if combat, ok := states[projection.NameInCombat].(projection.CombatState); ok && combat.InCombat {
		parts = append(parts, styles.Combat.Render("in combat"))
	}
	if idle, ok := states[projection.NameIdle].(projection.IdleState); ok && idle.IsIdle {
		parts = append(parts, styles.Idle.Render("idle"))
	}

	if len(parts) == 0 {
		return styles.Counter.Render("no ship state yet")
	}
	return strings.Join(parts, styles.Divider.Render(" · "))
}

// renderDivider renders a horizontal divider line.
func (m model) renderDivider() string {
	return styles.Divider.Render(strings.Repeat("─", m.innerWidth()))
}

// renderEvents renders the scrollable event feed.
func (m model) renderEvents() string {
	visible := m.visibleLines()
	w, _ := m.paneWidths()

	lines := make([]string, 0, visible)
	if len(m.eventLines) == 0 {
		lines = append(lines, lipgloss.PlaceHorizontal(w, lipgloss.Center, "Waiting for events..."))
	} else {
		scrollPos := safeScroll(m.scrollPos, len(m.eventLines), visible)
		end := min(scrollPos+visible, len(m.eventLines))
		for _, el := range m.eventLines[scrollPos:end] {
			lines = append(lines, renderEventLine(el, w))
		}
	}

	for len(lines) < visible {
		lines = append(lines, "")
	}

	return lipgloss.NewStyle().Width(w).Render(strings.Join(lines, "\n"))
}

// renderEventLine renders a single event with timestamp and styling.
func renderEventLine(el eventLine, maxWidth int) string {
	prefix := el.Time.Format("15:04:05") + " "
	textWidth := max(10, maxWidth-len(prefix))
	return styles.Time.Render(prefix) + el.Style.Render(events.Truncate(el.Text, textWidth))
}

// renderStates renders the selected projection name above its state.
func (m model) renderStates() string {
	_, w := m.paneWidths()

	title := "no projections"
	if name := m.selectedName(); name != "" {
		title = fmt.Sprintf("%s (%d/%d)", name, m.selected+1, len(m.names))
	}
	nameStyle := styles.StateName
	if m.focusedPane != FocusStates {
		nameStyle = nameStyle.Bold(false)
	}

	return lipgloss.NewStyle().Width(w).Render(
		nameStyle.Render(events.Truncate(title, w)) + "\n" + m.stateView.View())
}

// renderState pretty-prints a projection state.
func renderState(state any) string {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Sprintf("unrenderable state: %v", err)
	}
	return string(data)
}

// renderFooter renders keyboard shortcuts help text.
func (m model) renderFooter() string {
	var help string
	switch {
	case m.focusedPane == FocusStates:
		help = "←/→: projection  ↑/↓: scroll  tab: feed  s: hide states  q: quit"
	case m.statesVisible():
		help = "↑/↓: scroll  g/G: top/bottom  [/]: projection  tab: states  q: quit"
	default:
		help = "↑/↓: scroll  g/G: top/bottom  s: show states  q: quit"
	}
	return styles.Footer.Render(help)
}

// safeWidth returns a width that is at least 1 to prevent negative values.
func safeWidth(w int) int {
	if w < 1 {
		return 1
	}
	return w
}

// safeScroll clamps scroll position to valid bounds.
func safeScroll(pos, totalLines, visibleLines int) int {
	if pos < 0 {
		return 0
	}
	maxScroll := totalLines - visibleLines
	if maxScroll < 0 {
		return 0
	}
	if pos > maxScroll {
		return maxScroll
	}
	return pos
}

// StyleForEvent returns the appropriate style for an event.
func StyleForEvent(evt events.Event) lipgloss.Style {
	switch e := evt.(type) {
	case *events.GameEvent:
		if e.Historic {
			return styles.Historic
		}
		return styles.Game
	case *events.StatusEvent:
		return styles.Status
	case *events.ProjectedEvent:
		return styles.Projected
	case *events.ExternalEvent:
		return styles.External
	case *events.ConversationEvent:
		return styles.Dialogue
	default:
		return styles.Tool
	}
}
