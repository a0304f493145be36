package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/npratt/wingman/internal/events"
)

// isTerminal returns true if both stdout and stdin are TTYs.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// terminalSize returns the current terminal width and height.
// Returns 0, 0 if the terminal size cannot be determined.
func terminalSize() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0
	}
	return width, height
}

// terminalTooSmall returns true if the terminal is below the minimum size.
func terminalTooSmall() bool {
	width, height := terminalSize()
	return width < minWidth || height < minHeight
}

// runSimple provides line-by-line output for non-interactive environments.
func (t *TUI) runSimple(ctx context.Context) error {
	return printUpdates(ctx, os.Stdout, t.updates)
}

// printUpdates writes one formatted line per update until the channel
// closes or ctx is cancelled.
func printUpdates(ctx context.Context, w io.Writer, updates <-chan events.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			text := events.FormatWithTimestamp(u.Event)
			if text == "" {
				continue
			}
			if _, err := fmt.Fprintln(w, text); err != nil {
				return err
			}
		}
	}
}
