package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/npratt/wingman/internal/config"
	"github.com/npratt/wingman/internal/daemon"
	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

const (
	defaultWaitTimeout = 30 * time.Second
	followInterval     = 500 * time.Millisecond
)

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getDaemonClient()
			if err != nil {
				return err
			}

			status, err := client.Status()
			if err != nil {
				return err
			}

			if viper.GetBool(FlagJSON) {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	statusCmd.Flags().Bool(FlagJSON, false, "Output status as JSON")
	return statusCmd
}

// printStatus writes the human-readable form of a status response.
func printStatus(w io.Writer, status *daemon.StatusResponse) {
	fmt.Fprintf(w, "Status: %s\n", status.Status)
	fmt.Fprintf(w, "Uptime: %s\n", status.Uptime)
	fmt.Fprintf(w, "Started: %s\n", status.StartTime)
	fmt.Fprintf(w, "Stats:\n")
	fmt.Fprintf(w, "  Queued: %d\n", status.Stats.Queued)
	fmt.Fprintf(w, "  History: %d\n", status.Stats.History)
	fmt.Fprintf(w, "  Waiters: %d\n", status.Stats.Waiters)
	if status.Stats.LastProcessed > 0 {
		fmt.Fprintf(w, "  Last processed: %s\n", events.EpochTime(status.Stats.LastProcessed).Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Projections (%d):\n", len(status.Projections))
	for _, name := range status.Projections {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state [projection]",
		Short: "Print projection states",
		Long: `Print the current state of one projection, or of all of them.

When no daemon is running the last states written to the states file
are printed instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			states, err := fetchStates(name)
			if err != nil {
				return err
			}
			return printStates(cmd.OutOrStdout(), states)
		},
	}
}

// fetchStates asks the daemon for states, falling back to the states file.
func fetchStates(name string) (map[string]json.RawMessage, error) {
	client, err := getDaemonClient()
	if err == nil && client.IsRunning() {
		states, err := client.State(name)
		if errors.Is(err, eventmanager.ErrProjectionNotFound) {
			return nil, fmt.Errorf("unknown projection %q", name)
		}
		return states, err
	}

	path := resolvedPaths(config.PathsConfig{States: viper.GetString(FlagStatesFile)}).States
	file, err := events.ReadStateFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon not running and no states file: %w", err)
	}
	if name == "" {
		return file.Projections, nil
	}
	raw, ok := file.Projections[name]
	if !ok {
		return nil, fmt.Errorf("unknown projection %q", name)
	}
	return map[string]json.RawMessage{name: raw}, nil
}

// printStates writes each state as indented JSON under its name, sorted.
func printStates(w io.Writer, states map[string]json.RawMessage) error {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var buf bytes.Buffer
		if err := json.Indent(&buf, states[name], "", "  "); err != nil {
			return fmt.Errorf("format %s: %w", name, err)
		}
		fmt.Fprintf(w, "%s:\n%s\n", name, buf.String())
	}
	return nil
}

func newEventsCmd() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "View recent events",
		Long: `Print recently processed events, oldest first.

Events come from the running daemon. Without a daemon the JSONL event
transcript is read instead.`,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			count := viper.GetInt(FlagCount)
			follow := viper.GetBool(FlagFollow)
			out := cmd.OutOrStdout()

			client, err := getDaemonClient()
			if err == nil && client.IsRunning() {
				return streamEvents(cmd.Context(), out, client, count, follow)
			}

			logPath := viper.GetString(FlagLogFile)
			if info, err := daemon.FindDaemonInfo(""); err == nil {
				logPath = info.LogPath
			} else {
				logPath = resolvedPaths(config.PathsConfig{Log: logPath}).Log
			}

			if follow {
				return tailFollow(cmd.Context(), out, logPath)
			}
			return tailLast(out, logPath, count)
		},
	}

	eventsCmd.Flags().BoolP(FlagFollow, "f", false, "Follow event stream (like tail -f)")
	eventsCmd.Flags().IntP(FlagCount, "n", defaultTailCount, "Number of recent events to show")
	return eventsCmd
}

// eventSource is the part of the daemon client that serves events.
type eventSource interface {
	Events(limit int, after float64) ([]events.Event, error)
}

// streamEvents prints the newest count events, then polls for newer ones
// when follow is set.
func streamEvents(ctx context.Context, w io.Writer, src eventSource, count int, follow bool) error {
	evts, err := src.Events(count, 0)
	if err != nil {
		return err
	}
	last := printEvents(w, evts, 0)
	if !follow {
		return nil
	}

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			evts, err := src.Events(0, last)
			if err != nil {
				return err
			}
			last = printEvents(w, evts, last)
		}
	}
}

// printEvents prints evts and returns the newest processing time seen.
func printEvents(w io.Writer, evts []events.Event, last float64) float64 {
	for _, evt := range evts {
		fmt.Fprintln(w, events.FormatWithTimestamp(evt))
		last = max(last, evt.Base().ProcessedAt)
	}
	return last
}

func newEmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emit <event|json> [key=value...]",
		Short: "Queue an external event",
		Long: `Queue an external event for processing.

The first argument is either an event name or a JSON object carrying an
"event" field. Further key=value arguments add fields; values are parsed
as JSON when possible and kept as strings otherwise.

  wingman emit TwitchFollow user=cmdr_jameson
  wingman emit '{"event":"TwitchRaid","viewers":42}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := parseEmitArgs(args)
			if err != nil {
				return err
			}

			client, err := getDaemonClient()
			if err != nil {
				return err
			}
			if err := client.Emit(content); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", content["event"])
			return nil
		},
	}
}

// parseEmitArgs builds an external event body from command arguments.
func parseEmitArgs(args []string) (map[string]any, error) {
	content := make(map[string]any)
	first := strings.TrimSpace(args[0])
	if strings.HasPrefix(first, "{") {
		if err := json.Unmarshal([]byte(first), &content); err != nil {
			return nil, fmt.Errorf("parse event JSON: %w", err)
		}
	} else {
		content["event"] = first
	}

	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", kv)
		}
		content[key] = parseValue(value)
	}

	if name, _ := content["event"].(string); name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	return content, nil
}

// parseValue decodes s as JSON, or returns it unchanged when it is not JSON.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func newWaitCmd() *cobra.Command {
	waitCmd := &cobra.Command{
		Use:   "wait <projection> <field> <value>",
		Short: "Block until a projection field has a value",
		Long: `Block until a field of a projection's state equals a value, then print
the state. field is a dot-separated path into the state's JSON form and
value is parsed as JSON when possible.

  wingman wait DockingState docked true --timeout 2m`,
		Args: cobra.ExactArgs(3),
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getDaemonClient()
			if err != nil {
				return err
			}

			timeout := viper.GetDuration(FlagTimeout)
			state, err := client.Wait(args[0], args[1], parseValue(args[2]), timeout)
			switch {
			case errors.Is(err, eventmanager.ErrConditionTimeout):
				return fmt.Errorf("timed out after %s waiting for %s.%s", timeout, args[0], args[1])
			case errors.Is(err, eventmanager.ErrProjectionNotFound):
				return fmt.Errorf("unknown projection %q", args[0])
			case err != nil:
				return err
			}
			return printStates(cmd.OutOrStdout(), map[string]json.RawMessage{args[0]: state})
		},
	}
	waitCmd.Flags().Duration(FlagTimeout, defaultWaitTimeout, "How long to wait")
	return waitCmd
}

func newClearHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Delete the event history and reset projections",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getDaemonClient()
			if err != nil {
				return err
			}
			if err := client.ClearHistory(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getDaemonClient()
			if err != nil {
				return err
			}

			force := viper.GetBool(FlagForce)
			if err := client.Stop(force); err != nil {
				return err
			}

			if force {
				fmt.Fprintln(cmd.OutOrStdout(), "Stop requested - daemon stopping immediately")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Stop requested - daemon will finish queued events and stop")
			}
			return nil
		},
	}
	stopCmd.Flags().Bool(FlagForce, false, "Stop without waiting for in-flight responses")
	return stopCmd
}

// resolvedPaths resolves paths against the project root, filling empty
// entries from the defaults.
func resolvedPaths(paths config.PathsConfig) config.PathsConfig {
	defaults := config.Default().Paths
	if paths.Database == "" {
		paths.Database = defaults.Database
	}
	if paths.Log == "" {
		paths.Log = defaults.Log
	}
	if paths.States == "" {
		paths.States = defaults.States
	}
	resolved, err := daemon.ResolvePaths(paths, daemon.FindProjectRoot(""))
	if err != nil {
		return paths
	}
	return resolved
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
