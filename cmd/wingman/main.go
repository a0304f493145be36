package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/npratt/wingman/internal/daemon"
)

var version = "dev"

// getDaemonClient connects to the socket given by --socket-path, or finds
// daemon.json in the project.
func getDaemonClient() (*daemon.Client, error) {
	if sock := viper.GetString(FlagSocketPath); sock != "" {
		return daemon.NewClient(sock), nil
	}
	info, err := daemon.FindDaemonInfo("")
	if err != nil {
		return nil, fmt.Errorf("daemon not running: %w", err)
	}
	return daemon.NewClient(info.SocketPath), nil
}

// bindFlags binds every flag in fs to viper under its own name.
func bindFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
}

func newRootCmd(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wingman",
		Short: "Event engine for a game companion assistant",
		Long: `wingman ingests game journal entries, status snapshots and external
events, folds them through projections into live ship state, and persists
the event history so projections survive restarts.

Other tools read the state through the daemon socket, the JSONL event
transcript, or the states file.`,
		SilenceUsage: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().Bool(FlagVerbose, false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().String(FlagConfig, "", "Config file path (default: .wingman/config.yaml)")
	rootCmd.PersistentFlags().String(FlagLogFile, "", "Event transcript path")
	rootCmd.PersistentFlags().String(FlagStatesFile, "", "Projection states file path")
	rootCmd.PersistentFlags().String(FlagSocketPath, "", "Unix socket path for daemon control")
	rootCmd.PersistentFlags().String(FlagDatabase, "", "Event database path")
	bindFlags(rootCmd.PersistentFlags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wingman %s\n", version)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newStartCmd(logger, logLevel))
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newEmitCmd())
	rootCmd.AddCommand(newWaitCmd())
	rootCmd.AddCommand(newClearHistoryCmd())
	rootCmd.AddCommand(newStopCmd())

	return rootCmd
}

func main() {
	logLevel := &slog.LevelVar{}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	viper.SetEnvPrefix("WINGMAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := newRootCmd(logger, logLevel).ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
