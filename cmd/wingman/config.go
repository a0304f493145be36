package main

// Flag names for Viper binding
const (
	// Global flags
	FlagVerbose    = "verbose"
	FlagConfig     = "config"
	FlagLogFile    = "log-file"
	FlagStatesFile = "states-file"
	FlagSocketPath = "socket-path"
	FlagDatabase   = "db-path"

	// Start command flags
	FlagTUI        = "tui"
	FlagDaemon     = "daemon"
	FlagEphemeral  = "ephemeral"
	FlagJournalDir = "journal-dir"

	// Stop command flags
	FlagForce = "force"

	// Events command flags
	FlagFollow = "follow"
	FlagCount  = "count"

	// Wait command flags
	FlagTimeout = "timeout"

	// Output format flags
	FlagJSON = "json"
)
