// Package cmd implements the formvm host CLI: map a form file, decode it,
// and run, list, or disassemble its scripts (spec.md §4.8's Host Driver,
// generalized from the teacher's flat flag.Bool/flag.Parse main.go into a
// Cobra command tree).
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	debugFlag      bool
	stepBudgetFlag uint64
)

var rootCmd = &cobra.Command{
	Use:   "formvm",
	Short: "Interpreter for the FORM bytecode container format",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if debugFlag {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

// Execute runs the root command, returning the process exit code the way
// spec.md §6 defines it: 0 on success, 1 if the file is missing or
// malformed, nonzero on any uncaught VM error.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "trace every dispatched block")
	rootCmd.PersistentFlags().Uint64Var(&stepBudgetFlag, "step-budget", 0, "cooperative cancellation budget (0 = unlimited)")
}
