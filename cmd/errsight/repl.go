package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/errsight/errsight/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive analysis shell",
	Long: `Start an interactive shell for feeding errors into the analysis
pipeline by hand.

Type any error message to schedule it for analysis, then ':advice <message>'
to read the result. ':status' shows the queue, breaker, and cache state.
Type ':help' in the shell for the full command list.`,
	Run: func(cmd *cobra.Command, args []string) {
		sched, err := buildPipeline(false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sched.Close()

		r, err := repl.New(&repl.Config{Scheduler: sched})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create REPL: %v\n", err)
			os.Exit(1)
		}
		if err := r.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
