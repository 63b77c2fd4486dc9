// prbench mines merged pull requests into SWE-bench-style task instances
// and evaluates external coding agents against them.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/prbench/prbench/cmd/prbench/commands"
	"github.com/prbench/prbench/pkg/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Best-effort: most deployments set credentials directly in the
	// environment, same as the teacher's cmd/tarsy entrypoint.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "prbench",
		Short:         "PR-mining pipeline and evaluation harness",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewMineCommand())
	rootCmd.AddCommand(commands.NewHarnessCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if coder, ok := err.(commands.ExitCoder); ok {
			return coder.ExitCode()
		}
		return 1
	}
	return 0
}
