package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree. Output goes to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "stubd",
		Short: "stubd is an HTTP service virtualization server",
		Long: `stubd answers HTTP requests from a set of request/response mappings.

Mappings are matched by score across path, method, headers, query, cookies
and body; the best candidate's response is rendered, optionally through
templates. Mappings can be loaded from a directory, managed at runtime
through the admin API under /__admin, and chained into stateful scenarios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the root command with os.Args and exits non-zero on error.
func Execute() {
	if err := NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stubd %s (commit %s, built %s)\n", Version, Commit, BuildDate)
			return err
		},
	}
}
