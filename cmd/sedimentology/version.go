package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.Version=..."
var (
	Version   string
	GitCommit string
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			label := color.New(color.FgGreen)

			_, _ = color.New(color.FgCyan, color.Bold).Fprintf(out, "sedimentology %s\n", getVersion())
			_, _ = label.Fprint(out, "Git commit: ")
			_, _ = fmt.Fprintln(out, orUnknown(GitCommit))
			_, _ = label.Fprint(out, "Go version: ")
			_, _ = fmt.Fprintln(out, runtime.Version())
		},
	}
}

func getVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
