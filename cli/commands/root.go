// Package commands provides the CLI command implementations for sourcedctl.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-sourced/sourced/cli/styles"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command for the sourcedctl CLI.
func NewRootCommand() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "sourcedctl",
		Short: "Inspect event-sourced streams",
		Long: `sourcedctl inspects the streams, events, and snapshots of a
sourced event store.

` + styles.Title.Render("Commands:") + `

  ` + styles.Code.Render("sourcedctl streams") + `        List streams
  ` + styles.Code.Render("sourcedctl events <id>") + `    Show a stream's events
  ` + styles.Code.Render("sourcedctl verify <id>") + `    Check stream integrity
  ` + styles.Code.Render("sourcedctl version") + `        Show version info`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewStreamsCommand())
	rootCmd.AddCommand(NewEventsCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(styles.FormatError(err.Error()))
		return err
	}

	return nil
}
