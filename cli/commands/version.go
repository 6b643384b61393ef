package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/go-sourced/sourced/cli/styles"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(styles.Title.Render("sourcedctl"))
			fmt.Println(styles.FormatKeyValue("Version", version))
			fmt.Println(styles.FormatKeyValue("Commit", commit))
			fmt.Println(styles.FormatKeyValue("Built", buildDate))
			fmt.Println(styles.FormatKeyValue("Go", runtime.Version()))
			fmt.Println(styles.FormatKeyValue("Platform", runtime.GOOS+"/"+runtime.GOARCH))
		},
	}
}
