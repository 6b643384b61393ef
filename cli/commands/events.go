package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-sourced/sourced/cli/styles"
)

// NewEventsCommand creates the event listing command.
func NewEventsCommand() *cobra.Command {
	var (
		configPath  string
		driver      string
		url         string
		fromVersion int64
		showData    bool
	)

	cmd := &cobra.Command{
		Use:   "events <stream-id>",
		Short: "Show a stream's events",
		Long:  "Show the events of a stream in append order, oldest first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID := args[0]

			adapter, err := openAdapter(configPath, driver, url)
			if err != nil {
				return err
			}
			defer adapter.Close()

			events, err := adapter.Load(cmd.Context(), streamID, fromVersion)
			if err != nil {
				return fmt.Errorf("load %s: %w", streamID, err)
			}

			if len(events) == 0 {
				fmt.Println(styles.Muted.Render("No events found for " + streamID + "."))
				return nil
			}

			fmt.Println(styles.Title.Render(fmt.Sprintf("%s %s (%d events)", styles.IconStream, streamID, len(events))))
			for _, e := range events {
				fmt.Printf("  %s %s %s\n",
					styles.Muted.Render(fmt.Sprintf("v%d", e.Version)),
					styles.Highlight.Render(e.Type),
					styles.Muted.Render(e.Timestamp.Format("2006-01-02 15:04:05")))
				if showData {
					var pretty json.RawMessage = e.Data
					out, err := json.MarshalIndent(pretty, "    ", "  ")
					if err != nil {
						out = e.Data
					}
					fmt.Printf("    %s\n", styles.Normal.Render(string(out)))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&driver, "driver", "", "Storage driver (postgres)")
	cmd.Flags().StringVar(&url, "url", "", "Database connection URL")
	cmd.Flags().Int64Var(&fromVersion, "from", 0, "Show events with version greater than this")
	cmd.Flags().BoolVarP(&showData, "data", "d", false, "Show event payloads")

	return cmd
}
