package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-sourced/sourced/cli/styles"
)

// NewStreamsCommand creates the streams listing command.
func NewStreamsCommand() *cobra.Command {
	var (
		configPath string
		driver     string
		url        string
		prefix     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List event streams",
		Long:  "List streams in the event store, with event counts and last activity.",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := openAdapter(configPath, driver, url)
			if err != nil {
				return err
			}
			defer adapter.Close()

			query, err := queryAdapter(adapter)
			if err != nil {
				return err
			}

			streams, err := query.ListStreams(cmd.Context(), prefix, limit)
			if err != nil {
				return fmt.Errorf("list streams: %w", err)
			}

			if len(streams) == 0 {
				fmt.Println(styles.Muted.Render("No streams found."))
				return nil
			}

			fmt.Println(styles.Title.Render(fmt.Sprintf("%s Streams (%d)", styles.IconStream, len(streams))))
			for _, s := range streams {
				fmt.Printf("  %s %s\n",
					styles.Highlight.Render(s.StreamID),
					styles.Muted.Render(fmt.Sprintf("%d events, last %s at %s",
						s.EventCount, s.LastEventType, s.LastUpdated.Format("2006-01-02 15:04:05"))))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&driver, "driver", "", "Storage driver (postgres)")
	cmd.Flags().StringVar(&url, "url", "", "Database connection URL")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Filter streams by ID prefix")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum streams to list")

	return cmd
}
