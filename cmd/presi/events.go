package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/orrn/presi/internal/db"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		jobID int
		kind  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent entries from the event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("journal.path is not configured")
			}

			conn, err := db.Open(db.Config{Path: cfg.Journal.Path})
			if err != nil {
				return err
			}
			journal := db.NewJournal(conn, nil)
			defer journal.Close()

			filter := db.EventFilter{Kind: kind, Limit: limit}
			if cmd.Flags().Changed("job") {
				filter.JobID = &jobID
			}

			records, err := journal.Events(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().IntVar(&jobID, "job", 0, "only show events of this job")
	cmd.Flags().StringVar(&kind, "kind", "", "only show events of this kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}

// printEvents writes records oldest first.
func printEvents(w io.Writer, records []*db.EventRecord) {
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		line := fmt.Sprintf("%s %-22s", r.OccurredAt.Local().Format(time.DateTime), r.Kind)
		if r.JobID != nil {
			line += fmt.Sprintf(" job=%d", *r.JobID)
		}
		if r.Printer != "" {
			line += " printer=" + r.Printer
		}
		if r.Status != "" {
			line += " status=" + r.Status
		}
		if r.ExitStatus != nil {
			line += fmt.Sprintf(" exit=%d", *r.ExitStatus)
		}
		if r.ProcessGroup != nil {
			line += fmt.Sprintf(" pgid=%d", *r.ProcessGroup)
		}
		if r.DetailJSON != "" && r.DetailJSON != "{}" {
			line += " " + r.DetailJSON
		}
		fmt.Fprintln(w, line)
	}
}
