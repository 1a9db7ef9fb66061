package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/journal"
	"github.com/Aman-CERP/searchgate/internal/output"
)

func newStatsCmd(g *globals) *cobra.Command {
	var index string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recent batch outcomes from the journal",
		Long: `Show the most recent per-index batch outcomes recorded in the journal
(journal.path or SEARCHGATE_JOURNAL), newest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.cfg.Journal.Path == "" {
				return fmt.Errorf("journal is disabled (set journal.path or SEARCHGATE_JOURNAL)")
			}
			j, err := journal.Open(g.cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			entries, err := j.Recent(cmd.Context(), index, limit)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(entries)
			}
			if len(entries) == 0 {
				out.Line("No batches recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.CreatedAt.Local().Format(time.DateTime),
					e.BatchID,
					e.Index,
					e.Status,
					strconv.Itoa(e.Added),
					strconv.Itoa(e.Deleted),
					strconv.Itoa(e.Malformed),
					e.Error,
				})
			}
			out.Table([]string{"TIME", "BATCH", "INDEX", "STATUS", "ADDED", "DELETED", "MALFORMED", "ERROR"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&index, "index", "", "Only show outcomes for this index")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of outcomes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
