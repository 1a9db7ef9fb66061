package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/batch"
	"github.com/Aman-CERP/searchgate/internal/ingest"
	"github.com/Aman-CERP/searchgate/internal/output"
	"github.com/Aman-CERP/searchgate/internal/queue"
)

func newIndexCmd(g *globals) *cobra.Command {
	var toQueue bool
	var format string

	cmd := &cobra.Command{
		Use:   "index [file|-]",
		Short: "Apply a write batch",
		Long: `Apply a write batch read from a file or stdin.

The input is a JSON array of {"indexName", "documents"} items, or one item
per line. A document with "deleted": true and an identity value is removed;
any other document is added, replacing an earlier one with the same identity.

With --queue the items are published to the Redis stream instead, for a
running 'searchgate serve' to apply.`,
		Example: `  # Apply a batch from a file
  searchgate index batch.json

  # Pipe JSON lines and print the report as JSON
  cat items.jsonl | searchgate index - --format json

  # Hand the batch to the queue consumer
  searchgate index batch.json --queue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format %q (use text or json)", format)
			}
			items, err := readBatch(cmd, args)
			if err != nil {
				return err
			}
			if toQueue {
				return publishBatch(cmd, g, items, format)
			}
			return applyBatch(cmd, g, items, format)
		},
	}

	cmd.Flags().BoolVar(&toQueue, "queue", false, "Publish to the Redis stream instead of applying locally")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")

	return cmd
}

func readBatch(cmd *cobra.Command, args []string) ([]batch.WriteBatchItem, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to open batch file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return batch.DecodeBatch(r)
}

func applyBatch(cmd *cobra.Command, g *globals, items []batch.WriteBatchItem, format string) error {
	a, err := newApp(g.cfg, g.logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report := a.orchestrator.Apply(cmd.Context(), items)

	out := output.New(cmd.OutOrStdout())
	if format == "json" {
		if err := out.JSON(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d indexes failed", n, len(report.Indexes))
	}
	return nil
}

func printReport(out *output.Writer, report ingest.Report) {
	out.Linef("Batch %s: %d items in %s", report.BatchID, report.Items, report.Duration)
	rows := make([][]string, 0, len(report.Indexes))
	for _, o := range report.Indexes {
		rows = append(rows, []string{
			o.Index,
			string(o.Status),
			strconv.Itoa(o.Added),
			strconv.Itoa(o.Deleted),
			strconv.Itoa(o.Malformed),
			o.Error,
		})
	}
	out.Table([]string{"INDEX", "STATUS", "ADDED", "DELETED", "MALFORMED", "ERROR"}, rows)
}

func publishBatch(cmd *cobra.Command, g *globals, items []batch.WriteBatchItem, format string) error {
	if len(g.cfg.Queue.Addrs) == 0 {
		return fmt.Errorf("no redis address configured (queue.addrs or SEARCHGATE_REDIS_ADDRS)")
	}
	client, err := queue.NewClient(g.cfg.Queue.Addrs)
	if err != nil {
		return err
	}
	defer client.Close()

	ids, err := queue.NewPublisher(client, g.cfg.Queue.Stream).PublishAll(cmd.Context(), items)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if format == "json" {
		return out.JSON(map[string]any{"stream": g.cfg.Queue.Stream, "ids": ids})
	}
	out.Successf("Published %d items to %s", len(ids), g.cfg.Queue.Stream)
	return nil
}
