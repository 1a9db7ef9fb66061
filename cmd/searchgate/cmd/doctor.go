package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/output"
	"github.com/Aman-CERP/searchgate/internal/preflight"
	"github.com/Aman-CERP/searchgate/internal/queue"
)

func newDoctorCmd(g *globals) *cobra.Command {
	var verbose bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can serve",
		Long: `Check the index root is writable, disk space and file descriptor
limits, and Redis reachability when the write queue is enabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []preflight.Option{
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
				preflight.WithOpenIndexes(g.cfg.Engine.OpenIndexCache),
			}
			if g.cfg.QueueEnabled() {
				opts = append(opts, preflight.WithRedisPing(redisPing(g.cfg.Queue.Addrs)))
			}
			checker := preflight.New(opts...)

			results := checker.RunAll(cmd.Context(), g.cfg.Paths.IndexRoot)
			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// redisPing returns a check that connects to addrs and sends PING.
func redisPing(addrs []string) preflight.PingFunc {
	return func(ctx context.Context) error {
		client, err := queue.NewClient(addrs)
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Do(ctx, client.B().Ping().Build()).Error()
	}
}
