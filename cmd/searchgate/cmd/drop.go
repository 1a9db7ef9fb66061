package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/output"
)

func newDropCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <index>",
		Short: "Delete an index and all of its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g.cfg, g.logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.orchestrator.Drop(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Dropped index %s", args[0])
			return nil
		},
	}
}
