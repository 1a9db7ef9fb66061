package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/output"
	"github.com/Aman-CERP/searchgate/internal/storage"
)

func newSizeCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "size",
		Short: "Report index storage size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			usage, err := storage.Measure(g.cfg.Paths.IndexRoot)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(usage)
			}
			out.Line(usage.Summary())
			if len(usage.Indexes) > 0 {
				rows := make([][]string, 0, len(usage.Indexes))
				for _, ix := range usage.Indexes {
					rows = append(rows, []string{ix.Index, strconv.FormatInt(ix.Bytes, 10)})
				}
				out.Newline()
				out.Table([]string{"INDEX", "BYTES"}, rows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
