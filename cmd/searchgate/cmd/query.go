package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/output"
)

func newQueryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <index> <query>",
		Short: "Query an index",
		Long: `Run a query against one index and print the reply body as JSON.

Query terms without a field name search the default field (query.default_field,
"content" unless configured). At most query.max_results documents are returned.`,
		Example: `  searchgate query blog 'title:hello'
  searchgate query blog hello world`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g.cfg, g.logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.executor.Execute(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return output.New(cmd.OutOrStdout()).JSON(res.Response())
		},
	}
	return cmd
}
