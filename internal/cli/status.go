package cli

import (
	"net/url"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show relay status",
		Long: `Show who is logged in, which worlds exist and when the relay last
saved its state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result StatusResult
			if err := client.Get("/api/v1/status", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "world <code>",
		Short: "Show a single world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result WorldResult
			if err := client.Get("/api/v1/worlds/"+url.PathEscape(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	})

	return cmd
}
