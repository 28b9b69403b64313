package commands

import (
	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
)

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat URL",
		Short: "Show file or directory metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.parseTarget(args[0])
			if err != nil {
				return err
			}

			return a.withShare(cmd.Context(), u, func(share *smbc.Share) error {
				fi, err := share.Stat(u.Path)
				if err != nil {
					return err
				}
				printPairs(cmd.OutOrStdout(), statPairs(u.Base(), fi))
				return nil
			})
		},
	}
}
