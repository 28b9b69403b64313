package commands

import (
	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
)

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm URL",
		Short: "Remove a file or an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.parseTarget(args[0])
			if err != nil {
				return err
			}

			return a.withShare(cmd.Context(), u, func(share *smbc.Share) error {
				return share.Remove(u.Path)
			})
		},
	}
}
