package commands

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
)

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat URL...",
		Short: "Print files to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				u, err := a.parseTarget(arg)
				if err != nil {
					return err
				}

				err = a.withShare(cmd.Context(), u, func(share *smbc.Share) error {
					f, err := share.Open(u.Path)
					if err != nil {
						return err
					}
					defer f.Close()

					if _, err := io.Copy(cmd.OutOrStdout(), f); err != nil {
						return err
					}
					return f.Close()
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
