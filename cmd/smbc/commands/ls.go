package commands

import (
	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
)

func newLsCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ls URL",
		Short: "List a directory",
		Long: `List the entries of a directory in server order.

Examples:
  # List the root of a share
  smbc ls smb://fileserver/data

  # Include "." and ".."
  smbc ls -a smb://WG;alice@fileserver/data/reports`,
		Args: cobra.ExactArgs(1),
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
				if !fi.IsDir() {
					e := smbc.DirEntry{Name: fi.Name(), Kind: smbc.KindFile, Size: fi.Size(), ModTime: fi.ModTime()}
					printTable(cmd.OutOrStdout(), lsHeaders, [][]string{entryRow(e)})
					return nil
				}

				dir, err := share.OpenDir(u.Path)
				if err != nil {
					return err
				}
				defer dir.Close()

				var rows [][]string
				for e, err := range dir.All() {
					if err != nil {
						return err
					}
					if !all && (e.Name == "." || e.Name == "..") {
						continue
					}
					rows = append(rows, entryRow(e))
				}

				printTable(cmd.OutOrStdout(), lsHeaders, rows)
				return dir.Close()
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, `include "." and ".."`)

	return cmd
}

var lsHeaders = []string{"Name", "Type", "Size", "Modified"}
