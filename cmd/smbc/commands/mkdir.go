package commands

import (
	"errors"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
)

func newMkdirCmd(a *app) *cobra.Command {
	var (
		mode    string
		parents bool
	)

	cmd := &cobra.Command{
		Use:   "mkdir URL",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.parseTarget(args[0])
			if err != nil {
				return err
			}
			if u.Path == "" {
				return errors.New("mkdir: URL names a share, not a directory")
			}

			perm, err := strconv.ParseUint(mode, 8, 32)
			if err != nil {
				return err
			}

			return a.withShare(cmd.Context(), u, func(share *smbc.Share) error {
				if !parents {
					return share.Mkdir(u.Path, os.FileMode(perm))
				}
				return mkdirAll(share, u.Path, os.FileMode(perm))
			})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "755", "permission bits (octal); only the write bits matter")
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents, no error if existing")

	return cmd
}

func mkdirAll(share *smbc.Share, path string, perm os.FileMode) error {
	var prefix string
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '\\' {
			continue
		}
		prefix = path[:i]
		if prefix == "" {
			continue
		}
		err := share.Mkdir(prefix, perm)
		if err != nil && !errors.Is(err, smbc.ErrAlreadyExists) {
			return err
		}
	}
	return nil
}
