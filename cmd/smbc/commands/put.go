package commands

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
)

func newPutCmd(a *app) *cobra.Command {
	var appendMode bool

	cmd := &cobra.Command{
		Use:   "put LOCAL URL",
		Short: "Upload a file",
		Long: `Upload LOCAL to URL, replacing an existing file. LOCAL "-" reads stdin.
When URL ends in "/" the local base name is appended.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, target := args[0], args[1]

			u, err := a.parseTarget(target)
			if err != nil {
				return err
			}
			if strings.HasSuffix(target, "/") || u.Path == "" {
				if local == "-" {
					return errors.New("put: a target file name is required when reading stdin")
				}
				u = u.Join(filepath.Base(local))
			}

			var src io.Reader
			if local == "-" {
				if a.passwordStdin {
					return errors.New("put: stdin is already used by --password-stdin")
				}
				src = cmd.InOrStdin()
			} else {
				f, err := os.Open(local)
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if appendMode {
				flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}

			return a.withShare(cmd.Context(), u, func(share *smbc.Share) error {
				f, err := share.OpenFile(u.Path, flag, 0o666)
				if err != nil {
					return err
				}
				defer f.Close()

				n, err := io.Copy(f, src)
				if err != nil {
					return err
				}
				a.logger.Info("uploaded", "url", u.String(), "bytes", n)
				return f.Close()
			})
		},
	}

	cmd.Flags().BoolVar(&appendMode, "append", false, "append instead of replacing")

	return cmd
}
