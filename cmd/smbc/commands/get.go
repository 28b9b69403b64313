package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudsoda/smbc"
	"github.com/cloudsoda/smbc/internal/smburl"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		outDir   string
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "get URL [LOCAL] | get URL... -d DIR",
		Short: "Download files",
		Long: `Download one file to LOCAL (default: its base name in the current
directory), or several files into DIR. Each file is fetched over its own
session, up to --parallel at a time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type job struct {
				u     *smburl.URL
				local string
			}

			var jobs []job
			if len(args) == 2 && !smburl.IsURL(args[1]) && outDir == "" {
				u, err := a.parseTarget(args[0])
				if err != nil {
					return err
				}
				jobs = append(jobs, job{u, args[1]})
			} else {
				for _, arg := range args {
					u, err := a.parseTarget(arg)
					if err != nil {
						return err
					}
					jobs = append(jobs, job{u, filepath.Join(outDir, u.Base())})
				}
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))

			for _, j := range jobs {
				g.Go(func() error {
					err := a.withShare(ctx, j.u, func(share *smbc.Share) error {
						return download(share, j.u.Path, j.local)
					})
					if err != nil {
						return fmt.Errorf("%s: %w", j.u, err)
					}
					a.logger.Info("downloaded", "url", j.u.String(), "local", j.local)
					return nil
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&outDir, "dir", "d", "", "directory to download into")
	cmd.Flags().IntVarP(&parallel, "parallel", "P", 4, "concurrent downloads")

	return cmd
}

func download(share *smbc.Share, remote, local string) (err error) {
	f, err := share.Open(remote)
	if err != nil {
		return err
	}
	defer f.Close()

	out, err := os.Create(local)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	if _, err := io.Copy(out, f); err != nil {
		return err
	}
	return f.Close()
}
