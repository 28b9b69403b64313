// Package commands implements the smbc command line client.
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cloudsoda/smbc"
	"github.com/cloudsoda/smbc/internal/config"
	"github.com/cloudsoda/smbc/internal/logger"
)

// Version is injected at build time.
var Version = "dev"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath    string
	passwordStdin bool

	cfg      *config.Config
	logger   *slog.Logger
	closer   io.Closer
	registry *prometheus.Registry
	metrics  *smbc.Metrics

	// password read from stdin, if requested
	password    string
	hasPassword bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	prompt prompter

	// dialConn replaces TCP dialing when set.
	dialConn func(ctx context.Context, ep smbc.Endpoint) (net.Conn, error)
}

// Execute runs the command line against the process's standard streams.
func Execute() error {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr, prompt: terminalPrompt{}}
	return newRootCmd(a).ExecuteContext(context.Background())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "smbc",
		Short: "SMB 2.1 file share client",
		Long: `smbc talks to SMB file shares without mounting them.

Locations are given as URLs:

  smb://[workgroup;][user[:password]@]host[:port]/share[/path]

Credentials missing from flags, configuration and the URL are prompted for.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/smbc/config.yaml)")
	f.StringP("user", "U", "", "user name")
	f.StringP("workgroup", "W", "", "workgroup or domain")
	f.BoolVar(&a.passwordStdin, "password-stdin", false, "read the password from stdin")
	f.String("log-level", "", "log level (debug|info|warn|error)")
	f.Duration("timeout", 0, "dial and per-message timeout")
	f.String("socks5", "", "SOCKS5 proxy URL")
	f.Bool("require-signing", false, "require signed messages")
	f.Int("max-open-handles", 0, "cap on open handles per share")
	f.Bool("metrics", false, "print exchange statistics on exit")

	root.AddCommand(
		newLsCmd(a),
		newCatCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newStatCmd(a),
		newMkdirCmd(a),
		newRmCmd(a),
	)

	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	l, closer, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	a.logger, a.closer = l, closer

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = smbc.NewMetrics(a.registry)
	}

	if a.passwordStdin {
		if err := a.readPassword(); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) teardown() error {
	if a.registry != nil {
		if err := printMetrics(a.errOut, a.registry); err != nil {
			return err
		}
	}
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// readPassword takes the first line of stdin.
func (a *app) readPassword() error {
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password from stdin: %w", err)
	}
	a.password = strings.TrimRight(line, "\r\n")
	a.hasPassword = true
	return nil
}
