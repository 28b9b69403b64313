package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	krb5config "github.com/jcmturner/gokrb5/v8/config"

	"github.com/cloudsoda/smbc"
	"github.com/cloudsoda/smbc/internal/smburl"
)

// parseTarget accepts a full smb:// URL, or share/path relative to the
// configured server.host.
func (a *app) parseTarget(arg string) (*smburl.URL, error) {
	if !smburl.IsURL(arg) && a.cfg.Server.Host != "" {
		arg = "smb://" + a.cfg.Server.Host + "/" + strings.TrimLeft(strings.ReplaceAll(arg, `\`, "/"), "/")
	}
	return smburl.RequireShare(arg)
}

func (a *app) dialer(u *smburl.URL) (*smbc.Dialer, error) {
	d := &smbc.Dialer{
		Negotiator:     smbc.Negotiator{RequireMessageSigning: a.cfg.Server.RequireSigning},
		TargetSPN:      a.cfg.Auth.SPN,
		MaxOpenHandles: a.cfg.Server.MaxOpenHandles,
		Transport: smbc.TransportConfig{
			Timeout:   a.cfg.Server.Timeout,
			Socks5URL: a.cfg.Server.Socks5,
		},
		Logger:  a.logger,
		Metrics: a.metrics,
	}

	if a.cfg.Auth.Mechanism == "kerberos" {
		kc, err := krb5config.Load(a.cfg.Auth.Krb5Config)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", a.cfg.Auth.Krb5Config, err)
		}
		d.Krb5Config = kc
	}

	known := smbc.Credentials{
		Workgroup: a.cfg.Auth.Workgroup,
		Username:  a.cfg.Auth.Username,
		Password:  a.cfg.Auth.Password,
	}
	hasPassword := a.cfg.Auth.Password != ""

	// URL credentials name a specific account and win over configuration.
	if u.Workgroup != "" {
		known.Workgroup = u.Workgroup
	}
	if u.Username != "" {
		known.Username = u.Username
		if u.HasPassword {
			known.Password, hasPassword = u.Password, true
		} else if a.cfg.Auth.Username != u.Username {
			known.Password, hasPassword = "", false
		}
	}
	if a.hasPassword {
		known.Password, hasPassword = a.password, true
	}

	d.Resolver = newResolver(known, hasPassword, a.prompt)

	return d, nil
}

// connect dials u's server and mounts its share.
func (a *app) connect(ctx context.Context, u *smburl.URL) (*smbc.Session, *smbc.Share, error) {
	d, err := a.dialer(u)
	if err != nil {
		return nil, nil, err
	}

	ep := u.Endpoint()
	if ep.Port == 0 {
		ep.Port = a.cfg.Server.Port
	}

	var s *smbc.Session
	if a.dialConn != nil {
		conn, err := a.dialConn(ctx, ep)
		if err != nil {
			return nil, nil, err
		}
		s, err = d.DialConn(ctx, conn, ep, u.Share)
		if err != nil {
			return nil, nil, err
		}
	} else {
		s, err = d.Dial(ctx, ep, u.Share)
		if err != nil {
			return nil, nil, err
		}
	}
	s = s.WithContext(ctx)

	share, err := s.Mount(u.Share)
	if err != nil {
		s.Logoff()
		return nil, nil, err
	}
	share = share.WithContext(ctx)

	a.logger.Debug("mounted", "url", u.String())

	return s, share, nil
}

// withShare runs fn against u's share and tears everything down afterwards.
// Abandoned handles are reported as errors.
func (a *app) withShare(ctx context.Context, u *smburl.URL, fn func(*smbc.Share) error) (err error) {
	s, share, err := a.connect(ctx, u)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, share.Umount(), s.Logoff())
	}()

	return fn(share)
}
