// Package smburl parses smb:// URLs of the form
//
//	smb://[workgroup;][user[:password]@]host[:port]/share[/path]
package smburl

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudsoda/smbc"
)

const Scheme = "smb"

var (
	ErrScheme  = errors.New("not an smb:// URL")
	ErrNoHost  = errors.New("missing host")
	ErrNoShare = errors.New("missing share")
)

// URL is a parsed smb:// URL. Path is relative to the share and uses
// backslash separators.
type URL struct {
	Workgroup   string
	Username    string
	Password    string
	HasPassword bool
	Host        string
	Port        int
	Share       string
	Path        string
}

// Parse parses s. Only the host is mandatory; use RequireShare when the
// caller needs a share.
func Parse(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return nil, fmt.Errorf("%s: %w", s, ErrScheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%s: %w", s, ErrNoHost)
	}

	r := &URL{Host: u.Hostname()}

	if p := u.Port(); p != "" {
		r.Port, err = strconv.Atoi(p)
		if err != nil || r.Port <= 0 || r.Port > 65535 {
			return nil, fmt.Errorf("%s: invalid port %q", s, p)
		}
	}

	if u.User != nil {
		user := u.User.Username()
		if wg, name, ok := strings.Cut(user, ";"); ok {
			r.Workgroup, user = wg, name
		}
		r.Username = user
		r.Password, r.HasPassword = u.User.Password()
	}

	parts := strings.FieldsFunc(u.Path, func(c rune) bool { return c == '/' })
	if len(parts) > 0 {
		r.Share = parts[0]
		r.Path = strings.Join(parts[1:], `\`)
	}

	return r, nil
}

// RequireShare is Parse that also insists on a share name.
func RequireShare(s string) (*URL, error) {
	u, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Share == "" {
		return nil, fmt.Errorf("%s: %w", s, ErrNoShare)
	}
	return u, nil
}

// IsURL reports whether s looks like an smb:// URL rather than a local path.
func IsURL(s string) bool {
	return len(s) > len(Scheme)+3 && strings.EqualFold(s[:len(Scheme)+3], Scheme+"://")
}

func (u *URL) Endpoint() smbc.Endpoint {
	return smbc.Endpoint{Host: u.Host, Port: u.Port}
}

// Credentials returns the credentials embedded in the URL.
func (u *URL) Credentials() smbc.Credentials {
	return smbc.Credentials{Workgroup: u.Workgroup, Username: u.Username, Password: u.Password}
}

// Base returns the last element of Path, or the share name at the root.
func (u *URL) Base() string {
	if u.Path == "" {
		return u.Share
	}
	if i := strings.LastIndexByte(u.Path, '\\'); i >= 0 {
		return u.Path[i+1:]
	}
	return u.Path
}

// Join returns a copy of u with name appended to Path.
func (u *URL) Join(name string) *URL {
	c := *u
	if c.Path == "" {
		c.Path = name
	} else {
		c.Path += `\` + name
	}
	return &c
}

// String formats u back into URL form. The password is never included.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(Scheme + "://")
	if u.Username != "" || u.Workgroup != "" {
		user := u.Username
		if u.Workgroup != "" {
			user = u.Workgroup + ";" + user
		}
		b.WriteString(url.User(user).String())
		b.WriteByte('@')
	}
	if strings.Contains(u.Host, ":") {
		b.WriteString("[" + u.Host + "]")
	} else {
		b.WriteString(u.Host)
	}
	if u.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.Port))
	}
	if u.Share != "" {
		b.WriteByte('/')
		b.WriteString(u.Share)
	}
	if u.Path != "" {
		b.WriteByte('/')
		b.WriteString(strings.ReplaceAll(u.Path, `\`, "/"))
	}
	return b.String()
}
