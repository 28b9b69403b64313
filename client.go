package smbc

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"

	"github.com/cloudsoda/sddl"
	"github.com/jcmturner/gokrb5/v8/config"

	"github.com/cloudsoda/smbc/internal/smb2"
	"github.com/cloudsoda/smbc/internal/utf16le"
)

// Dialer establishes authenticated sessions.
type Dialer struct {
	MaxCreditBalance uint16 // zero means clientMaxCreditBalance
	Negotiator       Negotiator

	// Resolver supplies credentials for each authentication attempt.
	Resolver CredentialResolver

	// Krb5Config selects Kerberos instead of NTLMv2 when set. The resolved
	// workgroup is used as the realm.
	Krb5Config *config.Config

	// TargetSPN overrides the service principal; Kerberos defaults to
	// cifs/<host>.
	TargetSPN string

	// MaxOpenHandles caps the handles open on each mounted share; zero
	// leaves the limit to the server.
	MaxOpenHandles int

	Transport TransportConfig
	Logger    *slog.Logger // if it's nil, nothing is logged
	Metrics   *Metrics     // optional
}

// Dial opens a TCP connection to ep, negotiates and authenticates. share is
// only handed to the Resolver and may be empty. ctx bounds session setup;
// bind it to the result with Session.WithContext.
func (d *Dialer) Dial(ctx context.Context, ep Endpoint, share string) (*Session, error) {
	if ctx == nil {
		panic("nil context")
	}

	t, err := dialTransport(ctx, ep, d.Transport)
	if err != nil {
		return nil, err
	}

	return d.dial(ctx, t, ep, share)
}

// DialConn is Dial over an existing connection. A connection carries one
// session only and is closed when setup fails.
func (d *Dialer) DialConn(ctx context.Context, tcpConn net.Conn, ep Endpoint, share string) (*Session, error) {
	if ctx == nil {
		panic("nil context")
	}

	return d.dial(ctx, newTransport(tcpConn, d.Transport.Timeout), ep, share)
}

func (d *Dialer) dial(ctx context.Context, t *transport, ep Endpoint, share string) (*Session, error) {
	if d.Resolver == nil {
		t.close()
		return nil, &InternalError{"Resolver is empty"}
	}

	maxCreditBalance := d.MaxCreditBalance
	if maxCreditBalance == 0 {
		maxCreditBalance = clientMaxCreditBalance
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("server", ep.String())

	s := newSession(newConn(t, logger, d.Metrics, maxCreditBalance), ep.Host, d.MaxOpenHandles)

	s.setState(StateNegotiating)
	if err := d.Negotiator.negotiate(ctx, s.conn); err != nil {
		s.fail()
		return nil, err
	}

	s.setState(StateAuthenticating)
	if err := s.authenticate(ctx, d, share); err != nil {
		s.fail()
		return nil, err
	}

	s.setState(StateEstablished)

	return &Session{s: s, ctx: context.Background(), addr: ep.String()}, nil
}

func (d *Dialer) initiator(creds Credentials, host string) (Initiator, error) {
	if d.Krb5Config != nil {
		ki, err := NewKrb5Initiator(d.Krb5Config, creds, host)
		if err != nil {
			return nil, err
		}
		if d.TargetSPN != "" {
			ki.TargetSPN = d.TargetSPN
		}
		return ki, nil
	}

	return &NTLMInitiator{
		User:      creds.Username,
		Password:  creds.Password,
		Domain:    creds.Workgroup,
		TargetSPN: d.TargetSPN,
	}, nil
}

type mountOptions struct {
	mapping utf16le.MapChars
}

// MountOption adjusts a Session.Mount call.
type MountOption func(*mountOptions)

// WithMapChars remaps characters Windows reserves in names (such as : * ?)
// into the private-use range, like samba's mapchars. Without a mapping they
// are sent as-is and the server may fall back to an 8.3 short name.
func WithMapChars() MountOption {
	return func(opts *mountOptions) {
		opts.mapping = utf16le.MapCharsSFU
	}
}

// WithMapPosix is WithMapChars using the Services for Mac table, like
// samba's mapposix.
func WithMapPosix() MountOption {
	return func(opts *mountOptions) {
		opts.mapping = utf16le.MapCharsSFM
	}
}

// Session is an authenticated connection to one server.
type Session struct {
	s    *session
	ctx  context.Context
	addr string
}

func (c *Session) WithContext(ctx context.Context) *Session {
	if ctx == nil {
		panic("nil context")
	}
	return &Session{s: c.s, ctx: ctx, addr: c.addr}
}

// State returns the session's current lifecycle state.
func (c *Session) State() SessionState {
	return c.s.loadState()
}

// Logoff invalidates the current SMB session. Handles still open are closed
// best-effort and reported through a *HandlesAbandonedError.
func (c *Session) Logoff() error {
	return c.s.logoff(c.ctx)
}

// Abandon drops the connection without logging off. The session ends in
// StateFailed; open handles become unusable and are reported.
func (c *Session) Abandon() error {
	return c.s.abandon()
}

// Echo sends an echo request to the server.
func (c *Session) Echo() error {
	return c.s.echo(c.ctx)
}

// Mount connects to a disk share given as "share" or "\\server\share".
// Pipe and printer shares are rejected with ErrInvalidArgument. The Share
// starts with a background context.
func (c *Session) Mount(sharename string, opts ...MountOption) (*Share, error) {
	sharename = strings.ReplaceAll(sharename, `/`, `\`)

	if !strings.HasPrefix(sharename, `\\`) {
		sharename = fmt.Sprintf(`\\%s\%s`, c.s.server, strings.Trim(sharename, `\`))
	}

	if err := validateMountPath(sharename); err != nil {
		return nil, err
	}

	if err := c.s.checkEstablished(); err != nil {
		return nil, &os.PathError{Op: "mount", Path: sharename, Err: err}
	}

	var options mountOptions
	for _, opt := range opts {
		opt(&options)
	}

	tc, err := treeConnect(c.ctx, c.s, sharename, options.mapping)
	if err != nil {
		return nil, &os.PathError{Op: "mount", Path: sharename, Err: err}
	}

	if tc.shareType != smb2.SMB2_SHARE_TYPE_DISK {
		if err := tc.disconnect(c.ctx); err != nil {
			c.s.logger.Warn("tree disconnect failed", "share", sharename, "error", err)
		}
		return nil, &os.PathError{Op: "mount", Path: sharename, Err: fmt.Errorf("%w: %v is not a disk share", ErrInvalidArgument, shareKind(tc.shareType))}
	}

	c.s.addTree(tc)
	c.s.logger.Debug("share mounted", "share", sharename, "tree_id", tc.treeId)

	return &Share{treeConn: tc, ctx: context.Background()}, nil
}

// Share is a mounted disk share with file system style operations.
type Share struct {
	*treeConn
	ctx context.Context
}

func (fs *Share) WithContext(ctx context.Context) *Share {
	if ctx == nil {
		panic("nil context")
	}
	return &Share{
		treeConn: fs.treeConn,
		ctx:      ctx,
	}
}

// Umount disconnects from the share. Handles still open are closed
// best-effort and reported through a *HandlesAbandonedError. Calling Umount
// again is a no-op. Once the session has failed nothing is sent; the handles
// left behind are only reported.
func (fs *Share) Umount() error {
	var (
		abandoned []string
		err       error
	)

	fs.removeTree(fs.treeConn)

	if fs.disconnected.Load() {
		for _, h := range fs.handles.drain() {
			abandoned = append(abandoned, h.name)
		}
	} else {
		abandoned = fs.closeAll(fs.ctx)

		if derr := fs.disconnect(fs.ctx); derr != nil {
			err = &os.PathError{Op: "umount", Path: fs.path, Err: derr}
		}
	}

	if len(abandoned) > 0 {
		fs.logger.Warn("handles abandoned at umount", "share", fs.path, "paths", abandoned)
		return errors.Join(err, &HandlesAbandonedError{Paths: abandoned})
	}
	return err
}

// Name returns the share's UNC path.
func (fs *Share) Name() string {
	return fs.path
}

// Kind reports what kind of share this is.
func (fs *Share) Kind() EntryKind {
	return shareKind(fs.shareType)
}

// OpenHandles returns the number of files and directories currently open
// on the share.
func (fs *Share) OpenHandles() int {
	return fs.handles.len()
}

// Create creates or truncates name for reading and writing.
func (fs *Share) Create(name string) (*File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// Open opens name read-only.
func (fs *Share) Open(name string) (*File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens name with os.O_* flags. When the file is created, perm
// only decides whether it is read-only.
func (fs *Share) OpenFile(name string, flag int, perm os.FileMode) (*File, error) {
	name = normPath(name)

	if err := validatePath("open", name); err != nil {
		return nil, err
	}

	opts, err := openFlags(flag, perm)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}

	h, fileStat, err := fs.createFile(name, opts.request())
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}

	f := &File{fs: fs, h: h, name: name, fileStat: fileStat}
	if flag&os.O_APPEND != 0 {
		if _, err := f.seek(0, io.SeekEnd); err != nil {
			_ = f.close()
			return nil, &os.PathError{Op: "open", Path: name, Err: err}
		}
	}
	return f, nil
}

// openFlags translates os.OpenFile arguments into a CREATE.
func openFlags(flag int, perm os.FileMode) (createOpts, error) {
	opts := createOpts{options: smb2.FILE_SYNCHRONOUS_IO_NONALERT}

	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_RDONLY:
		opts.access = smb2.GENERIC_READ
	case os.O_WRONLY:
		opts.access = smb2.GENERIC_WRITE
	case os.O_RDWR:
		opts.access = smb2.GENERIC_READ | smb2.GENERIC_WRITE
	default:
		return opts, ErrInvalidArgument
	}

	create := flag&os.O_CREATE != 0
	if create {
		opts.access |= smb2.GENERIC_WRITE
	}
	if flag&os.O_APPEND != 0 {
		opts.access = opts.access&^smb2.GENERIC_WRITE | smb2.FILE_APPEND_DATA
	}

	excl, trunc := flag&os.O_EXCL != 0, flag&os.O_TRUNC != 0
	switch {
	case create && excl:
		opts.disposition = smb2.FILE_CREATE
	case create && trunc:
		opts.disposition = smb2.FILE_OVERWRITE_IF
	case create:
		opts.disposition = smb2.FILE_OPEN_IF
	case trunc:
		opts.disposition = smb2.FILE_OVERWRITE
	}

	if create && perm&0200 == 0 {
		opts.attrs = smb2.FILE_ATTRIBUTE_READONLY
	}
	return opts, nil
}

// OpenDir opens name for enumeration.
func (fs *Share) OpenDir(name string) (*Dir, error) {
	name = normPath(name)

	if err := validatePath("opendir", name); err != nil {
		return nil, err
	}

	opts := createOpts{
		access:      smb2.FILE_LIST_DIRECTORY | smb2.FILE_READ_ATTRIBUTES | smb2.SYNCHRONIZE,
		attrs:       smb2.FILE_ATTRIBUTE_DIRECTORY,
		shareAccess: smb2.FILE_SHARE_READ | smb2.FILE_SHARE_WRITE | smb2.FILE_SHARE_DELETE,
		options:     smb2.FILE_DIRECTORY_FILE,
	}

	h, _, err := fs.createFile(name, opts.request())
	if err != nil {
		return nil, &os.PathError{Op: "opendir", Path: name, Err: err}
	}

	return &Dir{fs: fs, h: h, name: name}, nil
}

// ReadDir returns the entries of dirname sorted by name, without "." and
// "..".
func (fs *Share) ReadDir(dirname string) ([]DirEntry, error) {
	d, err := fs.OpenDir(dirname)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	var entries []DirEntry
	for e, err := range d.All() {
		if err != nil {
			return nil, err
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// Mkdir creates the directory name. perm is not sent to the server.
func (fs *Share) Mkdir(name string, perm os.FileMode) error {
	opts := createOpts{
		access:      smb2.FILE_WRITE_ATTRIBUTES,
		disposition: smb2.FILE_CREATE,
		options:     smb2.FILE_DIRECTORY_FILE,
	}

	return fs.withFile("mkdir", name, opts, nil)
}

// Remove deletes a file or an empty directory. A read-only target is made
// writable and removal is tried once more.
func (fs *Share) Remove(name string) error {
	err := fs.remove(name)
	if errors.Is(err, ErrPermissionDenied) {
		if e := fs.Chmod(name, 0666); e != nil {
			return err
		}
		return fs.remove(name)
	}
	return err
}

func (fs *Share) remove(name string) error {
	// delete-on-close is ignored for reparse points; set the disposition
	// explicitly instead
	opts := createOpts{
		access:      smb2.DELETE,
		shareAccess: smb2.FILE_SHARE_DELETE,
		options:     smb2.FILE_OPEN_REPARSE_POINT,
	}

	return fs.withFile("remove", name, opts, func(f *File) error {
		return f.setInfo(&smb2.SetInfoRequest{
			FileInfoClass: smb2.FileDispositionInformation,
			Input:         &smb2.FileDispositionInfo{DeletePending: true},
		})
	})
}

// Stat returns the metadata the server reports when name is opened.
func (fs *Share) Stat(name string) (os.FileInfo, error) {
	var fi *FileStat

	err := fs.withFile("stat", name, createOpts{access: smb2.FILE_READ_ATTRIBUTES}, func(f *File) error {
		fi = f.fileStat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fi, nil
}

// Chmod toggles the read-only attribute of name from mode's write bits.
func (fs *Share) Chmod(name string, mode os.FileMode) error {
	opts := createOpts{access: smb2.FILE_READ_ATTRIBUTES | smb2.FILE_WRITE_ATTRIBUTES}

	return fs.withFile("chmod", name, opts, func(f *File) error {
		return f.chmod(mode)
	})
}

// ReadFile returns the whole content of filename.
func (fs *Share) ReadFile(filename string) ([]byte, error) {
	f, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	buf.Grow(int(f.fileStat.Size()))

	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile replaces the content of filename with data, creating it with
// perm when missing.
func (fs *Share) WriteFile(filename string, data []byte, perm os.FileMode) error {
	f, err := fs.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	return errors.Join(err, f.Close())
}

// SecurityInfo returns the parsed security descriptor of name.
func (fs *Share) SecurityInfo(name string, info SecurityInformationRequestFlags) (*sddl.SecurityDescriptor, error) {
	data, err := fs.SecurityInfoRaw(name, info)
	if err != nil {
		return nil, err
	}

	return parseSecurityDescriptor(name, data)
}

// SecurityInfoRaw returns the self-relative security descriptor of name.
func (fs *Share) SecurityInfoRaw(name string, info SecurityInformationRequestFlags) ([]byte, error) {
	if info == 0 {
		return nil, &os.PathError{Op: "secinfo", Path: normPath(name), Err: errNoSecurityInformation}
	}

	opts := createOpts{access: info.readAccess(), shareAccess: smb2.FILE_SHARE_READ}

	var data []byte
	err := fs.withFile("secinfo", name, opts, func(f *File) (err error) {
		data, err = f.SecurityInfoRaw(info)
		return err
	})
	return data, err
}

func (fs *Share) SetSecurityInfo(name string, flags SecurityInformationRequestFlags, sd *sddl.SecurityDescriptor) error {
	return fs.SetSecurityInfoRaw(name, flags, &SecurityDescriptorEncoder{sd})
}

func (fs *Share) SetSecurityInfoRaw(name string, flags SecurityInformationRequestFlags, sd smb2.Encoder) error {
	if flags == 0 {
		return &os.PathError{Op: "setsecinfo", Path: normPath(name), Err: errNoSecurityInformation}
	}

	return fs.withFile("setsecinfo", name, createOpts{access: flags.writeAccess()}, func(f *File) error {
		return f.SetSecurityInfoRaw(flags, sd)
	})
}

// createOpts describes a CREATE. Zero fields fall back to what most share
// operations use: FILE_OPEN, read/write sharing and normal attributes.
type createOpts struct {
	access      uint32
	attrs       uint32
	shareAccess uint32
	disposition uint32
	options     uint32
}

func (s createOpts) request() *smb2.CreateRequest {
	return &smb2.CreateRequest{
		RequestedOplockLevel: smb2.SMB2_OPLOCK_LEVEL_NONE,
		ImpersonationLevel:   smb2.Impersonation,
		DesiredAccess:        s.access,
		FileAttributes:       cmp.Or(s.attrs, smb2.FILE_ATTRIBUTE_NORMAL),
		ShareAccess:          cmp.Or(s.shareAccess, smb2.FILE_SHARE_READ|smb2.FILE_SHARE_WRITE),
		CreateDisposition:    cmp.Or(s.disposition, smb2.FILE_OPEN),
		CreateOptions:        s.options,
	}
}

// withFile opens name for the duration of fn and closes it again. Errors
// come back as *os.PathError carrying op.
func (fs *Share) withFile(op, name string, opts createOpts, fn func(*File) error) error {
	name = normPath(name)

	if err := validatePath(op, name); err != nil {
		return err
	}

	f, err := fs.openTransient(name, opts.request())
	if err != nil {
		return &os.PathError{Op: op, Path: name, Err: err}
	}

	if fn != nil {
		err = fn(f)
	}
	err = errors.Join(err, f.close())

	var perr *os.PathError
	if err == nil || errors.As(err, &perr) {
		return err
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

// createFile sends CREATE for name and registers the resulting handle. The
// table is left untouched when the server refuses the open.
func (fs *Share) createFile(name string, req *smb2.CreateRequest) (*handle, *FileStat, error) {
	if err := fs.handles.reserve(); err != nil {
		return nil, nil, err
	}

	req.Name = name
	req.Mapping = fs.mapping

	res, err := fs.sendRecv(smb2.SMB2_CREATE, req)
	if err != nil {
		fs.handles.release()
		return nil, nil, err
	}

	r := smb2.CreateResponseDecoder(res)
	if r.IsInvalid() {
		// The server may hold an open we cannot name in a CLOSE, so the
		// session is not trusted any further.
		fs.handles.release()
		return nil, nil, fs.protocolError(&InvalidResponseError{"broken create response format"})
	}

	h := &handle{
		id:   HandleID(fs.nextHandleId.Add(1)),
		fd:   r.FileId(),
		name: name,
	}
	fs.handles.commit(h)

	return h, newFileStatFromCreate(r, name), nil
}

// openTransient opens a handle used by a single Share call.
func (fs *Share) openTransient(name string, req *smb2.CreateRequest) (*File, error) {
	h, fileStat, err := fs.createFile(name, req)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, h: h, name: name, fileStat: fileStat}, nil
}

func (fs *Share) sendRecv(cmd uint16, req smb2.Packet) (res []byte, err error) {
	return fs.treeConn.sendRecv(fs.ctx, cmd, req)
}

func shareKind(shareType uint8) EntryKind {
	switch shareType {
	case smb2.SMB2_SHARE_TYPE_PIPE:
		return KindIPCShare
	case smb2.SMB2_SHARE_TYPE_PRINT:
		return KindPrinterShare
	}
	return KindFileShare
}
