// Package smbtest runs an in-process SMB 2.1 server backed by afero
// filesystems. It speaks the subset of the protocol the client uses and
// exposes knobs that inject the server behaviors the client must survive.
package smbtest

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

// Server is a fake SMB server. Configure the exported fields before the
// first connection is served; they are not synchronized.
type Server struct {
	// RequireSigning makes the server demand signed requests once a
	// session is established.
	RequireSigning bool

	// Dialect is the only dialect the server accepts. Zero means SMB 2.1.
	Dialect uint16

	// Size limits announced in NEGOTIATE. Zero means 64 KiB.
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32

	// DirPageSize caps the entries returned by one QUERY_DIRECTORY. Zero
	// packs as many as fit in the client's buffer.
	DirPageSize int

	// ReverseListing enumerates directories in descending name order.
	ReverseListing bool

	// ShortWrite, when positive, makes WRITE store and report at most that
	// many bytes.
	ShortWrite int

	// FailClose makes CLOSE release the open but answer STATUS_INVALID_HANDLE.
	FailClose bool

	// FailQueryInfo makes QUERY_INFO answer STATUS_ACCESS_DENIED.
	FailQueryInfo bool

	// BrokenCreate makes a successful CREATE keep the open but answer with
	// a body too short to carry its FileId.
	BrokenCreate bool

	// TreeConnectStatus, when set, is returned for every TREE_CONNECT.
	TreeConnectStatus erref.NtStatus

	// MaxOpens caps the opens of one connection; further CREATEs fail with
	// STATUS_TOO_MANY_OPENED_FILES. Zero is unlimited.
	MaxOpens int

	// Keepalive precedes every response with a NetBIOS keepalive frame.
	Keepalive bool

	Logger *slog.Logger

	targetName string
	guid       [16]byte

	mu       sync.Mutex
	accounts map[string]string
	disabled map[string]bool
	shares   map[string]*share
	security map[string][]byte
	counts   map[uint16]int
	logins   []string

	nextSessionId atomic.Uint64
	nextFileId    atomic.Uint64

	ln     net.Listener
	wg     sync.WaitGroup
	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

type share struct {
	name   string
	typ    uint8
	fs     afero.Fs
	denied bool
}

// NewServer returns a server that introduces itself as targetName during
// NTLM authentication.
func NewServer(targetName string) *Server {
	s := &Server{
		targetName: targetName,
		accounts:   make(map[string]string),
		disabled:   make(map[string]bool),
		shares:     make(map[string]*share),
		security:   make(map[string][]byte),
		counts:     make(map[uint16]int),
		conns:      make(map[net.Conn]struct{}),
	}
	_, _ = rand.Read(s.guid[:])
	return s
}

// AddAccount registers a user. Names compare case-insensitively.
func (s *Server) AddAccount(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[strings.ToUpper(user)] = password
}

// DisableAccount makes authentication of user end in STATUS_ACCOUNT_DISABLED
// even when the password is right.
func (s *Server) DisableAccount(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disabled[strings.ToUpper(user)] = true
}

// AddShare exports fs as a disk share.
func (s *Server) AddShare(name string, fs afero.Fs) {
	s.addShare(&share{name: name, typ: smb2.SMB2_SHARE_TYPE_DISK, fs: fs})
}

// AddPipeShare exports an IPC share, as servers do for IPC$.
func (s *Server) AddPipeShare(name string) {
	s.addShare(&share{name: name, typ: smb2.SMB2_SHARE_TYPE_PIPE})
}

// DenyShare makes TREE_CONNECT to name fail with STATUS_ACCESS_DENIED.
func (s *Server) DenyShare(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sh, ok := s.shares[strings.ToUpper(name)]; ok {
		sh.denied = true
	}
}

func (s *Server) addShare(sh *share) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares[strings.ToUpper(sh.name)] = sh
}

func (s *Server) lookupShare(name string) (*share, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shares[strings.ToUpper(name)]
	return sh, ok
}

// Count returns how many requests with command cmd the server received.
func (s *Server) Count(cmd uint16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[cmd]
}

// Logins lists the users that authenticated, in order.
func (s *Server) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.logins...)
}

func (s *Server) count(cmd uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[cmd]++
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Start listens on a loopback port and serves every accepted connection.
// It returns the listening address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.ln = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			nc, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger().Warn("accept failed", "error", err)
				}
				return
			}
			s.serveAsync(nc)
		}
	}()

	return ln.Addr().String(), nil
}

// Pipe serves one in-memory connection and returns the client's end.
func (s *Server) Pipe() net.Conn {
	client, server := net.Pipe()
	s.serveAsync(server)
	return client
}

func (s *Server) serveAsync(nc net.Conn) {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		nc.Close()
		return
	}
	s.conns[nc] = struct{}{}
	s.connMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.connMu.Lock()
			delete(s.conns, nc)
			s.connMu.Unlock()
		}()
		s.Serve(nc)
	}()
}

// Close stops the listener, drops every connection and waits for the
// serving goroutines.
func (s *Server) Close() error {
	s.connMu.Lock()
	s.closed = true
	for nc := range s.conns {
		nc.Close()
	}
	s.connMu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) dialect() uint16 {
	if s.Dialect == 0 {
		return smb2.SMB210
	}
	return s.Dialect
}

func sizeOr64K(n uint32) uint32 {
	if n == 0 {
		return 64 * 1024
	}
	return n
}

// securityDescriptor returns the descriptor stored for key, or a minimal
// self-relative one owned by BUILTIN\Administrators.
func (s *Server) securityDescriptor(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sd, ok := s.security[key]; ok {
		return sd
	}
	return defaultSecurityDescriptor()
}

func (s *Server) setSecurityDescriptor(key string, sd []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.security[key] = append([]byte(nil), sd...)
}

func defaultSecurityDescriptor() []byte {
	sd := make([]byte, 20+16)
	sd[0] = 1                     // Revision
	le.PutUint16(sd[2:4], 0x8000) // SE_SELF_RELATIVE
	le.PutUint32(sd[4:8], 20)     // OffsetOwner
	sid := sd[20:]
	sid[0] = 1                    // Revision
	sid[1] = 2                    // SubAuthorityCount
	sid[7] = 5                    // SECURITY_NT_AUTHORITY
	le.PutUint32(sid[8:12], 32)   // BUILTIN
	le.PutUint32(sid[12:16], 544) // Administrators
	return sd
}
