package smbtest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/ntlm"
	"github.com/cloudsoda/smbc/internal/smb2"
	"github.com/cloudsoda/smbc/internal/spnego"
)

var le = binary.LittleEndian

const (
	frameSessionMessage = 0x00
	frameKeepalive      = 0x85
)

var errUnsigned = errors.New("smbtest: request signature missing or invalid")

// status is the error a handler returns to answer with an NTSTATUS.
type status erref.NtStatus

func (st status) Error() string {
	return erref.NtStatus(st).String()
}

// serverConn is the state of one client connection. It is only touched by
// the goroutine serving it.
type serverConn struct {
	srv    *Server
	nc     net.Conn
	logger *slog.Logger

	sessionId uint64
	authed    bool
	ntlm      *ntlm.Server
	signer    hash.Hash

	nextTreeId uint32
	trees      map[uint32]*share
	opens      map[smb2.FileId]*open
}

// Serve answers requests on nc until the connection fails or the client
// goes away.
func (s *Server) Serve(nc net.Conn) {
	defer nc.Close()

	c := &serverConn{
		srv:    s,
		nc:     nc,
		logger: s.logger().With("remote", nc.RemoteAddr().String()),
		trees:  make(map[uint32]*share),
		opens:  make(map[smb2.FileId]*open),
	}
	defer c.closeOpens(0)

	for {
		pkt, err := c.readFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		res, err := c.handle(pkt)
		if err != nil {
			c.logger.Warn("dropping connection", "error", err)
			return
		}

		if err := c.writeFrame(res); err != nil {
			return
		}
	}
}

func (c *serverConn) readFrame() ([]byte, error) {
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
			return nil, err
		}
		size := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])

		if hdr[0] != frameSessionMessage {
			if _, err := io.CopyN(io.Discard, c.nc, int64(size)); err != nil {
				return nil, err
			}
			continue
		}

		pkt := make([]byte, size)
		if _, err := io.ReadFull(c.nc, pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	}
}

func (c *serverConn) writeFrame(pkt []byte) error {
	frame := make([]byte, 0, 8+len(pkt))
	if c.srv.Keepalive {
		frame = append(frame, frameKeepalive, 0, 0, 0)
	}
	frame = append(frame, frameSessionMessage, byte(len(pkt)>>16), byte(len(pkt)>>8), byte(len(pkt)))
	frame = append(frame, pkt...)

	_, err := c.nc.Write(frame)
	return err
}

func (c *serverConn) handle(pkt []byte) ([]byte, error) {
	p := smb2.PacketCodec(pkt)
	if p.IsInvalid() {
		return nil, fmt.Errorf("smbtest: malformed request header")
	}

	cmd := p.Command()
	c.srv.count(cmd)

	signed := p.Flags()&smb2.SMB2_FLAGS_SIGNED != 0
	if c.authed && c.signer != nil {
		if signed && !c.verify(pkt) {
			return nil, errUnsigned
		}
		if !signed && c.srv.RequireSigning {
			return nil, errUnsigned
		}
	}

	hdr := smb2.PacketHeader{
		CreditCharge:          p.CreditCharge(),
		CreditRequestResponse: max(p.CreditResponse(), 1),
		Flags:                 smb2.SMB2_FLAGS_SERVER_TO_REDIR,
		MessageId:             p.MessageId(),
		TreeId:                p.TreeId(),
		SessionId:             p.SessionId(),
	}

	res, err := c.dispatch(cmd, &hdr, p)

	var out []byte
	if err != nil {
		var st status
		if !errors.As(err, &st) {
			return nil, err
		}
		hdr.Status = uint32(st)
		e := &smb2.ErrorResponse{PacketHeader: hdr}
		out = make([]byte, e.Size())
		e.EncodeAs(out, cmd)
	} else {
		*res.Header() = hdr
		out = make([]byte, res.Size())
		res.Encode(out)
	}

	if c.authed && c.signer != nil && (signed || c.srv.RequireSigning || cmd == smb2.SMB2_SESSION_SETUP) {
		c.sign(out)
	}

	if cmd == smb2.SMB2_LOGOFF && err == nil {
		c.logoff()
	}

	return out, nil
}

func (c *serverConn) dispatch(cmd uint16, hdr *smb2.PacketHeader, p smb2.PacketCodec) (smb2.Packet, error) {
	body := p.Data()

	switch cmd {
	case smb2.SMB2_NEGOTIATE:
		return c.negotiate(body)
	case smb2.SMB2_SESSION_SETUP:
		return c.sessionSetup(hdr, body)
	}

	if !c.authed || hdr.SessionId != c.sessionId {
		return nil, status(erref.STATUS_USER_SESSION_DELETED)
	}

	switch cmd {
	case smb2.SMB2_LOGOFF:
		return &smb2.AckResponse{Command: cmd}, nil
	case smb2.SMB2_ECHO:
		return &smb2.AckResponse{Command: cmd}, nil
	case smb2.SMB2_TREE_CONNECT:
		return c.treeConnect(hdr, body)
	}

	sh, ok := c.trees[hdr.TreeId]
	if !ok {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	switch cmd {
	case smb2.SMB2_TREE_DISCONNECT:
		c.closeOpens(hdr.TreeId)
		delete(c.trees, hdr.TreeId)
		return &smb2.AckResponse{Command: cmd}, nil
	case smb2.SMB2_CREATE:
		res, err := c.create(hdr, sh, body)
		if err == nil && c.srv.BrokenCreate {
			return &smb2.AckResponse{Command: cmd}, nil
		}
		return res, err
	case smb2.SMB2_CLOSE:
		return c.close(body)
	case smb2.SMB2_FLUSH:
		return c.flush(body)
	case smb2.SMB2_READ:
		return c.read(body)
	case smb2.SMB2_WRITE:
		return c.write(body)
	case smb2.SMB2_QUERY_DIRECTORY:
		return c.queryDirectory(body)
	case smb2.SMB2_QUERY_INFO:
		return c.queryInfo(sh, body)
	case smb2.SMB2_SET_INFO:
		return c.setInfo(sh, body)
	}

	return nil, status(erref.STATUS_NOT_SUPPORTED)
}

func (c *serverConn) negotiate(body []byte) (smb2.Packet, error) {
	r := smb2.NegotiateRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	dialect := c.srv.dialect()
	if !slices.Contains(r.Dialects(), dialect) {
		return nil, status(erref.STATUS_NOT_SUPPORTED)
	}

	mode := uint16(smb2.SMB2_NEGOTIATE_SIGNING_ENABLED)
	if c.srv.RequireSigning {
		mode |= smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED
	}

	now := smb2.TimeToFiletime(time.Now())

	return &smb2.NegotiateResponse{
		SecurityMode:    mode,
		DialectRevision: dialect,
		ServerGuid:      c.srv.guid,
		MaxTransactSize: sizeOr64K(c.srv.MaxTransactSize),
		MaxReadSize:     sizeOr64K(c.srv.MaxReadSize),
		MaxWriteSize:    sizeOr64K(c.srv.MaxWriteSize),
		SystemTime:      now,
		ServerStartTime: now,
	}, nil
}

// sessionSetup runs the two legs of NTLM inside SPNEGO. A request without
// a session id starts over.
func (c *serverConn) sessionSetup(hdr *smb2.PacketHeader, body []byte) (smb2.Packet, error) {
	r := smb2.SessionSetupRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	if hdr.SessionId == 0 {
		init, err := spnego.DecodeNegTokenInit(r.SecurityBuffer())
		if err != nil {
			return nil, status(erref.STATUS_INVALID_PARAMETER)
		}
		if !slices.ContainsFunc(init.MechTypes, spnego.NlmpOid.Equal) {
			return nil, status(erref.STATUS_LOGON_FAILURE)
		}

		ns := c.srv.ntlmServer()
		cmsg, err := ns.Challenge(init.MechToken)
		if err != nil {
			return nil, status(erref.STATUS_INVALID_PARAMETER)
		}

		tok, err := spnego.EncodeNegTokenResp(spnego.AcceptIncomplete, spnego.NlmpOid, cmsg, nil)
		if err != nil {
			return nil, err
		}

		c.logoff()
		c.sessionId = c.srv.nextSessionId.Add(1)
		c.ntlm = ns

		hdr.SessionId = c.sessionId
		hdr.Status = uint32(erref.STATUS_MORE_PROCESSING_REQUIRED)

		return &smb2.SessionSetupResponse{SecurityBuffer: tok}, nil
	}

	if hdr.SessionId != c.sessionId || c.ntlm == nil {
		return nil, status(erref.STATUS_USER_SESSION_DELETED)
	}

	ns := c.ntlm
	c.ntlm = nil

	resp, err := spnego.DecodeNegTokenResp(r.SecurityBuffer())
	if err != nil {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	if err := ns.Authenticate(resp.ResponseToken); err != nil {
		c.logger.Info("authentication failed", "error", err)
		if errors.Is(err, ntlm.ErrLogonFailure) {
			return nil, status(erref.STATUS_LOGON_FAILURE)
		}
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	user := ns.Session().User()
	if c.srv.accountDisabled(user) {
		return nil, status(erref.STATUS_ACCOUNT_DISABLED)
	}

	tok, err := spnego.EncodeNegTokenResp(spnego.AcceptCompleted, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	c.signer = hmac.New(sha256.New, ns.Session().SessionKey())
	c.authed = true
	c.srv.login(user)

	c.logger.Info("session established", "user", user, "session_id", c.sessionId)

	return &smb2.SessionSetupResponse{SecurityBuffer: tok}, nil
}

func (s *Server) ntlmServer() *ntlm.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := ntlm.NewServer(s.targetName)
	for user, password := range s.accounts {
		ns.AddAccount(user, password)
	}
	return ns
}

func (s *Server) accountDisabled(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.disabled[strings.ToUpper(user)]
}

func (s *Server) login(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logins = append(s.logins, user)
}

func (c *serverConn) logoff() {
	c.closeOpens(0)
	clear(c.trees)
	c.authed = false
	c.signer = nil
	c.sessionId = 0
}

func (c *serverConn) treeConnect(hdr *smb2.PacketHeader, body []byte) (smb2.Packet, error) {
	r := smb2.TreeConnectRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	if st := c.srv.TreeConnectStatus; st != 0 {
		return nil, status(st)
	}

	path := r.Path()
	if !strings.HasPrefix(path, `\\`) {
		return nil, status(erref.STATUS_BAD_NETWORK_PATH)
	}
	name := path[strings.LastIndexByte(path, '\\')+1:]

	sh, ok := c.srv.lookupShare(name)
	if !ok {
		return nil, status(erref.STATUS_BAD_NETWORK_NAME)
	}
	if sh.denied {
		return nil, status(erref.STATUS_ACCESS_DENIED)
	}

	c.nextTreeId++
	c.trees[c.nextTreeId] = sh
	hdr.TreeId = c.nextTreeId

	return &smb2.TreeConnectResponse{
		ShareType:     sh.typ,
		MaximalAccess: 0x001f01ff,
	}, nil
}

func (c *serverConn) sign(pkt []byte) {
	p := smb2.PacketCodec(pkt)

	p.SetFlags(p.Flags() | smb2.SMB2_FLAGS_SIGNED)
	p.SetSignature(make([]byte, 16))

	c.signer.Reset()
	c.signer.Write(pkt)

	p.SetSignature(c.signer.Sum(nil))
}

func (c *serverConn) verify(pkt []byte) bool {
	p := smb2.PacketCodec(pkt)

	signature := append([]byte(nil), p.Signature()...)
	p.SetSignature(make([]byte, 16))

	c.signer.Reset()
	c.signer.Write(pkt)
	sum := c.signer.Sum(nil)[:16]

	p.SetSignature(signature)

	return hmac.Equal(signature, sum)
}
