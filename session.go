package smbc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

// SessionState is the lifecycle position of a Session.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateNegotiating
	StateAuthenticating
	StateEstablished
	StateLoggedOff
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateNegotiating:
		return "negotiating"
	case StateAuthenticating:
		return "authenticating"
	case StateEstablished:
		return "established"
	case StateLoggedOff:
		return "logged off"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

type session struct {
	*conn

	server         string
	maxOpenHandles int

	state        atomic.Int32
	sessionFlags uint16

	// HandleIDs are unique across the shares of a session
	nextHandleId atomic.Uint64

	mu    sync.Mutex
	trees map[uint32]*treeConn
}

func newSession(c *conn, server string, maxOpenHandles int) *session {
	s := &session{
		conn:           c,
		server:         server,
		maxOpenHandles: maxOpenHandles,
		trees:          make(map[uint32]*treeConn),
	}
	c.onBreak = s.broke
	return s
}

func (s *session) loadState() SessionState {
	return SessionState(s.state.Load())
}

func (s *session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// checkEstablished guards every operation issued through the session.
func (s *session) checkEstablished() error {
	if st := s.loadState(); st != StateEstablished {
		return fmt.Errorf("session is %v: %w", st, ErrConnectionClosed)
	}
	return nil
}

// fail marks the session unusable and drops the connection.
func (s *session) fail() {
	s.setState(StateFailed)
	s.t.close()
}

// broke moves the session to Failed once its transport is gone. The trees
// stay registered but disconnected, so the handles they still hold are
// reported by Umount, Logoff or Abandon.
func (s *session) broke() {
	for {
		st := s.loadState()
		if st == StateLoggedOff || st == StateFailed {
			return
		}
		if s.state.CompareAndSwap(int32(st), int32(StateFailed)) {
			break
		}
	}

	s.mu.Lock()
	for _, tc := range s.trees {
		tc.disconnected.Store(true)
	}
	s.mu.Unlock()

	s.logger.Warn("session failed", "server", s.server)
}

// authenticate runs SESSION_SETUP until it succeeds or the attempts are
// used up. Credentials are resolved fresh for every attempt and only a
// server rejection is retried.
func (s *session) authenticate(ctx context.Context, d *Dialer, share string) error {
	var (
		lastErr error
		reason  AuthReason
	)

	for attempt := 1; attempt <= clientMaxAuthAttempts; attempt++ {
		creds, err := d.Resolver.Resolve(ctx, s.server, share)
		if err != nil {
			s.metrics.authAttempt("aborted")
			return &AuthError{Server: s.server, Reason: AuthAborted, Attempts: attempt - 1, Err: err}
		}

		i, err := d.initiator(creds, s.server)
		if err != nil {
			s.metrics.authAttempt("rejected")
			lastErr, reason = err, AuthBadCredentials
			s.logger.Info("could not prepare credentials", "server", s.server, "attempt", attempt, "error", err)
			continue
		}

		s.sessionId = 0

		err = s.sessionSetup(ctx, i)
		if err == nil {
			s.metrics.authAttempt("success")
			s.logger.Info("session established", "server", s.server, "user", creds.Username, "attempt", attempt)
			return nil
		}

		r, ok := authReason(err)
		if !ok {
			return err
		}
		s.metrics.authAttempt("rejected")
		lastErr, reason = err, r

		if attempt < clientMaxAuthAttempts {
			s.logger.Info("authentication rejected, retrying", "server", s.server, "user", creds.Username, "attempt", attempt, "error", err)
		}
	}

	return &AuthError{Server: s.server, Reason: reason, Attempts: clientMaxAuthAttempts, Err: lastErr}
}

// sessionSetup runs the SESSION_SETUP exchange for one initiator and
// installs the signing key once the server accepts it.
func (s *session) sessionSetup(ctx context.Context, i Initiator) error {
	mech := newSpnegoClient([]Initiator{i})

	token, err := mech.InitSecContext()
	if err != nil {
		return &InvalidResponseError{err.Error()}
	}

	req := &smb2.SessionSetupRequest{
		Capabilities:   clientCapabilities,
		SecurityMode:   smb2.SMB2_NEGOTIATE_SIGNING_ENABLED,
		SecurityBuffer: token,
	}
	if s.requireSigning {
		req.SecurityMode = smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED
	}

	pkt, r, err := s.setupRound(ctx, req)
	if err != nil {
		return err
	}
	s.sessionId = smb2.PacketCodec(pkt).SessionId()
	status := erref.NtStatus(smb2.PacketCodec(pkt).Status())

	token, err = mech.AcceptSecContext(r.SecurityBuffer())
	switch {
	case errors.Is(err, errMechRejected):
		return &ResponseError{Code: uint32(erref.STATUS_LOGON_FAILURE)}
	case err != nil:
		return &InvalidResponseError{err.Error()}
	}

	if status == erref.STATUS_MORE_PROCESSING_REQUIRED {
		req.SecurityBuffer = token
		if pkt, r, err = s.setupRound(ctx, req); err != nil {
			return err
		}
		if erref.NtStatus(smb2.PacketCodec(pkt).Status()) != erref.STATUS_SUCCESS {
			return &InvalidResponseError{"session setup did not complete"}
		}
	}

	flags := r.SessionFlags()
	anonymous := flags&(smb2.SMB2_SESSION_FLAG_IS_GUEST|smb2.SMB2_SESSION_FLAG_IS_NULL) != 0
	if anonymous && s.requireSigning {
		return &InvalidResponseError{"guest and anonymous sessions cannot be signed"}
	}
	s.sessionFlags = flags
	if anonymous {
		return nil
	}

	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.signer = hmac.New(sha256.New, mech.SessionKey())

	// the final response is the first one the session key can check
	if smb2.PacketCodec(pkt).Flags()&smb2.SMB2_FLAGS_SIGNED != 0 && !s.verify(pkt) {
		s.signer = nil
		return &InvalidResponseError{"unverified session setup response"}
	}
	return nil
}

// setupRound sends one SESSION_SETUP leg. STATUS_MORE_PROCESSING_REQUIRED
// is let through by accept.
func (s *session) setupRound(ctx context.Context, req *smb2.SessionSetupRequest) ([]byte, smb2.SessionSetupResponseDecoder, error) {
	pkt, err := s.exchange(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	res, err := accept(smb2.SMB2_SESSION_SETUP, pkt)
	if err != nil {
		return nil, nil, err
	}

	r := smb2.SessionSetupResponseDecoder(res)
	if r.IsInvalid() {
		return nil, nil, &InvalidResponseError{"broken session setup response format"}
	}
	return pkt, r, nil
}

func (s *session) echo(ctx context.Context) error {
	if err := s.checkEstablished(); err != nil {
		return err
	}

	res, err := s.sendRecv(ctx, smb2.SMB2_ECHO, new(smb2.EchoRequest))
	if err != nil {
		return err
	}

	r := smb2.AckResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken echo response format"}
	}

	return nil
}

func (s *session) addTree(tc *treeConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trees[tc.treeId] = tc
}

func (s *session) removeTree(tc *treeConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.trees, tc.treeId)
}

// detachTrees empties the share registry and returns its contents ordered
// by tree id.
func (s *session) detachTrees() []*treeConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	tcs := make([]*treeConn, 0, len(s.trees))
	for _, tc := range s.trees {
		tcs = append(tcs, tc)
	}
	clear(s.trees)

	sort.Slice(tcs, func(i, j int) bool { return tcs[i].treeId < tcs[j].treeId })
	return tcs
}

// logoff closes every open handle and share best-effort, then ends the
// session. Handles that were still open are reported through a
// *HandlesAbandonedError once the session is gone.
func (s *session) logoff(ctx context.Context) error {
	switch s.loadState() {
	case StateLoggedOff:
		return nil
	case StateEstablished:
	case StateFailed:
		err := s.checkEstablished()
		if abandoned := s.dropTrees(); len(abandoned) > 0 {
			err = errors.Join(err, &HandlesAbandonedError{Paths: abandoned})
		}
		return err
	default:
		return s.checkEstablished()
	}

	var abandoned []string
	for _, tc := range s.detachTrees() {
		abandoned = append(abandoned, tc.closeAll(ctx)...)
		if err := tc.disconnect(ctx); err != nil {
			s.logger.Warn("tree disconnect failed", "share", tc.path, "error", err)
		}
	}

	res, err := s.sendRecv(ctx, smb2.SMB2_LOGOFF, new(smb2.LogoffRequest))
	s.setState(StateLoggedOff)
	s.t.close()
	if err == nil && smb2.AckResponseDecoder(res).IsInvalid() {
		err = &InvalidResponseError{"broken logoff response format"}
	}
	if err == nil {
		s.logger.Info("logged off", "server", s.server)
	}

	if len(abandoned) > 0 {
		s.logger.Warn("handles abandoned at logoff", "server", s.server, "paths", abandoned)
		return errors.Join(err, &HandlesAbandonedError{Paths: abandoned})
	}
	return err
}

// abandon drops the connection without any exchange. Open handles are
// invalidated locally and reported.
func (s *session) abandon() error {
	if s.loadState() == StateLoggedOff {
		return nil
	}
	s.fail()

	abandoned := s.dropTrees()

	s.logger.Info("session abandoned", "server", s.server)

	if len(abandoned) > 0 {
		s.logger.Warn("handles abandoned", "server", s.server, "paths", abandoned)
		return &HandlesAbandonedError{Paths: abandoned}
	}
	return nil
}

// protocolError breaks the transport over a reply that cannot be trusted
// and fails the session.
func (s *session) protocolError(err error) error {
	err = s.t.fail(err)
	s.broke()
	return err
}

// dropTrees detaches every tree without any exchange and returns the paths
// of the handles they still held.
func (s *session) dropTrees() []string {
	var abandoned []string
	for _, tc := range s.detachTrees() {
		tc.disconnected.Store(true)
		for _, h := range tc.handles.drain() {
			abandoned = append(abandoned, h.name)
		}
	}
	return abandoned
}
