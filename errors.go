package smbc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"

	"github.com/cloudsoda/smbc/internal/erref"
)

// Errors returned by the client. Public file and share operations wrap them
// in *os.PathError; use errors.Is to test for them.
var (
	ErrConnectionRefused  = errors.New("connection refused")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrConnectTimeout     = errors.New("connect timeout")
	ErrConnectionClosed   = errors.New("connection closed")

	ErrProtocolMismatch = errors.New("no common protocol dialect")

	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrBadCredentials        = errors.New("bad credentials")
	ErrAccessDenied          = errors.New("access denied")
	ErrAuthenticationAborted = errors.New("authentication aborted")

	ErrShareNotFound     = errors.New("share not found")
	ErrWorkgroupNotFound = errors.New("workgroup not found")

	ErrPermissionDenied = fmt.Errorf("permission denied: %w", fs.ErrPermission)
	ErrNotFound         = fmt.Errorf("no such file or directory: %w", fs.ErrNotExist)
	ErrAlreadyExists    = fmt.Errorf("file exists: %w", fs.ErrExist)
	ErrIsADirectory     = errors.New("is a directory")
	ErrNotADirectory    = errors.New("not a directory")
	ErrTooManyOpenFiles = errors.New("too many open files")
	ErrHandleClosed     = fmt.Errorf("handle closed: %w", fs.ErrClosed)
	ErrBadHandle        = errors.New("bad handle")
	ErrInvalidArgument  = fmt.Errorf("invalid argument: %w", fs.ErrInvalid)
	ErrIO               = errors.New("i/o error")

	ErrHandlesAbandoned = errors.New("session torn down with open handles")
)

// tooManyConnections is the text Windows puts in a dial error once its
// connection limit is reached. Matched case-insensitively.
const tooManyConnections = "no more connections can be made to this remote computer at this time because the computer has already accepted the maximum number of connections."

// statusKinds maps server statuses to the error reported to callers. Codes
// not listed surface as ErrIO.
var statusKinds = map[erref.NtStatus]error{
	erref.STATUS_OBJECT_NAME_NOT_FOUND:   ErrNotFound,
	erref.STATUS_OBJECT_PATH_NOT_FOUND:   ErrNotFound,
	erref.STATUS_NO_SUCH_FILE:            ErrNotFound,
	erref.STATUS_FILE_IS_A_DIRECTORY:     ErrIsADirectory,
	erref.STATUS_NOT_A_DIRECTORY:         ErrNotADirectory,
	erref.STATUS_OBJECT_NAME_COLLISION:   ErrAlreadyExists,
	erref.STATUS_NETWORK_ACCESS_DENIED:   ErrPermissionDenied,
	erref.STATUS_ACCESS_DENIED:           ErrPermissionDenied,
	erref.STATUS_TOO_MANY_OPENED_FILES:   ErrTooManyOpenFiles,
	erref.STATUS_FILE_CLOSED:             ErrBadHandle,
	erref.STATUS_INVALID_HANDLE:          ErrBadHandle,
	erref.STATUS_INVALID_PARAMETER:       ErrInvalidArgument,
	erref.STATUS_OBJECT_NAME_INVALID:     ErrInvalidArgument,
	erref.STATUS_BAD_NETWORK_NAME:        ErrShareNotFound,
	erref.STATUS_BAD_NETWORK_PATH:        ErrWorkgroupNotFound,
	erref.STATUS_NO_SUCH_DOMAIN:          ErrWorkgroupNotFound,
	erref.STATUS_USER_SESSION_DELETED:    ErrConnectionClosed,
	erref.STATUS_NETWORK_SESSION_EXPIRED: ErrConnectionClosed,
}

// authStatusKinds classifies SESSION_SETUP rejections.
var authStatusKinds = map[erref.NtStatus]error{
	erref.STATUS_LOGON_FAILURE:          ErrBadCredentials,
	erref.STATUS_WRONG_PASSWORD:         ErrBadCredentials,
	erref.STATUS_NO_SUCH_USER:           ErrBadCredentials,
	erref.STATUS_ACCESS_DENIED:          ErrAccessDenied,
	erref.STATUS_ACCOUNT_DISABLED:       ErrAccessDenied,
	erref.STATUS_ACCOUNT_RESTRICTION:    ErrAccessDenied,
	erref.STATUS_ACCOUNT_LOCKED_OUT:     ErrAccessDenied,
	erref.STATUS_ACCOUNT_EXPIRED:        ErrAccessDenied,
	erref.STATUS_PASSWORD_EXPIRED:       ErrAccessDenied,
	erref.STATUS_LOGON_TYPE_NOT_GRANTED: ErrAccessDenied,
}

// TransportError wraps a failure of the underlying connection.
type TransportError struct {
	Err error
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("connection error: %v", err.Err)
}

func (err *TransportError) Unwrap() []error {
	if errors.Is(err.Err, io.EOF) || errors.Is(err.Err, io.ErrUnexpectedEOF) || errors.Is(err.Err, net.ErrClosed) {
		return []error{err.Err, ErrConnectionClosed}
	}
	return []error{err.Err, ErrIO}
}

// InternalError reports a client-side precondition failure.
type InternalError struct {
	Message string
}

func (err *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", err.Message)
}

// InvalidResponseError reports a reply that could not be decoded.
type InvalidResponseError struct {
	Message string
}

func (err *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response error: %s", err.Message)
}

func (err *InvalidResponseError) Unwrap() error {
	return ErrIO
}

// ResponseError carries the NTSTATUS of a failed reply ([MS-ERREF] 2.3).
type ResponseError struct {
	Code uint32 // NTSTATUS
	data []byte
}

func (err *ResponseError) Error() string {
	return fmt.Sprintf("response error: %v", erref.NtStatus(err.Code))
}

// Unwrap returns the error kind the status maps to.
func (err *ResponseError) Unwrap() error {
	if kind, ok := statusKinds[erref.NtStatus(err.Code)]; ok {
		return kind
	}
	return ErrIO
}

func statusIs(err error, status erref.NtStatus) bool {
	var rerr *ResponseError
	return errors.As(err, &rerr) && erref.NtStatus(rerr.Code) == status
}

// ConnectReason classifies a failed connection attempt.
type ConnectReason int

const (
	ConnectOther ConnectReason = iota
	ConnectRefused
	ConnectUnreachable
	ConnectTimeout
)

func (r ConnectReason) String() string {
	switch r {
	case ConnectRefused:
		return "refused"
	case ConnectUnreachable:
		return "unreachable"
	case ConnectTimeout:
		return "timeout"
	}
	return "other"
}

// ConnectError is returned when the TCP (or SOCKS5) connection to the
// server cannot be established.
type ConnectError struct {
	Endpoint Endpoint
	Reason   ConnectReason
	Err      error
}

func (err *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s (%s): %v", err.Endpoint, err.Reason, err.Err)
}

func (err *ConnectError) Unwrap() error {
	return err.Err
}

func (err *ConnectError) Is(target error) bool {
	switch target {
	case ErrConnectionRefused:
		return err.Reason == ConnectRefused
	case ErrNetworkUnreachable:
		return err.Reason == ConnectUnreachable
	case ErrConnectTimeout:
		return err.Reason == ConnectTimeout
	}
	return false
}

// AuthReason classifies a failed authentication.
type AuthReason int

const (
	AuthBadCredentials AuthReason = iota
	AuthAccessDenied
	AuthAborted
)

func (r AuthReason) String() string {
	switch r {
	case AuthAccessDenied:
		return "access denied"
	case AuthAborted:
		return "aborted"
	}
	return "bad credentials"
}

func (r AuthReason) kind() error {
	switch r {
	case AuthAccessDenied:
		return ErrAccessDenied
	case AuthAborted:
		return ErrAuthenticationAborted
	}
	return ErrBadCredentials
}

// AuthError reports a session that could not be established. Attempts
// counts the SESSION_SETUP exchanges that were rejected.
type AuthError struct {
	Server   string
	Reason   AuthReason
	Attempts int
	Err      error
}

func (err *AuthError) Error() string {
	return fmt.Sprintf("authenticating to %s: %s after %d attempt(s): %v", err.Server, err.Reason, err.Attempts, err.Err)
}

func (err *AuthError) Unwrap() []error {
	return []error{ErrAuthenticationFailed, err.Reason.kind(), err.Err}
}

// authReason classifies a SESSION_SETUP failure; ok is false when err is
// not a server rejection and must not be retried.
func authReason(err error) (reason AuthReason, ok bool) {
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		return 0, false
	}
	switch authStatusKinds[erref.NtStatus(rerr.Code)] {
	case ErrAccessDenied:
		return AuthAccessDenied, true
	default:
		return AuthBadCredentials, true
	}
}

// HandlesAbandonedError lists the paths whose handles were still open when
// their session or share was torn down. The handles were closed best-effort.
type HandlesAbandonedError struct {
	Paths []string
}

func (err *HandlesAbandonedError) Error() string {
	return fmt.Sprintf("%d handle(s) abandoned: %s", len(err.Paths), strings.Join(err.Paths, ", "))
}

func (err *HandlesAbandonedError) Unwrap() error {
	return ErrHandlesAbandoned
}
