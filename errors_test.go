package smbc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudsoda/smbc/internal/erref"
)

func TestResponseErrorKinds(t *testing.T) {
	for status, want := range map[erref.NtStatus]error{
		erref.STATUS_OBJECT_NAME_NOT_FOUND: fs.ErrNotExist,
		erref.STATUS_OBJECT_PATH_NOT_FOUND: ErrNotFound,
		erref.STATUS_OBJECT_NAME_COLLISION: fs.ErrExist,
		erref.STATUS_ACCESS_DENIED:         fs.ErrPermission,
		erref.STATUS_FILE_IS_A_DIRECTORY:   ErrIsADirectory,
		erref.STATUS_NOT_A_DIRECTORY:       ErrNotADirectory,
		erref.STATUS_TOO_MANY_OPENED_FILES: ErrTooManyOpenFiles,
		erref.STATUS_FILE_CLOSED:           ErrBadHandle,
		erref.STATUS_BAD_NETWORK_NAME:      ErrShareNotFound,
		erref.STATUS_BAD_NETWORK_PATH:      ErrWorkgroupNotFound,
		erref.STATUS_INVALID_PARAMETER:     fs.ErrInvalid,
		erref.STATUS_USER_SESSION_DELETED:  ErrConnectionClosed,
		erref.STATUS_DISK_FULL:             ErrIO,
	} {
		err := error(&ResponseError{Code: uint32(status)})
		assert.ErrorIs(t, err, want, status.String())
	}

	err := &ResponseError{Code: uint32(erref.STATUS_DISK_FULL)}
	require.Equal(t, "response error: STATUS_DISK_FULL", err.Error())
}

func TestStatusIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ResponseError{Code: uint32(erref.STATUS_END_OF_FILE)})

	require.True(t, statusIs(err, erref.STATUS_END_OF_FILE))
	require.False(t, statusIs(err, erref.STATUS_NO_MORE_FILES))
	require.False(t, statusIs(io.EOF, erref.STATUS_END_OF_FILE))
}

func TestAuthReason(t *testing.T) {
	for status, want := range map[erref.NtStatus]AuthReason{
		erref.STATUS_LOGON_FAILURE:       AuthBadCredentials,
		erref.STATUS_WRONG_PASSWORD:      AuthBadCredentials,
		erref.STATUS_ACCOUNT_DISABLED:    AuthAccessDenied,
		erref.STATUS_ACCOUNT_LOCKED_OUT:  AuthAccessDenied,
		erref.STATUS_ACCESS_DENIED:       AuthAccessDenied,
		erref.STATUS_INVALID_PARAMETER:   AuthBadCredentials,
		erref.STATUS_PASSWORD_EXPIRED:    AuthAccessDenied,
		erref.STATUS_ACCOUNT_RESTRICTION: AuthAccessDenied,
	} {
		reason, ok := authReason(&ResponseError{Code: uint32(status)})
		require.True(t, ok, status.String())
		require.Equal(t, want, reason, status.String())
	}

	_, ok := authReason(&TransportError{Err: io.EOF})
	require.False(t, ok)
}

func TestAuthErrorUnwrap(t *testing.T) {
	cause := errors.New("no tty")
	err := error(&AuthError{Server: "fileserver", Reason: AuthAborted, Err: cause})

	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.ErrorIs(t, err, ErrAuthenticationAborted)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrBadCredentials)
	require.Equal(t, "authenticating to fileserver: aborted after 0 attempt(s): no tty", err.Error())
}

func TestConnectErrorIs(t *testing.T) {
	err := error(&ConnectError{Endpoint: Endpoint{Host: "fileserver"}, Reason: ConnectTimeout, Err: os.ErrDeadlineExceeded})

	require.ErrorIs(t, err, ErrConnectTimeout)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.NotErrorIs(t, err, ErrConnectionRefused)
	require.Equal(t, "connecting to fileserver:445 (timeout): i/o timeout", err.Error())
}

func TestTransportErrorUnwrap(t *testing.T) {
	require.ErrorIs(t, &TransportError{Err: io.EOF}, ErrConnectionClosed)
	require.ErrorIs(t, &TransportError{Err: net.ErrClosed}, ErrConnectionClosed)
	require.ErrorIs(t, &TransportError{Err: errors.New("reset")}, ErrIO)
	require.NotErrorIs(t, &TransportError{Err: errors.New("reset")}, ErrConnectionClosed)
}

func TestHandlesAbandonedError(t *testing.T) {
	err := error(&HandlesAbandonedError{Paths: []string{"a.txt", `dir\b.txt`}})

	require.ErrorIs(t, err, ErrHandlesAbandoned)
	require.Equal(t, `2 handle(s) abandoned: a.txt, dir\b.txt`, err.Error())
}

func TestInvalidResponseErrorIsIO(t *testing.T) {
	require.ErrorIs(t, &InvalidResponseError{"broken"}, ErrIO)
}
