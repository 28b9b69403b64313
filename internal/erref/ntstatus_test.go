package erref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNtStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "STATUS_LOGON_FAILURE", STATUS_LOGON_FAILURE.String())
	require.Equal(t, "STATUS_NO_MORE_FILES", STATUS_NO_MORE_FILES.String())
	require.Equal(t, "0xC0DEC0DE", NtStatus(0xC0DEC0DE).String())
}

func TestNtStatusIsError(t *testing.T) {
	t.Parallel()

	require.True(t, STATUS_ACCESS_DENIED.IsError())
	require.False(t, STATUS_NO_MORE_FILES.IsError())
	require.False(t, STATUS_PENDING.IsError())
	require.False(t, STATUS_SUCCESS.IsError())
}
