package ntlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(t *testing.T, c *Client, s *Server) error {
	t.Helper()

	nmsg, err := c.Negotiate()
	require.NoError(t, err)

	cmsg, err := s.Challenge(nmsg)
	require.NoError(t, err)

	amsg, err := c.Authenticate(cmsg)
	require.NoError(t, err)

	return s.Authenticate(amsg)
}

func TestClientServerExchange(t *testing.T) {
	t.Parallel()

	s := NewServer("FILESERVER")
	s.AddAccount("alice", "x")

	c := &Client{
		User:      "Alice",
		Password:  "x",
		Domain:    "WG",
		TargetSPN: "cifs/fileserver",
	}
	require.NoError(t, exchange(t, c, s))

	require.NotNil(t, s.Session())
	assert.Equal(t, "Alice", s.Session().User())
	assert.Len(t, c.Session().SessionKey(), 16)
	assert.Equal(t, c.Session().SessionKey(), s.Session().SessionKey())

	// signatures verify in both directions
	msg := []byte("mech list")
	assert.True(t, s.Session().CheckSum(c.Session().Sum(msg, 0), msg, 0))
	assert.True(t, c.Session().CheckSum(s.Session().Sum(msg, 0), msg, 0))
}

func TestWrongPassword(t *testing.T) {
	t.Parallel()

	s := NewServer("FILESERVER")
	s.AddAccount("alice", "x")

	err := exchange(t, &Client{User: "alice", Password: "y", Domain: "WG"}, s)
	require.ErrorIs(t, err, ErrLogonFailure)
	assert.Nil(t, s.Session())

	err = exchange(t, &Client{User: "bob", Password: "x", Domain: "WG"}, s)
	require.ErrorIs(t, err, ErrLogonFailure)
}

func TestEmptyDomainUsesTargetName(t *testing.T) {
	t.Parallel()

	s := NewServer("FILESERVER")
	s.AddAccount("alice", "x")

	require.NoError(t, exchange(t, &Client{User: "alice", Password: "x"}, s))
}

func TestMalformedChallenge(t *testing.T) {
	t.Parallel()

	c := &Client{User: "alice", Password: "x"}
	_, err := c.Negotiate()
	require.NoError(t, err)

	_, err = c.Authenticate([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidMessage)

	cmsg := make([]byte, 64)
	copy(cmsg, "NTLMSSP\x00")
	le.PutUint32(cmsg[8:12], NtLmNegotiate)
	_, err = c.Authenticate(cmsg)
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestTargetInfoEncoder(t *testing.T) {
	t.Parallel()

	raw := []byte{
		MsvAvNbDomainName, 0, 2, 0, 'W', 0,
		MsvAvTimestamp, 0, 8, 0, 1, 2, 3, 4, 5, 6, 7, 8,
		MsvAvEOL, 0, 0, 0,
	}
	e := newTargetInfoEncoder(raw, []byte{'c', 0})
	require.NotNil(t, e)
	assert.Equal(t, []uint16{MsvAvNbDomainName, MsvAvTimestamp}, e.List)
	assert.Equal(t, uint32(msvAvFlagMICProvided), e.flags())

	buf := make([]byte, e.size())
	e.encode(buf)
	back := newTargetInfoEncoder(buf, nil)
	require.NotNil(t, back)
	assert.Equal(t, []byte{'c', 0}, back.InfoMap[MsvAvTargetName])
	assert.Equal(t, []byte{'W', 0}, back.InfoMap[MsvAvNbDomainName])

	assert.Nil(t, newTargetInfoEncoder(raw[:5], nil))
}
