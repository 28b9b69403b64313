package spnego

import (
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegTokenInit(t *testing.T) {
	t.Parallel()

	bs, err := EncodeNegTokenInit([]asn1.ObjectIdentifier{NlmpOid}, []byte("NTLMSSP\x00negotiate"))
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), bs[0])

	init, err := DecodeNegTokenInit(bs)
	require.NoError(t, err)
	require.Len(t, init.MechTypes, 1)
	assert.True(t, init.MechTypes[0].Equal(NlmpOid))
	assert.Equal(t, []byte("NTLMSSP\x00negotiate"), init.MechToken)
	assert.Empty(t, init.MechListMIC)
}

func TestNegTokenResp(t *testing.T) {
	t.Parallel()

	bs, err := EncodeNegTokenResp(AcceptIncomplete, NlmpOid, []byte("challenge"), nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0xa1), bs[0])

	resp, err := DecodeNegTokenResp(bs)
	require.NoError(t, err)
	assert.Equal(t, AcceptIncomplete, resp.NegState)
	assert.True(t, resp.SupportedMech.Equal(NlmpOid))
	assert.Equal(t, []byte("challenge"), resp.ResponseToken)

	bs, err = EncodeNegTokenResp(AcceptIncomplete, nil, []byte("auth"), []byte("mic"))
	require.NoError(t, err)
	resp, err = DecodeNegTokenResp(bs)
	require.NoError(t, err)
	assert.Empty(t, resp.SupportedMech)
	assert.Equal(t, []byte("mic"), resp.MechListMIC)
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeNegTokenResp([]byte{0x01, 0x02})
	require.Error(t, err)

	_, err = DecodeNegTokenInit([]byte{0x60, 0x00})
	require.Error(t, err)
}
