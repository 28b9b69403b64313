// Package ntlm implements the NTLMv2 authentication exchange used inside
// SPNEGO: the client side that answers a server challenge and a minimal
// server side that issues challenges and verifies the answers.
package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"hash"

	"golang.org/x/crypto/md4"
)

var le = binary.LittleEndian

var signature = []byte("NTLMSSP\x00")

// Message types
const (
	NtLmNegotiate    = 0x00000001
	NtLmChallenge    = 0x00000002
	NtLmAuthenticate = 0x00000003
)

// Negotiate flags
const (
	NTLMSSP_NEGOTIATE_UNICODE = 1 << iota
	NTLM_NEGOTIATE_OEM
	NTLMSSP_REQUEST_TARGET
	_
	NTLMSSP_NEGOTIATE_SIGN
	NTLMSSP_NEGOTIATE_SEAL
	NTLMSSP_NEGOTIATE_DATAGRAM
	NTLMSSP_NEGOTIATE_LM_KEY
	_
	NTLMSSP_NEGOTIATE_NTLM
	_
	NTLMSSP_ANONYMOUS
	NTLMSSP_NEGOTIATE_OEM_DOMAIN_SUPPLIED
	NTLMSSP_NEGOTIATE_OEM_WORKSTATION_SUPPLIED
	_
	NTLMSSP_NEGOTIATE_ALWAYS_SIGN
	NTLMSSP_TARGET_TYPE_DOMAIN
	NTLMSSP_TARGET_TYPE_SERVER
	_
	NTLMSSP_NEGOTIATE_EXTENDED_SESSIONSECURITY
	NTLMSSP_NEGOTIATE_IDENTIFY
	_
	NTLMSSP_REQUEST_NON_NT_SESSION_KEY
	NTLMSSP_NEGOTIATE_TARGET_INFO
	_
	NTLMSSP_NEGOTIATE_VERSION
	_
	_
	_
	NTLMSSP_NEGOTIATE_128
	NTLMSSP_NEGOTIATE_KEY_EXCH
	NTLMSSP_NEGOTIATE_56
)

const defaultFlags = NTLMSSP_NEGOTIATE_56 |
	NTLMSSP_NEGOTIATE_KEY_EXCH |
	NTLMSSP_NEGOTIATE_128 |
	NTLMSSP_NEGOTIATE_TARGET_INFO |
	NTLMSSP_NEGOTIATE_EXTENDED_SESSIONSECURITY |
	NTLMSSP_NEGOTIATE_ALWAYS_SIGN |
	NTLMSSP_NEGOTIATE_NTLM |
	NTLMSSP_NEGOTIATE_SIGN |
	NTLMSSP_REQUEST_TARGET |
	NTLMSSP_NEGOTIATE_UNICODE |
	NTLMSSP_NEGOTIATE_VERSION

// AV pair ids
const (
	MsvAvEOL = iota
	MsvAvNbComputerName
	MsvAvNbDomainName
	MsvAvDnsComputerName
	MsvAvDnsDomainName
	MsvAvDnsTreeName
	MsvAvFlags
	MsvAvTimestamp
	MsvAvSingleHost
	MsvAvTargetName
	MsvAvChannelBindings
)

// MsvAvFlags bit telling the server that the MIC field is populated.
const msvAvFlagMICProvided = 0x00000002

// Windows 10.0, NTLMSSP revision 15
var version = []byte{10, 0, 0, 0, 0, 0, 0, 15}

var anonymousKeyExchangeKey = make([]byte, 16)

var (
	clientSigning = []byte("session key to client-to-server signing key magic constant\x00")
	serverSigning = []byte("session key to server-to-client signing key magic constant\x00")
	clientSealing = []byte("session key to client-to-server sealing key magic constant\x00")
	serverSealing = []byte("session key to server-to-client sealing key magic constant\x00")
)

var (
	ErrInvalidMessage = errors.New("ntlm: invalid message")
	ErrLogonFailure   = errors.New("ntlm: logon failure")
)

func ntowfv2(USER, password, domain []byte) []byte {
	h := md4.New()
	h.Write(password)
	return ntowfv2Hash(USER, h.Sum(nil), domain)
}

func ntowfv2Hash(USER, nthash, domain []byte) []byte {
	h := hmac.New(md5.New, nthash)
	h.Write(USER)
	h.Write(domain)
	return h.Sum(nil)
}

// encodeNtlmv2Response fills dst, an NTLMv2Response whose client challenge
// part is already sized for info, and computes its NTProofStr with h.
func encodeNtlmv2Response(dst []byte, h hash.Hash, serverChallenge, clientChallenge, timeStamp []byte, info *targetInfoEncoder) {
	//        NTLMv2Response
	//  0-16: Response
	//   16-: NTLMv2ClientChallenge
	ntlmv2ClientChallenge := dst[16:]

	ntlmv2ClientChallenge[0] = 1 // RespType
	ntlmv2ClientChallenge[1] = 1 // HiRespType
	copy(ntlmv2ClientChallenge[8:16], timeStamp)
	copy(ntlmv2ClientChallenge[16:24], clientChallenge)
	info.encode(ntlmv2ClientChallenge[28:])

	h.Write(serverChallenge)
	h.Write(ntlmv2ClientChallenge)
	h.Sum(dst[:0])
	h.Reset()
}

func signKey(flags uint32, randomSessionKey []byte, fromClient bool) []byte {
	if flags&NTLMSSP_NEGOTIATE_EXTENDED_SESSIONSECURITY == 0 {
		return nil
	}
	h := md5.New()
	h.Write(randomSessionKey)
	if fromClient {
		h.Write(clientSigning)
	} else {
		h.Write(serverSigning)
	}
	return h.Sum(nil)
}

func sealKey(flags uint32, randomSessionKey []byte, fromClient bool) []byte {
	if flags&NTLMSSP_NEGOTIATE_EXTENDED_SESSIONSECURITY == 0 {
		return randomSessionKey
	}
	h := md5.New()
	switch {
	case flags&NTLMSSP_NEGOTIATE_128 != 0:
		h.Write(randomSessionKey)
	case flags&NTLMSSP_NEGOTIATE_56 != 0:
		h.Write(randomSessionKey[:7])
	default:
		h.Write(randomSessionKey[:5])
	}
	if fromClient {
		h.Write(clientSealing)
	} else {
		h.Write(serverSealing)
	}
	return h.Sum(nil)
}

// field returns the payload referenced by the 8 byte (len, maxlen, offset)
// descriptor at msg[at:].
func field(msg []byte, at int) ([]byte, bool) {
	n := le.Uint16(msg[at : at+2])
	if le.Uint16(msg[at+2:at+4]) < n {
		return nil, false
	}
	off := le.Uint32(msg[at+4 : at+8])
	if uint64(off)+uint64(n) > uint64(len(msg)) {
		return nil, false
	}
	return msg[off : off+uint32(n)], true
}

// putField copies bs into msg at off and writes its descriptor at msg[at:].
func putField(msg []byte, at, off int, bs []byte) int {
	n := copy(msg[off:], bs)
	le.PutUint16(msg[at:at+2], uint16(n))
	le.PutUint16(msg[at+2:at+4], uint16(n))
	le.PutUint32(msg[at+4:at+8], uint32(off))
	return off + n
}
