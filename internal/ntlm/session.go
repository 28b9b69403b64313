package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
)

// Session holds the keys established by a completed exchange.
type Session struct {
	isClientSide bool

	user           string
	negotiateFlags uint32
	infoMap        map[uint16][]byte

	exportedSessionKey []byte
	clientSigningKey   []byte
	serverSigningKey   []byte

	clientHandle *rc4.Cipher
	serverHandle *rc4.Cipher
}

func (s *Session) deriveKeys() (err error) {
	s.clientSigningKey = signKey(s.negotiateFlags, s.exportedSessionKey, true)
	s.serverSigningKey = signKey(s.negotiateFlags, s.exportedSessionKey, false)

	s.clientHandle, err = rc4.NewCipher(sealKey(s.negotiateFlags, s.exportedSessionKey, true))
	if err != nil {
		return err
	}
	s.serverHandle, err = rc4.NewCipher(sealKey(s.negotiateFlags, s.exportedSessionKey, false))
	return err
}

func (s *Session) User() string {
	return s.user
}

func (s *Session) SessionKey() []byte {
	return s.exportedSessionKey
}

func (s *Session) InfoMap() map[uint16][]byte {
	return s.infoMap
}

func (s *Session) outgoing() ([]byte, *rc4.Cipher) {
	if s.isClientSide {
		return s.clientSigningKey, s.clientHandle
	}
	return s.serverSigningKey, s.serverHandle
}

func (s *Session) incoming() ([]byte, *rc4.Cipher) {
	if s.isClientSide {
		return s.serverSigningKey, s.serverHandle
	}
	return s.clientSigningKey, s.clientHandle
}

// Sum returns the 16 byte message signature of plaintext sent by this side.
func (s *Session) Sum(plaintext []byte, seqNum uint32) []byte {
	key, handle := s.outgoing()
	return s.mac(key, handle, plaintext, seqNum)
}

// CheckSum verifies a signature produced by the peer.
func (s *Session) CheckSum(sum, plaintext []byte, seqNum uint32) bool {
	key, handle := s.incoming()
	return hmac.Equal(sum, s.mac(key, handle, plaintext, seqNum))
}

func (s *Session) mac(signingKey []byte, handle *rc4.Cipher, msg []byte, seqNum uint32) []byte {
	//        NTLMSSP_MESSAGE_SIGNATURE
	//   0-4: Version
	//  4-12: Checksum
	// 12-16: SeqNum
	tag := make([]byte, 16)
	le.PutUint32(tag[:4], 1)
	le.PutUint32(tag[12:16], seqNum)

	h := hmac.New(md5.New, signingKey)
	h.Write(tag[12:16])
	h.Write(msg)
	copy(tag[4:12], h.Sum(nil))

	if s.negotiateFlags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 {
		handle.XORKeyStream(tag[4:12], tag[4:12])
	}
	return tag
}
