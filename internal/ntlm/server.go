package ntlm

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"fmt"
	"strings"
	"time"

	"github.com/cloudsoda/smbc/internal/utf16le"
)

// Server issues challenges and verifies NTLMv2 responses against a fixed
// set of accounts. It backs the in-process test server.
type Server struct {
	targetName string
	accounts   map[string]string

	nmsg    []byte
	cmsg    []byte
	session *Session
}

func NewServer(targetName string) *Server {
	return &Server{
		targetName: targetName,
		accounts:   make(map[string]string),
	}
}

// AddAccount registers a user; user names compare case-insensitively.
func (s *Server) AddAccount(user, password string) {
	s.accounts[strings.ToUpper(user)] = password
}

func (s *Server) Challenge(nmsg []byte) (cmsg []byte, err error) {
	if len(nmsg) < 16 || !bytes.Equal(nmsg[:8], signature) || le.Uint32(nmsg[8:12]) != NtLmNegotiate {
		return nil, fmt.Errorf("%w: expected negotiate message", ErrInvalidMessage)
	}

	flags := le.Uint32(nmsg[12:16])&defaultFlags |
		NTLMSSP_REQUEST_TARGET | NTLMSSP_NEGOTIATE_TARGET_INFO | NTLMSSP_TARGET_TYPE_SERVER

	targetName := utf16le.Encode(s.targetName, utf16le.MapCharsNone)

	info := &targetInfoEncoder{InfoMap: make(map[uint16][]byte)}
	add := func(id uint16, bs []byte) {
		info.List = append(info.List, id)
		info.InfoMap[id] = bs
	}
	timeStamp := make([]byte, 8)
	le.PutUint64(timeStamp, uint64((time.Now().UnixNano()/100)+116444736000000000))
	add(MsvAvNbDomainName, targetName)
	add(MsvAvNbComputerName, targetName)
	add(MsvAvTimestamp, timeStamp)
	targetInfo := make([]byte, info.size())
	info.encode(targetInfo)

	off := 56
	cmsg = make([]byte, off+len(targetName)+len(targetInfo))
	copy(cmsg[:8], signature)
	le.PutUint32(cmsg[8:12], NtLmChallenge)
	off = putField(cmsg, 12, off, targetName)
	le.PutUint32(cmsg[20:24], flags)
	if _, err := rand.Read(cmsg[24:32]); err != nil {
		return nil, err
	}
	putField(cmsg, 40, off, targetInfo)
	copy(cmsg[48:56], version)

	s.nmsg = nmsg
	s.cmsg = cmsg
	s.session = nil

	return cmsg, nil
}

// Authenticate verifies amsg against the last issued challenge. Unknown
// users and wrong passwords both yield ErrLogonFailure.
func (s *Server) Authenticate(amsg []byte) error {
	if s.cmsg == nil {
		return fmt.Errorf("%w: no challenge issued", ErrInvalidMessage)
	}
	if len(amsg) < 88 || !bytes.Equal(amsg[:8], signature) || le.Uint32(amsg[8:12]) != NtLmAuthenticate {
		return fmt.Errorf("%w: expected authenticate message", ErrInvalidMessage)
	}

	ntChallengeResponse, ok1 := field(amsg, 20)
	domain, ok2 := field(amsg, 28)
	user, ok3 := field(amsg, 36)
	encryptedRandomSessionKey, ok4 := field(amsg, 52)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return fmt.Errorf("%w: authenticate fields", ErrInvalidMessage)
	}
	if len(ntChallengeResponse) < 16+28 {
		return ErrLogonFailure
	}

	name := utf16le.Decode(user, utf16le.MapCharsNone)
	password, ok := s.accounts[strings.ToUpper(name)]
	if !ok {
		return ErrLogonFailure
	}

	USER := utf16le.Encode(strings.ToUpper(name), utf16le.MapCharsNone)
	h := hmac.New(md5.New, ntowfv2(USER, utf16le.Encode(password, utf16le.MapCharsNone), domain))
	h.Write(s.cmsg[24:32])
	h.Write(ntChallengeResponse[16:])
	if !hmac.Equal(h.Sum(nil), ntChallengeResponse[:16]) {
		return ErrLogonFailure
	}
	h.Reset()
	h.Write(ntChallengeResponse[:16])
	sessionBaseKey := h.Sum(nil)

	flags := le.Uint32(amsg[60:64])
	session := &Session{
		user:           name,
		negotiateFlags: flags,
	}
	if flags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 {
		if len(encryptedRandomSessionKey) != 16 {
			return fmt.Errorf("%w: session key", ErrInvalidMessage)
		}
		cipher, err := rc4.NewCipher(sessionBaseKey)
		if err != nil {
			return err
		}
		session.exportedSessionKey = make([]byte, 16)
		cipher.XORKeyStream(session.exportedSessionKey, encryptedRandomSessionKey)
	} else {
		session.exportedSessionKey = sessionBaseKey
	}

	zeroed := bytes.Clone(amsg)
	clear(zeroed[72:88])
	mic := hmac.New(md5.New, session.exportedSessionKey)
	mic.Write(s.nmsg)
	mic.Write(s.cmsg)
	mic.Write(zeroed)
	if !hmac.Equal(mic.Sum(nil), amsg[72:88]) {
		return fmt.Errorf("%w: message integrity check", ErrInvalidMessage)
	}

	if err := session.deriveKeys(); err != nil {
		return err
	}
	s.session = session

	return nil
}

func (s *Server) Session() *Session {
	return s.session
}
