package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"hash"
	"strings"
	"time"

	"github.com/cloudsoda/smbc/internal/utf16le"
)

// Offsets into NEGOTIATE_MESSAGE and AUTHENTICATE_MESSAGE.
const (
	negotiateHeaderLen = 40
	negotiateFlagsAt   = 12
	negotiateVersionAt = 32

	authLmResponseAt  = 12
	authNtResponseAt  = 20
	authDomainAt      = 28
	authUserAt        = 36
	authWorkstationAt = 44
	authSessionKeyAt  = 52
	authFlagsAt       = 60
	authVersionAt     = 64
	authMICAt         = 72
	authHeaderLen     = 88
)

// filetimeEpoch is 1970-01-01 in 100ns ticks since 1601-01-01.
const filetimeEpoch = 116444736000000000

// Client is the initiating side of an NTLMv2 exchange. An empty User and
// Password authenticate anonymously.
type Client struct {
	User        string
	Password    string
	Domain      string // "WORKGROUP", "MicrosoftAccount", ...
	Workstation string

	// TargetSPN is bound into the target info, e.g. "cifs/host:445".
	TargetSPN string

	nmsg    []byte
	session *Session
}

func (c *Client) anonymous() bool {
	return c.User == "" && c.Password == ""
}

// Negotiate returns the NEGOTIATE_MESSAGE, which carries no payload.
func (c *Client) Negotiate() ([]byte, error) {
	msg := make([]byte, negotiateHeaderLen)
	copy(msg, signature)
	le.PutUint32(msg[8:12], NtLmNegotiate)
	le.PutUint32(msg[negotiateFlagsAt:], defaultFlags)
	copy(msg[negotiateVersionAt:], version)

	c.nmsg = msg
	return msg, nil
}

// Authenticate answers the server's CHALLENGE_MESSAGE and derives the
// session keys.
func (c *Client) Authenticate(cmsg []byte) ([]byte, error) {
	challenge, err := UnmarshalChallengeMessage(cmsg, c.nmsg, c.TargetSPN)
	if err != nil {
		return nil, err
	}

	domain := utf16le.Encode(c.Domain, utf16le.MapCharsNone)
	if domain == nil {
		domain = challenge.targetName
	}
	user := utf16le.Encode(c.User, utf16le.MapCharsNone)
	workstation := utf16le.Encode(c.Workstation, utf16le.MapCharsNone)

	// The NTLMv2 response is a 16 byte proof, the 28 byte client challenge
	// header, the AV pairs and 4 bytes of padding. The LMv2 response is
	// left zeroed.
	lmLen, ntLen := 24, 16+28+challenge.info.size()+4
	if c.anonymous() {
		lmLen, ntLen = 0, 0
	}

	msg := make([]byte, authHeaderLen+len(domain)+len(user)+len(workstation)+lmLen+ntLen+16)
	copy(msg, signature)
	le.PutUint32(msg[8:12], NtLmAuthenticate)

	off := authHeaderLen
	off = putField(msg, authDomainAt, off, domain)
	off = putField(msg, authUserAt, off, user)
	off = putField(msg, authWorkstationAt, off, workstation)
	off = putField(msg, authLmResponseAt, off, make([]byte, lmLen))

	h := hmac.New(md5.New, ntowfv2(
		utf16le.Encode(strings.ToUpper(c.User), utf16le.MapCharsNone),
		utf16le.Encode(c.Password, utf16le.MapCharsNone),
		domain,
	))

	if ntLen > 0 {
		nt := make([]byte, ntLen)
		if err := c.ntResponse(nt, h, challenge); err != nil {
			return nil, err
		}
		off = putField(msg, authNtResponseAt, off, nt)
		h.Write(nt[:16])
	}

	keyExchangeKey := h.Sum(nil)
	if c.anonymous() {
		keyExchangeKey = anonymousKeyExchangeKey
	}

	session := &Session{
		isClientSide:   true,
		user:           c.User,
		negotiateFlags: challenge.flags,
		infoMap:        challenge.info.InfoMap,
	}

	if challenge.flags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 {
		key, sealed, err := exchangeKey(keyExchangeKey)
		if err != nil {
			return nil, err
		}
		session.exportedSessionKey = key
		putField(msg, authSessionKeyAt, off, sealed)
	} else {
		session.exportedSessionKey = keyExchangeKey
		msg = msg[:off]
	}

	le.PutUint32(msg[authFlagsAt:], challenge.flags)
	copy(msg[authVersionAt:], version)

	mic := hmac.New(md5.New, session.exportedSessionKey)
	mic.Write(c.nmsg)
	mic.Write(cmsg)
	mic.Write(msg)
	copy(msg[authMICAt:authHeaderLen], mic.Sum(nil))

	if err := session.deriveKeys(); err != nil {
		return nil, err
	}
	c.session = session

	return msg, nil
}

// ntResponse fills dst with the NTLMv2 response, using the server's
// timestamp when it sent one.
func (c *Client) ntResponse(dst []byte, h hash.Hash, challenge *ChallengeMessage) error {
	clientChallenge := make([]byte, 8)
	if _, err := rand.Read(clientChallenge); err != nil {
		return err
	}

	stamp, ok := challenge.info.InfoMap[MsvAvTimestamp]
	if !ok {
		stamp = make([]byte, 8)
		le.PutUint64(stamp, uint64(time.Now().UnixNano()/100+filetimeEpoch))
	}

	encodeNtlmv2Response(dst, h, challenge.serverChallenge, clientChallenge, stamp, challenge.info)
	return nil
}

// exchangeKey picks a random session key and seals it with kek.
func exchangeKey(kek []byte) (key, sealed []byte, err error) {
	key = make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, err
	}

	cipher, err := rc4.NewCipher(kek)
	if err != nil {
		return nil, nil, err
	}
	sealed = make([]byte, 16)
	cipher.XORKeyStream(sealed, key)
	return key, sealed, nil
}

// Session returns the state negotiated by Authenticate.
func (c *Client) Session() *Session {
	return c.session
}
