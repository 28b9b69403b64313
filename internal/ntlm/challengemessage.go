package ntlm

import (
	"bytes"
	"fmt"

	"github.com/cloudsoda/smbc/internal/utf16le"
)

type ChallengeMessage struct {
	flags           uint32
	serverChallenge []byte
	info            *targetInfoEncoder
	targetName      []byte
}

// UnmarshalChallengeMessage parses cmsg, the server's reply to nmsg.
func UnmarshalChallengeMessage(cmsg, nmsg []byte, targetSPN string) (*ChallengeMessage, error) {
	//        ChallengeMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: TargetNameFields
	// 20-24: NegotiateFlags
	// 24-32: ServerChallenge
	// 32-40: _
	// 40-48: TargetInfoFields
	// 48-56: Version
	//   56-: Payload
	if len(cmsg) < 48 {
		return nil, fmt.Errorf("%w: challenge is too short", ErrInvalidMessage)
	}
	if !bytes.Equal(cmsg[:8], signature) {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidMessage)
	}
	if le.Uint32(cmsg[8:12]) != NtLmChallenge {
		return nil, fmt.Errorf("%w: expected challenge message", ErrInvalidMessage)
	}

	flags := le.Uint32(nmsg[12:16]) & le.Uint32(cmsg[20:24])
	if flags&NTLMSSP_REQUEST_TARGET == 0 || flags&NTLMSSP_NEGOTIATE_TARGET_INFO == 0 {
		return nil, fmt.Errorf("%w: negotiate flags 0x%08x", ErrInvalidMessage, flags)
	}

	targetName, ok := field(cmsg, 12)
	if !ok {
		return nil, fmt.Errorf("%w: target name", ErrInvalidMessage)
	}
	targetInfo, ok := field(cmsg, 40)
	if !ok {
		return nil, fmt.Errorf("%w: target info", ErrInvalidMessage)
	}
	info := newTargetInfoEncoder(targetInfo, utf16le.Encode(targetSPN, utf16le.MapCharsNone))
	if info == nil {
		return nil, fmt.Errorf("%w: target info pairs", ErrInvalidMessage)
	}

	return &ChallengeMessage{
		flags:           flags,
		serverChallenge: cmsg[24:32],
		info:            info,
		targetName:      targetName,
	}, nil
}
