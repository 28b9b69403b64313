// Package spnego encodes and decodes the SPNEGO tokens carried in SMB2
// SESSION_SETUP security buffers.
package spnego

import (
	"encoding/asn1"
	"errors"

	"github.com/geoffgarside/ber"
)

var (
	SpnegoOid = asn1.ObjectIdentifier([]int{1, 3, 6, 1, 5, 5, 2})
	NlmpOid   = asn1.ObjectIdentifier([]int{1, 3, 6, 1, 4, 1, 311, 2, 2, 10})
)

// Negotiation states of a NegTokenResp.
const (
	AcceptCompleted  asn1.Enumerated = 0
	AcceptIncomplete asn1.Enumerated = 1
	Reject           asn1.Enumerated = 2
	RequestMIC       asn1.Enumerated = 3
)

var ErrNoToken = errors.New("spnego: token carries no negotiation")

type initialContextToken struct {
	ThisMech asn1.ObjectIdentifier `asn1:"optional"`
	Init     []NegTokenInit        `asn1:"optional,tag:0"`
}

type NegTokenInit struct {
	MechTypes   []asn1.ObjectIdentifier `asn1:"explicit,optional,tag:0"`
	ReqFlags    asn1.BitString          `asn1:"explicit,optional,tag:1"`
	MechToken   []byte                  `asn1:"explicit,optional,tag:2"`
	MechListMIC []byte                  `asn1:"explicit,optional,tag:3"`
}

type NegTokenResp struct {
	NegState      asn1.Enumerated       `asn1:"explicit,optional,tag:0"`
	SupportedMech asn1.ObjectIdentifier `asn1:"explicit,optional,tag:1"`
	ResponseToken []byte                `asn1:"explicit,optional,tag:2"`
	MechListMIC   []byte                `asn1:"explicit,optional,tag:3"`
}

// EncodeNegTokenInit wraps the first mechanism token in a GSS-API initial
// context token.
func EncodeNegTokenInit(types []asn1.ObjectIdentifier, token []byte) ([]byte, error) {
	bs, err := asn1.Marshal(initialContextToken{
		ThisMech: SpnegoOid,
		Init: []NegTokenInit{
			{MechTypes: types, MechToken: token},
		},
	})
	if err != nil {
		return nil, err
	}

	bs[0] = 0x60 // [APPLICATION 0]

	return bs, nil
}

func DecodeNegTokenInit(bs []byte) (*NegTokenInit, error) {
	var init initialContextToken
	_, err := ber.UnmarshalWithParams(bs, &init, "application,tag:0")
	if err != nil {
		return nil, err
	}
	if !init.ThisMech.Equal(SpnegoOid) || len(init.Init) == 0 {
		return nil, ErrNoToken
	}
	return &init.Init[0], nil
}

func EncodeNegTokenResp(state asn1.Enumerated, typ asn1.ObjectIdentifier, token, mechListMIC []byte) ([]byte, error) {
	return asn1.MarshalWithParams(NegTokenResp{
		NegState:      state,
		SupportedMech: typ,
		ResponseToken: token,
		MechListMIC:   mechListMIC,
	}, "explicit,tag:1")
}

func DecodeNegTokenResp(bs []byte) (*NegTokenResp, error) {
	var resp NegTokenResp
	_, err := ber.UnmarshalWithParams(bs, &resp, "explicit,tag:1")
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
