package smbc

import (
	"encoding/asn1"
	"errors"

	"github.com/cloudsoda/smbc/internal/spnego"
)

var errMechRejected = errors.New("spnego: mechanism rejected")

// spnegoClient wraps one or more initiators in SPNEGO negotiation tokens.
// The first initiator produces the optimistic token.
type spnegoClient struct {
	mechs  []Initiator
	offers []asn1.ObjectIdentifier
	chosen Initiator
}

func newSpnegoClient(mechs []Initiator) *spnegoClient {
	c := &spnegoClient{mechs: mechs}
	for _, m := range mechs {
		c.offers = append(c.offers, m.OID())
	}
	return c
}

func (c *spnegoClient) OID() asn1.ObjectIdentifier { return spnego.SpnegoOid }

func (c *spnegoClient) InitSecContext() ([]byte, error) {
	token, err := c.mechs[0].InitSecContext()
	if err != nil {
		return nil, err
	}
	return spnego.EncodeNegTokenInit(c.offers, token)
}

// AcceptSecContext answers the server's NegTokenResp. The mechListMIC
// covers the DER encoding of the offered mechanism list.
func (c *spnegoClient) AcceptSecContext(in []byte) ([]byte, error) {
	resp, err := spnego.DecodeNegTokenResp(in)
	if err != nil {
		return nil, err
	}
	if resp.NegState == spnego.Reject {
		return nil, errMechRejected
	}

	c.chosen = c.pick(resp.SupportedMech)

	token, err := c.chosen.AcceptSecContext(resp.ResponseToken)
	if err != nil {
		return nil, err
	}

	offered, err := asn1.Marshal(c.offers)
	if err != nil {
		return nil, err
	}

	return spnego.EncodeNegTokenResp(spnego.AcceptIncomplete, nil, token, c.chosen.Sum(offered))
}

// pick returns the initiator for oid, or the first one when the server did
// not name a known mechanism.
func (c *spnegoClient) pick(oid asn1.ObjectIdentifier) Initiator {
	for i, offer := range c.offers {
		if offer.Equal(oid) {
			return c.mechs[i]
		}
	}
	return c.mechs[0]
}

func (c *spnegoClient) Sum(b []byte) []byte { return c.chosen.Sum(b) }

func (c *spnegoClient) SessionKey() []byte { return c.chosen.SessionKey() }
