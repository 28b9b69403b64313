package smbc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

// Negotiator contains options for the NEGOTIATE exchange.
type Negotiator struct {
	RequireMessageSigning bool     // enforce signing even if the server doesn't ask for it
	ClientGuid            [16]byte // if it's zero, a random one is generated
}

func (n *Negotiator) makeRequest() (*smb2.NegotiateRequest, error) {
	req := &smb2.NegotiateRequest{
		Capabilities: clientCapabilities,
		Dialects:     []uint16{clientDialect},
	}

	if n.RequireMessageSigning {
		req.SecurityMode = smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED
	} else {
		req.SecurityMode = smb2.SMB2_NEGOTIATE_SIGNING_ENABLED
	}

	if n.ClientGuid == zero {
		if _, err := rand.Read(req.ClientGuid[:]); err != nil {
			return nil, &InternalError{err.Error()}
		}
	} else {
		req.ClientGuid = n.ClientGuid
	}

	return req, nil
}

// negotiate agrees on the fixed dialect and records the server's limits
// on c. Any other outcome is ErrProtocolMismatch.
func (n *Negotiator) negotiate(ctx context.Context, c *conn) error {
	req, err := n.makeRequest()
	if err != nil {
		return err
	}

	pkt, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}

	res, err := accept(smb2.SMB2_NEGOTIATE, pkt)
	if err != nil {
		var rerr *ResponseError
		if errors.As(err, &rerr) {
			return fmt.Errorf("%w: server answered %v", ErrProtocolMismatch, erref.NtStatus(rerr.Code))
		}
		return err
	}

	r := smb2.NegotiateResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken negotiate response format"}
	}

	if r.DialectRevision() != clientDialect {
		return fmt.Errorf("%w: server selected dialect 0x%04x", ErrProtocolMismatch, r.DialectRevision())
	}

	c.dialect = r.DialectRevision()
	c.securityMode = r.SecurityMode()
	c.capabilities = clientCapabilities & r.Capabilities()
	c.maxTransactSize = r.MaxTransactSize()
	c.maxReadSize = r.MaxReadSize()
	c.maxWriteSize = r.MaxWriteSize()
	copy(c.serverGuid[:], r.ServerGuid())
	c.requireSigning = n.RequireMessageSigning || c.securityMode&smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED != 0

	c.logger.Debug("negotiated",
		"dialect", c.dialect,
		"signing_required", c.requireSigning,
		"max_read", c.maxReadSize,
		"max_write", c.maxWriteSize)

	return nil
}
