package smbc

import (
	"context"
	"crypto/hmac"
	"fmt"
	"hash"
	"log/slog"
	"time"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

// conn is the exchange layer of one session: it stamps headers, signs,
// sends one request and waits for its response while holding the session's
// exchange slot.
type conn struct {
	t       *transport
	logger  *slog.Logger
	metrics *Metrics

	// onBreak runs after an exchange that left the transport broken.
	onBreak func()

	// one in-flight exchange per session
	sem chan struct{}

	dialect         uint16
	securityMode    uint16
	capabilities    uint32
	maxTransactSize uint32
	maxReadSize     uint32
	maxWriteSize    uint32
	serverGuid      [16]byte
	requireSigning  bool

	// guarded by sem
	nextMessageId    uint64
	credits          uint16
	maxCreditBalance uint16
	sessionId        uint64
	signer           hash.Hash
}

func newConn(t *transport, logger *slog.Logger, metrics *Metrics, maxCreditBalance uint16) *conn {
	return &conn{
		t:                t,
		logger:           logger,
		metrics:          metrics,
		sem:              make(chan struct{}, 1),
		maxCreditBalance: maxCreditBalance,
	}
}

// lock waits for the exchange slot. Waiting honors ctx; an exchange that
// already started runs to completion.
func (c *conn) lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) unlock() {
	<-c.sem
}

// exchange sends req and returns the raw response packet.
func (c *conn) exchange(ctx context.Context, req smb2.Packet) ([]byte, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	pkt, err := c.roundTrip(ctx, req)
	c.unlock()

	if err != nil && c.onBreak != nil && c.t.broken.Load() {
		c.onBreak()
	}
	return pkt, err
}

// sendRecv exchanges req and validates the response for cmd.
func (c *conn) sendRecv(ctx context.Context, cmd uint16, req smb2.Packet) ([]byte, error) {
	pkt, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	return accept(cmd, pkt)
}

func (c *conn) creditRequest() uint16 {
	if c.credits >= c.maxCreditBalance {
		return 1
	}
	return c.maxCreditBalance - c.credits
}

func (c *conn) grant(n uint16) {
	c.credits = min(c.credits+n, c.maxCreditBalance)
}

func (c *conn) roundTrip(ctx context.Context, req smb2.Packet) ([]byte, error) {
	if c.nextMessageId != 0 && c.credits == 0 {
		return nil, &InternalError{"server granted no credits"}
	}

	hdr := req.Header()
	hdr.MessageId = c.nextMessageId
	hdr.CreditCharge = 1
	hdr.CreditRequestResponse = c.creditRequest()
	hdr.SessionId = c.sessionId

	pkt := make([]byte, req.Size())
	req.Encode(pkt)

	if c.signer != nil {
		c.sign(pkt)
	}

	cmd := smb2.PacketCodec(pkt).Command()

	c.nextMessageId++
	if c.credits > 0 {
		c.credits--
	}

	start := time.Now()

	if err := c.t.sendFrame(ctx, pkt); err != nil {
		return nil, err
	}

	for {
		res, err := c.t.receiveFrame(ctx)
		if err != nil {
			return nil, err
		}

		p := smb2.PacketCodec(res)
		if p.IsInvalid() {
			return nil, c.t.fail(&InvalidResponseError{"broken packet header format"})
		}

		if p.MessageId() == smb2.UnsolicitedMessageId {
			continue
		}
		if msgId := p.MessageId(); msgId != hdr.MessageId {
			return nil, c.t.fail(&InvalidResponseError{fmt.Sprintf("expected message id: %v, got %v", hdr.MessageId, msgId)})
		}

		c.grant(p.CreditResponse())

		status := p.Status()
		if p.Flags()&smb2.SMB2_FLAGS_ASYNC_COMMAND != 0 && erref.NtStatus(status) == erref.STATUS_PENDING {
			continue
		}

		if c.signer != nil {
			switch {
			case p.Flags()&smb2.SMB2_FLAGS_SIGNED != 0:
				if !c.verify(res) {
					return nil, c.t.fail(&InvalidResponseError{"unverified packet returned"})
				}
			case c.requireSigning:
				return nil, c.t.fail(&InvalidResponseError{"unsigned packet returned"})
			}
		}

		elapsed := time.Since(start)
		c.metrics.observeExchange(cmd, status, len(pkt), len(res), elapsed)
		c.logger.Debug("exchange",
			"command", smb2.GetCommandName(cmd),
			"message_id", hdr.MessageId,
			"status", smb2.GetStatusName(status),
			"duration", elapsed)

		return res, nil
	}
}

func (c *conn) sign(pkt []byte) {
	p := smb2.PacketCodec(pkt)

	p.SetFlags(p.Flags() | smb2.SMB2_FLAGS_SIGNED)
	p.SetSignature(zero[:])

	c.signer.Reset()
	c.signer.Write(pkt)

	p.SetSignature(c.signer.Sum(nil))
}

func (c *conn) verify(pkt []byte) bool {
	p := smb2.PacketCodec(pkt)

	signature := append([]byte{}, p.Signature()...)
	p.SetSignature(zero[:])

	c.signer.Reset()
	c.signer.Write(pkt)
	sum := c.signer.Sum(nil)[:16]

	p.SetSignature(signature)

	return hmac.Equal(signature, sum)
}

var zero [16]byte

// accept checks that pkt answers cmd and returns its body, or the server's
// status as a *ResponseError.
func accept(cmd uint16, pkt []byte) ([]byte, error) {
	p := smb2.PacketCodec(pkt)
	if command := p.Command(); cmd != command {
		return nil, &InvalidResponseError{fmt.Sprintf("expected command: %v, got %v", smb2.GetCommandName(cmd), smb2.GetCommandName(command))}
	}

	status := erref.NtStatus(p.Status())

	switch {
	case status == erref.STATUS_SUCCESS:
		return p.Data(), nil
	case status == erref.STATUS_MORE_PROCESSING_REQUIRED && cmd == smb2.SMB2_SESSION_SETUP:
		return p.Data(), nil
	}

	r := smb2.ErrorResponseDecoder(p.Data())
	if r.IsInvalid() {
		return nil, &ResponseError{Code: uint32(status)}
	}
	return nil, &ResponseError{Code: uint32(status), data: r.ErrorData()}
}
