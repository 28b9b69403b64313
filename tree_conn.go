package smbc

import (
	"context"
	"fmt"
	"sync/atomic"

	. "github.com/cloudsoda/smbc/internal/smb2"
	"github.com/cloudsoda/smbc/internal/utf16le"
)

type treeConn struct {
	*session
	treeId     uint32
	shareType  uint8
	shareFlags uint32
	path       string // \\server\share
	mapping    utf16le.MapChars

	handles      *handleTable
	disconnected atomic.Bool
}

func treeConnect(ctx context.Context, s *session, path string, mc utf16le.MapChars) (*treeConn, error) {
	req := &TreeConnectRequest{
		Path: path,
	}

	pkt, err := s.exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := accept(SMB2_TREE_CONNECT, pkt)
	if err != nil {
		return nil, err
	}

	r := TreeConnectResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken tree connect response format"}
	}

	tc := &treeConn{
		session:    s,
		treeId:     PacketCodec(pkt).TreeId(),
		shareType:  r.ShareType(),
		shareFlags: r.ShareFlags(),
		path:       path,
		mapping:    mc,
		handles:    newHandleTable(s.maxOpenHandles, s.metrics),
	}

	return tc, nil
}

func (tc *treeConn) disconnect(ctx context.Context) error {
	if !tc.disconnected.CompareAndSwap(false, true) {
		return nil
	}

	res, err := tc.exchangeTree(ctx, SMB2_TREE_DISCONNECT, new(TreeDisconnectRequest))
	if err != nil {
		return err
	}

	r := AckResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken tree disconnect response format"}
	}

	return nil
}

// sendRecv issues req on the share. It fails without any traffic once the
// share or its session is gone.
func (tc *treeConn) sendRecv(ctx context.Context, cmd uint16, req Packet) ([]byte, error) {
	if tc.disconnected.Load() {
		return nil, fmt.Errorf("share %s unmounted: %w", tc.path, ErrConnectionClosed)
	}
	return tc.exchangeTree(ctx, cmd, req)
}

func (tc *treeConn) exchangeTree(ctx context.Context, cmd uint16, req Packet) ([]byte, error) {
	if err := tc.checkEstablished(); err != nil {
		return nil, err
	}

	req.Header().TreeId = tc.treeId

	pkt, err := tc.exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	p := PacketCodec(pkt)
	if treeId := p.TreeId(); treeId != tc.treeId {
		return nil, tc.protocolError(&InvalidResponseError{fmt.Sprintf("expected tree id: %v, got %v", tc.treeId, treeId)})
	}
	if sessionId := p.SessionId(); sessionId != tc.sessionId {
		return nil, tc.protocolError(&InvalidResponseError{fmt.Sprintf("expected session id: %v, got %v", tc.sessionId, sessionId)})
	}

	return accept(cmd, pkt)
}

// closeHandle removes h from the table and closes it on the server. It
// reports whether h was still open.
func (tc *treeConn) closeHandle(ctx context.Context, h *handle) (bool, error) {
	if !tc.handles.remove(h.id) {
		return false, nil
	}

	req := &CloseRequest{
		FileId: h.fd,
	}

	res, err := tc.sendRecv(ctx, SMB2_CLOSE, req)
	if err != nil {
		return true, err
	}

	r := CloseResponseDecoder(res)
	if r.IsInvalid() {
		return true, &InvalidResponseError{"broken close response format"}
	}

	return true, nil
}

// closeAll drains the handle table, closes every handle best-effort and
// returns their paths.
func (tc *treeConn) closeAll(ctx context.Context) []string {
	hs := tc.handles.drain()
	if len(hs) == 0 {
		return nil
	}

	paths := make([]string, len(hs))
	for i, h := range hs {
		paths[i] = h.name

		_, err := tc.sendRecv(ctx, SMB2_CLOSE, &CloseRequest{FileId: h.fd})
		if err != nil {
			tc.logger.Warn("close of abandoned handle failed", "share", tc.path, "path", h.name, "error", err)
		}
	}
	return paths
}
