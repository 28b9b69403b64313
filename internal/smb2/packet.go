// Package smb2 encodes and decodes the SMB2 messages exchanged by the
// client. Encoders are plain structs implementing Packet; decoders are byte
// slice types whose accessors read fields in place and whose IsInvalid
// method must be checked before any accessor is used.
//
// Response decoders and request encoders serve the client. The opposite
// directions exist so that the in-process test server can speak the same
// dialect.
package smb2

import (
	"encoding/binary"
	"time"
)

var le = binary.LittleEndian

const HeaderSize = 64

type Encoder interface {
	Size() int
	Encode(p []byte)
}

type Packet interface {
	Encoder
	Header() *PacketHeader
}

type PacketHeader struct {
	CreditCharge          uint16
	ChannelSequence       uint16
	Status                uint32
	CreditRequestResponse uint16
	Flags                 uint32
	MessageId             uint64
	AsyncId               uint64
	TreeId                uint32
	SessionId             uint64
}

func (hdr *PacketHeader) Header() *PacketHeader {
	return hdr
}

func (hdr *PacketHeader) encode(p []byte, cmd uint16) {
	//   0-4: ProtocolId
	//   4-6: StructureSize
	//   6-8: CreditCharge
	//  8-12: (ChannelSequence, Reserved) or Status
	// 12-14: Command
	// 14-16: CreditRequest/CreditResponse
	// 16-20: Flags
	// 20-24: NextCommand
	// 24-32: MessageId
	// 32-40: (Reserved, TreeId) or AsyncId
	// 40-48: SessionId
	// 48-64: Signature
	copy(p[:4], MAGIC)
	le.PutUint16(p[4:6], HeaderSize)
	le.PutUint16(p[6:8], hdr.CreditCharge)
	if hdr.Flags&SMB2_FLAGS_SERVER_TO_REDIR != 0 {
		le.PutUint32(p[8:12], hdr.Status)
	} else {
		le.PutUint16(p[8:10], hdr.ChannelSequence)
	}
	le.PutUint16(p[12:14], cmd)
	le.PutUint16(p[14:16], hdr.CreditRequestResponse)
	le.PutUint32(p[16:20], hdr.Flags)
	le.PutUint64(p[24:32], hdr.MessageId)
	if hdr.Flags&SMB2_FLAGS_ASYNC_COMMAND != 0 {
		le.PutUint64(p[32:40], hdr.AsyncId)
	} else {
		le.PutUint32(p[36:40], hdr.TreeId)
	}
	le.PutUint64(p[40:48], hdr.SessionId)
}

// PacketCodec reads and patches the header of an encoded message.
type PacketCodec []byte

func (p PacketCodec) IsInvalid() bool {
	if len(p) < HeaderSize {
		return true
	}
	if string(p[:4]) != MAGIC {
		return true
	}
	return le.Uint16(p[4:6]) != HeaderSize
}

func (p PacketCodec) CreditCharge() uint16 {
	return le.Uint16(p[6:8])
}

func (p PacketCodec) Status() uint32 {
	return le.Uint32(p[8:12])
}

func (p PacketCodec) Command() uint16 {
	return le.Uint16(p[12:14])
}

func (p PacketCodec) CreditResponse() uint16 {
	return le.Uint16(p[14:16])
}

func (p PacketCodec) Flags() uint32 {
	return le.Uint32(p[16:20])
}

func (p PacketCodec) SetFlags(flags uint32) {
	le.PutUint32(p[16:20], flags)
}

func (p PacketCodec) NextCommand() uint32 {
	return le.Uint32(p[20:24])
}

func (p PacketCodec) MessageId() uint64 {
	return le.Uint64(p[24:32])
}

func (p PacketCodec) AsyncId() uint64 {
	return le.Uint64(p[32:40])
}

func (p PacketCodec) TreeId() uint32 {
	return le.Uint32(p[36:40])
}

func (p PacketCodec) SessionId() uint64 {
	return le.Uint64(p[40:48])
}

func (p PacketCodec) Signature() []byte {
	return p[48:64]
}

func (p PacketCodec) SetSignature(bs []byte) {
	copy(p[48:64], bs)
}

func (p PacketCodec) Data() []byte {
	return p[HeaderSize:]
}

// FileId identifies an open on the server.
type FileId struct {
	Persistent uint64
	Volatile   uint64
}

func (fd FileId) Size() int {
	return 16
}

func (fd FileId) Encode(p []byte) {
	le.PutUint64(p[:8], fd.Persistent)
	le.PutUint64(p[8:16], fd.Volatile)
}

func DecodeFileId(p []byte) FileId {
	return FileId{
		Persistent: le.Uint64(p[:8]),
		Volatile:   le.Uint64(p[8:16]),
	}
}

// Filetime counts 100ns intervals since 1601-01-01 UTC.
type Filetime uint64

const filetimeEpochOffset = 116444736000000000

func NsecToFiletime(nsec int64) Filetime {
	return Filetime(nsec/100 + filetimeEpochOffset)
}

func TimeToFiletime(t time.Time) Filetime {
	if t.IsZero() {
		return 0
	}
	return NsecToFiletime(t.UnixNano())
}

func (ft Filetime) Nanoseconds() int64 {
	return (int64(ft) - filetimeEpochOffset) * 100
}

func (ft Filetime) Time() time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, ft.Nanoseconds())
}

// Align rounds n up to a multiple of align, which must be a power of two.
func Align(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// bufferAt returns the variable part of a message body, given the offset
// and length fields which are relative to the start of the header.
func bufferAt(body []byte, off, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	if off < HeaderSize {
		return nil, false
	}
	start := uint64(off) - HeaderSize
	end := start + uint64(length)
	if end > uint64(len(body)) {
		return nil, false
	}
	return body[start:end], true
}
