package smb2

import (
	"github.com/cloudsoda/smbc/internal/utf16le"
)

type NegotiateRequest struct {
	PacketHeader

	SecurityMode uint16
	Capabilities uint32
	ClientGuid   [16]byte
	Dialects     []uint16
}

func (c *NegotiateRequest) Size() int {
	return HeaderSize + 36 + len(c.Dialects)*2
}

func (c *NegotiateRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_NEGOTIATE)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 36) // StructureSize
	le.PutUint16(req[2:4], uint16(len(c.Dialects)))
	le.PutUint16(req[4:6], c.SecurityMode)
	le.PutUint32(req[8:12], c.Capabilities)
	copy(req[12:28], c.ClientGuid[:])
	// 28-36: ClientStartTime, zero before 3.1.1

	off := 36
	for _, d := range c.Dialects {
		le.PutUint16(req[off:off+2], d)
		off += 2
	}
}

type SessionSetupRequest struct {
	PacketHeader

	Flags             uint8
	SecurityMode      uint8
	Capabilities      uint32
	Channel           uint32
	SecurityBuffer    []byte
	PreviousSessionId uint64
}

func (c *SessionSetupRequest) Size() int {
	return HeaderSize + 24 + len(c.SecurityBuffer)
}

func (c *SessionSetupRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_SESSION_SETUP)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 25) // StructureSize
	req[2] = c.Flags
	req[3] = c.SecurityMode
	le.PutUint32(req[4:8], c.Capabilities)
	le.PutUint32(req[8:12], c.Channel)
	le.PutUint64(req[16:24], c.PreviousSessionId)

	off := 24
	copy(req[off:], c.SecurityBuffer)
	le.PutUint16(req[12:14], uint16(off+HeaderSize))
	le.PutUint16(req[14:16], uint16(len(c.SecurityBuffer)))
}

type LogoffRequest struct {
	PacketHeader
}

func (c *LogoffRequest) Size() int {
	return HeaderSize + 4
}

func (c *LogoffRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_LOGOFF)
	le.PutUint16(pkt[HeaderSize:HeaderSize+2], 4)
}

type TreeConnectRequest struct {
	PacketHeader

	Flags uint16
	Path  string
}

func (c *TreeConnectRequest) Size() int {
	return HeaderSize + 8 + utf16le.EncodedLen(c.Path)
}

func (c *TreeConnectRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_TREE_CONNECT)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 9) // StructureSize
	le.PutUint16(req[2:4], c.Flags)

	off := 8
	n := utf16le.EncodeTo(req[off:], c.Path, utf16le.MapCharsNone)
	le.PutUint16(req[4:6], uint16(off+HeaderSize))
	le.PutUint16(req[6:8], uint16(n))
}

type TreeDisconnectRequest struct {
	PacketHeader
}

func (c *TreeDisconnectRequest) Size() int {
	return HeaderSize + 4
}

func (c *TreeDisconnectRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_TREE_DISCONNECT)
	le.PutUint16(pkt[HeaderSize:HeaderSize+2], 4)
}

type CreateRequest struct {
	PacketHeader

	SecurityFlags        uint8
	RequestedOplockLevel uint8
	ImpersonationLevel   uint32
	SmbCreateFlags       uint64
	DesiredAccess        uint32
	FileAttributes       uint32
	ShareAccess          uint32
	CreateDisposition    uint32
	CreateOptions        uint32
	Name                 string
	Mapping              utf16le.MapChars
}

func (c *CreateRequest) Size() int {
	// the buffer holds at least one byte even for the share root
	return HeaderSize + 56 + max(utf16le.EncodedLen(c.Name), 1)
}

func (c *CreateRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_CREATE)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 57) // StructureSize
	req[2] = c.SecurityFlags
	req[3] = c.RequestedOplockLevel
	le.PutUint32(req[4:8], c.ImpersonationLevel)
	le.PutUint64(req[8:16], c.SmbCreateFlags)
	le.PutUint32(req[24:28], c.DesiredAccess)
	le.PutUint32(req[28:32], c.FileAttributes)
	le.PutUint32(req[32:36], c.ShareAccess)
	le.PutUint32(req[36:40], c.CreateDisposition)
	le.PutUint32(req[40:44], c.CreateOptions)

	off := 56
	n := utf16le.EncodeTo(req[off:], c.Name, c.Mapping)
	le.PutUint16(req[44:46], uint16(off+HeaderSize))
	le.PutUint16(req[46:48], uint16(n))
	// 48-56: no create contexts
}

type CloseRequest struct {
	PacketHeader

	Flags  uint16
	FileId FileId
}

func (c *CloseRequest) Size() int {
	return HeaderSize + 24
}

func (c *CloseRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_CLOSE)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 24) // StructureSize
	le.PutUint16(req[2:4], c.Flags)
	c.FileId.Encode(req[8:24])
}

type FlushRequest struct {
	PacketHeader

	FileId FileId
}

func (c *FlushRequest) Size() int {
	return HeaderSize + 24
}

func (c *FlushRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_FLUSH)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 24) // StructureSize
	c.FileId.Encode(req[8:24])
}

type ReadRequest struct {
	PacketHeader

	Padding        uint8
	Flags          uint8
	Length         uint32
	Offset         uint64
	FileId         FileId
	MinimumCount   uint32
	Channel        uint32
	RemainingBytes uint32
}

func (c *ReadRequest) Size() int {
	return HeaderSize + 49
}

func (c *ReadRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_READ)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 49) // StructureSize
	req[2] = c.Padding
	req[3] = c.Flags
	le.PutUint32(req[4:8], c.Length)
	le.PutUint64(req[8:16], c.Offset)
	c.FileId.Encode(req[16:32])
	le.PutUint32(req[32:36], c.MinimumCount)
	le.PutUint32(req[36:40], c.Channel)
	le.PutUint32(req[40:44], c.RemainingBytes)
	// 44-48: no read channel info, 48: one byte buffer
}

type WriteRequest struct {
	PacketHeader

	Offset         uint64
	FileId         FileId
	Channel        uint32
	RemainingBytes uint32
	Flags          uint32
	Data           []byte
}

func (c *WriteRequest) Size() int {
	return HeaderSize + 48 + len(c.Data)
}

func (c *WriteRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_WRITE)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 49) // StructureSize
	le.PutUint32(req[4:8], uint32(len(c.Data)))
	le.PutUint64(req[8:16], c.Offset)
	c.FileId.Encode(req[16:32])
	le.PutUint32(req[32:36], c.Channel)
	le.PutUint32(req[36:40], c.RemainingBytes)
	le.PutUint32(req[44:48], c.Flags)

	off := 48
	copy(req[off:], c.Data)
	le.PutUint16(req[2:4], uint16(off+HeaderSize))
}

type EchoRequest struct {
	PacketHeader
}

func (c *EchoRequest) Size() int {
	return HeaderSize + 4
}

func (c *EchoRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_ECHO)
	le.PutUint16(pkt[HeaderSize:HeaderSize+2], 4)
}

type QueryDirectoryRequest struct {
	PacketHeader

	FileInfoClass      uint8
	Flags              uint8
	FileIndex          uint32
	FileId             FileId
	OutputBufferLength uint32
	FileName           string
	Mapping            utf16le.MapChars
}

func (c *QueryDirectoryRequest) Size() int {
	return HeaderSize + 32 + max(utf16le.EncodedLen(c.FileName), 1)
}

func (c *QueryDirectoryRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_QUERY_DIRECTORY)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 33) // StructureSize
	req[2] = c.FileInfoClass
	req[3] = c.Flags
	le.PutUint32(req[4:8], c.FileIndex)
	c.FileId.Encode(req[8:24])
	le.PutUint32(req[28:32], c.OutputBufferLength)

	off := 32
	n := utf16le.EncodeTo(req[off:], c.FileName, c.Mapping)
	le.PutUint16(req[24:26], uint16(off+HeaderSize))
	le.PutUint16(req[26:28], uint16(n))
}

type QueryInfoRequest struct {
	PacketHeader

	InfoType              uint8
	FileInfoClass         uint8
	OutputBufferLength    uint32
	AdditionalInformation uint32
	Flags                 uint32
	FileId                FileId
	Input                 Encoder
}

func (c *QueryInfoRequest) Size() int {
	if c.Input == nil {
		return HeaderSize + 41
	}
	return HeaderSize + 40 + c.Input.Size()
}

func (c *QueryInfoRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_QUERY_INFO)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 41) // StructureSize
	req[2] = c.InfoType
	req[3] = c.FileInfoClass
	le.PutUint32(req[4:8], c.OutputBufferLength)
	le.PutUint32(req[16:20], c.AdditionalInformation)
	le.PutUint32(req[20:24], c.Flags)
	c.FileId.Encode(req[24:40])

	if c.Input != nil {
		off := 40
		c.Input.Encode(req[off:])
		le.PutUint16(req[8:10], uint16(off+HeaderSize))
		le.PutUint32(req[12:16], uint32(c.Input.Size()))
	}
}

type SetInfoRequest struct {
	PacketHeader

	InfoType              uint8
	FileInfoClass         uint8
	AdditionalInformation uint32
	FileId                FileId
	Input                 Encoder
}

func (c *SetInfoRequest) Size() int {
	if c.Input == nil {
		return HeaderSize + 33
	}
	return HeaderSize + 32 + c.Input.Size()
}

func (c *SetInfoRequest) Encode(pkt []byte) {
	c.encode(pkt, SMB2_SET_INFO)

	req := pkt[HeaderSize:]
	le.PutUint16(req[:2], 33) // StructureSize
	req[2] = c.InfoType
	req[3] = c.FileInfoClass
	le.PutUint32(req[12:16], c.AdditionalInformation)
	c.FileId.Encode(req[16:32])

	off := 32
	le.PutUint16(req[8:10], uint16(off+HeaderSize))
	if c.Input != nil {
		c.Input.Encode(req[off:])
		le.PutUint32(req[4:8], uint32(c.Input.Size()))
	}
}

// Request decoders operate on the message body, after the header.

type NegotiateRequestDecoder []byte

func (r NegotiateRequestDecoder) IsInvalid() bool {
	if len(r) < 36 || le.Uint16(r[:2]) != 36 {
		return true
	}
	return len(r) < 36+int(r.DialectCount())*2
}

func (r NegotiateRequestDecoder) DialectCount() uint16 {
	return le.Uint16(r[2:4])
}

func (r NegotiateRequestDecoder) SecurityMode() uint16 {
	return le.Uint16(r[4:6])
}

func (r NegotiateRequestDecoder) Capabilities() uint32 {
	return le.Uint32(r[8:12])
}

func (r NegotiateRequestDecoder) ClientGuid() []byte {
	return r[12:28]
}

func (r NegotiateRequestDecoder) Dialects() []uint16 {
	ds := make([]uint16, r.DialectCount())
	for i := range ds {
		ds[i] = le.Uint16(r[36+2*i:])
	}
	return ds
}

type SessionSetupRequestDecoder []byte

func (r SessionSetupRequestDecoder) IsInvalid() bool {
	if len(r) < 24 || le.Uint16(r[:2]) != 25 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[12:14])), uint32(le.Uint16(r[14:16])))
	return !ok
}

func (r SessionSetupRequestDecoder) SecurityMode() uint8 {
	return r[3]
}

func (r SessionSetupRequestDecoder) SecurityBuffer() []byte {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[12:14])), uint32(le.Uint16(r[14:16])))
	return bs
}

type TreeConnectRequestDecoder []byte

func (r TreeConnectRequestDecoder) IsInvalid() bool {
	if len(r) < 8 || le.Uint16(r[:2]) != 9 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[4:6])), uint32(le.Uint16(r[6:8])))
	return !ok
}

func (r TreeConnectRequestDecoder) Path() string {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[4:6])), uint32(le.Uint16(r[6:8])))
	return utf16le.Decode(bs, utf16le.MapCharsNone)
}

type CreateRequestDecoder []byte

func (r CreateRequestDecoder) IsInvalid() bool {
	if len(r) < 56 || le.Uint16(r[:2]) != 57 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[44:46])), uint32(le.Uint16(r[46:48])))
	return !ok
}

func (r CreateRequestDecoder) DesiredAccess() uint32 {
	return le.Uint32(r[24:28])
}

func (r CreateRequestDecoder) FileAttributes() uint32 {
	return le.Uint32(r[28:32])
}

func (r CreateRequestDecoder) ShareAccess() uint32 {
	return le.Uint32(r[32:36])
}

func (r CreateRequestDecoder) CreateDisposition() uint32 {
	return le.Uint32(r[36:40])
}

func (r CreateRequestDecoder) CreateOptions() uint32 {
	return le.Uint32(r[40:44])
}

func (r CreateRequestDecoder) Name(mc utf16le.MapChars) string {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[44:46])), uint32(le.Uint16(r[46:48])))
	return utf16le.Decode(bs, mc)
}

// FileIdRequestDecoder reads the FileId of CLOSE and FLUSH requests, which
// share the same 24 byte layout.
type FileIdRequestDecoder []byte

func (r FileIdRequestDecoder) IsInvalid() bool {
	return len(r) < 24 || le.Uint16(r[:2]) != 24
}

func (r FileIdRequestDecoder) Flags() uint16 {
	return le.Uint16(r[2:4])
}

func (r FileIdRequestDecoder) FileId() FileId {
	return DecodeFileId(r[8:24])
}

type ReadRequestDecoder []byte

func (r ReadRequestDecoder) IsInvalid() bool {
	return len(r) < 48 || le.Uint16(r[:2]) != 49
}

func (r ReadRequestDecoder) Length() uint32 {
	return le.Uint32(r[4:8])
}

func (r ReadRequestDecoder) Offset() uint64 {
	return le.Uint64(r[8:16])
}

func (r ReadRequestDecoder) FileId() FileId {
	return DecodeFileId(r[16:32])
}

func (r ReadRequestDecoder) MinimumCount() uint32 {
	return le.Uint32(r[32:36])
}

type WriteRequestDecoder []byte

func (r WriteRequestDecoder) IsInvalid() bool {
	if len(r) < 48 || le.Uint16(r[:2]) != 49 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[2:4])), le.Uint32(r[4:8]))
	return !ok
}

func (r WriteRequestDecoder) Offset() uint64 {
	return le.Uint64(r[8:16])
}

func (r WriteRequestDecoder) FileId() FileId {
	return DecodeFileId(r[16:32])
}

func (r WriteRequestDecoder) Data() []byte {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[2:4])), le.Uint32(r[4:8]))
	return bs
}

type QueryDirectoryRequestDecoder []byte

func (r QueryDirectoryRequestDecoder) IsInvalid() bool {
	if len(r) < 32 || le.Uint16(r[:2]) != 33 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[24:26])), uint32(le.Uint16(r[26:28])))
	return !ok
}

func (r QueryDirectoryRequestDecoder) FileInfoClass() uint8 {
	return r[2]
}

func (r QueryDirectoryRequestDecoder) Flags() uint8 {
	return r[3]
}

func (r QueryDirectoryRequestDecoder) FileId() FileId {
	return DecodeFileId(r[8:24])
}

func (r QueryDirectoryRequestDecoder) OutputBufferLength() uint32 {
	return le.Uint32(r[28:32])
}

func (r QueryDirectoryRequestDecoder) FileName(mc utf16le.MapChars) string {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[24:26])), uint32(le.Uint16(r[26:28])))
	return utf16le.Decode(bs, mc)
}

type QueryInfoRequestDecoder []byte

func (r QueryInfoRequestDecoder) IsInvalid() bool {
	return len(r) < 40 || le.Uint16(r[:2]) != 41
}

func (r QueryInfoRequestDecoder) InfoType() uint8 {
	return r[2]
}

func (r QueryInfoRequestDecoder) FileInfoClass() uint8 {
	return r[3]
}

func (r QueryInfoRequestDecoder) OutputBufferLength() uint32 {
	return le.Uint32(r[4:8])
}

func (r QueryInfoRequestDecoder) AdditionalInformation() uint32 {
	return le.Uint32(r[16:20])
}

func (r QueryInfoRequestDecoder) FileId() FileId {
	return DecodeFileId(r[24:40])
}

type SetInfoRequestDecoder []byte

func (r SetInfoRequestDecoder) IsInvalid() bool {
	if len(r) < 32 || le.Uint16(r[:2]) != 33 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[8:10])), le.Uint32(r[4:8]))
	return !ok
}

func (r SetInfoRequestDecoder) InfoType() uint8 {
	return r[2]
}

func (r SetInfoRequestDecoder) FileInfoClass() uint8 {
	return r[3]
}

func (r SetInfoRequestDecoder) FileId() FileId {
	return DecodeFileId(r[16:32])
}

func (r SetInfoRequestDecoder) Buffer() []byte {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[8:10])), le.Uint32(r[4:8]))
	return bs
}
