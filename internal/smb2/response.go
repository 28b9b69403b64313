package smb2

type ErrorResponse struct {
	PacketHeader

	ErrorData []byte
}

func (c *ErrorResponse) Size() int {
	return HeaderSize + 8 + max(len(c.ErrorData), 1)
}

// EncodeAs writes the error response for the failed command cmd.
func (c *ErrorResponse) EncodeAs(pkt []byte, cmd uint16) {
	c.encode(pkt, cmd)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 9) // StructureSize
	le.PutUint32(res[4:8], uint32(len(c.ErrorData)))
	copy(res[8:], c.ErrorData)
}

type NegotiateResponse struct {
	PacketHeader

	SecurityMode    uint16
	DialectRevision uint16
	ServerGuid      [16]byte
	Capabilities    uint32
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SystemTime      Filetime
	ServerStartTime Filetime
	SecurityBuffer  []byte
}

func (c *NegotiateResponse) Size() int {
	return HeaderSize + 64 + len(c.SecurityBuffer)
}

func (c *NegotiateResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_NEGOTIATE)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 65) // StructureSize
	le.PutUint16(res[2:4], c.SecurityMode)
	le.PutUint16(res[4:6], c.DialectRevision)
	copy(res[8:24], c.ServerGuid[:])
	le.PutUint32(res[24:28], c.Capabilities)
	le.PutUint32(res[28:32], c.MaxTransactSize)
	le.PutUint32(res[32:36], c.MaxReadSize)
	le.PutUint32(res[36:40], c.MaxWriteSize)
	le.PutUint64(res[40:48], uint64(c.SystemTime))
	le.PutUint64(res[48:56], uint64(c.ServerStartTime))

	off := 64
	copy(res[off:], c.SecurityBuffer)
	le.PutUint16(res[56:58], uint16(off+HeaderSize))
	le.PutUint16(res[58:60], uint16(len(c.SecurityBuffer)))
}

type SessionSetupResponse struct {
	PacketHeader

	SessionFlags   uint16
	SecurityBuffer []byte
}

func (c *SessionSetupResponse) Size() int {
	return HeaderSize + 8 + len(c.SecurityBuffer)
}

func (c *SessionSetupResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_SESSION_SETUP)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 9) // StructureSize
	le.PutUint16(res[2:4], c.SessionFlags)

	off := 8
	copy(res[off:], c.SecurityBuffer)
	le.PutUint16(res[4:6], uint16(off+HeaderSize))
	le.PutUint16(res[6:8], uint16(len(c.SecurityBuffer)))
}

// AckResponse is the four byte body shared by LOGOFF, TREE_DISCONNECT,
// FLUSH and ECHO responses.
type AckResponse struct {
	PacketHeader

	Command uint16
}

func (c *AckResponse) Size() int {
	return HeaderSize + 4
}

func (c *AckResponse) Encode(pkt []byte) {
	c.encode(pkt, c.Command)
	le.PutUint16(pkt[HeaderSize:HeaderSize+2], 4)
}

type TreeConnectResponse struct {
	PacketHeader

	ShareType     uint8
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess uint32
}

func (c *TreeConnectResponse) Size() int {
	return HeaderSize + 16
}

func (c *TreeConnectResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_TREE_CONNECT)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 16) // StructureSize
	res[2] = c.ShareType
	le.PutUint32(res[4:8], c.ShareFlags)
	le.PutUint32(res[8:12], c.Capabilities)
	le.PutUint32(res[12:16], c.MaximalAccess)
}

type CreateResponse struct {
	PacketHeader

	OplockLevel    uint8
	Flags          uint8
	CreateAction   uint32
	CreationTime   Filetime
	LastAccessTime Filetime
	LastWriteTime  Filetime
	ChangeTime     Filetime
	AllocationSize int64
	EndofFile      int64
	FileAttributes uint32
	FileId         FileId
}

func (c *CreateResponse) Size() int {
	return HeaderSize + 88
}

func (c *CreateResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_CREATE)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 89) // StructureSize
	res[2] = c.OplockLevel
	res[3] = c.Flags
	le.PutUint32(res[4:8], c.CreateAction)
	le.PutUint64(res[8:16], uint64(c.CreationTime))
	le.PutUint64(res[16:24], uint64(c.LastAccessTime))
	le.PutUint64(res[24:32], uint64(c.LastWriteTime))
	le.PutUint64(res[32:40], uint64(c.ChangeTime))
	le.PutUint64(res[40:48], uint64(c.AllocationSize))
	le.PutUint64(res[48:56], uint64(c.EndofFile))
	le.PutUint32(res[56:60], c.FileAttributes)
	c.FileId.Encode(res[64:80])
}

type CloseResponse struct {
	PacketHeader

	Flags          uint16
	CreationTime   Filetime
	LastAccessTime Filetime
	LastWriteTime  Filetime
	ChangeTime     Filetime
	AllocationSize int64
	EndofFile      int64
	FileAttributes uint32
}

func (c *CloseResponse) Size() int {
	return HeaderSize + 60
}

func (c *CloseResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_CLOSE)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 60) // StructureSize
	le.PutUint16(res[2:4], c.Flags)
	le.PutUint64(res[8:16], uint64(c.CreationTime))
	le.PutUint64(res[16:24], uint64(c.LastAccessTime))
	le.PutUint64(res[24:32], uint64(c.LastWriteTime))
	le.PutUint64(res[32:40], uint64(c.ChangeTime))
	le.PutUint64(res[40:48], uint64(c.AllocationSize))
	le.PutUint64(res[48:56], uint64(c.EndofFile))
	le.PutUint32(res[56:60], c.FileAttributes)
}

type ReadResponse struct {
	PacketHeader

	Data []byte
}

func (c *ReadResponse) Size() int {
	return HeaderSize + 16 + max(len(c.Data), 1)
}

func (c *ReadResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_READ)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 17) // StructureSize

	off := 16
	res[2] = uint8(off + HeaderSize)
	le.PutUint32(res[4:8], uint32(len(c.Data)))
	copy(res[off:], c.Data)
}

type WriteResponse struct {
	PacketHeader

	Count uint32
}

func (c *WriteResponse) Size() int {
	return HeaderSize + 16
}

func (c *WriteResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_WRITE)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 17) // StructureSize
	le.PutUint32(res[4:8], c.Count)
}

// OutputResponse is the shared layout of QUERY_DIRECTORY and QUERY_INFO
// responses.
type OutputResponse struct {
	PacketHeader

	Command uint16
	Output  []byte
}

func (c *OutputResponse) Size() int {
	return HeaderSize + 8 + max(len(c.Output), 1)
}

func (c *OutputResponse) Encode(pkt []byte) {
	c.encode(pkt, c.Command)

	res := pkt[HeaderSize:]
	le.PutUint16(res[:2], 9) // StructureSize

	off := 8
	copy(res[off:], c.Output)
	le.PutUint16(res[2:4], uint16(off+HeaderSize))
	le.PutUint32(res[4:8], uint32(len(c.Output)))
}

type SetInfoResponse struct {
	PacketHeader
}

func (c *SetInfoResponse) Size() int {
	return HeaderSize + 2
}

func (c *SetInfoResponse) Encode(pkt []byte) {
	c.encode(pkt, SMB2_SET_INFO)
	le.PutUint16(pkt[HeaderSize:HeaderSize+2], 2)
}

// Response decoders operate on the message body, after the header.

type ErrorResponseDecoder []byte

func (r ErrorResponseDecoder) IsInvalid() bool {
	if len(r) < 8 || le.Uint16(r[:2]) != 9 {
		return true
	}
	return len(r) < 8+int(r.ByteCount())
}

func (r ErrorResponseDecoder) ErrorContextCount() uint8 {
	return r[2]
}

func (r ErrorResponseDecoder) ByteCount() uint32 {
	return le.Uint32(r[4:8])
}

func (r ErrorResponseDecoder) ErrorData() []byte {
	return r[8 : 8+r.ByteCount()]
}

type NegotiateResponseDecoder []byte

func (r NegotiateResponseDecoder) IsInvalid() bool {
	if len(r) < 64 || le.Uint16(r[:2]) != 65 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[56:58])), uint32(le.Uint16(r[58:60])))
	return !ok
}

func (r NegotiateResponseDecoder) SecurityMode() uint16 {
	return le.Uint16(r[2:4])
}

func (r NegotiateResponseDecoder) DialectRevision() uint16 {
	return le.Uint16(r[4:6])
}

func (r NegotiateResponseDecoder) ServerGuid() []byte {
	return r[8:24]
}

func (r NegotiateResponseDecoder) Capabilities() uint32 {
	return le.Uint32(r[24:28])
}

func (r NegotiateResponseDecoder) MaxTransactSize() uint32 {
	return le.Uint32(r[28:32])
}

func (r NegotiateResponseDecoder) MaxReadSize() uint32 {
	return le.Uint32(r[32:36])
}

func (r NegotiateResponseDecoder) MaxWriteSize() uint32 {
	return le.Uint32(r[36:40])
}

func (r NegotiateResponseDecoder) SystemTime() Filetime {
	return Filetime(le.Uint64(r[40:48]))
}

func (r NegotiateResponseDecoder) SecurityBuffer() []byte {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[56:58])), uint32(le.Uint16(r[58:60])))
	return bs
}

type SessionSetupResponseDecoder []byte

func (r SessionSetupResponseDecoder) IsInvalid() bool {
	if len(r) < 8 || le.Uint16(r[:2]) != 9 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[4:6])), uint32(le.Uint16(r[6:8])))
	return !ok
}

func (r SessionSetupResponseDecoder) SessionFlags() uint16 {
	return le.Uint16(r[2:4])
}

func (r SessionSetupResponseDecoder) SecurityBuffer() []byte {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[4:6])), uint32(le.Uint16(r[6:8])))
	return bs
}

// AckResponseDecoder validates the bodies described by AckResponse.
type AckResponseDecoder []byte

func (r AckResponseDecoder) IsInvalid() bool {
	return len(r) < 4 || le.Uint16(r[:2]) != 4
}

type TreeConnectResponseDecoder []byte

func (r TreeConnectResponseDecoder) IsInvalid() bool {
	return len(r) < 16 || le.Uint16(r[:2]) != 16
}

func (r TreeConnectResponseDecoder) ShareType() uint8 {
	return r[2]
}

func (r TreeConnectResponseDecoder) ShareFlags() uint32 {
	return le.Uint32(r[4:8])
}

func (r TreeConnectResponseDecoder) Capabilities() uint32 {
	return le.Uint32(r[8:12])
}

func (r TreeConnectResponseDecoder) MaximalAccess() uint32 {
	return le.Uint32(r[12:16])
}

type CreateResponseDecoder []byte

func (r CreateResponseDecoder) IsInvalid() bool {
	return len(r) < 88 || le.Uint16(r[:2]) != 89
}

func (r CreateResponseDecoder) OplockLevel() uint8 {
	return r[2]
}

func (r CreateResponseDecoder) CreateAction() uint32 {
	return le.Uint32(r[4:8])
}

func (r CreateResponseDecoder) CreationTime() Filetime {
	return Filetime(le.Uint64(r[8:16]))
}

func (r CreateResponseDecoder) LastAccessTime() Filetime {
	return Filetime(le.Uint64(r[16:24]))
}

func (r CreateResponseDecoder) LastWriteTime() Filetime {
	return Filetime(le.Uint64(r[24:32]))
}

func (r CreateResponseDecoder) ChangeTime() Filetime {
	return Filetime(le.Uint64(r[32:40]))
}

func (r CreateResponseDecoder) AllocationSize() int64 {
	return int64(le.Uint64(r[40:48]))
}

func (r CreateResponseDecoder) EndofFile() int64 {
	return int64(le.Uint64(r[48:56]))
}

func (r CreateResponseDecoder) FileAttributes() uint32 {
	return le.Uint32(r[56:60])
}

func (r CreateResponseDecoder) FileId() FileId {
	return DecodeFileId(r[64:80])
}

type CloseResponseDecoder []byte

func (r CloseResponseDecoder) IsInvalid() bool {
	return len(r) < 60 || le.Uint16(r[:2]) != 60
}

func (r CloseResponseDecoder) EndofFile() int64 {
	return int64(le.Uint64(r[48:56]))
}

type ReadResponseDecoder []byte

func (r ReadResponseDecoder) IsInvalid() bool {
	if len(r) < 16 || le.Uint16(r[:2]) != 17 {
		return true
	}
	_, ok := bufferAt(r, uint32(r[2]), le.Uint32(r[4:8]))
	return !ok
}

func (r ReadResponseDecoder) DataRemaining() uint32 {
	return le.Uint32(r[8:12])
}

func (r ReadResponseDecoder) Data() []byte {
	bs, _ := bufferAt(r, uint32(r[2]), le.Uint32(r[4:8]))
	return bs
}

type WriteResponseDecoder []byte

func (r WriteResponseDecoder) IsInvalid() bool {
	return len(r) < 16 || le.Uint16(r[:2]) != 17
}

func (r WriteResponseDecoder) Count() uint32 {
	return le.Uint32(r[4:8])
}

// OutputResponseDecoder reads QUERY_DIRECTORY and QUERY_INFO responses.
type OutputResponseDecoder []byte

func (r OutputResponseDecoder) IsInvalid() bool {
	if len(r) < 8 || le.Uint16(r[:2]) != 9 {
		return true
	}
	_, ok := bufferAt(r, uint32(le.Uint16(r[2:4])), le.Uint32(r[4:8]))
	return !ok
}

func (r OutputResponseDecoder) OutputBuffer() []byte {
	bs, _ := bufferAt(r, uint32(le.Uint16(r[2:4])), le.Uint32(r[4:8]))
	return bs
}

type SetInfoResponseDecoder []byte

func (r SetInfoResponseDecoder) IsInvalid() bool {
	return len(r) < 2 || le.Uint16(r[:2]) != 2
}
