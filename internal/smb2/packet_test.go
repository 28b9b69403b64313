package smb2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudsoda/smbc/internal/utf16le"
)

func encode(p Packet) []byte {
	pkt := make([]byte, p.Size())
	p.Encode(pkt)
	return pkt
}

func TestHeaderRoundtrip(t *testing.T) {
	t.Parallel()

	req := &EchoRequest{}
	req.CreditCharge = 1
	req.CreditRequestResponse = 32
	req.MessageId = 7
	req.TreeId = 3
	req.SessionId = 0x1122334455667788

	p := PacketCodec(encode(req))
	require.False(t, p.IsInvalid())
	assert.Equal(t, uint16(SMB2_ECHO), p.Command())
	assert.Equal(t, uint16(1), p.CreditCharge())
	assert.Equal(t, uint16(32), p.CreditResponse())
	assert.Equal(t, uint64(7), p.MessageId())
	assert.Equal(t, uint32(3), p.TreeId())
	assert.Equal(t, uint64(0x1122334455667788), p.SessionId())
	assert.False(t, AckResponseDecoder(p.Data()).IsInvalid())

	p.SetFlags(p.Flags() | SMB2_FLAGS_SIGNED)
	p.SetSignature([]byte("0123456789abcdef"))
	assert.Equal(t, uint32(SMB2_FLAGS_SIGNED), p.Flags())
	assert.Equal(t, []byte("0123456789abcdef"), p.Signature())

	assert.True(t, PacketCodec(make([]byte, 10)).IsInvalid())
	assert.True(t, PacketCodec(make([]byte, HeaderSize)).IsInvalid())
}

func TestResponseStatus(t *testing.T) {
	t.Parallel()

	res := &ErrorResponse{}
	res.Flags = SMB2_FLAGS_SERVER_TO_REDIR
	res.Status = 0xC0000034
	pkt := make([]byte, res.Size())
	res.EncodeAs(pkt, SMB2_CREATE)

	p := PacketCodec(pkt)
	require.False(t, p.IsInvalid())
	assert.Equal(t, uint32(0xC0000034), p.Status())
	assert.Equal(t, uint16(SMB2_CREATE), p.Command())
	assert.False(t, ErrorResponseDecoder(p.Data()).IsInvalid())
}

func TestCreateRoundtrip(t *testing.T) {
	t.Parallel()

	req := &CreateRequest{
		DesiredAccess:     FILE_READ_DATA,
		CreateDisposition: FILE_OPEN_IF,
		CreateOptions:     FILE_NON_DIRECTORY_FILE,
		Name:              `dir\a:b.txt`,
		Mapping:           utf16le.MapCharsSFM,
	}
	d := CreateRequestDecoder(PacketCodec(encode(req)).Data())
	require.False(t, d.IsInvalid())
	assert.Equal(t, uint32(FILE_READ_DATA), d.DesiredAccess())
	assert.Equal(t, uint32(FILE_OPEN_IF), d.CreateDisposition())
	assert.Equal(t, uint32(FILE_NON_DIRECTORY_FILE), d.CreateOptions())
	assert.Equal(t, `dir\a:b.txt`, d.Name(utf16le.MapCharsSFM))

	root := CreateRequestDecoder(PacketCodec(encode(&CreateRequest{})).Data())
	require.False(t, root.IsInvalid())
	assert.Empty(t, root.Name(utf16le.MapCharsNone))

	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res := &CreateResponse{
		CreateAction:  FILE_CREATED,
		LastWriteTime: TimeToFiletime(mtime),
		EndofFile:     42,
		FileId:        FileId{Persistent: 1, Volatile: 2},
	}
	r := CreateResponseDecoder(PacketCodec(encode(res)).Data())
	require.False(t, r.IsInvalid())
	assert.Equal(t, uint32(FILE_CREATED), r.CreateAction())
	assert.Equal(t, int64(42), r.EndofFile())
	assert.Equal(t, FileId{Persistent: 1, Volatile: 2}, r.FileId())
	assert.True(t, mtime.Equal(r.LastWriteTime().Time()))
}

func TestReadWriteRoundtrip(t *testing.T) {
	t.Parallel()

	w := WriteRequestDecoder(PacketCodec(encode(&WriteRequest{
		Offset: 10,
		FileId: FileId{Volatile: 9},
		Data:   []byte("hello"),
	})).Data())
	require.False(t, w.IsInvalid())
	assert.Equal(t, uint64(10), w.Offset())
	assert.Equal(t, uint64(9), w.FileId().Volatile)
	assert.Equal(t, []byte("hello"), w.Data())

	r := ReadResponseDecoder(PacketCodec(encode(&ReadResponse{Data: []byte("world")})).Data())
	require.False(t, r.IsInvalid())
	assert.Equal(t, []byte("world"), r.Data())

	empty := ReadResponseDecoder(PacketCodec(encode(&ReadResponse{})).Data())
	require.False(t, empty.IsInvalid())
	assert.Empty(t, empty.Data())
}

func TestOutOfBoundsBuffer(t *testing.T) {
	t.Parallel()

	body := PacketCodec(encode(&OutputResponse{Command: SMB2_QUERY_INFO, Output: []byte{1, 2, 3}})).Data()
	require.False(t, OutputResponseDecoder(body).IsInvalid())

	le.PutUint32(body[4:8], 1000)
	assert.True(t, OutputResponseDecoder(body).IsInvalid())

	le.PutUint32(body[4:8], 3)
	le.PutUint16(body[2:4], 10)
	assert.True(t, OutputResponseDecoder(body).IsInvalid())
}

func TestDirectoryPage(t *testing.T) {
	t.Parallel()

	entries := []FileDirectoryInfo{
		{FileName: "."},
		{FileName: ".."},
		{FileName: "report.txt", EndOfFile: 1234},
		{FileName: "sub", FileAttributes: FILE_ATTRIBUTE_DIRECTORY},
	}

	buf, n := EncodeDirectoryPage(entries, 1<<16)
	require.Equal(t, len(entries), n)

	var names []string
	for {
		d := FileDirectoryInformationDecoder(buf)
		require.False(t, d.IsInvalid())
		names = append(names, d.FileName(utf16le.MapCharsNone))
		if d.FileName(utf16le.MapCharsNone) == "report.txt" {
			assert.Equal(t, int64(1234), d.EndOfFile())
		}
		next := d.NextEntryOffset()
		if next == 0 {
			break
		}
		assert.Zero(t, next%8)
		buf = buf[next:]
	}
	assert.Equal(t, []string{".", "..", "report.txt", "sub"}, names)

	// a small limit takes a prefix of the entries
	_, n = EncodeDirectoryPage(entries, 140)
	assert.Equal(t, 2, n)
}

func TestFileAllInformation(t *testing.T) {
	t.Parallel()

	info := &FileAllInfo{
		Basic:    FileBasicInfo{FileAttributes: FILE_ATTRIBUTE_ARCHIVE},
		Standard: FileStandardInfo{EndOfFile: 99, NumberOfLinks: 1},
		FileName: `\report.txt`,
	}
	buf := make([]byte, info.Size())
	info.Encode(buf)

	d := FileAllInformationDecoder(buf)
	require.False(t, d.IsInvalid())
	assert.Equal(t, uint32(FILE_ATTRIBUTE_ARCHIVE), d.BasicInformation().FileAttributes())
	assert.Equal(t, int64(99), d.StandardInformation().EndOfFile())
	assert.False(t, d.StandardInformation().Directory())
}

func TestFiletime(t *testing.T) {
	t.Parallel()

	assert.True(t, Filetime(0).Time().IsZero())
	assert.Zero(t, TimeToFiletime(time.Time{}))

	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, Filetime(filetimeEpochOffset), TimeToFiletime(epoch))
}

func TestNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "QUERY_DIRECTORY", GetCommandName(SMB2_QUERY_DIRECTORY))
	assert.Equal(t, "UNKNOWN_0x00FF", GetCommandName(0xFF))
	assert.Equal(t, "STATUS_NO_MORE_FILES", GetStatusName(0x80000006))
}
