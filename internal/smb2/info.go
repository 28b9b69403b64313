package smb2

import (
	"github.com/cloudsoda/smbc/internal/utf16le"
)

// FileDirectoryInfo is one entry of a QUERY_DIRECTORY response
// for the FileDirectoryInformation class.
type FileDirectoryInfo struct {
	FileIndex      uint32
	CreationTime   Filetime
	LastAccessTime Filetime
	LastWriteTime  Filetime
	ChangeTime     Filetime
	EndOfFile      int64
	AllocationSize int64
	FileAttributes uint32
	FileName       string
	Mapping        utf16le.MapChars
}

func (c *FileDirectoryInfo) Size() int {
	return 64 + utf16le.EncodedLen(c.FileName)
}

// Encode writes the entry with a zero NextEntryOffset; EncodeDirectoryPage
// links the entries of a page.
func (c *FileDirectoryInfo) Encode(p []byte) {
	le.PutUint32(p[4:8], c.FileIndex)
	le.PutUint64(p[8:16], uint64(c.CreationTime))
	le.PutUint64(p[16:24], uint64(c.LastAccessTime))
	le.PutUint64(p[24:32], uint64(c.LastWriteTime))
	le.PutUint64(p[32:40], uint64(c.ChangeTime))
	le.PutUint64(p[40:48], uint64(c.EndOfFile))
	le.PutUint64(p[48:56], uint64(c.AllocationSize))
	le.PutUint32(p[56:60], c.FileAttributes)
	n := utf16le.EncodeTo(p[64:], c.FileName, c.Mapping)
	le.PutUint32(p[60:64], uint32(n))
}

// EncodeDirectoryPage packs entries into one output buffer of at most limit
// bytes, 8 byte aligned and chained through NextEntryOffset. It returns the
// buffer and the number of entries consumed.
func EncodeDirectoryPage(entries []FileDirectoryInfo, limit int) ([]byte, int) {
	size := 0
	count := 0
	for i := range entries {
		start := Align(size, 8)
		end := start + entries[i].Size()
		if end > limit {
			break
		}
		size = end
		count++
	}

	buf := make([]byte, size)
	off := 0
	for i := range count {
		entries[i].Encode(buf[off:])
		next := Align(off+entries[i].Size(), 8)
		if i < count-1 {
			le.PutUint32(buf[off:off+4], uint32(next-off))
		}
		off = next
	}
	return buf, count
}

type FileDirectoryInformationDecoder []byte

func (c FileDirectoryInformationDecoder) IsInvalid() bool {
	if len(c) < 64 {
		return true
	}
	if next := c.NextEntryOffset(); next != 0 && (next < 64 || int(next) > len(c)) {
		return true
	}
	return len(c) < 64+int(c.FileNameLength())
}

func (c FileDirectoryInformationDecoder) NextEntryOffset() uint32 {
	return le.Uint32(c[:4])
}

func (c FileDirectoryInformationDecoder) FileIndex() uint32 {
	return le.Uint32(c[4:8])
}

func (c FileDirectoryInformationDecoder) CreationTime() Filetime {
	return Filetime(le.Uint64(c[8:16]))
}

func (c FileDirectoryInformationDecoder) LastAccessTime() Filetime {
	return Filetime(le.Uint64(c[16:24]))
}

func (c FileDirectoryInformationDecoder) LastWriteTime() Filetime {
	return Filetime(le.Uint64(c[24:32]))
}

func (c FileDirectoryInformationDecoder) ChangeTime() Filetime {
	return Filetime(le.Uint64(c[32:40]))
}

func (c FileDirectoryInformationDecoder) EndOfFile() int64 {
	return int64(le.Uint64(c[40:48]))
}

func (c FileDirectoryInformationDecoder) AllocationSize() int64 {
	return int64(le.Uint64(c[48:56]))
}

func (c FileDirectoryInformationDecoder) FileAttributes() uint32 {
	return le.Uint32(c[56:60])
}

func (c FileDirectoryInformationDecoder) FileNameLength() uint32 {
	return le.Uint32(c[60:64])
}

func (c FileDirectoryInformationDecoder) FileName(mc utf16le.MapChars) string {
	return utf16le.Decode(c[64:64+c.FileNameLength()], mc)
}

type FileBasicInfo struct {
	CreationTime   Filetime
	LastAccessTime Filetime
	LastWriteTime  Filetime
	ChangeTime     Filetime
	FileAttributes uint32
}

func (c *FileBasicInfo) Size() int {
	return 40
}

func (c *FileBasicInfo) Encode(p []byte) {
	le.PutUint64(p[:8], uint64(c.CreationTime))
	le.PutUint64(p[8:16], uint64(c.LastAccessTime))
	le.PutUint64(p[16:24], uint64(c.LastWriteTime))
	le.PutUint64(p[24:32], uint64(c.ChangeTime))
	le.PutUint32(p[32:36], c.FileAttributes)
}

type FileBasicInformationDecoder []byte

func (c FileBasicInformationDecoder) IsInvalid() bool {
	return len(c) < 40
}

func (c FileBasicInformationDecoder) CreationTime() Filetime {
	return Filetime(le.Uint64(c[:8]))
}

func (c FileBasicInformationDecoder) LastAccessTime() Filetime {
	return Filetime(le.Uint64(c[8:16]))
}

func (c FileBasicInformationDecoder) LastWriteTime() Filetime {
	return Filetime(le.Uint64(c[16:24]))
}

func (c FileBasicInformationDecoder) ChangeTime() Filetime {
	return Filetime(le.Uint64(c[24:32]))
}

func (c FileBasicInformationDecoder) FileAttributes() uint32 {
	return le.Uint32(c[32:36])
}

type FileStandardInfo struct {
	AllocationSize int64
	EndOfFile      int64
	NumberOfLinks  uint32
	DeletePending  bool
	Directory      bool
}

func (c *FileStandardInfo) Size() int {
	return 24
}

func (c *FileStandardInfo) Encode(p []byte) {
	le.PutUint64(p[:8], uint64(c.AllocationSize))
	le.PutUint64(p[8:16], uint64(c.EndOfFile))
	le.PutUint32(p[16:20], c.NumberOfLinks)
	p[20] = boolByte(c.DeletePending)
	p[21] = boolByte(c.Directory)
}

type FileStandardInformationDecoder []byte

func (c FileStandardInformationDecoder) IsInvalid() bool {
	return len(c) < 24
}

func (c FileStandardInformationDecoder) AllocationSize() int64 {
	return int64(le.Uint64(c[:8]))
}

func (c FileStandardInformationDecoder) EndOfFile() int64 {
	return int64(le.Uint64(c[8:16]))
}

func (c FileStandardInformationDecoder) NumberOfLinks() uint32 {
	return le.Uint32(c[16:20])
}

func (c FileStandardInformationDecoder) DeletePending() bool {
	return c[20] != 0
}

func (c FileStandardInformationDecoder) Directory() bool {
	return c[21] != 0
}

// FileAllInfo carries the subset of the class the client reads;
// the internal, EA, access, position, mode and alignment parts are
// written as zero except for IndexNumber and AccessFlags.
type FileAllInfo struct {
	Basic       FileBasicInfo
	Standard    FileStandardInfo
	IndexNumber uint64
	AccessFlags uint32
	FileName    string
}

func (c *FileAllInfo) Size() int {
	return 100 + utf16le.EncodedLen(c.FileName)
}

func (c *FileAllInfo) Encode(p []byte) {
	c.Basic.Encode(p[:40])
	c.Standard.Encode(p[40:64])
	le.PutUint64(p[64:72], c.IndexNumber)
	// 72-76: EaSize
	le.PutUint32(p[76:80], c.AccessFlags)
	// 80-88: CurrentByteOffset, 88-92: Mode, 92-96: AlignmentRequirement
	n := utf16le.EncodeTo(p[100:], c.FileName, utf16le.MapCharsNone)
	le.PutUint32(p[96:100], uint32(n))
}

type FileAllInformationDecoder []byte

func (c FileAllInformationDecoder) IsInvalid() bool {
	return len(c) < 100
}

func (c FileAllInformationDecoder) BasicInformation() FileBasicInformationDecoder {
	return FileBasicInformationDecoder(c[:40])
}

func (c FileAllInformationDecoder) StandardInformation() FileStandardInformationDecoder {
	return FileStandardInformationDecoder(c[40:64])
}

func (c FileAllInformationDecoder) IndexNumber() uint64 {
	return le.Uint64(c[64:72])
}

func (c FileAllInformationDecoder) AccessFlags() uint32 {
	return le.Uint32(c[76:80])
}

type FileEndOfFileInfo struct {
	EndOfFile int64
}

func (c *FileEndOfFileInfo) Size() int {
	return 8
}

func (c *FileEndOfFileInfo) Encode(p []byte) {
	le.PutUint64(p[:8], uint64(c.EndOfFile))
}

type FileEndOfFileInformationDecoder []byte

func (c FileEndOfFileInformationDecoder) IsInvalid() bool {
	return len(c) < 8
}

func (c FileEndOfFileInformationDecoder) EndOfFile() int64 {
	return int64(le.Uint64(c[:8]))
}

type FileDispositionInfo struct {
	DeletePending bool
}

func (c *FileDispositionInfo) Size() int {
	return 1
}

func (c *FileDispositionInfo) Encode(p []byte) {
	p[0] = boolByte(c.DeletePending)
}

type FileDispositionInformationDecoder []byte

func (c FileDispositionInformationDecoder) IsInvalid() bool {
	return len(c) < 1
}

func (c FileDispositionInformationDecoder) DeletePending() bool {
	return c[0] != 0
}

// Bytes is a raw Encoder, used for opaque buffers such as security
// descriptors.
type Bytes []byte

func (c Bytes) Size() int {
	return len(c)
}

func (c Bytes) Encode(p []byte) {
	copy(p, c)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
