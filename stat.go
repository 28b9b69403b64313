package smbc

import (
	"os"
	"time"

	"github.com/cloudsoda/smbc/internal/smb2"
)

// FileStat is the os.FileInfo returned by Stat. Sys returns the FileStat
// itself.
type FileStat struct {
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	EndOfFile      int64
	AllocationSize int64
	FileAttributes uint32
	FileName       string
}

// timestamps is implemented by the CREATE response and FILE_BASIC_INFORMATION.
type timestamps interface {
	CreationTime() smb2.Filetime
	LastAccessTime() smb2.Filetime
	LastWriteTime() smb2.Filetime
	ChangeTime() smb2.Filetime
	FileAttributes() uint32
}

func newFileStat(t timestamps, size, alloc int64, name string) *FileStat {
	return &FileStat{
		CreationTime:   t.CreationTime().Time(),
		LastAccessTime: t.LastAccessTime().Time(),
		LastWriteTime:  t.LastWriteTime().Time(),
		ChangeTime:     t.ChangeTime().Time(),
		EndOfFile:      size,
		AllocationSize: alloc,
		FileAttributes: t.FileAttributes(),
		FileName:       base(name),
	}
}

func newFileStatFromCreate(r smb2.CreateResponseDecoder, name string) *FileStat {
	return newFileStat(r, r.EndofFile(), r.AllocationSize(), name)
}

func newFileStatFromAll(info smb2.FileAllInformationDecoder, name string) *FileStat {
	std := info.StandardInformation()
	return newFileStat(info.BasicInformation(), std.EndOfFile(), std.AllocationSize(), name)
}

func (st *FileStat) Name() string       { return st.FileName }
func (st *FileStat) Size() int64        { return st.EndOfFile }
func (st *FileStat) ModTime() time.Time { return st.LastWriteTime }
func (st *FileStat) IsDir() bool        { return st.Mode().IsDir() }
func (st *FileStat) Sys() any           { return st }

// Mode maps attributes onto permission bits: read-only clears the write
// bits and directories get execute bits.
func (st *FileStat) Mode() os.FileMode {
	attrs := st.FileAttributes

	m := os.FileMode(0666)
	if attrs&smb2.FILE_ATTRIBUTE_READONLY != 0 {
		m = 0444
	}
	if attrs&smb2.FILE_ATTRIBUTE_DIRECTORY != 0 {
		m |= os.ModeDir | 0111
	}
	if attrs&smb2.FILE_ATTRIBUTE_REPARSE_POINT != 0 {
		m |= os.ModeSymlink
	}
	return m
}
