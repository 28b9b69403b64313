package smbc

import (
	"fmt"
	"os"
	"time"

	"github.com/cloudsoda/smbc/internal/smb2"
	"github.com/cloudsoda/smbc/internal/utf16le"
)

// EntryKind classifies what a directory entry, or a mounted share, is. The
// values are stable and match the ones used by other SMB client libraries.
type EntryKind uint32

const (
	KindWorkgroup    EntryKind = 1
	KindServer       EntryKind = 2
	KindFileShare    EntryKind = 3
	KindPrinterShare EntryKind = 4
	KindCommsShare   EntryKind = 5
	KindIPCShare     EntryKind = 6
	KindDir          EntryKind = 7
	KindFile         EntryKind = 8
	KindLink         EntryKind = 9
)

func (k EntryKind) String() string {
	switch k {
	case KindWorkgroup:
		return "workgroup"
	case KindServer:
		return "server"
	case KindFileShare:
		return "file share"
	case KindPrinterShare:
		return "printer share"
	case KindCommsShare:
		return "comms share"
	case KindIPCShare:
		return "ipc share"
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindLink:
		return "link"
	}
	return fmt.Sprintf("EntryKind(%d)", uint32(k))
}

// DirEntry is one name returned by a directory enumeration.
type DirEntry struct {
	Name string
	Kind EntryKind
	// Comment is the remark a server attaches to a share or server in a
	// network listing. Directory enumeration has none, so it is empty there.
	Comment        string
	Size           int64
	Attributes     uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	ModTime        time.Time
	ChangeTime     time.Time
}

func newDirEntry(info smb2.FileDirectoryInformationDecoder, mc utf16le.MapChars) DirEntry {
	attrs := info.FileAttributes()

	return DirEntry{
		Name:           info.FileName(mc),
		Kind:           entryKind(attrs),
		Size:           info.EndOfFile(),
		Attributes:     attrs,
		CreationTime:   info.CreationTime().Time(),
		LastAccessTime: info.LastAccessTime().Time(),
		ModTime:        info.LastWriteTime().Time(),
		ChangeTime:     info.ChangeTime().Time(),
	}
}

func entryKind(attrs uint32) EntryKind {
	switch {
	case attrs&smb2.FILE_ATTRIBUTE_REPARSE_POINT != 0:
		return KindLink
	case attrs&smb2.FILE_ATTRIBUTE_DIRECTORY != 0:
		return KindDir
	}
	return KindFile
}

func (e DirEntry) IsDir() bool {
	return e.Kind == KindDir
}

// FileInfo returns the entry as an os.FileInfo.
func (e DirEntry) FileInfo() os.FileInfo {
	return &FileStat{
		CreationTime:   e.CreationTime,
		LastAccessTime: e.LastAccessTime,
		LastWriteTime:  e.ModTime,
		ChangeTime:     e.ChangeTime,
		EndOfFile:      e.Size,
		FileAttributes: e.Attributes,
		FileName:       e.Name,
	}
}
