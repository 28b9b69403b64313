package smbtest

import (
	"errors"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

const (
	readAccess  = smb2.GENERIC_READ | smb2.GENERIC_ALL | smb2.MAXIMUM_ALLOWED | smb2.FILE_READ_DATA
	writeAccess = smb2.GENERIC_WRITE | smb2.GENERIC_ALL | smb2.FILE_WRITE_DATA | smb2.FILE_APPEND_DATA
)

type open struct {
	id     smb2.FileId
	treeId uint32
	share  *share
	name   string // as sent by the client
	path   string // in the share's afero.Fs
	dir    bool
	file   afero.File
	access uint32

	deletePending bool

	listing []smb2.FileDirectoryInfo
	listed  bool
}

func (o *open) securityKey() string {
	return o.share.name + `\` + o.name
}

// fsPath maps a share-relative wire path to the afero namespace.
func fsPath(name string) string {
	return path.Join("/", strings.ReplaceAll(name, `\`, "/"))
}

func attributes(fi os.FileInfo) uint32 {
	var attrs uint32
	if fi.IsDir() {
		attrs |= smb2.FILE_ATTRIBUTE_DIRECTORY
	} else {
		attrs |= smb2.FILE_ATTRIBUTE_ARCHIVE
	}
	if fi.Mode().Perm()&0200 == 0 {
		attrs |= smb2.FILE_ATTRIBUTE_READONLY
	}
	return attrs
}

func fileSize(fi os.FileInfo) int64 {
	if fi.IsDir() {
		return 0
	}
	return fi.Size()
}

func (c *serverConn) create(hdr *smb2.PacketHeader, sh *share, body []byte) (smb2.Packet, error) {
	r := smb2.CreateRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}
	if sh.typ != smb2.SMB2_SHARE_TYPE_DISK {
		return nil, status(erref.STATUS_NOT_SUPPORTED)
	}
	if c.srv.MaxOpens > 0 && len(c.opens) >= c.srv.MaxOpens {
		return nil, status(erref.STATUS_TOO_MANY_OPENED_FILES)
	}

	name := r.Name(0)
	p := fsPath(name)
	access := r.DesiredAccess()
	options := r.CreateOptions()
	disposition := r.CreateDisposition()

	fi, err := sh.fs.Stat(p)
	exists := err == nil

	if !exists {
		parent, err := sh.fs.Stat(path.Dir(p))
		if err != nil || !parent.IsDir() {
			return nil, status(erref.STATUS_OBJECT_PATH_NOT_FOUND)
		}
	}

	overwrite := disposition == smb2.FILE_OVERWRITE || disposition == smb2.FILE_OVERWRITE_IF || disposition == smb2.FILE_SUPERSEDE

	var (
		action uint32
		f      afero.File
	)

	switch {
	case exists && disposition == smb2.FILE_CREATE:
		return nil, status(erref.STATUS_OBJECT_NAME_COLLISION)
	case !exists && (disposition == smb2.FILE_OPEN || disposition == smb2.FILE_OVERWRITE):
		return nil, status(erref.STATUS_OBJECT_NAME_NOT_FOUND)
	case exists:
		switch {
		case options&smb2.FILE_DIRECTORY_FILE != 0 && !fi.IsDir():
			return nil, status(erref.STATUS_NOT_A_DIRECTORY)
		case options&smb2.FILE_NON_DIRECTORY_FILE != 0 && fi.IsDir():
			return nil, status(erref.STATUS_FILE_IS_A_DIRECTORY)
		case fi.IsDir() && (access&writeAccess != 0 || overwrite):
			return nil, status(erref.STATUS_FILE_IS_A_DIRECTORY)
		case fi.Mode().Perm()&0200 == 0 && (access&writeAccess != 0 || overwrite):
			return nil, status(erref.STATUS_ACCESS_DENIED)
		}

		action = smb2.FILE_OPENED
		if !fi.IsDir() {
			flag := os.O_RDWR
			if overwrite {
				flag |= os.O_TRUNC
				action = smb2.FILE_OVERWRITTEN
			}
			if f, err = sh.fs.OpenFile(p, flag, 0); err != nil {
				return nil, status(erref.STATUS_ACCESS_DENIED)
			}
		}
	default:
		if options&smb2.FILE_DIRECTORY_FILE != 0 {
			if err := sh.fs.Mkdir(p, 0755); err != nil {
				return nil, status(erref.STATUS_ACCESS_DENIED)
			}
		} else {
			var mode os.FileMode = 0666
			if r.FileAttributes()&smb2.FILE_ATTRIBUTE_READONLY != 0 {
				mode = 0444
			}
			if f, err = sh.fs.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode); err != nil {
				return nil, status(erref.STATUS_ACCESS_DENIED)
			}
		}
		action = smb2.FILE_CREATED
	}

	fi, err = sh.fs.Stat(p)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, status(erref.STATUS_OBJECT_NAME_NOT_FOUND)
	}

	id := c.srv.nextFileId.Add(1)
	o := &open{
		id:     smb2.FileId{Persistent: id, Volatile: id},
		treeId: hdr.TreeId,
		share:  sh,
		name:   name,
		path:   p,
		dir:    fi.IsDir(),
		file:   f,
		access: access,
	}
	c.opens[o.id] = o

	ft := smb2.TimeToFiletime(fi.ModTime())

	return &smb2.CreateResponse{
		CreateAction:   action,
		CreationTime:   ft,
		LastAccessTime: ft,
		LastWriteTime:  ft,
		ChangeTime:     ft,
		AllocationSize: fileSize(fi),
		EndofFile:      fileSize(fi),
		FileAttributes: attributes(fi),
		FileId:         o.id,
	}, nil
}

func (c *serverConn) lookup(id smb2.FileId) (*open, error) {
	o, ok := c.opens[id]
	if !ok {
		return nil, status(erref.STATUS_FILE_CLOSED)
	}
	return o, nil
}

// release drops o and applies a pending delete.
func (c *serverConn) release(o *open) {
	delete(c.opens, o.id)

	if o.file != nil {
		o.file.Close()
	}
	if o.deletePending {
		if err := o.share.fs.Remove(o.path); err != nil {
			c.logger.Warn("delete on close failed", "path", o.path, "error", err)
		}
	}
}

// closeOpens releases the opens of treeId, or every open when treeId is 0.
func (c *serverConn) closeOpens(treeId uint32) {
	for _, o := range c.opens {
		if treeId == 0 || o.treeId == treeId {
			c.release(o)
		}
	}
}

func (c *serverConn) close(body []byte) (smb2.Packet, error) {
	r := smb2.FileIdRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}
	c.release(o)

	if c.srv.FailClose {
		return nil, status(erref.STATUS_INVALID_HANDLE)
	}
	return &smb2.CloseResponse{}, nil
}

func (c *serverConn) flush(body []byte) (smb2.Packet, error) {
	r := smb2.FileIdRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}
	if o.file != nil {
		if err := o.file.Sync(); err != nil {
			return nil, status(erref.STATUS_DISK_FULL)
		}
	}
	return &smb2.AckResponse{Command: smb2.SMB2_FLUSH}, nil
}

func (c *serverConn) read(body []byte) (smb2.Packet, error) {
	r := smb2.ReadRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}
	if o.dir {
		return nil, status(erref.STATUS_INVALID_DEVICE_REQUEST)
	}
	if o.access&readAccess == 0 {
		return nil, status(erref.STATUS_ACCESS_DENIED)
	}

	buf := make([]byte, min(r.Length(), sizeOr64K(c.srv.MaxReadSize)))
	n, err := o.file.ReadAt(buf, int64(r.Offset()))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}
	if n == 0 && len(buf) > 0 {
		return nil, status(erref.STATUS_END_OF_FILE)
	}

	return &smb2.ReadResponse{Data: buf[:n]}, nil
}

func (c *serverConn) write(body []byte) (smb2.Packet, error) {
	r := smb2.WriteRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}
	if o.dir {
		return nil, status(erref.STATUS_INVALID_DEVICE_REQUEST)
	}
	if o.access&writeAccess == 0 {
		return nil, status(erref.STATUS_ACCESS_DENIED)
	}

	data := r.Data()
	if c.srv.ShortWrite > 0 && len(data) > c.srv.ShortWrite {
		data = data[:c.srv.ShortWrite]
	}

	n, err := o.file.WriteAt(data, int64(r.Offset()))
	if err != nil {
		return nil, status(erref.STATUS_DISK_FULL)
	}

	return &smb2.WriteResponse{Count: uint32(n)}, nil
}

func (c *serverConn) queryDirectory(body []byte) (smb2.Packet, error) {
	r := smb2.QueryDirectoryRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}
	if !o.dir {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}
	if r.FileInfoClass() != smb2.FileDirectoryInformation {
		return nil, status(erref.STATUS_NOT_SUPPORTED)
	}

	if !o.listed || r.Flags()&(smb2.SMB2_RESTART_SCANS|smb2.SMB2_REOPEN) != 0 {
		listing, err := c.list(o, r.FileName(0))
		if err != nil {
			return nil, err
		}
		o.listing = listing
		o.listed = true
	}

	if len(o.listing) == 0 {
		return nil, status(erref.STATUS_NO_MORE_FILES)
	}

	page := o.listing
	if c.srv.DirPageSize > 0 && len(page) > c.srv.DirPageSize {
		page = page[:c.srv.DirPageSize]
	}
	if r.Flags()&smb2.SMB2_RETURN_SINGLE_ENTRY != 0 {
		page = page[:1]
	}

	buf, n := smb2.EncodeDirectoryPage(page, int(r.OutputBufferLength()))
	if n == 0 {
		return nil, status(erref.STATUS_INFO_LENGTH_MISMATCH)
	}
	o.listing = o.listing[n:]

	return &smb2.OutputResponse{Command: smb2.SMB2_QUERY_DIRECTORY, Output: buf}, nil
}

// list snapshots the directory: ".", ".." and the children matching
// pattern, which is "*" or an exact name.
func (c *serverConn) list(o *open, pattern string) ([]smb2.FileDirectoryInfo, error) {
	fs := o.share.fs

	self, err := fs.Stat(o.path)
	if err != nil {
		return nil, status(erref.STATUS_FILE_CLOSED)
	}
	children, err := afero.ReadDir(fs, o.path)
	if err != nil {
		return nil, status(erref.STATUS_ACCESS_DENIED)
	}
	if c.srv.ReverseListing {
		slices.Reverse(children)
	}

	var listing []smb2.FileDirectoryInfo
	add := func(name string, fi os.FileInfo) {
		if pattern != "*" && !strings.EqualFold(pattern, name) {
			return
		}
		ft := smb2.TimeToFiletime(fi.ModTime())
		listing = append(listing, smb2.FileDirectoryInfo{
			FileIndex:      uint32(len(listing)),
			CreationTime:   ft,
			LastAccessTime: ft,
			LastWriteTime:  ft,
			ChangeTime:     ft,
			EndOfFile:      fileSize(fi),
			AllocationSize: fileSize(fi),
			FileAttributes: attributes(fi),
			FileName:       name,
		})
	}

	add(".", self)
	add("..", self)
	for _, fi := range children {
		add(fi.Name(), fi)
	}

	return listing, nil
}

func (c *serverConn) queryInfo(sh *share, body []byte) (smb2.Packet, error) {
	r := smb2.QueryInfoRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}
	if c.srv.FailQueryInfo {
		return nil, status(erref.STATUS_ACCESS_DENIED)
	}

	var out []byte

	switch r.InfoType() {
	case smb2.SMB2_0_INFO_FILE:
		fi, err := sh.fs.Stat(o.path)
		if err != nil {
			return nil, status(erref.STATUS_FILE_CLOSED)
		}

		ft := smb2.TimeToFiletime(fi.ModTime())
		basic := smb2.FileBasicInfo{
			CreationTime:   ft,
			LastAccessTime: ft,
			LastWriteTime:  ft,
			ChangeTime:     ft,
			FileAttributes: attributes(fi),
		}
		standard := smb2.FileStandardInfo{
			AllocationSize: fileSize(fi),
			EndOfFile:      fileSize(fi),
			NumberOfLinks:  1,
			DeletePending:  o.deletePending,
			Directory:      fi.IsDir(),
		}

		var info smb2.Encoder
		switch r.FileInfoClass() {
		case smb2.FileBasicInformation:
			info = &basic
		case smb2.FileStandardInformation:
			info = &standard
		case smb2.FileAllInformation:
			info = &smb2.FileAllInfo{
				Basic:       basic,
				Standard:    standard,
				IndexNumber: o.id.Persistent,
				AccessFlags: o.access,
				FileName:    `\` + o.name,
			}
		default:
			return nil, status(erref.STATUS_NOT_SUPPORTED)
		}

		out = make([]byte, info.Size())
		info.Encode(out)
	case smb2.SMB2_0_INFO_SECURITY:
		out = c.srv.securityDescriptor(o.securityKey())
	default:
		return nil, status(erref.STATUS_NOT_SUPPORTED)
	}

	if len(out) > int(r.OutputBufferLength()) {
		return nil, status(erref.STATUS_BUFFER_TOO_SMALL)
	}

	return &smb2.OutputResponse{Command: smb2.SMB2_QUERY_INFO, Output: out}, nil
}

func (c *serverConn) setInfo(sh *share, body []byte) (smb2.Packet, error) {
	r := smb2.SetInfoRequestDecoder(body)
	if r.IsInvalid() {
		return nil, status(erref.STATUS_INVALID_PARAMETER)
	}

	o, err := c.lookup(r.FileId())
	if err != nil {
		return nil, err
	}

	buf := r.Buffer()

	switch r.InfoType() {
	case smb2.SMB2_0_INFO_FILE:
		switch r.FileInfoClass() {
		case smb2.FileBasicInformation:
			info := smb2.FileBasicInformationDecoder(buf)
			if info.IsInvalid() {
				return nil, status(erref.STATUS_INFO_LENGTH_MISMATCH)
			}
			if err := c.setBasic(sh, o, info); err != nil {
				return nil, err
			}
		case smb2.FileEndOfFileInformation:
			info := smb2.FileEndOfFileInformationDecoder(buf)
			if info.IsInvalid() {
				return nil, status(erref.STATUS_INFO_LENGTH_MISMATCH)
			}
			if o.dir || o.access&writeAccess == 0 {
				return nil, status(erref.STATUS_ACCESS_DENIED)
			}
			if err := o.file.Truncate(info.EndOfFile()); err != nil {
				return nil, status(erref.STATUS_DISK_FULL)
			}
		case smb2.FileDispositionInformation:
			info := smb2.FileDispositionInformationDecoder(buf)
			if info.IsInvalid() {
				return nil, status(erref.STATUS_INFO_LENGTH_MISMATCH)
			}
			if err := c.setDisposition(sh, o, info.DeletePending()); err != nil {
				return nil, err
			}
		default:
			return nil, status(erref.STATUS_NOT_SUPPORTED)
		}
	case smb2.SMB2_0_INFO_SECURITY:
		c.srv.setSecurityDescriptor(o.securityKey(), buf)
	default:
		return nil, status(erref.STATUS_NOT_SUPPORTED)
	}

	return &smb2.SetInfoResponse{}, nil
}

func (c *serverConn) setBasic(sh *share, o *open, info smb2.FileBasicInformationDecoder) error {
	if attrs := info.FileAttributes(); attrs != 0 {
		mode := os.FileMode(0666)
		if o.dir {
			mode = 0755
		}
		if attrs&smb2.FILE_ATTRIBUTE_READONLY != 0 {
			mode &^= 0222
		}
		if err := sh.fs.Chmod(o.path, mode); err != nil {
			return status(erref.STATUS_ACCESS_DENIED)
		}
	}

	if ft := info.LastWriteTime(); ft != 0 {
		atime := ft.Time()
		if at := info.LastAccessTime(); at != 0 {
			atime = at.Time()
		}
		if err := sh.fs.Chtimes(o.path, atime, ft.Time()); err != nil {
			return status(erref.STATUS_ACCESS_DENIED)
		}
	}

	return nil
}

func (c *serverConn) setDisposition(sh *share, o *open, pending bool) error {
	if pending {
		fi, err := sh.fs.Stat(o.path)
		if err != nil {
			return status(erref.STATUS_FILE_CLOSED)
		}
		if fi.Mode().Perm()&0200 == 0 {
			return status(erref.STATUS_ACCESS_DENIED)
		}
		if fi.IsDir() {
			children, err := afero.ReadDir(sh.fs, o.path)
			if err != nil {
				return status(erref.STATUS_ACCESS_DENIED)
			}
			if len(children) > 0 {
				return status(erref.STATUS_DIRECTORY_NOT_EMPTY)
			}
		}
	}

	o.deletePending = pending
	return nil
}
