package smbc

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cloudsoda/sddl"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

// File is an open file, or a directory opened through OpenFile, on a
// mounted share. It is owned by one goroutine at a time.
type File struct {
	fs       *Share
	h        *handle
	name     string
	fileStat *FileStat

	offset int64

	m sync.Mutex
}

// Close releases the handle. The handle is invalid afterwards even when the
// server reports an error. Closing a closed File returns nil.
func (f *File) Close() error {
	if f == nil {
		return os.ErrInvalid
	}
	return f.wrap("close", f.close())
}

func (f *File) close() error {
	if !f.h.closed.CompareAndSwap(false, true) {
		return nil
	}

	_, err := f.fs.closeHandle(f.fs.ctx, f.h)
	if err != nil {
		f.fs.logger.Warn("close failed", "share", f.fs.path, "path", f.name, "error", err)
	}
	return err
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.name }

// ID returns the handle's identifier within its session.
func (f *File) ID() HandleID { return f.h.id }

// wrap attaches op and the file name to a non-nil err.
func (f *File) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: f.name, Err: err}
}

func (f *File) check(op string) error {
	if f.h.closed.Load() {
		return f.wrap(op, ErrHandleClosed)
	}
	return nil
}

// checkData is check for operations on file content.
func (f *File) checkData(op string) error {
	if err := f.check(op); err != nil {
		return err
	}
	if f.fileStat.IsDir() {
		return f.wrap(op, ErrIsADirectory)
	}
	return nil
}

// Read reads up to len(b) bytes with a single READ exchange. At end of file
// it returns 0, io.EOF.
func (f *File) Read(b []byte) (int, error) {
	if err := f.checkData("read"); err != nil {
		return 0, err
	}

	f.m.Lock()
	defer f.m.Unlock()

	if len(b) == 0 {
		return 0, nil
	}

	data, err := f.readChunkAt(min(len(b), f.maxReadSize()), f.offset)
	if err != nil {
		return 0, f.wrapRead(err)
	}

	n := copy(b, data)
	f.offset += int64(n)
	return n, nil
}

// ReadChunk reads at most n bytes from the current offset with a single
// exchange. An empty slice with a nil error means end of file.
func (f *File) ReadChunk(n int) ([]byte, error) {
	if n <= 0 {
		return nil, f.wrap("read", ErrInvalidArgument)
	}

	buf := make([]byte, min(n, f.maxReadSize()))
	m, err := f.Read(buf)
	switch {
	case err == io.EOF:
		return buf[:0], nil
	case err != nil:
		return nil, err
	}
	return buf[:m], nil
}

// ReadAt implements io.ReaderAt. A read that reaches end of file before b is
// full returns what it got along with io.EOF.
func (f *File) ReadAt(b []byte, off int64) (int, error) {
	if err := f.checkData("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, f.wrap("read", ErrInvalidArgument)
	}

	limit := f.maxReadSize()

	n := 0
	for n < len(b) {
		data, err := f.readChunkAt(min(len(b)-n, limit), off+int64(n))
		if err != nil {
			return n, f.wrapRead(err)
		}
		n += copy(b[n:], data)
	}
	return n, nil
}

// wrapRead turns end-of-file conditions into io.EOF.
func (f *File) wrapRead(err error) error {
	if err == io.EOF || statusIs(err, erref.STATUS_END_OF_FILE) {
		return io.EOF
	}
	return f.wrap("read", err)
}

func (f *File) maxReadSize() int     { return payloadLimit(f.fs.maxReadSize) }
func (f *File) maxWriteSize() int    { return payloadLimit(f.fs.maxWriteSize) }
func (f *File) maxTransactSize() int { return payloadLimit(f.fs.maxTransactSize) }

// payloadLimit caps a negotiated size to what one credit can carry.
func payloadLimit(negotiated uint32) int {
	if negotiated == 0 || negotiated > singleCreditMaxPayloadSize {
		return singleCreditMaxPayloadSize
	}
	return int(negotiated)
}

// readChunkAt sends one READ. An empty reply is reported as io.EOF.
func (f *File) readChunkAt(n int, off int64) ([]byte, error) {
	res, err := f.sendRecv(smb2.SMB2_READ, &smb2.ReadRequest{
		FileId:       f.h.fd,
		Offset:       uint64(off),
		Length:       uint32(n),
		MinimumCount: 1,
	})
	if err != nil {
		return nil, err
	}

	r := smb2.ReadResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken read response format"}
	}

	data := r.Data()
	switch {
	case len(data) == 0:
		return nil, io.EOF
	case len(data) > n:
		return nil, &InvalidResponseError{fmt.Sprintf("read returned %d bytes, asked for %d", len(data), n)}
	}
	return data, nil
}

// Seek implements io.Seeker. Seeking relative to the end asks the server for
// the current size.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.check("seek"); err != nil {
		return 0, err
	}

	f.m.Lock()
	defer f.m.Unlock()

	pos, err := f.seek(offset, whence)
	return pos, f.wrap("seek", err)
}

func (f *File) seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		info, err := f.queryFileInfo(smb2.FileStandardInformation, 24)
		if err != nil {
			return -1, err
		}
		std := smb2.FileStandardInformationDecoder(info)
		if std.IsInvalid() {
			return -1, &InvalidResponseError{"broken query info response format"}
		}
		base = std.EndOfFile()
	default:
		return -1, ErrInvalidArgument
	}

	pos := base + offset
	if pos < 0 {
		return -1, ErrInvalidArgument
	}
	f.offset = pos
	return pos, nil
}

// Stat queries the server for fresh metadata.
func (f *File) Stat() (os.FileInfo, error) {
	if err := f.check("stat"); err != nil {
		return nil, err
	}

	fi, err := f.stat()
	if err != nil {
		return nil, f.wrap("stat", err)
	}
	return fi, nil
}

func (f *File) stat() (*FileStat, error) {
	info, err := f.queryFileInfo(smb2.FileAllInformation, uint32(f.maxTransactSize()))
	if err != nil {
		return nil, err
	}

	all := smb2.FileAllInformationDecoder(info)
	if all.IsInvalid() {
		return nil, &InvalidResponseError{"broken query info response format"}
	}
	return newFileStatFromAll(all, f.name), nil
}

// Sync asks the server to flush cached writes.
func (f *File) Sync() error {
	if err := f.check("sync"); err != nil {
		return err
	}

	res, err := f.sendRecv(smb2.SMB2_FLUSH, &smb2.FlushRequest{FileId: f.h.fd})
	if err == nil && smb2.AckResponseDecoder(res).IsInvalid() {
		err = &InvalidResponseError{"broken flush response format"}
	}
	return f.wrap("sync", err)
}

// Truncate sets the end of file to size.
func (f *File) Truncate(size int64) error {
	if err := f.checkData("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return f.wrap("truncate", ErrInvalidArgument)
	}

	return f.wrap("truncate", f.setInfo(&smb2.SetInfoRequest{
		FileInfoClass: smb2.FileEndOfFileInformation,
		Input:         &smb2.FileEndOfFileInfo{EndOfFile: size},
	}))
}

// Chmod toggles the read-only attribute from mode's owner write bit.
func (f *File) Chmod(mode os.FileMode) error {
	if err := f.check("chmod"); err != nil {
		return err
	}
	return f.wrap("chmod", f.chmod(mode))
}

func (f *File) chmod(mode os.FileMode) error {
	info, err := f.queryFileInfo(smb2.FileBasicInformation, 40)
	if err != nil {
		return err
	}

	basic := smb2.FileBasicInformationDecoder(info)
	if basic.IsInvalid() {
		return &InvalidResponseError{"broken query info response format"}
	}

	attrs := basic.FileAttributes() &^ smb2.FILE_ATTRIBUTE_READONLY
	if mode&0200 == 0 {
		attrs |= smb2.FILE_ATTRIBUTE_READONLY
	}
	// zero attributes would mean "unchanged"
	if attrs&smb2.FILE_ATTRIBUTE_DIRECTORY == 0 {
		attrs |= smb2.FILE_ATTRIBUTE_NORMAL
	}

	return f.setInfo(&smb2.SetInfoRequest{
		FileInfoClass: smb2.FileBasicInformation,
		Input:         &smb2.FileBasicInfo{FileAttributes: attrs},
	})
}

// Write writes b at the current offset in chunks of at most the negotiated
// write size. A short count from the server stops the call with
// io.ErrShortWrite; the bytes written so far are reported and not retried.
func (f *File) Write(b []byte) (int, error) {
	if err := f.checkData("write"); err != nil {
		return 0, err
	}

	f.m.Lock()
	defer f.m.Unlock()

	n, err := f.writeAt(b, f.offset)
	f.offset += int64(n)
	return n, f.wrap("write", err)
}

// WriteAt implements io.WriterAt. It does not move the offset.
func (f *File) WriteAt(b []byte, off int64) (int, error) {
	if err := f.checkData("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, f.wrap("write", ErrInvalidArgument)
	}

	n, err := f.writeAt(b, off)
	return n, f.wrap("write", err)
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *File) writeAt(b []byte, off int64) (int, error) {
	limit := f.maxWriteSize()

	n := 0
	for n < len(b) {
		chunk := b[n:min(n+limit, len(b))]

		written, err := f.writeChunkAt(chunk, off+int64(n))
		n += written
		if err != nil {
			return n, err
		}
		if written < len(chunk) {
			return n, io.ErrShortWrite
		}
	}
	return n, nil
}

// writeChunkAt sends one WRITE and returns the count the server accepted.
func (f *File) writeChunkAt(b []byte, off int64) (int, error) {
	res, err := f.sendRecv(smb2.SMB2_WRITE, &smb2.WriteRequest{
		FileId: f.h.fd,
		Offset: uint64(off),
		Data:   b,
	})
	if err != nil {
		return 0, err
	}

	r := smb2.WriteResponseDecoder(res)
	if r.IsInvalid() {
		return 0, &InvalidResponseError{"broken write response format"}
	}

	if count := int(r.Count()); count <= len(b) {
		return count, nil
	}
	return 0, &InvalidResponseError{fmt.Sprintf("write reported %d bytes, sent %d", r.Count(), len(b))}
}

// SecurityInfo returns the parsed security descriptor of the open file.
func (f *File) SecurityInfo(flags SecurityInformationRequestFlags) (*sddl.SecurityDescriptor, error) {
	data, err := f.SecurityInfoRaw(flags)
	if err != nil {
		return nil, err
	}
	return parseSecurityDescriptor(f.name, data)
}

// SecurityInfoRaw returns the self-relative descriptor bytes for the parts
// selected by info.
func (f *File) SecurityInfoRaw(info SecurityInformationRequestFlags) ([]byte, error) {
	if err := f.check("secinfo"); err != nil {
		return nil, err
	}
	if info == 0 {
		return nil, f.wrap("secinfo", errNoSecurityInformation)
	}

	// the info class must be zero for security queries
	data, err := f.queryInfo(&smb2.QueryInfoRequest{
		InfoType:              smb2.SMB2_0_INFO_SECURITY,
		OutputBufferLength:    uint32(f.maxTransactSize()),
		AdditionalInformation: uint32(info),
	})
	if err != nil {
		return nil, f.wrap("secinfo", err)
	}
	return data, nil
}

func (f *File) SetSecurityInfo(flags SecurityInformationRequestFlags, sd *sddl.SecurityDescriptor) error {
	return f.SetSecurityInfoRaw(flags, &SecurityDescriptorEncoder{sd})
}

func (f *File) SetSecurityInfoRaw(flags SecurityInformationRequestFlags, sd smb2.Encoder) error {
	if err := f.check("setsecinfo"); err != nil {
		return err
	}

	return f.wrap("setsecinfo", f.setInfo(&smb2.SetInfoRequest{
		InfoType:              smb2.SMB2_0_INFO_SECURITY,
		AdditionalInformation: uint32(flags),
		Input:                 sd,
	}))
}

// queryFileInfo fetches one SMB2_0_INFO_FILE class.
func (f *File) queryFileInfo(class uint8, size uint32) ([]byte, error) {
	return f.queryInfo(&smb2.QueryInfoRequest{
		InfoType:           smb2.SMB2_0_INFO_FILE,
		FileInfoClass:      class,
		OutputBufferLength: size,
	})
}

func (f *File) queryInfo(req *smb2.QueryInfoRequest) ([]byte, error) {
	req.FileId = f.h.fd

	res, err := f.sendRecv(smb2.SMB2_QUERY_INFO, req)
	if err != nil {
		return nil, err
	}

	r := smb2.OutputResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken query info response format"}
	}
	return r.OutputBuffer(), nil
}

// setInfo sends SET_INFO, defaulting to the file info type.
func (f *File) setInfo(req *smb2.SetInfoRequest) error {
	if req.Input != nil {
		if size, limit := req.Input.Size(), f.maxTransactSize(); size > limit {
			return &InternalError{fmt.Sprintf("payload size %d exceeds max transact size %d", size, limit)}
		}
	}

	req.FileId = f.h.fd
	if req.InfoType == 0 {
		req.InfoType = smb2.SMB2_0_INFO_FILE
	}

	res, err := f.sendRecv(smb2.SMB2_SET_INFO, req)
	if err != nil {
		return err
	}
	if smb2.SetInfoResponseDecoder(res).IsInvalid() {
		return &InvalidResponseError{"broken set info response format"}
	}
	return nil
}

func (f *File) sendRecv(cmd uint16, req smb2.Packet) ([]byte, error) {
	return f.fs.sendRecv(cmd, req)
}
