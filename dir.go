package smbc

import (
	"io"
	"iter"
	"os"
	"sync"

	"github.com/cloudsoda/smbc/internal/erref"
	"github.com/cloudsoda/smbc/internal/smb2"
)

// Dir is a forward-only cursor over the entries of a directory. Entries
// come back in server order, "." and ".." included. A Dir is owned by one
// goroutine at a time.
type Dir struct {
	fs   *Share
	h    *handle
	name string

	pending []DirEntry
	done    bool

	m sync.Mutex
}

func (d *Dir) Name() string {
	return d.name
}

// ID returns the handle's identifier within its session.
func (d *Dir) ID() HandleID {
	return d.h.id
}

// Close releases the directory handle. Closing a closed Dir returns nil.
func (d *Dir) Close() error {
	if d == nil {
		return os.ErrInvalid
	}

	if !d.h.closed.CompareAndSwap(false, true) {
		return nil
	}

	if _, err := d.fs.closeHandle(d.fs.ctx, d.h); err != nil {
		d.fs.logger.Warn("close failed", "share", d.fs.path, "path", d.name, "error", err)
		return &os.PathError{Op: "close", Path: d.name, Err: err}
	}
	return nil
}

// Next returns the next entry. ok is false with a nil error once the
// directory is exhausted, and stays so on every later call.
func (d *Dir) Next() (e DirEntry, ok bool, err error) {
	if d.h.closed.Load() {
		return DirEntry{}, false, &os.PathError{Op: "readdir", Path: d.name, Err: ErrHandleClosed}
	}

	d.m.Lock()
	defer d.m.Unlock()

	for len(d.pending) == 0 {
		if d.done {
			return DirEntry{}, false, nil
		}

		entries, err := d.query()
		if err != nil {
			if statusIs(err, erref.STATUS_NO_MORE_FILES) {
				d.done = true
				continue
			}
			return DirEntry{}, false, &os.PathError{Op: "readdir", Path: d.name, Err: err}
		}
		if len(entries) == 0 {
			d.done = true
			continue
		}

		d.pending = entries
	}

	e = d.pending[0]
	d.pending = d.pending[1:]

	return e, true, nil
}

// All iterates over the remaining entries. Iteration stops after the first
// error.
func (d *Dir) All() iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		for {
			e, ok, err := d.Next()
			if err != nil {
				yield(DirEntry{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Readdir behaves like os.File.Readdir: "." and ".." are skipped, and with
// n > 0 an exhausted directory returns io.EOF.
func (d *Dir) Readdir(n int) ([]os.FileInfo, error) {
	var fi []os.FileInfo

	for n <= 0 || len(fi) < n {
		e, ok, err := d.Next()
		if err != nil {
			return fi, err
		}
		if !ok {
			break
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		fi = append(fi, e.FileInfo())
	}

	if n > 0 && len(fi) == 0 {
		return fi, io.EOF
	}
	return fi, nil
}

// Readdirnames is Readdir returning names only.
func (d *Dir) Readdirnames(n int) ([]string, error) {
	fi, err := d.Readdir(n)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(fi))
	for _, info := range fi {
		names = append(names, info.Name())
	}
	return names, nil
}

// query fetches the next batch of entries. An empty batch means the
// enumeration is complete.
func (d *Dir) query() ([]DirEntry, error) {
	res, err := d.fs.sendRecv(smb2.SMB2_QUERY_DIRECTORY, &smb2.QueryDirectoryRequest{
		FileInfoClass:      smb2.FileDirectoryInformation,
		FileId:             d.h.fd,
		OutputBufferLength: uint32(payloadLimit(d.fs.maxTransactSize)),
		FileName:           "*",
		Mapping:            d.fs.mapping,
	})
	if err != nil {
		return nil, err
	}

	r := smb2.OutputResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken query directory response format"}
	}

	var entries []DirEntry
	for buf := r.OutputBuffer(); len(buf) > 0; {
		rec := smb2.FileDirectoryInformationDecoder(buf)
		if rec.IsInvalid() {
			return nil, &InvalidResponseError{"broken directory entry"}
		}
		entries = append(entries, newDirEntry(rec, d.fs.mapping))

		next := int(rec.NextEntryOffset())
		if next == 0 {
			break
		}
		if next > len(buf) {
			return nil, &InvalidResponseError{"directory entry offset out of range"}
		}
		buf = buf[next:]
	}
	return entries, nil
}
