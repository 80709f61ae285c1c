// Package cache implements the sector-granular, typed-block, content-
// addressed container described in SPEC_FULL.md §4.1: a single file holding
// CRC/hash-validated blocks that the arena, blob and document-properties
// layers address by (type, index).
package cache

import (
	"io"
	"os"
	"sync"

	"github.com/readflow/domcache/internal/base"
)

// File is a sector-granular, typed-block container. It is safe for use by
// one goroutine at a time; the non-goal of concurrent access to a single
// cache file (SPEC_FULL.md §1) is enforced across processes by an advisory
// flock (see lock_unix.go / lock_other.go) and is the caller's
// responsibility to honor within a process.
type File struct {
	mu sync.Mutex

	stream     io.ReadWriteSeeker
	closer     io.Closer // non-nil when File owns the underlying *os.File
	unlock     func() error
	domVersion uint32
	compType   CompressionType
	comp       *compressor

	fileSize   int32
	dirty      bool
	indexDirty bool
	index      *blockIndex
	log        base.Logger
}

// Options configures how a File is opened or created.
type Options struct {
	DomVersion uint32
	Compress   CompressionType
	Logger     base.Logger
	// ValidateContents requests a full re-read and hash-check of every
	// block at Open time (spec.md §4.1 "optional deep validation").
	ValidateContents bool
}

func (o Options) logger() base.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return base.DefaultLogger{}
}

// Create initializes a brand-new cache file at path: an empty header at
// sector 0 and an empty index.
func Create(path string, opts Options) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, base.IoErrorf(err, "domcache: create cache file %s", path)
	}
	unlock, err := lockFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cf, err := CreateStream(f, opts)
	if err != nil {
		unlock()
		f.Close()
		return nil, err
	}
	cf.closer = f
	cf.unlock = unlock
	return cf, nil
}

// CreateStream initializes a new cache file on an already-open stream. The
// caller retains ownership of stream and must Close it after the File is
// done (File.Close will not close it).
func CreateStream(stream io.ReadWriteSeeker, opts Options) (*File, error) {
	cf := &File{
		stream:     stream,
		domVersion: opts.DomVersion,
		compType:   opts.Compress,
		comp:       newCompressor(opts.Compress),
		fileSize:   SectorSize,
		dirty:      true,
		index:      newBlockIndex(),
		log:        opts.logger(),
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, base.IoErrorf(err, "domcache: seek to start")
	}
	if err := cf.writeIndexBlock(); err != nil {
		return nil, err
	}
	if err := cf.writeHeader(false); err != nil {
		return nil, err
	}
	return cf, nil
}

// Open opens an existing cache file at path, validating its header and
// loading its index.
func Open(path string, opts Options) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, base.IoErrorf(err, "domcache: open cache file %s", path)
	}
	unlock, err := lockFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cf, err := OpenStream(f, opts)
	if err != nil {
		unlock()
		f.Close()
		return nil, err
	}
	cf.closer = f
	cf.unlock = unlock
	return cf, nil
}

// OpenStream opens an existing cache file on an already-open stream. The
// caller retains ownership of stream.
func OpenStream(stream io.ReadWriteSeeker, opts Options) (*File, error) {
	cf := &File{
		stream:     stream,
		domVersion: opts.DomVersion,
		compType:   opts.Compress,
		comp:       newCompressor(opts.Compress),
		index:      newBlockIndex(),
		log:        opts.logger(),
	}
	hdrBuf := make([]byte, SectorSize)
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, base.IoErrorf(err, "domcache: seek to start")
	}
	if _, err := io.ReadFull(stream, hdrBuf); err != nil {
		return nil, base.IoErrorf(err, "domcache: read header")
	}
	hdr, err := decodeHeader(hdrBuf, opts.Compress, opts.DomVersion)
	if err != nil {
		return nil, err
	}
	cf.fileSize = int32(hdr.fileSize)
	if err := cf.readIndex(&hdr.indexBlock); err != nil {
		return nil, err
	}
	if opts.ValidateContents {
		if err := cf.validateContents(); err != nil {
			return nil, err
		}
	}
	return cf, nil
}

// Close releases the advisory lock (if any) and, if the File opened the
// underlying file itself (via Create/Open rather than CreateStream/
// OpenStream), closes it.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comp.cleanup()
	var err error
	if f.unlock != nil {
		err = f.unlock()
	}
	if f.closer != nil {
		if cerr := f.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Size returns the current logical file size in bytes.
func (f *File) Size() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileSize
}

// Dirty reports whether the header's dirty flag is currently set.
func (f *File) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *File) writeHeader(clearDirty bool) error {
	idxEntry := BlockEntry{}
	if live := f.index.find(BlockTypeIndex, 0); live != nil {
		idxEntry = *live
	}
	dirty := uint32(1)
	if clearDirty {
		dirty = 0
		f.dirty = false
	} else {
		f.dirty = true
	}
	hdr := fileHeader{
		compType:   f.compType,
		dirty:      dirty,
		domVersion: f.domVersion,
		fileSize:   uint32(f.fileSize),
		indexBlock: idxEntry,
	}
	buf := hdr.encode()
	if _, err := f.stream.Seek(0, io.SeekStart); err != nil {
		return base.IoErrorf(err, "domcache: seek header")
	}
	if _, err := f.stream.Write(buf); err != nil {
		return base.IoErrorf(err, "domcache: write header")
	}
	return nil
}

// Flush writes the index block and, if clearDirty is true, rewrites the
// header with dirty=0 after fsync'ing the data (spec.md §4.1, §5). deadline
// is accepted for interface symmetry with other staged operations but a
// flush is never itself suspended mid-way: it either completes or returns an
// error, preserving the "intermediate cache file is always parsable" Ordering
// Guarantee in SPEC_FULL.md §5.
func (f *File) Flush(clearDirty bool, _ base.Deadline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexDirty {
		if err := f.writeIndexBlock(); err != nil {
			return err
		}
	}
	if clearDirty {
		if s, ok := f.stream.(syncer); ok {
			if err := s.Sync(); err != nil {
				return base.IoErrorf(err, "domcache: fsync before commit")
			}
		}
	}
	if err := f.writeHeader(clearDirty); err != nil {
		return err
	}
	if clearDirty {
		if s, ok := f.stream.(syncer); ok {
			if err := s.Sync(); err != nil {
				return base.IoErrorf(err, "domcache: fsync after commit")
			}
		}
	}
	return nil
}

type syncer interface {
	Sync() error
}
