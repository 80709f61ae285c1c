package cache

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/readflow/domcache/internal/base"
)

// CompressionType selects the pack/unpack implementation used for block
// bodies (spec.md §4.1). It is stored in the header magic banner so a cache
// file built with one compressor is rejected, rather than misread, by a
// build expecting another.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionZlib
	CompressionZstd
)

// magic banners, one per compression type. The trailing tag after "c0m"
// matches the original CoolReader cache file banners (c0m0/c0m1/c0mS) so a
// file inspected with an external hex-dump tool is still recognizable.
var magicBanners = map[CompressionType][headerMagicLen]byte{
	CompressionNone: bannerOf("CoolReader 3 Cache File vX.Y.Z: c0m0\n"),
	CompressionZlib: bannerOf("CoolReader 3 Cache File vX.Y.Z: c0m1\n"),
	CompressionZstd: bannerOf("CoolReader 3 Cache File vX.Y.Z: c0mS\n"),
}

const headerMagicLen = 40

func bannerOf(s string) [headerMagicLen]byte {
	var b [headerMagicLen]byte
	copy(b[:], s)
	return b
}

func compressionFromMagic(magic [headerMagicLen]byte) (CompressionType, bool) {
	for ct, banner := range magicBanners {
		if banner == magic {
			return ct, true
		}
	}
	return 0, false
}

// headerFixedSize is the total size of the first sector's header payload; it
// fits comfortably within one SectorSize sector.
const headerFixedSize = headerMagicLen + 4 + 4 + 4 + 4 + blockEntrySize

// fileHeader is the first-sector record (spec.md §6).
type fileHeader struct {
	compType   CompressionType
	dirty      uint32
	domVersion uint32
	fileSize   uint32
	indexBlock BlockEntry
}

func (h *fileHeader) encode() []byte {
	buf := make([]byte, SectorSize)
	banner := magicBanners[h.compType]
	copy(buf[0:headerMagicLen], banner[:])
	off := headerMagicLen
	binary.LittleEndian.PutUint32(buf[off:off+4], h.dirty)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], h.domVersion)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], h.fileSize)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], 0) // padding
	off += 4
	h.indexBlock.encode(buf[off : off+blockEntrySize])
	return buf
}

func decodeHeader(buf []byte, wantCompression CompressionType, wantDomVersion uint32) (fileHeader, error) {
	if len(buf) < SectorSize {
		return fileHeader{}, base.CorruptionErrorf("domcache: header too short (%d bytes)", len(buf))
	}
	var magic [headerMagicLen]byte
	copy(magic[:], buf[0:headerMagicLen])
	ct, ok := compressionFromMagic(magic)
	if !ok {
		return fileHeader{}, base.CorruptionErrorf("domcache: unrecognized cache file magic %q", bytes.TrimRight(magic[:], "\x00"))
	}
	off := headerMagicLen
	dirty := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	domVersion := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	fileSize := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	off += 4 // padding
	idx, ok := decodeBlockEntry(buf[off : off+blockEntrySize])
	if !ok {
		return fileHeader{}, base.CorruptionErrorf("domcache: header index block entry has bad magic")
	}
	h := fileHeader{compType: ct, dirty: dirty, domVersion: domVersion, fileSize: fileSize, indexBlock: idx}
	if ct != wantCompression {
		return h, base.VersionErrorf("domcache: cache file compression %v does not match requested %v", ct, wantCompression)
	}
	if domVersion != wantDomVersion {
		return h, base.VersionErrorf("domcache: cache file dom_version %d does not match requested %d", domVersion, wantDomVersion)
	}
	if dirty != 0 {
		return h, errors.Mark(base.CorruptionErrorf("domcache: cache file is dirty"), base.ErrDirty)
	}
	return h, nil
}

// String renders a CompressionType for logging/CLI output.
func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}
