package cache

import (
	"bytes"
	"compress/zlib"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/readflow/domcache/internal/base"
)

// compressor packs/unpacks block payloads. Resources (encoder/decoder
// contexts, z_stream-equivalents) are allocated lazily and released by
// cleanup, mirroring the source's zstdAllocComp/zstdCleanComp and
// zlibAllocCompRes/zlibCompCleanup pairs: callers request compression per
// write call and a save/load session calls cleanup once at the end.
type compressor struct {
	typ CompressionType

	mu      sync.Mutex
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

func newCompressor(typ CompressionType) *compressor {
	return &compressor{typ: typ}
}

// pack compresses buf. ok is false when typ is CompressionNone (caller
// stores the bytes verbatim and records UncompressedSize=0).
func (c *compressor) pack(buf []byte) (packed []byte, ok bool, err error) {
	switch c.typ {
	case CompressionNone:
		return nil, false, nil
	case CompressionZlib:
		var out bytes.Buffer
		w := zlib.NewWriter(&out)
		if _, err := w.Write(buf); err != nil {
			return nil, false, base.IoErrorf(err, "domcache: zlib pack")
		}
		if err := w.Close(); err != nil {
			return nil, false, base.IoErrorf(err, "domcache: zlib pack close")
		}
		return out.Bytes(), true, nil
	case CompressionZstd:
		enc, err := c.zstdEncoder()
		if err != nil {
			return nil, false, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return enc.EncodeAll(buf, nil), true, nil
	default:
		return nil, false, base.CorruptionErrorf("domcache: unknown compression type %d", c.typ)
	}
}

// unpack decompresses packed into uncompressedSize bytes.
func (c *compressor) unpack(packed []byte, uncompressedSize int) ([]byte, error) {
	switch c.typ {
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(packed))
		if err != nil {
			return nil, base.CorruptionErrorf("domcache: zlib unpack: %v", err)
		}
		defer r.Close()
		out := make([]byte, 0, uncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, base.CorruptionErrorf("domcache: zlib unpack: %v", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		dec, err := c.zstdDecoder()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		out, err := dec.DecodeAll(packed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, base.CorruptionErrorf("domcache: zstd unpack: %v", err)
		}
		return out, nil
	default:
		return nil, base.CorruptionErrorf("domcache: unpack called with compression type %d", c.typ)
	}
}

func (c *compressor) zstdEncoder() (*zstd.Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zstdEnc == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, base.IoErrorf(err, "domcache: allocate zstd encoder")
		}
		c.zstdEnc = enc
	}
	return c.zstdEnc, nil
}

func (c *compressor) zstdDecoder() (*zstd.Decoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zstdDec == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, base.IoErrorf(err, "domcache: allocate zstd decoder")
		}
		c.zstdDec = dec
	}
	return c.zstdDec, nil
}

// cleanup releases streaming compression resources at the end of a
// save/load session, matching cleanup_compressor/cleanup_decompressor in
// spec.md §4.1.
func (c *compressor) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zstdEnc != nil {
		_ = c.zstdEnc.Close()
		c.zstdEnc = nil
	}
	if c.zstdDec != nil {
		c.zstdDec.Close()
		c.zstdDec = nil
	}
}
