// Package compress handles the Content-Encoding of HTTP response bodies.
// ZStandard and gzip are supported; identity bodies pass through.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Content-Encoding tokens.
const (
	EncodingZstd     = "zstd"
	EncodingGzip     = "gzip"
	EncodingIdentity = "identity"
)

// AcceptEncoding is the Accept-Encoding value matching Decompressor.
const AcceptEncoding = EncodingZstd + ", " + EncodingGzip

var (
	// ErrUnsupportedEncoding is returned for a Content-Encoding other than
	// zstd, gzip or identity.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrTooLarge is returned when a body decodes to more than the
	// decompressor's size limit.
	ErrTooLarge = errors.New("decompressed body exceeds size limit")
)

// Decompressor decodes response bodies.
// Create once and reuse; safe for concurrent use.
type Decompressor struct {
	zstd    *zstd.Decoder
	maxSize int64
}

// NewDecompressor creates a reusable decompressor whose output is capped at
// maxSize bytes. A maxSize of 0 or less means no limit.
// Caller must call Close() when done to release resources.
func NewDecompressor(maxSize int64) (*Decompressor, error) {
	var opts []zstd.DOption
	if maxSize > 0 {
		// Frames declare at least a 1 KB window; checkSize enforces smaller limits.
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(max(maxSize, zstd.MinWindowSize))))
	}
	decoder, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Decompressor{zstd: decoder, maxSize: maxSize}, nil
}

// Decompress decodes body according to encoding, the raw Content-Encoding
// header value. An empty encoding means identity.
func (d *Decompressor) Decompress(encoding string, body []byte) ([]byte, error) {
	switch normalize(encoding) {
	case "", EncodingIdentity:
		return d.checkSize(body)
	case EncodingZstd:
		if len(body) == 0 {
			return []byte{}, nil
		}
		// DecodeAll is goroutine-safe
		out, err := d.zstd.DecodeAll(body, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTooLarge, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decompress zstd: %w", err)
		}
		return d.checkSize(out)
	case EncodingGzip:
		if len(body) == 0 {
			return []byte{}, nil
		}
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer r.Close()
		var src io.Reader = r
		if d.maxSize > 0 {
			src = io.LimitReader(r, d.maxSize+1)
		}
		out, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		return d.checkSize(out)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

func (d *Decompressor) checkSize(out []byte) ([]byte, error) {
	if d.maxSize > 0 && int64(len(out)) > d.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxSize)
	}
	return out, nil
}

// Close releases decompressor resources.
func (d *Decompressor) Close() {
	if d.zstd != nil {
		d.zstd.Close()
	}
}

// Compressor encodes bodies; the counterpart used by test servers.
type Compressor struct {
	zstd *zstd.Encoder
}

// NewCompressor creates a reusable compressor.
// Uses SpeedDefault (level 3) for zstd.
func NewCompressor() (*Compressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Compressor{zstd: encoder}, nil
}

// Compress encodes data with encoding.
func (c *Compressor) Compress(encoding string, data []byte) ([]byte, error) {
	switch normalize(encoding) {
	case "", EncodingIdentity:
		return data, nil
	case EncodingZstd:
		return c.zstd.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case EncodingGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

// Close releases compressor resources.
func (c *Compressor) Close() error {
	if c.zstd != nil {
		return c.zstd.Close()
	}
	return nil
}

func normalize(encoding string) string {
	return strings.ToLower(strings.TrimSpace(encoding))
}
