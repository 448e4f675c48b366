package cache

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/crypto/chacha20poly1305"
)

// Compression selects how values are compressed at rest.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown cache compression %q", name)
	}
}

// KeySize is the required length of the at-rest encryption key.
const KeySize = chacha20poly1305.KeySize

// blobVersion prefixes every encrypted value and is authenticated together
// with the cache key, so a blob copied under another key fails to open.
const blobVersion byte = 0x01

var (
	errCorruptFrame   = errors.New("cache: corrupt value frame")
	errIncompressible = errors.New("cache: value is incompressible")
)

// Codec turns encoded values into their at-rest form and back.
// Frame: [compression tag][payload]; lz4 payloads carry a 4-byte
// uncompressed length first. Encryption wraps the whole frame as
// [version][nonce][ciphertext+tag].
type Codec struct {
	compression Compression
	aead        cipher.AEAD
	zenc        *zstd.Encoder
	zdec        *zstd.Decoder
}

// NewCodec builds a codec. A nil key disables encryption.
func NewCodec(compression Compression, key []byte) (*Codec, error) {
	c := &Codec{compression: compression}

	switch compression {
	case CompressionNone, CompressionLZ4:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		c.zenc = enc
		c.zdec = dec
	default:
		return nil, fmt.Errorf("unsupported cache compression: %d", compression)
	}

	if len(key) > 0 {
		if len(key) != KeySize {
			return nil, fmt.Errorf("cache encryption key must be %d bytes, got %d", KeySize, len(key))
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create XChaCha20-Poly1305 cipher: %w", err)
		}
		c.aead = aead
	}

	return c, nil
}

func (c *Codec) Encrypted() bool {
	return c != nil && c.aead != nil
}

func (c *Codec) Encode(key string, plain []byte) ([]byte, error) {
	if c == nil {
		return plain, nil
	}

	frame, err := c.compress(plain)
	if err != nil {
		return nil, err
	}
	if c.aead == nil {
		return frame, nil
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(frame)+c.aead.Overhead())
	out[0] = blobVersion
	nonce := out[1 : 1+chacha20poly1305.NonceSizeX]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(out, nonce, frame, additionalData(key)), nil
}

func (c *Codec) Decode(key string, blob []byte) ([]byte, error) {
	if c == nil {
		return blob, nil
	}

	frame := blob
	if c.aead != nil {
		if len(blob) < 1+chacha20poly1305.NonceSizeX+c.aead.Overhead() {
			return nil, errCorruptFrame
		}
		if blob[0] != blobVersion {
			return nil, fmt.Errorf("cache: unsupported blob version %d", blob[0])
		}
		nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
		opened, err := c.aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], additionalData(key))
		if err != nil {
			return nil, fmt.Errorf("cache: decrypt value: %w", err)
		}
		frame = opened
	}

	return c.decompress(frame)
}

func (c *Codec) Close() {
	if c == nil {
		return
	}
	if c.zenc != nil {
		_ = c.zenc.Close()
	}
	if c.zdec != nil {
		c.zdec.Close()
	}
}

func (c *Codec) compress(plain []byte) ([]byte, error) {
	switch c.compression {
	case CompressionLZ4:
		packed, err := compressLZ4(plain)
		if errors.Is(err, errIncompressible) {
			return rawFrame(plain), nil
		}
		if err != nil {
			return nil, err
		}
		out := make([]byte, 5, 5+len(packed))
		out[0] = byte(CompressionLZ4)
		binary.BigEndian.PutUint32(out[1:5], uint32(len(plain)))
		return append(out, packed...), nil
	case CompressionZstd:
		out := []byte{byte(CompressionZstd)}
		return c.zenc.EncodeAll(plain, out), nil
	default:
		return rawFrame(plain), nil
	}
}

func (c *Codec) decompress(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errCorruptFrame
	}

	switch Compression(frame[0]) {
	case CompressionNone:
		return frame[1:], nil
	case CompressionLZ4:
		if len(frame) < 5 {
			return nil, errCorruptFrame
		}
		size := int(binary.BigEndian.Uint32(frame[1:5]))
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(frame[5:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	case CompressionZstd:
		if c.zdec == nil {
			return nil, fmt.Errorf("cache: zstd frame without zstd codec")
		}
		out, err := c.zdec.DecodeAll(frame[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, errCorruptFrame
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func rawFrame(plain []byte) []byte {
	out := make([]byte, 1, 1+len(plain))
	out[0] = byte(CompressionNone)
	return append(out, plain...)
}

func additionalData(key string) []byte {
	aad := make([]byte, 1, 1+len(key))
	aad[0] = blobVersion
	return append(aad, key...)
}
