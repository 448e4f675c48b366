package cache

import (
	"bytes"
	"strings"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	plain := []byte(strings.Repeat(`{"position":"WR","playerId":"p-1"}`, 40))

	tests := []struct {
		name        string
		compression Compression
		key         []byte
	}{
		{"plain", CompressionNone, nil},
		{"lz4", CompressionLZ4, nil},
		{"zstd", CompressionZstd, nil},
		{"lz4 encrypted", CompressionLZ4, key},
		{"zstd encrypted", CompressionZstd, key},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			codec, err := NewCodec(tc.compression, tc.key)
			if err != nil {
				t.Fatalf("new codec: %v", err)
			}
			defer codec.Close()

			blob, err := codec.Encode("lineup:team-1:5", plain)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if tc.compression != CompressionNone && !codec.Encrypted() && len(blob) >= len(plain) {
				t.Fatalf("expected repetitive payload to shrink, got %d >= %d", len(blob), len(plain))
			}

			got, err := codec.Decode("lineup:team-1:5", blob)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

func TestCodec_IncompressibleFallsBackToRawFrame(t *testing.T) {
	codec, err := NewCodec(CompressionLZ4, nil)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	blob, err := codec.Encode("k", []byte("ab"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if Compression(blob[0]) != CompressionNone {
		t.Fatalf("expected raw frame for tiny payload, got tag %d", blob[0])
	}
}

func TestCodec_EncryptionBindsCacheKey(t *testing.T) {
	codec, err := NewCodec(CompressionNone, bytes.Repeat([]byte{1}, KeySize))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	blob, err := codec.Encode("lineup:team-1:5", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := codec.Decode("lineup:team-2:5", blob); err == nil {
		t.Fatalf("expected decode under another key to fail")
	}
	if _, err := codec.Decode("lineup:team-1:5", blob[:10]); err == nil {
		t.Fatalf("expected truncated blob to fail")
	}
}

func TestNewCodec_RejectsBadKey(t *testing.T) {
	if _, err := NewCodec(CompressionNone, []byte("short")); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, " zstd ": CompressionZstd}
	for in, want := range tests {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Fatalf("ParseCompression(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Fatalf("expected unknown compression to fail")
	}
}
