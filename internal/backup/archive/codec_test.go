package archive

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/pkg/crypto/adaptive"
)

func sampleEnvelope() *Envelope {
	env := NewEnvelope(KindFull, time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.UTC))
	env.SetCollection("users", []domain.Document{
		{"_id": "u1", "name": "Ada", "points": json.Number("12")},
		{"_id": "u2", "name": "Lin"},
	})
	env.SetCollection("guilds", nil)
	return env
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"_id":"x","v":1}`, 200))

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			packed, err := Compress(payload, c)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if Sniff(packed) != c {
				t.Errorf("Sniff() = %s, want %s", Sniff(packed), c)
			}
			unpacked, err := Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(unpacked, payload) {
				t.Error("Decompress(Compress(x)) != x")
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionGzip, false},
		{"none", CompressionNone, false},
		{"zstd", CompressionZstd, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCompression(%q) = (%s, %v), want %s", tt.in, got, err, tt.want)
		}
	}
}

func TestCodec_EncodeDecode(t *testing.T) {
	codec := NewCodec()

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			env := sampleEnvelope()
			data, err := codec.Encode(env, c)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Compressed != (c != CompressionNone) {
				t.Errorf("Compressed = %v for %s", got.Compressed, c)
			}
			if !got.Timestamp.Equal(time.Date(2024, 5, 1, 10, 30, 0, 123000000, time.UTC)) {
				t.Errorf("Timestamp = %v, want millisecond precision", got.Timestamp)
			}
			if got.FormatVersion != FormatVersion || got.Kind != KindFull {
				t.Errorf("header = %s/%s", got.FormatVersion, got.Kind)
			}
			if got.Collections["users"].Count != 2 || got.Statistics.TotalDocuments != 2 {
				t.Errorf("users count = %d, total = %d", got.Collections["users"].Count, got.Statistics.TotalDocuments)
			}
			if _, ok := got.Collections["guilds"]; !ok {
				t.Error("empty collection must be kept")
			}
			if got.Collections["users"].Documents[0]["points"] != json.Number("12") {
				t.Errorf("points = %#v, want json.Number", got.Collections["users"].Documents[0]["points"])
			}
		})
	}
}

func TestCodec_DecodeFormatErrors(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name string
		data string
	}{
		{"missing formatVersion", `{"timestamp":"2024-01-01T00:00:00Z","kind":"full","collections":{}}`},
		{"future major", `{"timestamp":"2024-01-01T00:00:00Z","formatVersion":"3.0","kind":"full"}`},
		{"bad kind", `{"timestamp":"2024-01-01T00:00:00Z","formatVersion":"2.0","kind":"partial"}`},
		{"incremental without base", `{"timestamp":"2024-01-01T00:00:00Z","formatVersion":"2.0","kind":"incremental"}`},
		{"collection with slash", `{"timestamp":"2024-01-01T00:00:00Z","formatVersion":"2.0","kind":"full","collections":{"a/x":{"count":0,"documents":[]}}}`},
		{"collection with dots", `{"timestamp":"2024-01-01T00:00:00Z","formatVersion":"2.0","kind":"full","collections":{"..":{"count":0,"documents":[]}}}`},
		{"not json", `hello`},
		{"broken gzip", "\x1f\x8bnotreally"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.data))
			if !domain.IsDomainError(err, "DS-SNAP-4220") {
				t.Errorf("Decode() error = %v, want format error", err)
			}
		})
	}
}

func TestCodec_DecodeLegacyWithoutKind(t *testing.T) {
	data := `{"timestamp":"2024-01-01T00:00:00Z","formatVersion":"1.0","collections":{"users":{"count":1,"documents":[{"_id":"a"}]}}}`
	env, err := NewCodec().Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if env.Statistics.Collections["users"] != 1 {
		t.Errorf("statistics = %+v", env.Statistics)
	}
}

func TestCodec_Encrypted(t *testing.T) {
	enc, err := NewEncryptor("correct horse battery", adaptive.CipherChaCha20)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	codec := NewCodec(WithEncryptor(enc))

	data, err := codec.Encode(sampleEnvelope(), CompressionGzip)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !IsEncrypted(data) {
		t.Fatal("encoded bytes should carry the encryption header")
	}

	meta, stats, err := codec.DecodeMetadata(data)
	if err != nil {
		t.Fatalf("DecodeMetadata() error = %v", err)
	}
	if !meta.Encrypted || !meta.Compressed || stats.TotalDocuments != 2 {
		t.Errorf("meta = %+v, stats = %+v", meta, stats)
	}

	if _, err := NewCodec().Decode(data); !domain.IsDomainError(err, "DS-SNAP-4220") {
		t.Errorf("Decode() without passphrase error = %v, want format error", err)
	}

	other, _ := NewEncryptor("another passphrase", "")
	if _, err := NewCodec(WithEncryptor(other)).Decode(data); !domain.IsDomainError(err, "DS-SNAP-4220") {
		t.Errorf("Decode() with wrong passphrase error = %v, want format error", err)
	}
}

func TestNewEncryptor_WeakPassphrase(t *testing.T) {
	if _, err := NewEncryptor("short", ""); err != ErrPassphraseTooWeak {
		t.Errorf("NewEncryptor() error = %v, want ErrPassphraseTooWeak", err)
	}
}
