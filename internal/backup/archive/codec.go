package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// Compression selects the on-disk compression of an envelope.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseCompression parses a configuration value. Empty means gzip.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "":
		return CompressionGzip, nil
	case CompressionNone, CompressionGzip, CompressionZstd:
		return Compression(s), nil
	default:
		return "", domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown compression %q", s))
	}
}

// Extension returns the filename suffix for the compression.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".json.gz"
	case CompressionZstd:
		return ".json.zst"
	default:
		return ".json"
	}
}

// Sniff detects the compression of data from its leading bytes.
func Sniff(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdInitErr
}

// Compress compresses data with c.
func Compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil

	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil

	case CompressionZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd init: %w", err)
		}
		return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil

	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown compression %q", c))
	}
}

// Decompress reverses Compress, detecting the algorithm from data.
func Decompress(data []byte) ([]byte, error) {
	switch Sniff(data) {
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip open: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil

	case CompressionZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd init: %w", err)
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil

	default:
		return data, nil
	}
}

// Codec serializes envelopes. A Codec with an Encryptor seals every
// encoded envelope and can open sealed ones.
type Codec struct {
	enc *Encryptor
}

// Option configures a Codec.
type Option func(*Codec)

// WithEncryptor enables envelope encryption.
func WithEncryptor(e *Encryptor) Option {
	return func(c *Codec) { c.enc = e }
}

// NewCodec creates a codec.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypted reports whether Encode seals its output.
func (c *Codec) Encrypted() bool {
	return c.enc != nil
}

// Encode serializes env. env.Compressed and env.Statistics are updated to
// match what is written.
func (c *Codec) Encode(env *Envelope, comp Compression) ([]byte, error) {
	if comp == "" {
		comp = CompressionNone
	}
	env.Compressed = comp != CompressionNone
	env.Statistics = env.ComputeStatistics()
	if env.FormatVersion == "" {
		env.FormatVersion = FormatVersion
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	data, err := Compress(raw, comp)
	if err != nil {
		return nil, err
	}
	if c.enc != nil {
		return c.enc.Seal(data)
	}
	return data, nil
}

// Decode parses bytes produced by Encode. Malformed input and missing
// formatVersion yield domain.ErrSnapshotFormat.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	env, _, err := c.decode(data)
	return env, err
}

// DecodeMetadata decodes data and returns the header plus statistics.
func (c *Codec) DecodeMetadata(data []byte) (Metadata, Statistics, error) {
	env, encrypted, err := c.decode(data)
	if err != nil {
		return Metadata{}, Statistics{}, err
	}
	return Metadata{
		Timestamp:     env.Timestamp,
		FormatVersion: env.FormatVersion,
		Kind:          env.Kind,
		BasedOn:       env.BasedOn,
		Compressed:    env.Compressed,
		Encrypted:     encrypted,
	}, env.Statistics, nil
}

func (c *Codec) decode(data []byte) (*Envelope, bool, error) {
	encrypted := IsEncrypted(data)
	if encrypted {
		if c.enc == nil {
			return nil, true, domain.ErrSnapshotFormat.WithDetails("snapshot is encrypted and no passphrase is configured")
		}
		opened, err := c.enc.Open(data)
		if err != nil {
			return nil, true, err
		}
		data = opened
	}

	raw, err := Decompress(data)
	if err != nil {
		return nil, encrypted, domain.ErrSnapshotFormat.WithCause(err).WithDetails("decompress")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, encrypted, domain.ErrSnapshotFormat.WithCause(err).WithDetails("parse json")
	}
	if err := env.Validate(); err != nil {
		return nil, encrypted, err
	}
	if env.Collections == nil {
		env.Collections = make(map[string]CollectionData)
	}
	env.Statistics = env.ComputeStatistics()
	return &env, encrypted, nil
}
