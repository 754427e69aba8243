package archive

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/pkg/crypto/adaptive"
)

// ErrPassphraseTooWeak is returned for passphrases shorter than MinPassphraseLength.
var ErrPassphraseTooWeak = errors.New("archive: passphrase too weak (minimum 8 characters)")

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the per-file salt length used in key derivation.
	SaltLength = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

var encMagic = []byte("DSNAPENC")

const headerLength = 8 + 1 + SaltLength

// IsEncrypted reports whether data starts with the encryption header.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, encMagic)
}

// Encryptor seals encoded envelopes with a passphrase. Every Seal draws a
// fresh salt, so each file has its own key.
type Encryptor struct {
	passphrase []byte
	cipherType adaptive.CipherType
}

// NewEncryptor creates an encryptor. An empty cipherType selects the
// hardware-preferred cipher.
func NewEncryptor(passphrase string, cipherType adaptive.CipherType) (*Encryptor, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if cipherType == "" {
		c, err := adaptive.New(make([]byte, adaptive.KeySize))
		if err != nil {
			return nil, err
		}
		cipherType = c.Type()
	}
	return &Encryptor{passphrase: []byte(passphrase), cipherType: cipherType}, nil
}

func (e *Encryptor) deriveKey(salt []byte) []byte {
	return argon2.IDKey(e.passphrase, salt, argon2Time, argon2Memory, argon2Threads, adaptive.KeySize)
}

// Seal encrypts data. The header is bound to the ciphertext as additional
// data.
func (e *Encryptor) Seal(data []byte) ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("archive: generate salt: %w", err)
	}

	key := e.deriveKey(salt)
	defer zero(key)
	c, err := adaptive.NewWithType(key, e.cipherType)
	if err != nil {
		return nil, fmt.Errorf("archive: init cipher: %w", err)
	}

	header := make([]byte, 0, headerLength)
	header = append(header, encMagic...)
	header = append(header, c.ID())
	header = append(header, salt...)

	sealed, err := c.Encrypt(data, header)
	if err != nil {
		return nil, fmt.Errorf("archive: encrypt: %w", err)
	}
	return append(header, sealed...), nil
}

// Open decrypts data produced by Seal. A wrong passphrase or tampered input
// yields domain.ErrSnapshotFormat.
func (e *Encryptor) Open(data []byte) ([]byte, error) {
	if len(data) < headerLength || !IsEncrypted(data) {
		return nil, domain.ErrSnapshotFormat.WithDetails("truncated encryption header")
	}
	header := data[:headerLength]
	typ, err := adaptive.TypeForID(header[len(encMagic)])
	if err != nil {
		return nil, domain.ErrSnapshotFormat.WithCause(err)
	}

	key := e.deriveKey(header[len(encMagic)+1:])
	defer zero(key)
	c, err := adaptive.NewWithType(key, typ)
	if err != nil {
		return nil, fmt.Errorf("archive: init cipher: %w", err)
	}

	plain, err := c.Decrypt(data[headerLength:], header)
	if err != nil {
		return nil, domain.ErrSnapshotFormat.WithCause(err).WithDetails("decryption failed, wrong passphrase or corrupted file")
	}
	return plain, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
