package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

var testKey = func() []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}()

var allTypes = []CipherType{CipherAESGCM, CipherChaCha20}

func TestNew(t *testing.T) {
	c, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Type() != CipherAESGCM && c.Type() != CipherChaCha20 {
		t.Errorf("New() returned unknown cipher type: %s", c.Type())
	}
}

func TestNewWithType_KeySize(t *testing.T) {
	for _, typ := range allTypes {
		for _, n := range []int{0, 16, 24, 33} {
			if _, err := NewWithType(make([]byte, n), typ); err == nil {
				t.Errorf("NewWithType(%s, %d-byte key) should fail", typ, n)
			}
		}
	}
	if _, err := NewWithType(testKey, "rot13"); err == nil {
		t.Error("NewWithType(unknown) should fail")
	}
}

func TestTypeForID(t *testing.T) {
	for _, typ := range allTypes {
		c, err := NewWithType(testKey, typ)
		if err != nil {
			t.Fatalf("NewWithType(%s) error = %v", typ, err)
		}
		got, err := TypeForID(c.ID())
		if err != nil || got != typ {
			t.Errorf("TypeForID(%d) = (%s, %v), want %s", c.ID(), got, err, typ)
		}
	}
	if _, err := TypeForID(0); err == nil {
		t.Error("TypeForID(0) should fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	tests := []struct {
		name           string
		plaintext      []byte
		additionalData []byte
	}{
		{"Empty", []byte{}, nil},
		{"Simple", []byte("hello world"), nil},
		{"With AAD", []byte("secret data"), []byte("authenticated")},
		{"Large", bytes.Repeat([]byte("A"), 4096), nil},
	}

	for _, typ := range allTypes {
		c, err := NewWithType(testKey, typ)
		if err != nil {
			t.Fatalf("NewWithType(%s) error = %v", typ, err)
		}
		for _, tt := range tests {
			t.Run(string(typ)+"/"+tt.name, func(t *testing.T) {
				sealed, err := c.Encrypt(tt.plaintext, tt.additionalData)
				if err != nil {
					t.Fatalf("Encrypt() error = %v", err)
				}
				if want := len(tt.plaintext) + c.NonceSize() + c.Overhead(); len(sealed) != want {
					t.Errorf("sealed length = %d, want %d", len(sealed), want)
				}
				opened, err := c.Decrypt(sealed, tt.additionalData)
				if err != nil {
					t.Fatalf("Decrypt() error = %v", err)
				}
				if !bytes.Equal(opened, tt.plaintext) {
					t.Errorf("Decrypt() = %q, want %q", opened, tt.plaintext)
				}
			})
		}
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	for _, typ := range allTypes {
		t.Run(string(typ), func(t *testing.T) {
			c, _ := NewWithType(testKey, typ)
			sealed, err := c.Encrypt([]byte("secret message"), []byte("aad"))
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			tampered := append([]byte(nil), sealed...)
			tampered[len(tampered)-1] ^= 0xFF
			if _, err := c.Decrypt(tampered, []byte("aad")); err == nil {
				t.Error("Decrypt() should fail for tampered ciphertext")
			}
			if _, err := c.Decrypt(sealed, []byte("other")); err == nil {
				t.Error("Decrypt() should fail for wrong AAD")
			}
			if _, err := c.Decrypt(make([]byte, c.NonceSize()-1), nil); !errors.Is(err, ErrCiphertextTooShort) {
				t.Errorf("Decrypt(short) error = %v, want ErrCiphertextTooShort", err)
			}
		})
	}
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	c, _ := New(testKey)
	a, _ := c.Encrypt([]byte("same"), nil)
	b, _ := c.Encrypt([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext must differ")
	}
}
