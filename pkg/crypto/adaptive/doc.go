// Package adaptive provides authenticated encryption with hardware-aware
// algorithm selection.
//
// AES-256-GCM is chosen where the CPU accelerates AES, ChaCha20-Poly1305
// elsewhere. Each algorithm has a one-byte wire ID so that encrypted
// snapshot files record which cipher sealed them.
//
// Usage:
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	opened, err := c.Decrypt(sealed, aad)
package adaptive
