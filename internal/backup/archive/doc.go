// Package archive encodes snapshot envelopes to bytes and back.
//
// An envelope is serialized as JSON, then optionally compressed (gzip or
// zstd) and optionally sealed with a passphrase-derived key:
//
//	plain:      {"timestamp": ..., "formatVersion": "2.0", ...}
//	compressed: gzip(json) | zstd(json)
//	encrypted:  "DSNAPENC" | cipher id | salt[16] | nonce | ciphertext
//
// Decode never trusts the filename: it sniffs the encryption magic and the
// compression magic numbers to undo each layer.
package archive
