// Package tlsroots manages TLS material for the admin API.
//
// Pool builds the trust store docsnap-cli uses to reach a server with a
// private CA. CertReloader serves the server's key pair and swaps it in
// place when the files change on disk.
package tlsroots
