// Package connection is the docsnap-cli client for the admin HTTP API.
//
// Responses arrive in the server's envelope; Do unwraps "data" on success
// and turns error envelopes into *APIError.
package connection
