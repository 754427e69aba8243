// Package handler implements the docsnap admin HTTP API.
//
// Every JSON response uses the Response envelope. Domain errors are
// mapped to HTTP status codes by the numeric suffix of their code.
package handler
