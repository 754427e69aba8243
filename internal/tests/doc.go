// Package tests holds end-to-end tests that run docsnap-cli against an
// in-process admin API backed by a real backup directory.
package tests
