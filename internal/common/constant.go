// Package common contains shared constants and sentinel errors used across
// hub core components.
package common

// DefaultChunkSize is the plaintext chunk size used by the file stream
// cipher when the configuration does not override it.
const DefaultChunkSize = 64 * 1024
