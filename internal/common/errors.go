// Package common defines shared constants and sentinel errors used across
// the hub core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Crypto errors. ErrCryptoUnavailable means the primitive failed to
	// initialize and is fatal; ErrAuthenticationFailed means tampered or
	// mismatched ciphertext and must never be swallowed.
	ErrCryptoUnavailable    = errors.New("crypto unavailable")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Key-distribution errors. Callers should retry room setup on
	// ErrNoRoomKey and report "cannot decrypt" on ErrRecipientKeyMissing.
	ErrNoRoomKey           = errors.New("no room key for user")
	ErrRecipientKeyMissing = errors.New("no sealed key for recipient")

	// Transfer errors (recoverable by caller retry; the core does not
	// auto-retry).
	ErrTransferFailed = errors.New("transfer failed")

	// File lifecycle errors.
	ErrFileExpired = errors.New("file expired")

	// Session token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
