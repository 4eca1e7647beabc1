// Package keycodec marshals key material between raw bytes and the base64
// form used by published documents. It holds no logic beyond encoding.
package keycodec

import "encoding/base64"

// Encode converts key bytes to standard base64 for document storage.
func Encode(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// Decode converts a base64 string produced by Encode back to key bytes.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
