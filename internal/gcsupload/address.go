package gcsupload

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Digest returns the hex SHA-1 of the payload. Identical bytes always map to
// the same digest, which is what makes re-uploads idempotent.
func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ObjectKey builds the per-user storage key for a payload: {userID}/{sha1}.
func ObjectKey(userID string, data []byte) string {
	return fmt.Sprintf("%s/%s", userID, Digest(data))
}
