package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash is the change-detection hash of a source file.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
