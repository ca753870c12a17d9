package safety

import "crypto/subtle"

// SecureCompare reports whether two tokens are equal using a constant-time
// comparison, so webhook authentication does not leak token length prefixes
// through timing.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
