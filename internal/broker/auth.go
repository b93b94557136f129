package broker

import (
	"crypto/sha256"
	"crypto/subtle"
)

// maxAuthAttempts is the number of AUTH failures tolerated before the
// connection is closed.
const maxAuthAttempts = 3

// tokensEqual compares a and b in constant time over a fixed-size digest so
// neither length nor content leak through timing: hashing first means the
// comparison subtle.ConstantTimeCompare performs is always between two
// 32-byte slices, never short-circuiting on the *original* strings' byte
// lengths.
func tokensEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
