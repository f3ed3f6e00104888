package game

import "crypto/rand"

const (
	joinCodeLength   = 6
	joinCodeAttempts = 5
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// newJoinCode returns a 6-character code from [A-Z0-9]. Uniqueness is
// enforced by the store; callers retry on conflict.
func newJoinCode() string {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf)
}
