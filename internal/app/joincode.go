package app

import (
	"math/rand"
	"time"
)

const (
	joinCodeLength  = 6
	joinCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codeRnd = rand.New(rand.NewSource(time.Now().UnixNano()))

// generateJoinCode produces a short human-typeable code. Codes are
// generated already normalized to uppercase and compared exactly, so a
// client must submit the code as displayed.
func generateJoinCode() string {
	buf := make([]byte, joinCodeLength)
	for i := range buf {
		buf[i] = joinCodeCharset[codeRnd.Intn(len(joinCodeCharset))]
	}
	return string(buf)
}
