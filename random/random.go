package random

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

// CallbackID returns a correlation token for a script call. The
// millisecond timestamp and the caller supplied sequence number keep
// tokens distinct within a process; the random suffix keeps them
// distinct across bridge instances sharing one host.
func CallbackID(now time.Time, seq uint64) string {
	return fmt.Sprintf("callback_%d_%d_%s", now.UnixMilli(), seq, Hex(8))
}

// Hex generates secure random bytes of byteCount long
// and returns that in hex encoded string format
func Hex(byteCount int) string {
	buf := make([]byte, byteCount)
	_, err := io.ReadFull(rand.Reader, buf)
	if err != nil {
		panic(err)
	}

	return fmt.Sprintf("%x", buf)
}
