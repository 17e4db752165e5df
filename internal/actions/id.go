package actions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewActionID generates an action item ID of the form ACT-YYYYMMDD-XXXXXXXX.
// The suffix comes from a cryptographic RNG so concurrent generators cannot
// collide.
func NewActionID(t time.Time) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back to
		// a time-derived suffix rather than panicking mid-pipeline.
		nano := uint32(t.UnixNano())
		buf[0] = byte(nano >> 24)
		buf[1] = byte(nano >> 16)
		buf[2] = byte(nano >> 8)
		buf[3] = byte(nano)
	}
	return fmt.Sprintf("ACT-%s-%s", t.UTC().Format("20060102"), hex.EncodeToString(buf[:]))
}
