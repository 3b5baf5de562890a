package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewCartID returns an opaque anonymous cart token made of a base36
// timestamp and a random suffix.
func NewCartID() string {
	return newCartID(time.Now())
}

func newCartID(now time.Time) string {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + hex.EncodeToString(suffix)
}
