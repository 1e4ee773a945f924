package utils

import (
	"fmt"
	"time"
)

// SyntheticSessionID is the fallback session key for clients that did not send one.
func SyntheticSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d", now.UnixMilli())
}
