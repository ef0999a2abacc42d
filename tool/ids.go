package tool

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRequestID returns a random 32 char hex id. It carries no separators so
// it embeds cleanly in callback data like "dl_<id>_<format>".
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ShortID is a shorter random id for work directories and log lines.
func ShortID() string {
	return NewRequestID()[:8]
}
