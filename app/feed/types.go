package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is the normalized description of one newly discovered item. It is
// produced by the push and poll ingestion paths and consumed exactly once by
// the pipeline orchestrator.
type Event struct {
	ItemID      string
	Title       string
	URL         string
	PublishedAt time.Time
	ChannelID   string
	Author      string
}

// Hash returns the stable digest over the item identity used by the dedup
// gate. Two deliveries of the same item always produce the same hash no
// matter which ingestion path carried them.
func (e Event) Hash() string {
	content := fmt.Sprintf("%s|%s", e.ItemID, e.Title)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
