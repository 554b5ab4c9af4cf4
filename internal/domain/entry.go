package domain

import (
	"fmt"
	"time"
)

// KeyFormat is the durable-store key layout for chat entries: UTC ISO-8601
// with microsecond precision and fixed width, so lexicographic key order
// equals chronological order.
const KeyFormat = "2006-01-02T15:04:05.000000Z"

// displayFormat is the human-readable timestamp used on the wire.
const displayFormat = "2006-01-02 15:04:05"

// DefaultSenderLabel is the label attached to every entry. Sessions are
// anonymous, so there is no per-client identity to attribute.
const DefaultSenderLabel = "User"

// ChatEntry is one persisted, timestamp-keyed message. Immutable once
// written.
type ChatEntry struct {
	Timestamp time.Time `json:"ts"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
}

// NewChatEntry builds an entry at the given instant. The caller is
// responsible for key uniqueness (see service.Room key assignment).
func NewChatEntry(ts time.Time, sender, body string) ChatEntry {
	return ChatEntry{
		Timestamp: ts.UTC(),
		Sender:    sender,
		Body:      body,
	}
}

// Key returns the durable-store sort key for the entry.
func (e ChatEntry) Key() string {
	return e.Timestamp.UTC().Format(KeyFormat)
}

// Render formats the entry as a client-facing text frame.
func (e ChatEntry) Render() string {
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.UTC().Format(displayFormat), e.Sender, e.Body)
}

// ParseKey converts a durable-store key back into its timestamp.
func ParseKey(key string) (time.Time, error) {
	ts, err := time.Parse(KeyFormat, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid entry key %q: %w", key, err)
	}
	return ts, nil
}
