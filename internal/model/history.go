package model

import "time"

// UserHistoryEntry records one document a user interacted with, used to
// exclude already-seen documents from later results.
type UserHistoryEntry struct {
	UserID     UserID
	DocumentID DocumentID
	ShownAt    time.Time
}
