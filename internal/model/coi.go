package model

import (
	"time"

	"github.com/google/uuid"
)

// CoI is one center of interest: a unit-length point in embedding space
// plus the bookkeeping needed for relevance scoring and state.
type CoI struct {
	ID        uuid.UUID
	Point     []float32
	ViewCount uint64
	LastView  time.Time
	Created   time.Time
}

// ProfileState reflects how much signal a user's profile carries, per
// spec.md's Unknown/Warming/Personalized ramp.
type ProfileState string

const (
	ProfileUnknown      ProfileState = "Unknown"
	ProfileWarming      ProfileState = "Warming"
	ProfilePersonalized ProfileState = "Personalized"
)

// UserProfile is the full CoI state for one user. Negative is carried in
// the schema but never mutated by the public API; coi_score only ever
// sums over Positive.
type UserProfile struct {
	UserID   UserID
	Positive []CoI
	Negative []CoI
}

// KeyPhrase is one extracted phrase for a CoI, with its blended score.
type KeyPhrase struct {
	Text  string
	Score float64
}
