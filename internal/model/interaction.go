package model

import "time"

// InteractionKind enumerates the kinds of interaction the public API can
// append. Negative interactions are modeled as absence plus a short-term
// history filter, not as a distinct kind (spec.md §3).
type InteractionKind string

const (
	InteractionPositive InteractionKind = "Positive"
)

// Interaction is one user-document engagement event. Target is a
// SnippetID; the HTTP interaction API accepts only a document id, which
// resolves to snippet index 0, and has no way to name another snippet
// (spec.md §9 open question, resolved in DESIGN.md).
type Interaction struct {
	UserID    UserID
	Target    SnippetID
	Kind      InteractionKind
	Timestamp time.Time
}
