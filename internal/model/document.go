package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// documentIDPattern matches printable ASCII, no control characters, <=256.
var documentIDPattern = regexp.MustCompile(`^[\x21-\x7e][\x20-\x7e]{0,255}$`)

// DocumentID identifies a document within a tenant.
type DocumentID string

// Valid reports whether d is printable ASCII, <=256 bytes, with no
// control characters, per spec.md's DocumentId grammar.
func (d DocumentID) Valid() bool {
	if len(d) == 0 || len(d) > 256 {
		return false
	}
	return documentIDPattern.MatchString(string(d))
}

func (d DocumentID) String() string { return string(d) }

// UserID has the same lexical rules as DocumentID (spec.md §3).
type UserID = DocumentID

// SnippetID addresses one snippet produced by splitting a document.
type SnippetID struct {
	DocumentID DocumentID
	Index      int
}

func (s SnippetID) String() string {
	return fmt.Sprintf("%s#%d", s.DocumentID, s.Index)
}

// PreprocessingStep selects how a document's snippet is turned into the
// text that gets embedded.
type PreprocessingStep string

const (
	PreprocessNone      PreprocessingStep = "None"
	PreprocessSummarize PreprocessingStep = "Summarize"
)

// Document is the unit of ingestion: a short text snippet plus arbitrary
// JSON properties, embedded into a unit-length vector.
type Document struct {
	ID                DocumentID
	Snippet           string
	Properties        map[string]json.RawMessage
	Embedding         []float32
	PreprocessingStep PreprocessingStep
	PublicationDate   *time.Time
}

// ZeroVector reports whether every component of v is zero.
func ZeroVector(v []float32) bool {
	for _, c := range v {
		if c != 0 {
			return false
		}
	}
	return true
}

// IngestOutcome is the per-document result of a batch upsert.
type IngestOutcome struct {
	DocumentID DocumentID
	OK         bool
	ErrorKind  string
	ErrorMsg   string
}
