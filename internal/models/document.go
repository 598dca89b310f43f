package models

import "time"

// OutputKind identifies which report the generate stage produced.
type OutputKind string

const (
	OutputNone        OutputKind = ""
	OutputCTD         OutputKind = "CTD"
	OutputDiscrepancy OutputKind = "Discrepancy"
)

// ExtractedTest is one test entry pulled out of the source document.
// Both fields are nullable because the model reports absent values as null.
type ExtractedTest struct {
	Name   *string `json:"test_name" firestore:"testName"`
	Result *string `json:"result" firestore:"result"`
}

// ExtractedDocument is the structured result of the extraction stage.
// It is replaced wholesale on re-extraction and never edited in place.
type ExtractedDocument struct {
	Title        *string         `json:"document_title" firestore:"title"`
	Number       *string         `json:"document_number" firestore:"number"`
	RevisionDate *string         `json:"revision_date" firestore:"revisionDate"`
	Summary      *string         `json:"summary" firestore:"summary"`
	Tests        []ExtractedTest `json:"tests" firestore:"tests"`
}

// TestNames returns the test names in document order, with null names as "".
func (d *ExtractedDocument) TestNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Tests))
	for _, t := range d.Tests {
		names = append(names, Deref(t.Name))
	}
	return names
}

// ReferenceDocument is a reference specification created from a draft.
type ReferenceDocument struct {
	ID        string    `json:"id" yaml:"id" firestore:"id"`
	Title     string    `json:"title" yaml:"title" firestore:"title"`
	Number    string    `json:"number" yaml:"number" firestore:"number"`
	Summary   string    `json:"summary" yaml:"summary" firestore:"summary"`
	Tests     []string  `json:"tests" yaml:"tests" firestore:"tests"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt" firestore:"createdAt"`
}

// ReferenceDraft holds the reference-authoring form fields. Tests is a
// comma-separated list until the draft is turned into a ReferenceDocument.
type ReferenceDraft struct {
	Title   string `json:"title" yaml:"title"`
	Number  string `json:"number" yaml:"number"`
	Summary string `json:"summary" yaml:"summary"`
	Tests   string `json:"tests" yaml:"tests"`
}

// SavedDocument is an immutable archive snapshot of a finished review.
type SavedDocument struct {
	ID              string             `json:"id" firestore:"id"`
	ExtractedData   *ExtractedDocument `json:"extractedData" firestore:"extractedData"`
	ReferenceDoc    *ReferenceDocument `json:"referenceDoc" firestore:"referenceDoc"`
	GeneratedOutput string             `json:"generatedOutput" firestore:"generatedOutput"`
	OutputKind      OutputKind         `json:"outputKind" firestore:"outputKind"`
	CreatedAt       time.Time          `json:"createdAt" firestore:"createdAt"`
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
