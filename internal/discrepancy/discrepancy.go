// Package discrepancy decides whether an extracted document's tests match a
// reference document's tests.
package discrepancy

import (
	"sort"
	"strings"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
)

// Result describes the outcome of comparing two test-name sets.
// Missing lists reference tests with no match in the extraction; Unexpected
// lists extracted tests with no match in the reference. Both are lower-cased
// and sorted.
type Result struct {
	Kind       models.OutputKind
	Missing    []string
	Unexpected []string
}

// Decide returns OutputCTD when the case-insensitive test-name sets are equal
// and OutputDiscrepancy otherwise. Results and ordering are ignored.
func Decide(extracted *models.ExtractedDocument, reference *models.ReferenceDocument) models.OutputKind {
	return Compare(extracted, reference).Kind
}

// Compare is Decide plus the names that caused a discrepancy.
func Compare(extracted *models.ExtractedDocument, reference *models.ReferenceDocument) Result {
	got := nameSet(extracted.TestNames())
	var refNames []string
	if reference != nil {
		refNames = reference.Tests
	}
	want := nameSet(refNames)

	res := Result{
		Missing:    difference(want, got),
		Unexpected: difference(got, want),
	}
	if len(res.Missing) == 0 && len(res.Unexpected) == 0 {
		res.Kind = models.OutputCTD
	} else {
		res.Kind = models.OutputDiscrepancy
	}
	return res
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// difference returns the sorted members of a that are not in b.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for n := range a {
		if _, ok := b[n]; !ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
