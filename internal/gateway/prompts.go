package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/documentreviewflow/internal/discrepancy"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
)

// --- Extraction Prompt ---
const ExtractionPrompt = `You are a helpful assistant for extracting data from technical documents. Extract the following information from the provided text into a structured JSON object, following the given schema. Be concise and only include information explicitly found in the text. If a field is not present, use null.

Text to parse:
`

// --- Summary Prompt ---
const SummaryPrompt = `You are an AI assistant for technical document review. Take the following structured data and generate a clear and concise summary in a single paragraph. Focus on the key findings, test results, and overall document purpose.

Data to summarize:
`

// --- Populate Prompt ---
const PopulatePrompt = `Extract the following information from the text provided into a JSON object with the fields 'title', 'number', 'summary', and 'tests' (as a comma-separated string). If a field is not found, leave it as null.

Text to parse:
`

// --- Report Prompts ---
const DiscrepancyReportPrompt = `You are a regulatory expert. Generate a detailed discrepancy report based on a comparison of an extracted document and a reference document. Use semantic similarity, not just literal text matching, to identify issues.
Specifically, highlight:
- Any tests from the extracted document that are semantically different from the reference.
- Any tests required by the reference that are missing from the extracted document.
- A concise summary of the key discrepancies.
`

const CTDReportPrompt = `You are an expert in regulatory documentation. Generate a final CTD summary based on an extracted document and a reference document. The documents have been semantically validated and found to be consistent.

Format the output with a clear title and number. The summary should be a paragraph or two that combines information from both documents, highlighting key findings and confirming full compliance with the reference document's test requirements.
`

// --- Critique Prompt ---
const CritiquePrompt = `You are a helpful peer reviewer. Read the following document and provide constructive feedback and suggestions for improvement. Focus on clarity, tone, completeness, and formatting. The output should be a professional, actionable critique.

Document to critique:
`

// --- Speech Prompt ---
const SpeechPrompt = "Say in a clear and professional voice: "

// BuildSummaryPrompt embeds the extracted document as indented JSON.
func BuildSummaryPrompt(doc *models.ExtractedDocument) string {
	return SummaryPrompt + prettyJSON(doc)
}

// BuildReportPrompt selects the CTD or discrepancy prompt from the comparison
// result and appends both documents.
func BuildReportPrompt(cmp discrepancy.Result, doc *models.ExtractedDocument, ref *models.ReferenceDocument) string {
	var b strings.Builder
	if cmp.Kind == models.OutputDiscrepancy {
		b.WriteString(DiscrepancyReportPrompt)
		if len(cmp.Missing) > 0 {
			fmt.Fprintf(&b, "\nReference tests with no literal match in the extracted document: %s\n", strings.Join(cmp.Missing, ", "))
		}
		if len(cmp.Unexpected) > 0 {
			fmt.Fprintf(&b, "\nExtracted tests with no literal match in the reference document: %s\n", strings.Join(cmp.Unexpected, ", "))
		}
	} else {
		b.WriteString(CTDReportPrompt)
	}
	b.WriteString("\nExtracted Data:\n")
	b.WriteString(prettyJSON(doc))
	b.WriteString("\n\nReference Data:\n")
	b.WriteString(prettyJSON(ref))
	b.WriteString("\n")
	return b.String()
}

// BuildCritiquePrompt wraps a generated report for review.
func BuildCritiquePrompt(output string) string {
	return CritiquePrompt + output
}

func prettyJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(out)
}
