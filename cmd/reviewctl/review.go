package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentreviewflow/internal/audio"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/pipeline"
	"github.com/Lllllllleong/documentreviewflow/internal/services"
)

var (
	inputURI      string
	referencePath string
	withSummary   bool
	withCritique  bool
	saveResult    bool
	speakResult   bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Extract a document and generate a CTD section or discrepancy report",
	Long: `Extract structured data from --input, compare it with the reference in
--reference and generate the output the comparison calls for.

--input accepts a local path, a file:// URL or a gs://bucket/object URI.
The reference is a YAML file with title, number, summary and tests.`,
	RunE: runReview,
}

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Draft a reference document from specification text",
	RunE:  runPopulate,
}

func init() {
	reviewCmd.Flags().StringVarP(&inputURI, "input", "i", "", "Document to review")
	reviewCmd.Flags().StringVarP(&referencePath, "reference", "r", "", "Reference document YAML file")
	reviewCmd.Flags().BoolVar(&withSummary, "summarize", false, "Also summarize the extracted data")
	reviewCmd.Flags().BoolVar(&withCritique, "critique", false, "Critique the generated output")
	reviewCmd.Flags().BoolVar(&saveResult, "save", false, "Save the review to the archive and configured mirrors")
	reviewCmd.Flags().BoolVar(&speakResult, "speak", false, "Read the generated output aloud")
	_ = reviewCmd.MarkFlagRequired("input")
	_ = reviewCmd.MarkFlagRequired("reference")

	populateCmd.Flags().StringVarP(&inputURI, "input", "i", "", "Specification text to populate from")
	_ = populateCmd.MarkFlagRequired("input")
}

func runReview(cmd *cobra.Command, args []string) error {
	review, ctx, cancel, err := openReview(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer review.Close()

	session, err := review.CreateSession()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := reviewDocument(ctx, review, session, out); err != nil {
		return err
	}
	if speakResult {
		if _, err := session.Speak(ctx); err != nil {
			return err
		}
		waitForPlayback(ctx, review.Renderer())
	}
	if saveResult {
		doc, err := session.Save(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSaved review %s\n", doc.ID)
	}
	return nil
}

// reviewDocument runs extraction through critique and prints each result.
func reviewDocument(ctx context.Context, review *services.ReviewService, session *pipeline.Session, out io.Writer) error {
	ref, err := review.Library().LoadFile(referencePath)
	if err != nil {
		return err
	}
	text, err := review.Load(ctx, inputURI)
	if err != nil {
		return err
	}

	extracted, err := session.Extract(ctx, text)
	if err != nil {
		return err
	}
	if err := printJSON(out, "Extracted data", extracted); err != nil {
		return err
	}
	if withSummary {
		summary, err := session.Summarize(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n## Summary\n\n%s\n", summary)
	}

	if _, err := session.SelectReference(ctx, ref.ID); err != nil {
		return err
	}
	output, err := session.Generate(ctx)
	if err != nil {
		return err
	}
	kind := session.Snapshot().State.OutputKind
	fmt.Fprintf(out, "\n## %s\n\n%s\n", kind, output)

	if withCritique {
		critique, err := session.Critique(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n## Critique\n\n%s\n", critique)
	}
	return nil
}

func waitForPlayback(ctx context.Context, r *audio.Renderer) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for r.Playing() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runPopulate(cmd *cobra.Command, args []string) error {
	review, ctx, cancel, err := openReview(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer review.Close()

	text, err := review.Load(ctx, inputURI)
	if err != nil {
		return err
	}
	session, err := review.CreateSession()
	if err != nil {
		return err
	}
	session.SetDraft(models.ReferenceDraft{Summary: text})
	draft, err := session.Populate(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), "Reference draft", draft)
}

func printJSON(w io.Writer, heading string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", heading, err)
	}
	_, err = fmt.Fprintf(w, "## %s\n\n%s\n", heading, data)
	return err
}
