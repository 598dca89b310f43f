package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/documentreviewflow/internal/discrepancy"
	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/notify"
)

// Gateway calls run on a context detached from the caller: once started, a
// call and its retries run to completion.

// Extract parses raw document text into an ExtractedDocument. Starting an
// extraction invalidates the previous extraction and everything derived from it.
func (s *Session) Extract(ctx context.Context, text string) (*models.ExtractedDocument, error) {
	t, err := s.begin(ctx, StageExtract,
		func(*WorkflowState) string {
			if strings.TrimSpace(text) == "" {
				return "Please enter some text to parse."
			}
			return ""
		},
		s.invalidateExtraction,
	)
	if err != nil {
		return nil, err
	}

	doc, err := s.gen.Extract(context.WithoutCancel(ctx), text)
	if err != nil {
		return nil, s.fail(ctx, t, err,
			"Could not extract data. Please try again.",
			"Failed to extract data. See logs for details.")
	}

	err = s.commit(ctx, t, Transition{
		Stage:   StageExtract,
		Status:  StatusSucceeded,
		Apply:   func(st *WorkflowState) { st.Extracted = doc },
		Intent:  notify.IntentSuccess,
		Message: "Data extracted successfully!",
	}, func() bool { return s.extractRev == t.extractRev })
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Summarize writes a prose summary of the current extraction.
func (s *Session) Summarize(ctx context.Context) (string, error) {
	t, err := s.begin(ctx, StageSummarize, requireExtracted, nil)
	if err != nil {
		return "", err
	}

	summary, err := s.gen.Generate(context.WithoutCancel(ctx), gateway.BuildSummaryPrompt(t.state.Extracted))
	if err != nil {
		return "", s.fail(ctx, t, err,
			"Could not generate summary.",
			"Failed to summarize data. See logs for details.")
	}

	err = s.commit(ctx, t, Transition{
		Stage:   StageSummarize,
		Status:  StatusSucceeded,
		Apply:   func(st *WorkflowState) { st.Summary = summary },
		Intent:  notify.IntentSuccess,
		Message: "Summary generated successfully!",
	}, func() bool { return s.extractRev == t.extractRev })
	if err != nil {
		return "", err
	}
	return summary, nil
}

// Populate fills the reference draft from the text pasted into its summary
// field. Every draft field is overwritten; nulls become empty strings.
func (s *Session) Populate(ctx context.Context) (models.ReferenceDraft, error) {
	t, err := s.begin(ctx, StagePopulate, func(st *WorkflowState) string {
		if strings.TrimSpace(st.Draft.Summary) == "" {
			return "Please paste text into the summary field to populate."
		}
		return ""
	}, nil)
	if err != nil {
		return models.ReferenceDraft{}, err
	}

	draft, err := s.gen.Populate(context.WithoutCancel(ctx), t.state.Draft.Summary)
	if err != nil {
		return models.ReferenceDraft{}, s.fail(ctx, t, err,
			"Could not populate reference. Please try again.",
			"Failed to populate reference. See logs for details.")
	}

	_ = s.commit(ctx, t, Transition{
		Stage:   StagePopulate,
		Status:  StatusSucceeded,
		Apply:   func(st *WorkflowState) { st.Draft = *draft },
		Intent:  notify.IntentSuccess,
		Message: "Reference document populated successfully!",
	}, nil)
	return *draft, nil
}

// Generate compares the extraction with the selected reference and writes
// the CTD or discrepancy report. The output kind is fixed and any previous
// output and critique are cleared before the call is made.
func (s *Session) Generate(ctx context.Context) (string, error) {
	var cmp discrepancy.Result
	t, err := s.begin(ctx, StageGenerate,
		func(st *WorkflowState) string {
			if st.Extracted == nil || st.Reference == nil {
				return "Please extract data and select a reference document first."
			}
			return ""
		},
		func() {
			s.invalidateOutput()
			cmp = discrepancy.Compare(s.state.Extracted, s.state.Reference)
			s.state.OutputKind = cmp.Kind
		},
	)
	if err != nil {
		return "", err
	}
	kind := cmp.Kind
	refID := t.state.Reference.ID
	s.logger.Info("Comparison decided output kind.", "outputKind", kind, "missing", len(cmp.Missing), "unexpected", len(cmp.Unexpected))

	prompt := gateway.BuildReportPrompt(cmp, t.state.Extracted, t.state.Reference)
	output, err := s.gen.Generate(context.WithoutCancel(ctx), prompt)
	if err != nil {
		return "", s.fail(ctx, t, err,
			fmt.Sprintf("Could not generate %s. Please try again.", kind),
			fmt.Sprintf("Failed to generate %s. See logs for details.", kind))
	}

	err = s.commit(ctx, t, Transition{
		Stage:   StageGenerate,
		Status:  StatusSucceeded,
		Apply:   func(st *WorkflowState) { st.GeneratedOutput = output },
		Intent:  notify.IntentSuccess,
		Message: fmt.Sprintf("%s generated successfully!", kind),
	}, func() bool {
		return s.outputRev == t.outputRev && s.state.Reference != nil && s.state.Reference.ID == refID
	})
	if err != nil {
		return "", err
	}
	return output, nil
}

// Critique reviews the current output. A failed critique keeps the output.
func (s *Session) Critique(ctx context.Context) (string, error) {
	t, err := s.begin(ctx, StageCritique, requireOutput("Please generate a report first."), nil)
	if err != nil {
		return "", err
	}

	critique, err := s.gen.Generate(context.WithoutCancel(ctx), gateway.BuildCritiquePrompt(t.state.GeneratedOutput))
	if err != nil {
		return "", s.fail(ctx, t, err,
			"Could not generate critique.",
			"Failed to generate critique. See logs for details.")
	}

	err = s.commit(ctx, t, Transition{
		Stage:   StageCritique,
		Status:  StatusSucceeded,
		Apply:   func(st *WorkflowState) { st.Critique = critique },
		Intent:  notify.IntentSuccess,
		Message: "Critique generated successfully!",
	}, func() bool { return s.outputRev == t.outputRev })
	if err != nil {
		return "", err
	}
	return critique, nil
}

// Save appends an immutable snapshot of the review to the archive and then
// resets the workflow. Mirror failures are reported but never undo the save.
func (s *Session) Save(ctx context.Context) (models.SavedDocument, error) {
	var (
		doc       models.SavedDocument
		appendErr error
	)
	t, err := s.begin(ctx, StageSave, requireOutput("No document to save."), func() {
		st := s.state
		doc = models.SavedDocument{
			ID:              s.newID(),
			ExtractedData:   st.Extracted,
			GeneratedOutput: st.GeneratedOutput,
			OutputKind:      st.OutputKind,
			CreatedAt:       s.now(),
		}
		if st.Reference != nil {
			ref := *st.Reference
			doc.ReferenceDoc = &ref
		}
		if appendErr = s.archive.Append(ctx, doc); appendErr != nil {
			return
		}
		s.invalidateExtraction()
		s.state.Reference = nil
	})
	if err != nil {
		return models.SavedDocument{}, err
	}
	if appendErr != nil {
		return models.SavedDocument{}, s.fail(ctx, t, fmt.Errorf("append saved document: %w", appendErr),
			"Error saving document. See logs for details.",
			"Error saving document. See logs for details.")
	}

	_ = s.commit(ctx, t, Transition{
		Stage:   StageSave,
		Status:  StatusSucceeded,
		Intent:  notify.IntentSuccess,
		Message: "Document saved successfully!",
	}, nil)

	if err := s.mirrors.Replicate(context.WithoutCancel(ctx), doc); err != nil {
		s.logger.Warn("Saved document was not mirrored everywhere.", "savedDocumentId", doc.ID, "error", err)
		s.emit(ctx, StageSave, notify.IntentFailure, "Document saved, but copying it to external storage failed.")
	}
	return doc, nil
}

// Speak synthesizes the current output and hands it to the speaker, which
// stops any clip already playing.
func (s *Session) Speak(ctx context.Context) (*gateway.Speech, error) {
	t, err := s.begin(ctx, StageSpeak, requireOutput("There is no text to read aloud."), nil)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, StageSpeak, notify.IntentInfo, "Reading aloud...")

	speech, err := s.gen.Synthesize(context.WithoutCancel(ctx), t.state.GeneratedOutput)
	if err != nil {
		return nil, s.fail(ctx, t, err,
			"Could not get audio data from API.",
			"Failed to generate speech. See logs for details.")
	}

	if s.speaker != nil {
		if _, err := s.speaker.Play(context.WithoutCancel(ctx), speech.Data, speech.MIMEType); err != nil {
			return nil, s.fail(ctx, t, err,
				"Failed to play audio.",
				"Failed to play audio.")
		}
	}

	_ = s.commit(ctx, t, Transition{
		Stage:  StageSpeak,
		Status: StatusSucceeded,
	}, nil)
	return speech, nil
}

func requireExtracted(st *WorkflowState) string {
	if st.Extracted == nil {
		return "Please extract data first."
	}
	return ""
}

func requireOutput(msg string) func(*WorkflowState) string {
	return func(st *WorkflowState) string {
		if st.GeneratedOutput == "" {
			return msg
		}
		return ""
	}
}
