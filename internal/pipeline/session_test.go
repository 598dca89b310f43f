package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Lllllllleong/documentreviewflow/internal/archive"
	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/notify"
)

func strPtr(s string) *string { return &s }

func extractedWith(names ...string) *models.ExtractedDocument {
	doc := &models.ExtractedDocument{Title: strPtr("Pump Qualification"), Number: strPtr("RPT-7")}
	for _, n := range names {
		doc.Tests = append(doc.Tests, models.ExtractedTest{Name: strPtr(n), Result: strPtr("Pass")})
	}
	return doc
}

// fakeGenerator answers every call from its fields. A non-nil gate blocks
// Generate until the test sends on it.
type fakeGenerator struct {
	mu sync.Mutex

	extracted  *models.ExtractedDocument
	extractErr error
	output     string
	genErr     error
	draft      *models.ReferenceDraft
	popErr     error
	speech     *gateway.Speech
	speakErr   error

	gate    chan struct{}
	entered chan struct{}
	prompts []string
	calls   int
}

func (f *fakeGenerator) Extract(context.Context, string) (*models.ExtractedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.extracted, f.extractErr
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output, f.genErr
}

func (f *fakeGenerator) Populate(context.Context, string) (*models.ReferenceDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.draft, f.popErr
}

func (f *fakeGenerator) Synthesize(context.Context, string) (*gateway.Speech, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.speech, f.speakErr
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

type fakeSpeaker struct {
	mu    sync.Mutex
	plays []string
	err   error
}

func (f *fakeSpeaker) Play(_ context.Context, data, mimeType string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.plays = append(f.plays, mimeType)
	return uint64(len(f.plays)), nil
}

func (f *fakeSpeaker) Playing() bool { return false }

type failingArchive struct{ archive.Memory }

func (*failingArchive) Append(context.Context, models.SavedDocument) error {
	return errors.New("disk full")
}

type failingMirror struct{}

func (failingMirror) Name() string { return "broken" }
func (failingMirror) Mirror(context.Context, models.SavedDocument) error { return errors.New("offline") }

type fixture struct {
	session  *Session
	gen      *fakeGenerator
	archive  *archive.Memory
	recorder *notify.Recorder
	speaker  *fakeSpeaker
	ref      models.ReferenceDocument
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		gen:      &fakeGenerator{extracted: extractedWith("Assay", "Purity"), output: "# Report"},
		archive:  archive.NewMemory(),
		recorder: notify.NewRecorder(0),
		speaker:  &fakeSpeaker{},
	}
	lib := NewLibrary()
	f.ref = lib.Put(models.ReferenceDocument{ID: "ref-1", Title: "Pump Spec", Tests: []string{"assay", "purity"}})

	var n int
	opts := Options{
		ID:        "session-1",
		Generator: f.gen,
		Library:   lib,
		Archive:   f.archive,
		Speaker:   f.speaker,
		Messenger: f.recorder,
		Now:       func() time.Time { return time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	f.session = s
	return f
}

func (f *fixture) lastMessage(t *testing.T) notify.Message {
	t.Helper()
	msg, ok := f.recorder.Last()
	require.True(t, ok, "expected a message")
	return msg
}

// ready extracts and selects the reference so report stages can run.
func (f *fixture) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.session.Extract(ctx, "Pump qualification report")
	require.NoError(t, err)
	_, err = f.session.SelectReference(ctx, f.ref.ID)
	require.NoError(t, err)
}

func TestNewSessionStartsIdle(t *testing.T) {
	f := newFixture(t)
	snap := f.session.Snapshot()
	assert.Equal(t, "session-1", snap.ID)
	for _, st := range Stages {
		assert.Equal(t, StatusIdle, snap.Statuses[st], st)
	}

	_, err := NewSession(Options{})
	assert.Error(t, err)
}

func TestExtractStoresDocument(t *testing.T) {
	f := newFixture(t)
	doc, err := f.session.Extract(context.Background(), "Pump qualification report")
	require.NoError(t, err)
	assert.Equal(t, "RPT-7", models.Deref(doc.Number))

	snap := f.session.Snapshot()
	assert.Same(t, doc, snap.State.Extracted)
	assert.Equal(t, StatusSucceeded, snap.Statuses[StageExtract])
	msg := f.lastMessage(t)
	assert.Equal(t, notify.IntentSuccess, msg.Intent)
	assert.Equal(t, "Data extracted successfully!", msg.Text)
	assert.Equal(t, "session-1", msg.SessionID)
}

func TestPreconditionsRejectWithoutCallOrStatusChange(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		stage Stage
		run   func(*Session) error
		msg   string
	}{
		{name: "extract empty text", stage: StageExtract, run: func(s *Session) error {
			_, err := s.Extract(ctx, "   ")
			return err
		}, msg: "Please enter some text to parse."},
		{name: "summarize without extraction", stage: StageSummarize, run: func(s *Session) error {
			_, err := s.Summarize(ctx)
			return err
		}, msg: "Please extract data first."},
		{name: "populate without draft summary", stage: StagePopulate, run: func(s *Session) error {
			_, err := s.Populate(ctx)
			return err
		}, msg: "Please paste text into the summary field to populate."},
		{name: "generate without reference", stage: StageGenerate, run: func(s *Session) error {
			_, err := s.Generate(ctx)
			return err
		}, msg: "Please extract data and select a reference document first."},
		{name: "critique without output", stage: StageCritique, run: func(s *Session) error {
			_, err := s.Critique(ctx)
			return err
		}, msg: "Please generate a report first."},
		{name: "save without output", stage: StageSave, run: func(s *Session) error {
			_, err := s.Save(ctx)
			return err
		}, msg: "No document to save."},
		{name: "speak without output", stage: StageSpeak, run: func(s *Session) error {
			_, err := s.Speak(ctx)
			return err
		}, msg: "There is no text to read aloud."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := tt.run(f.session)
			assert.ErrorIs(t, err, ErrPrecondition)
			assert.Equal(t, 0, f.gen.callCount())
			assert.Equal(t, StatusIdle, f.session.Status(tt.stage))
			msg := f.lastMessage(t)
			assert.Equal(t, notify.IntentFailure, msg.Intent)
			assert.Equal(t, tt.msg, msg.Text)
		})
	}
}

func TestGenerateWithoutExtractionIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.SelectReference(context.Background(), f.ref.ID)
	require.NoError(t, err)
	_, err = f.session.Generate(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, 0, f.gen.callCount())
}

func TestGenerateMatchingTestsProducesCTD(t *testing.T) {
	f := newFixture(t)
	f.ready(t)

	out, err := f.session.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Report", out)

	snap := f.session.Snapshot()
	assert.Equal(t, models.OutputCTD, snap.State.OutputKind)
	assert.Equal(t, "# Report", snap.State.GeneratedOutput)
	assert.Equal(t, StatusSucceeded, snap.Statuses[StageGenerate])
	assert.Equal(t, "CTD generated successfully!", f.lastMessage(t).Text)
	assert.True(t, strings.HasPrefix(f.gen.lastPrompt(), gateway.CTDReportPrompt))
}

func TestGenerateMissingTestProducesDiscrepancy(t *testing.T) {
	f := newFixture(t)
	f.gen.extracted = extractedWith("Assay")
	f.ready(t)

	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutputDiscrepancy, f.session.Snapshot().State.OutputKind)
	assert.Contains(t, f.gen.lastPrompt(), "purity")
}

func TestGenerateSetsKindAndClearsOutputBeforeCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)
	_, err = f.session.Critique(context.Background())
	require.NoError(t, err)

	f.gen.mu.Lock()
	f.gen.gate = make(chan struct{})
	f.gen.entered = make(chan struct{}, 1)
	f.gen.output = "# Second report"
	f.gen.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Generate(context.Background())
		done <- err
	}()
	<-f.gen.entered

	snap := f.session.Snapshot()
	assert.Equal(t, StatusRunning, snap.Statuses[StageGenerate])
	assert.Equal(t, models.OutputCTD, snap.State.OutputKind)
	assert.Empty(t, snap.State.GeneratedOutput)
	assert.Empty(t, snap.State.Critique)

	close(f.gen.gate)
	require.NoError(t, <-done)
	assert.Equal(t, "# Second report", f.session.Snapshot().State.GeneratedOutput)
}

func TestGenerateFailureKeepsKindWithoutOutput(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	f.gen.genErr = fmt.Errorf("generate: %w", gateway.ErrEmptyResult)

	_, err := f.session.Generate(context.Background())
	assert.ErrorIs(t, err, gateway.ErrEmptyResult)

	snap := f.session.Snapshot()
	assert.Equal(t, StatusFailed, snap.Statuses[StageGenerate])
	assert.Equal(t, models.OutputCTD, snap.State.OutputKind)
	assert.Empty(t, snap.State.GeneratedOutput)
	assert.Equal(t, "Could not generate CTD. Please try again.", f.lastMessage(t).Text)
}

func TestTransportFailureMessage(t *testing.T) {
	f := newFixture(t)
	f.gen.extractErr = errors.New("API call failed with status: 503")

	_, err := f.session.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, f.session.Status(StageExtract))
	assert.Equal(t, "Failed to extract data. See logs for details.", f.lastMessage(t).Text)
	assert.Nil(t, f.session.Snapshot().State.Extracted)

	f.gen.extractErr = nil
	_, err = f.session.Extract(context.Background(), "text")
	require.NoError(t, err, "a failed stage can be retried")
	assert.Equal(t, StatusSucceeded, f.session.Status(StageExtract))
}

func TestFailedCritiqueKeepsOutput(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)

	f.gen.genErr = fmt.Errorf("critique: %w", gateway.ErrEmptyResult)
	_, err = f.session.Critique(context.Background())
	require.Error(t, err)

	snap := f.session.Snapshot()
	assert.Equal(t, "# Report", snap.State.GeneratedOutput)
	assert.Equal(t, StatusFailed, snap.Statuses[StageCritique])
	assert.Equal(t, StatusSucceeded, snap.Statuses[StageGenerate])
	assert.Equal(t, "Could not generate critique.", f.lastMessage(t).Text)
}

func TestCritiqueOverwritesPrevious(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)

	f.gen.output = "first"
	_, err = f.session.Critique(context.Background())
	require.NoError(t, err)
	f.gen.output = "second"
	_, err = f.session.Critique(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", f.session.Snapshot().State.Critique)
}

func TestExtractInvalidatesDownstream(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Summarize(context.Background())
	require.NoError(t, err)
	_, err = f.session.Generate(context.Background())
	require.NoError(t, err)

	f.gen.extractErr = errors.New("network")
	_, err = f.session.Extract(context.Background(), "new text")
	require.Error(t, err)

	st := f.session.Snapshot().State
	assert.Nil(t, st.Extracted)
	assert.Empty(t, st.Summary)
	assert.Empty(t, st.GeneratedOutput)
	assert.Equal(t, models.OutputNone, st.OutputKind)
	require.NotNil(t, st.Reference, "the selected reference survives re-extraction")
}

func TestSaveArchivesAndResets(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Summarize(context.Background())
	require.NoError(t, err)
	_, err = f.session.Generate(context.Background())
	require.NoError(t, err)
	_, err = f.session.Critique(context.Background())
	require.NoError(t, err)

	before := f.archive.Len()
	doc, err := f.session.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, f.archive.Len())

	assert.Equal(t, models.OutputCTD, doc.OutputKind)
	assert.Equal(t, "# Report", doc.GeneratedOutput)
	require.NotNil(t, doc.ReferenceDoc)
	assert.Equal(t, "ref-1", doc.ReferenceDoc.ID)
	require.NotNil(t, doc.ExtractedData)

	stored, err := f.archive.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	st := f.session.Snapshot().State
	assert.Nil(t, st.Extracted)
	assert.Nil(t, st.Reference)
	assert.Empty(t, st.GeneratedOutput)
	assert.Equal(t, models.OutputNone, st.OutputKind)
	assert.Empty(t, st.Critique)
	assert.Empty(t, st.Summary)
	assert.Equal(t, "Document saved successfully!", f.lastMessage(t).Text)
}

func TestSaveArchiveFailureKeepsState(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Archive = &failingArchive{} })
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)

	_, err = f.session.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, f.session.Status(StageSave))
	assert.Equal(t, "# Report", f.session.Snapshot().State.GeneratedOutput)
}

func TestSaveMirrorFailureStillSaves(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Mirrors = archive.NewReplicator(failingMirror{}) })
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)

	doc, err := f.session.Save(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 1, f.archive.Len())
	assert.Equal(t, StatusSucceeded, f.session.Status(StageSave))

	msg := f.lastMessage(t)
	assert.Equal(t, notify.IntentFailure, msg.Intent)
	assert.Contains(t, msg.Text, "external storage")
}

func TestPopulateOverwritesDraftWithEmptyForNulls(t *testing.T) {
	f := newFixture(t)
	f.session.SetDraft(models.ReferenceDraft{Title: "old title", Number: "old", Summary: "pasted spec text", Tests: "old test"})
	f.gen.draft = &models.ReferenceDraft{Title: "", Number: "1234", Summary: "x", Tests: ""}

	draft, err := f.session.Populate(context.Background())
	require.NoError(t, err)
	want := models.ReferenceDraft{Title: "", Number: "1234", Summary: "x", Tests: ""}
	assert.Equal(t, want, draft)
	assert.Equal(t, want, f.session.Draft())
	assert.Equal(t, StatusSucceeded, f.session.Status(StagePopulate))
}

func TestEmptyPopulateKeepsPastedSummary(t *testing.T) {
	f := newFixture(t)
	pasted := models.ReferenceDraft{Title: "Valve Spec", Summary: "pasted spec text"}
	f.session.SetDraft(pasted)
	f.gen.popErr = fmt.Errorf("populate: %w: null draft", gateway.ErrEmptyResult)

	_, err := f.session.Populate(context.Background())
	require.ErrorIs(t, err, gateway.ErrEmptyResult)
	assert.Equal(t, pasted, f.session.Draft())
	assert.Equal(t, StatusFailed, f.session.Status(StagePopulate))
	assert.Equal(t, "Could not populate reference. Please try again.", f.lastMessage(t).Text)
}

func TestSpeakPlaysSynthesizedAudio(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)
	f.gen.speech = &gateway.Speech{Data: "AAA=", MIMEType: "audio/L16;rate=24000"}

	speech, err := f.session.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAA=", speech.Data)
	assert.Equal(t, []string{"audio/L16;rate=24000"}, f.speaker.plays)
	assert.Equal(t, StatusSucceeded, f.session.Status(StageSpeak))
}

func TestSpeakPlaybackFailure(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	_, err := f.session.Generate(context.Background())
	require.NoError(t, err)
	f.gen.speech = &gateway.Speech{Data: "AAA=", MIMEType: "audio/L16"}
	f.speaker.err = errors.New("no device")

	_, err = f.session.Speak(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, f.session.Status(StageSpeak))
	assert.Equal(t, "Failed to play audio.", f.lastMessage(t).Text)
}

func TestRunningStageRejectsSecondInvocation(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.ready(t)
	f.gen.mu.Lock()
	f.gen.gate = make(chan struct{})
	f.gen.entered = make(chan struct{}, 1)
	f.gen.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Summarize(context.Background())
		done <- err
	}()
	<-f.gen.entered

	_, err := f.session.Summarize(context.Background())
	assert.ErrorIs(t, err, ErrStageBusy)

	_, err = f.session.Populate(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition, "other stages are not blocked by a running stage")

	close(f.gen.gate)
	require.NoError(t, <-done)
}

func TestStaleSummaryIsDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.ready(t)
	f.gen.mu.Lock()
	f.gen.gate = make(chan struct{})
	f.gen.entered = make(chan struct{}, 1)
	f.gen.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Summarize(context.Background())
		done <- err
	}()
	<-f.gen.entered

	_, err := f.session.Extract(context.Background(), "a different document")
	require.NoError(t, err)

	close(f.gen.gate)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, StatusFailed, f.session.Status(StageSummarize))
	assert.Empty(t, f.session.Snapshot().State.Summary)
}

func TestCancelledCallerDoesNotAbortStage(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.session.Extract(ctx, "text")
	require.NoError(t, err)
	assert.NotNil(t, f.session.Snapshot().State.Extracted)
}
