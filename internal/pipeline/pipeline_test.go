package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"soundscribe/internal/config"
	"soundscribe/internal/docstore"
	"soundscribe/internal/prompts"
	"soundscribe/internal/services"
	"soundscribe/internal/services/ffmpeg"
	"soundscribe/internal/services/generation"
	"soundscribe/internal/testsupport"
)

type fakeEngine struct {
	mu             sync.Mutex
	durations      map[string]float64
	convertCalls   []ffmpeg.SegmentRequest
	concatCalls    [][]string
	concatErr      error
	probeCalls     int
	active         int
	maxActive      int
	onConvertStart func(req ffmpeg.SegmentRequest)
}

func (e *fakeEngine) Load(ctx context.Context) error { return nil }

func (e *fakeEngine) Probe(ctx context.Context, path string) (float64, error) {
	e.mu.Lock()
	e.probeCalls++
	duration, ok := e.durations[path]
	e.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no duration registered for %s", path)
	}
	return duration, nil
}

func (e *fakeEngine) ConvertSegment(ctx context.Context, req ffmpeg.SegmentRequest, progress func(ffmpeg.ProgressUpdate)) (string, error) {
	e.mu.Lock()
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	onStart := e.onConvertStart
	e.mu.Unlock()

	if onStart != nil {
		onStart(req)
	}
	if progress != nil {
		progress(ffmpeg.ProgressUpdate{Percent: 50, OutTimeSeconds: req.DurationSeconds / 2})
		progress(ffmpeg.ProgressUpdate{Percent: 100, OutTimeSeconds: req.DurationSeconds})
	}

	e.mu.Lock()
	e.active--
	e.convertCalls = append(e.convertCalls, req)
	e.mu.Unlock()
	return req.OutputPath, nil
}

func (e *fakeEngine) Concatenate(ctx context.Context, parts []string, outputPath string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := make([]string, len(parts))
	copy(copied, parts)
	e.concatCalls = append(e.concatCalls, copied)
	if e.concatErr != nil {
		return "", e.concatErr
	}
	return outputPath, nil
}

func (e *fakeEngine) setConcatErr(err error) {
	e.mu.Lock()
	e.concatErr = err
	e.mu.Unlock()
}

func (e *fakeEngine) converted() []ffmpeg.SegmentRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ffmpeg.SegmentRequest, len(e.convertCalls))
	copy(out, e.convertCalls)
	return out
}

type fakeGenerationClient struct {
	mu         sync.Mutex
	audioCalls []generation.Request
	videoCalls []generation.Request
	respond    func(req generation.Request) (string, error)
}

func (c *fakeGenerationClient) GenerateFromAudio(ctx context.Context, req generation.Request) (string, error) {
	c.mu.Lock()
	c.audioCalls = append(c.audioCalls, req)
	respond := c.respond
	c.mu.Unlock()
	if respond != nil {
		return respond(req)
	}
	return "generated text for " + req.FileName, nil
}

func (c *fakeGenerationClient) GenerateFromVideo(ctx context.Context, req generation.Request) (string, error) {
	c.mu.Lock()
	c.videoCalls = append(c.videoCalls, req)
	respond := c.respond
	c.mu.Unlock()
	if respond != nil {
		return respond(req)
	}
	return "generated text for " + req.FileName, nil
}

func (c *fakeGenerationClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audioCalls) + len(c.videoCalls)
}

func (c *fakeGenerationClient) setRespond(respond func(req generation.Request) (string, error)) {
	c.mu.Lock()
	c.respond = respond
	c.mu.Unlock()
}

type fakeStore struct {
	mu      sync.Mutex
	docs    []*docstore.Document
	nextID  int64
	saveErr error
}

func (s *fakeStore) Save(ctx context.Context, doc *docstore.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	s.nextID++
	doc.ID = s.nextID
	copied := *doc
	s.docs = append(s.docs, &copied)
	return doc.ID, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *fakeStore) countForPrompt(promptID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, doc := range s.docs {
		if doc.PromptID == promptID {
			count++
		}
	}
	return count
}

type testEnv struct {
	cfg      *config.Config
	engine   *fakeEngine
	client   *fakeGenerationClient
	store    *fakeStore
	pipeline *Pipeline
}

func newTestEnv(t *testing.T, files []FileUnit, opts ...Option) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	engine := &fakeEngine{durations: map[string]float64{}}
	client := &fakeGenerationClient{}
	store := &fakeStore{}

	p, err := New(cfg, prompts.Defaults(), engine, client, store, files, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return &testEnv{cfg: cfg, engine: engine, client: client, store: store, pipeline: p}
}

func TestRunPersistsDocumentsToSQLite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mediaPath := filepath.Join(testsupport.BaseDir(cfg), "interview.mp3")
	testsupport.WriteFile(t, mediaPath, 2048)
	file := NewFileUnit(mediaPath, "audio/mpeg", []string{"summary", "transcript"})

	store := testsupport.MustOpenStore(t, cfg)
	engine := &fakeEngine{durations: map[string]float64{}}
	client := &fakeGenerationClient{}

	p, err := New(cfg, prompts.Defaults(), engine, client, store, []FileUnit{file}, WithBatchID("batch-sql"))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	docs, err := store.ListByBatch(context.Background(), "batch-sql")
	if err != nil {
		t.Fatalf("list by batch: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}
	for _, promptID := range []string{"summary", "transcript"} {
		count, err := store.CountForPrompt(context.Background(), "batch-sql", file.Name, promptID)
		if err != nil {
			t.Fatalf("count for %s: %v", promptID, err)
		}
		if count != 1 {
			t.Fatalf("documents for %s = %d, want exactly 1", promptID, count)
		}
	}
}

func TestRunConvertsVideoSegmentBySegment(t *testing.T) {
	file := NewFileUnit("/media/lecture.mp4", "video/mp4", []string{"summary"})
	env := newTestEnv(t, []FileUnit{file})
	env.engine.durations[file.Path] = 90

	if err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	converted := env.engine.converted()
	if len(converted) != 3 {
		t.Fatalf("convert calls = %d, want 3", len(converted))
	}
	for i, req := range converted {
		if req.StartSeconds != float64(i)*30 || req.DurationSeconds != 30 {
			t.Fatalf("segment %d request = start %v duration %v", i, req.StartSeconds, req.DurationSeconds)
		}
		if req.BitrateKbps != 64 || req.SampleRate != 16000 {
			t.Fatalf("segment %d audio settings = %d kbps %d hz", i, req.BitrateKbps, req.SampleRate)
		}
	}
	if len(env.engine.concatCalls) != 1 || len(env.engine.concatCalls[0]) != 3 {
		t.Fatalf("unexpected concatenate calls: %v", env.engine.concatCalls)
	}

	status, _ := env.pipeline.Status(0)
	if status.Status != StatusCompleted || status.Phase != PhaseCompleted {
		t.Fatalf("status = %s/%s, want completed", status.Status, status.Phase)
	}
	if status.AudioProgress != 100 {
		t.Fatalf("audio progress = %v, want 100", status.AudioProgress)
	}
	if !strings.HasSuffix(status.ConvertedAudioPath, "lecture.opus") {
		t.Fatalf("converted path = %s", status.ConvertedAudioPath)
	}
	if status.GenerationCount != 1 || status.TotalGenerations != 1 {
		t.Fatalf("generation counters = %d/%d", status.GenerationCount, status.TotalGenerations)
	}

	if env.store.count() != 1 {
		t.Fatalf("documents = %d, want 1", env.store.count())
	}
	doc := env.store.docs[0]
	if doc.BatchID != env.pipeline.BatchID() || doc.PromptID != "summary" || doc.MediaKind != "audio" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	outPath := filepath.Join(env.cfg.OutputDir, "lecture.summary.txt")
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("output document not written: %v", err)
	}
}

func TestRunAudioInputSkipsConversion(t *testing.T) {
	file := NewFileUnit("/media/interview.mp3", "audio/mpeg", []string{"summary", "transcript"})
	env := newTestEnv(t, []FileUnit{file})

	if err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if calls := env.engine.converted(); len(calls) != 0 {
		t.Fatalf("audio input triggered %d conversions", len(calls))
	}
	if env.engine.probeCalls != 0 {
		t.Fatal("audio input should never be probed")
	}

	status, _ := env.pipeline.Status(0)
	if status.ConvertedAudioPath != file.Path {
		t.Fatalf("converted path = %s, want source path", status.ConvertedAudioPath)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", status.Status)
	}
	if env.store.count() != 2 {
		t.Fatalf("documents = %d, want 2", env.store.count())
	}
	for _, req := range env.client.audioCalls {
		if req.MIMEType != "audio/mpeg" {
			t.Fatalf("mime type = %s, want audio/mpeg", req.MIMEType)
		}
		if req.MediaPath != file.Path {
			t.Fatalf("media path = %s, want source path", req.MediaPath)
		}
	}
}

func TestConversionFailureRecordsResumePoint(t *testing.T) {
	file := NewFileUnit("/media/lecture.mp4", "video/mp4", []string{"summary"})
	policy := &FaultPolicy{
		InjectConversionError: true,
		AtFileIndex:           0,
		AtSegmentIndex:        2,
		MaxTriggers:           1,
	}
	env := newTestEnv(t, []FileUnit{file}, WithFaultPolicy(policy))
	env.engine.durations[file.Path] = 90

	err := env.pipeline.Run(context.Background())
	if !errors.Is(err, ErrInjected) {
		t.Fatalf("run error = %v, want injected failure", err)
	}

	status, _ := env.pipeline.Status(0)
	if status.Status != StatusError || status.FailedPhase != PhaseAudioConversion {
		t.Fatalf("status = %s failed phase = %s", status.Status, status.FailedPhase)
	}
	if status.AudioProgress != 66.7 {
		t.Fatalf("audio progress = %v, want 66.7", status.AudioProgress)
	}
	if len(status.CompletedSegments) != 2 {
		t.Fatalf("completed segments = %d, want 2", len(status.CompletedSegments))
	}
	if status.Segments[2].State != SegmentError {
		t.Fatalf("segment 2 state = %s, want error", status.Segments[2].State)
	}
	if status.ConvertedAudioPath != "" {
		t.Fatal("failed conversion must not record a converted path")
	}
	if env.client.calls() != 0 {
		t.Fatal("generation must not start after conversion failure")
	}

	// Resume reconverts only the failed segment, then finishes the file.
	if err := env.pipeline.ResumeFile(context.Background(), 0); err != nil {
		t.Fatalf("resume: %v", err)
	}
	converted := env.engine.converted()
	if len(converted) != 3 {
		t.Fatalf("convert calls after resume = %d, want 3", len(converted))
	}
	if converted[2].StartSeconds != 60 {
		t.Fatalf("resumed segment start = %v, want 60", converted[2].StartSeconds)
	}

	status, _ = env.pipeline.Status(0)
	if status.Status != StatusCompleted || status.FailedPhase != "" || status.ErrorMessage != "" {
		t.Fatalf("resumed status = %+v", status)
	}
	if env.store.count() != 1 {
		t.Fatalf("documents = %d, want 1", env.store.count())
	}
}

func TestConcatenateFailureRecordsConversionPhase(t *testing.T) {
	file := NewFileUnit("/media/lecture.mp4", "video/mp4", []string{"summary"})
	env := newTestEnv(t, []FileUnit{file})
	env.engine.durations[file.Path] = 60
	env.engine.setConcatErr(errors.New("concat demuxer failed"))

	if err := env.pipeline.Run(context.Background()); err == nil {
		t.Fatal("run should fail when concatenation fails")
	}

	status, _ := env.pipeline.Status(0)
	if status.Status != StatusError {
		t.Fatalf("status = %s, want error", status.Status)
	}
	if status.FailedPhase != PhaseAudioConversion {
		t.Fatalf("failed phase = %s, want %s", status.FailedPhase, PhaseAudioConversion)
	}
	if status.ConvertedAudioPath != "" {
		t.Fatal("failed concatenation must not record a converted path")
	}
	if env.client.calls() != 0 {
		t.Fatal("generation must not start after concatenation failure")
	}

	// Resume skips the completed segments and retries only the concatenation.
	env.engine.setConcatErr(nil)
	if err := env.pipeline.ResumeFile(context.Background(), 0); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := len(env.engine.converted()); got != 2 {
		t.Fatalf("convert calls after resume = %d, want 2", got)
	}
	status, _ = env.pipeline.Status(0)
	if status.Status != StatusCompleted || status.FailedPhase != "" {
		t.Fatalf("resumed status = %s failed phase = %q", status.Status, status.FailedPhase)
	}
}

func TestResumeWithCachedBlobNeverTouchesEngine(t *testing.T) {
	file := NewFileUnit("/media/lecture.mp4", "video/mp4", []string{"summary"})
	policy := &FaultPolicy{
		InjectGenerationError: true,
		AtFileIndex:           0,
		MaxTriggers:           1,
	}
	env := newTestEnv(t, []FileUnit{file}, WithFaultPolicy(policy))
	env.engine.durations[file.Path] = 60

	err := env.pipeline.Run(context.Background())
	if !errors.Is(err, ErrInjected) {
		t.Fatalf("run error = %v, want injected failure", err)
	}

	status, _ := env.pipeline.Status(0)
	if status.ConvertedAudioPath == "" {
		t.Fatal("conversion should have cached a blob before generation failed")
	}
	if status.FailedPhase != PhaseTextGeneration {
		t.Fatalf("failed phase = %s, want %s", status.FailedPhase, PhaseTextGeneration)
	}

	probes := env.engine.probeCalls
	converts := len(env.engine.converted())
	concats := len(env.engine.concatCalls)

	if err := env.pipeline.ResumeFile(context.Background(), 0); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if env.engine.probeCalls != probes {
		t.Fatalf("resume probed the input %d extra times", env.engine.probeCalls-probes)
	}
	if got := len(env.engine.converted()); got != converts {
		t.Fatalf("resume converted %d extra segments", got-converts)
	}
	if len(env.engine.concatCalls) != concats {
		t.Fatalf("resume concatenated %d extra times", len(env.engine.concatCalls)-concats)
	}

	status, _ = env.pipeline.Status(0)
	if status.Status != StatusCompleted {
		t.Fatalf("resumed status = %s, want completed", status.Status)
	}
	if env.store.count() != 1 {
		t.Fatalf("documents = %d, want 1", env.store.count())
	}
}

func TestGenerationFailureResumesPendingPromptsOnly(t *testing.T) {
	file := NewFileUnit("/media/interview.mp3", "audio/mpeg", []string{"summary", "transcript"})
	env := newTestEnv(t, []FileUnit{file})

	transcript, _ := prompts.Defaults().Get("transcript")
	var failOnce sync.Once
	failed := false
	env.client.setRespond(func(req generation.Request) (string, error) {
		if req.PromptText == transcript.Text {
			var err error
			failOnce.Do(func() {
				failed = true
				err = errors.New("service unavailable")
			})
			if err != nil {
				return "", err
			}
		}
		return "generated text", nil
	})

	err := env.pipeline.Run(context.Background())
	if err == nil || !failed {
		t.Fatalf("run should fail on transcript prompt, got %v", err)
	}

	status, _ := env.pipeline.Status(0)
	if status.Status != StatusError || status.FailedPhase != PhaseTextGeneration {
		t.Fatalf("status = %s failed phase = %s", status.Status, status.FailedPhase)
	}
	if status.GenerationCount != 1 || status.TotalGenerations != 2 {
		t.Fatalf("generation counters = %d/%d, want 1/2", status.GenerationCount, status.TotalGenerations)
	}
	if _, ok := status.CompletedPrompts["summary"]; !ok {
		t.Fatal("successful prompt missing from completion set")
	}
	if env.store.count() != 1 {
		t.Fatalf("documents = %d, want 1", env.store.count())
	}

	callsBefore := env.client.calls()
	if err := env.pipeline.ResumeFile(context.Background(), 0); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := env.client.calls() - callsBefore; got != 1 {
		t.Fatalf("resume issued %d calls, want 1", got)
	}
	last := env.client.audioCalls[len(env.client.audioCalls)-1]
	if last.PromptText != transcript.Text {
		t.Fatal("resume re-issued the wrong prompt")
	}

	if env.store.countForPrompt("summary") != 1 || env.store.countForPrompt("transcript") != 1 {
		t.Fatalf("duplicate documents: %d summary, %d transcript",
			env.store.countForPrompt("summary"), env.store.countForPrompt("transcript"))
	}
	status, _ = env.pipeline.Status(0)
	if status.Status != StatusCompleted || status.GenerationCount != 2 {
		t.Fatalf("resumed status = %s count = %d", status.Status, status.GenerationCount)
	}
}

func TestRunOverlapsGenerationWithNextConversion(t *testing.T) {
	fileA := NewFileUnit("/media/a.mp4", "video/mp4", []string{"summary"})
	fileB := NewFileUnit("/media/b.mp4", "video/mp4", []string{"summary"})
	env := newTestEnv(t, []FileUnit{fileA, fileB})
	env.engine.durations[fileA.Path] = 30
	env.engine.durations[fileB.Path] = 30

	bStarted := make(chan struct{})
	var once sync.Once
	env.engine.onConvertStart = func(req ffmpeg.SegmentRequest) {
		if req.InputPath == fileB.Path {
			once.Do(func() { close(bStarted) })
		}
	}
	env.client.setRespond(func(req generation.Request) (string, error) {
		if req.FileName == fileA.Name {
			select {
			case <-bStarted:
			case <-time.After(5 * time.Second):
				return "", errors.New("next conversion never started while generation was in flight")
			}
		}
		return "generated text", nil
	})

	if err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.engine.maxActive != 1 {
		t.Fatalf("max concurrent conversions = %d, want 1", env.engine.maxActive)
	}
	for i := 0; i < 2; i++ {
		status, _ := env.pipeline.Status(i)
		if status.Status != StatusCompleted {
			t.Fatalf("file %d status = %s, want completed", i, status.Status)
		}
	}
	if env.store.count() != 2 {
		t.Fatalf("documents = %d, want 2", env.store.count())
	}
}

func TestResumeReentrancyCollapses(t *testing.T) {
	file := NewFileUnit("/media/interview.mp3", "audio/mpeg", []string{"summary"})
	env := newTestEnv(t, []FileUnit{file})

	env.client.setRespond(func(req generation.Request) (string, error) {
		return "", errors.New("service unavailable")
	})
	if err := env.pipeline.Run(context.Background()); err == nil {
		t.Fatal("run should fail")
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.client.setRespond(func(req generation.Request) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return "generated text", nil
	})

	first := make(chan error, 1)
	go func() {
		first <- env.pipeline.ResumeFile(context.Background(), 0)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first resume never reached generation")
	}
	if err := env.pipeline.ResumeFile(context.Background(), 0); !errors.Is(err, ErrResumeInFlight) {
		t.Fatalf("second resume error = %v, want in-flight", err)
	}

	close(release)
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("first resume: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first resume never finished")
	}

	status, _ := env.pipeline.Status(0)
	if status.Status != StatusCompleted || status.IsResuming {
		t.Fatalf("status after resume = %+v", status)
	}
	if env.store.count() != 1 {
		t.Fatalf("documents = %d, want 1", env.store.count())
	}
}

func TestResumeCompletedFileIsNoOp(t *testing.T) {
	file := NewFileUnit("/media/interview.mp3", "audio/mpeg", []string{"summary"})
	env := newTestEnv(t, []FileUnit{file})

	if err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	callsBefore := env.client.calls()
	if err := env.pipeline.ResumeFile(context.Background(), 0); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if env.client.calls() != callsBefore {
		t.Fatal("resume of completed file issued generation calls")
	}
	if env.store.count() != 1 {
		t.Fatalf("documents = %d, want 1", env.store.count())
	}
}

func TestNewValidatesBatch(t *testing.T) {
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	engine := &fakeEngine{}
	client := &fakeGenerationClient{}
	store := &fakeStore{}
	catalog := prompts.Defaults()

	if _, err := New(&cfg, catalog, engine, client, store, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty batch error = %v, want validation", err)
	}

	noPath := FileUnit{Name: "x.mp4", PromptIDs: []string{"summary"}}
	if _, err := New(&cfg, catalog, engine, client, store, []FileUnit{noPath}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing path error = %v, want validation", err)
	}

	noPrompts := NewFileUnit("/media/x.mp4", "video/mp4", nil)
	if _, err := New(&cfg, catalog, engine, client, store, []FileUnit{noPrompts}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("no prompts error = %v, want validation", err)
	}

	unknown := NewFileUnit("/media/x.mp4", "video/mp4", []string{"nope"})
	if _, err := New(&cfg, catalog, engine, client, store, []FileUnit{unknown}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown prompt error = %v, want not found", err)
	}
}

func TestResetDiscardsBatchState(t *testing.T) {
	file := NewFileUnit("/media/interview.mp3", "audio/mpeg", []string{"summary"})
	env := newTestEnv(t, []FileUnit{file})
	if err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	env.pipeline.Reset()
	status, _ := env.pipeline.Status(0)
	if status.Phase != PhaseWaiting || status.Status != StatusWaiting {
		t.Fatalf("status after reset = %s/%s, want waiting", status.Status, status.Phase)
	}
	if status.ConvertedAudioPath != "" || len(status.CompletedPrompts) != 0 {
		t.Fatalf("reset kept stale state: %+v", status)
	}
}

func TestResumeUnknownIndex(t *testing.T) {
	file := NewFileUnit("/media/interview.mp3", "audio/mpeg", []string{"summary"})
	env := newTestEnv(t, []FileUnit{file})
	if err := env.pipeline.ResumeFile(context.Background(), 4); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("resume unknown index error = %v, want validation", err)
	}
}
