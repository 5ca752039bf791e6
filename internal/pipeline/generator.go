package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"soundscribe/internal/docstore"
	"soundscribe/internal/logging"
	"soundscribe/internal/media"
	"soundscribe/internal/prompts"
	"soundscribe/internal/services"
	"soundscribe/internal/services/generation"
)

// GenerationClient is the slice of the generation service the fan-out needs.
type GenerationClient interface {
	GenerateFromAudio(ctx context.Context, req generation.Request) (string, error)
	GenerateFromVideo(ctx context.Context, req generation.Request) (string, error)
}

// DocumentSaver persists one generated document. Save must succeed before the
// corresponding prompt is marked complete.
type DocumentSaver interface {
	Save(ctx context.Context, doc *docstore.Document) (int64, error)
}

// Generator fans out one generation call per pending prompt of a file. Calls
// run concurrently without a concurrency cap, all of them settle before the
// file's outcome is decided, and every successful document is persisted
// before its prompt counts as complete.
type Generator struct {
	client  GenerationClient
	saver   DocumentSaver
	catalog *prompts.Catalog
	tracker *Tracker
	logger  *slog.Logger

	batchID     string
	outputDir   string
	bitrateKbps int
	sampleRate  int
	faults      *FaultPolicy
}

// NewGenerator wires a generator against the shared tracker.
func NewGenerator(client GenerationClient, saver DocumentSaver, catalog *prompts.Catalog, tracker *Tracker, batchID, outputDir string, audioCfg AudioSettings, faults *FaultPolicy, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		client:      client,
		saver:       saver,
		catalog:     catalog,
		tracker:     tracker,
		logger:      logger,
		batchID:     batchID,
		outputDir:   outputDir,
		bitrateKbps: audioCfg.BitrateKbps,
		sampleRate:  audioCfg.SampleRate,
		faults:      faults,
	}
}

// Generate issues one call per prompt of the file that has not completed yet.
// Already-completed prompts are never re-issued, so a resumed file produces no
// duplicate documents.
func (g *Generator) Generate(ctx context.Context, index int, file FileUnit, mediaPath string) error {
	status, ok := g.tracker.Get(index)
	if !ok {
		return services.Wrap(services.ErrValidation, "generation", "track", fmt.Sprintf("unknown file index %d", index), nil)
	}

	// An empty pending set goes straight to completed without an observable
	// detour through the transcribing state.
	pending := status.PendingPrompts(file.PromptIDs)
	if len(pending) == 0 {
		return nil
	}

	g.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Phase = PhaseTextGeneration
		s.Status = StatusTranscribing
		s.TotalGenerations = len(file.PromptIDs)
		return s
	})
	if g.faults.FailsGeneration(index) {
		return fmt.Errorf("generate for %s: %w", file.Name, ErrInjected)
	}

	selected, err := g.catalog.Select(pending)
	if err != nil {
		return err
	}

	mimeType := "audio/ogg"
	if mediaPath == file.Path {
		mimeType = file.MIMEType
	}
	kind := media.Detect(mediaPath, mimeType)

	var wg sync.WaitGroup
	errs := make([]error, len(selected))
	for i, prompt := range selected {
		wg.Add(1)
		go func(i int, prompt prompts.Prompt) {
			defer wg.Done()
			errs[i] = g.generateOne(ctx, index, file, prompt, mediaPath, mimeType, kind)
		}(i, prompt)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (g *Generator) generateOne(ctx context.Context, index int, file FileUnit, prompt prompts.Prompt, mediaPath, mimeType string, kind media.Kind) error {
	ctx = services.WithStage(ctx, "generation")
	ctx = services.WithFileIndex(ctx, index)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, g.logger)

	req := generation.Request{
		MediaPath:  mediaPath,
		FileName:   file.Name,
		MIMEType:   mimeType,
		PromptText: prompt.Text,
		Model:      prompt.Model,
	}

	var (
		text string
		err  error
	)
	if kind == media.KindVideo {
		text, err = g.client.GenerateFromVideo(ctx, req)
	} else {
		text, err = g.client.GenerateFromAudio(ctx, req)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "generation", prompt.ID, file.Name, err)
	}

	doc := &docstore.Document{
		BatchID:     g.batchID,
		FileName:    file.Name,
		PromptID:    prompt.ID,
		PromptName:  prompt.Name,
		MediaKind:   string(kind),
		BitrateKbps: g.bitrateKbps,
		SampleRate:  g.sampleRate,
		Body:        text,
	}
	if _, err := g.saver.Save(ctx, doc); err != nil {
		return services.Wrap(services.ErrTransient, "generation", prompt.ID, "persist document for "+file.Name, err)
	}
	if err := g.writeDocument(file, prompt, text); err != nil {
		return err
	}

	g.tracker.Update(index, func(s FileStatus) FileStatus {
		s.CompletedPrompts[prompt.ID] = struct{}{}
		return s
	})
	logger.Info("document generated",
		logging.String(logging.FieldComponent, "generator"),
		logging.String("prompt", prompt.ID),
	)
	return nil
}

func (g *Generator) writeDocument(file FileUnit, prompt prompts.Prompt, text string) error {
	if g.outputDir == "" {
		return nil
	}
	path := filepath.Join(g.outputDir, fmt.Sprintf("%s.%s.txt", baseName(file), prompt.ID))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "generation", prompt.ID, "write document file", err)
	}
	return nil
}
