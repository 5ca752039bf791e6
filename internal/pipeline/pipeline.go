package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"soundscribe/internal/config"
	"soundscribe/internal/logging"
	"soundscribe/internal/media"
	"soundscribe/internal/prompts"
	"soundscribe/internal/services"
	"soundscribe/internal/services/ffmpeg"
)

// ErrResumeInFlight is returned when a resume is requested for a file whose
// previous resume has not finished yet. The in-flight resume proceeds
// unaffected.
var ErrResumeInFlight = errors.New("resume already in progress")

// Pipeline orchestrates one batch: files convert strictly one at a time
// through the conversion gate, while each file's generation fan-out runs in
// the background so the next file's conversion can start immediately.
type Pipeline struct {
	batchID string
	files   []FileUnit

	tracker   *Tracker
	gate      *Gate
	converter *Converter
	generator *Generator
	logger    *slog.Logger

	workDir string
}

// Option customizes a pipeline.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	faults  *FaultPolicy
	batchID string
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFaultPolicy injects deterministic failures for testing the failure and
// resume paths.
func WithFaultPolicy(policy *FaultPolicy) Option {
	return func(s *settings) {
		s.faults = policy
	}
}

// WithBatchID overrides the generated batch identifier.
func WithBatchID(id string) Option {
	return func(s *settings) {
		if strings.TrimSpace(id) != "" {
			s.batchID = id
		}
	}
}

// New validates the batch and wires the pipeline components around a shared
// tracker and conversion gate.
func New(cfg *config.Config, catalog *prompts.Catalog, engine ffmpeg.Engine, client GenerationClient, saver DocumentSaver, files []FileUnit, opts ...Option) (*Pipeline, error) {
	if err := validateBatch(catalog, files); err != nil {
		return nil, err
	}

	applied := settings{
		logger:  logging.NewNop(),
		batchID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(&applied)
	}

	audio := AudioSettings{
		BitrateKbps:    cfg.BitrateKbps,
		SampleRate:     cfg.SampleRate,
		SegmentSeconds: cfg.SegmentSeconds,
	}
	workDir := filepath.Join(cfg.WorkDir, applied.batchID)

	tracker := NewTracker(files)
	gate := NewGate()
	return &Pipeline{
		batchID:   applied.batchID,
		files:     files,
		tracker:   tracker,
		gate:      gate,
		converter: NewConverter(engine, gate, tracker, workDir, audio, applied.faults, applied.logger),
		generator: NewGenerator(client, saver, catalog, tracker, applied.batchID, cfg.OutputDir, audio, applied.faults, applied.logger),
		logger:    applied.logger,
		workDir:   workDir,
	}, nil
}

func validateBatch(catalog *prompts.Catalog, files []FileUnit) error {
	if len(files) == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "batch contains no files", nil)
	}
	for _, file := range files {
		if strings.TrimSpace(file.Path) == "" {
			return services.Wrap(services.ErrValidation, "pipeline", "validate", "file path must not be empty", nil)
		}
		if len(file.PromptIDs) == 0 {
			return services.Wrap(services.ErrValidation, "pipeline", "validate", fmt.Sprintf("%s selects no prompts", file.Name), nil)
		}
		if _, err := catalog.Select(file.PromptIDs); err != nil {
			return err
		}
	}
	return nil
}

// BatchID returns the identifier documents of this batch are stored under.
func (p *Pipeline) BatchID() string {
	return p.batchID
}

// Statuses returns a snapshot of every file's status in batch order.
func (p *Pipeline) Statuses() []FileStatus {
	return p.tracker.Snapshot()
}

// Status returns a snapshot of one file's status.
func (p *Pipeline) Status(index int) (FileStatus, bool) {
	return p.tracker.Get(index)
}

// Reset discards all in-memory batch state. In-flight external calls are not
// canceled; their results simply no longer apply to any tracked file.
func (p *Pipeline) Reset() {
	p.tracker.Reset(p.files)
}

// Run processes the whole batch. Conversions run strictly in batch order, one
// at a time; each file's generation fan-out is launched in the background as
// soon as its audio is ready. Run returns after every file has settled,
// joining the per-file errors.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return fmt.Errorf("create batch work directory: %w", err)
	}
	ctx = services.WithBatchID(ctx, p.batchID)
	p.logger.Info("batch started",
		logging.String(logging.FieldComponent, "pipeline"),
		logging.String(logging.FieldBatchID, p.batchID),
		logging.Int("files", len(p.files)),
	)

	var wg sync.WaitGroup
	results := make([]error, len(p.files))
	for i, file := range p.files {
		if ctx.Err() != nil {
			results[i] = ctx.Err()
			continue
		}
		mediaPath, err := p.prepareAudio(ctx, i, file)
		if err != nil {
			p.markFailed(i, err)
			results[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, file FileUnit, mediaPath string) {
			defer wg.Done()
			if err := p.finishGeneration(ctx, i, file, mediaPath); err != nil {
				p.markFailed(i, err)
				results[i] = err
			}
		}(i, file, mediaPath)
	}
	wg.Wait()

	err := errors.Join(results...)
	p.logger.Info("batch finished",
		logging.String(logging.FieldComponent, "pipeline"),
		logging.String(logging.FieldBatchID, p.batchID),
		logging.Bool("ok", err == nil),
	)
	return err
}

// ResumeFile retries a failed file exactly from where it stopped: completed
// segments are never reconverted, a finished audio blob is reused as-is, and
// completed prompts are never re-issued. Concurrent resumes of the same file
// collapse to one.
func (p *Pipeline) ResumeFile(ctx context.Context, index int) error {
	if index < 0 || index >= len(p.files) {
		return services.Wrap(services.ErrValidation, "pipeline", "resume", fmt.Sprintf("unknown file index %d", index), nil)
	}
	if !p.tracker.BeginResume(index) {
		return ErrResumeInFlight
	}
	defer p.tracker.EndResume(index)

	status, _ := p.tracker.Get(index)
	if status.Status != StatusError {
		return nil
	}
	p.logger.Info("resuming file",
		logging.String(logging.FieldComponent, "pipeline"),
		logging.Int(logging.FieldFileIndex, index),
		logging.String("failed_phase", string(status.FailedPhase)),
	)
	p.tracker.Update(index, func(s FileStatus) FileStatus {
		s.ErrorMessage = ""
		s.FailedPhase = ""
		return s
	})

	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return fmt.Errorf("create batch work directory: %w", err)
	}
	ctx = services.WithBatchID(ctx, p.batchID)
	file := p.files[index]
	mediaPath, err := p.prepareAudio(ctx, index, file)
	if err != nil {
		p.markFailed(index, err)
		return err
	}
	if err := p.finishGeneration(ctx, index, file, mediaPath); err != nil {
		p.markFailed(index, err)
		return err
	}
	return nil
}

// prepareAudio yields the media blob generation should run against. A cached
// converted blob short-circuits conversion entirely, and directly-usable audio
// inputs skip the codec engine altogether.
func (p *Pipeline) prepareAudio(ctx context.Context, index int, file FileUnit) (string, error) {
	status, _ := p.tracker.Get(index)
	if status.ConvertedAudioPath != "" {
		return status.ConvertedAudioPath, nil
	}
	if file.Kind == media.KindAudio {
		p.tracker.Update(index, func(s FileStatus) FileStatus {
			s.ConvertedAudioPath = file.Path
			s.AudioProgress = 100
			return s
		})
		return file.Path, nil
	}
	return p.converter.Convert(ctx, index, file)
}

func (p *Pipeline) finishGeneration(ctx context.Context, index int, file FileUnit, mediaPath string) error {
	if err := p.generator.Generate(ctx, index, file, mediaPath); err != nil {
		return err
	}
	p.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Phase = PhaseCompleted
		s.Status = StatusCompleted
		return s
	})
	return nil
}

// markFailed records the failure and the phase it happened in so a resume
// knows where to pick up.
func (p *Pipeline) markFailed(index int, err error) {
	status, _ := p.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Status = StatusError
		s.ErrorMessage = err.Error()
		s.FailedPhase = failedPhase(s.Phase)
		return s
	})
	p.logger.Error("file failed",
		logging.String(logging.FieldComponent, "pipeline"),
		logging.Int(logging.FieldFileIndex, index),
		logging.String("failed_phase", string(status.FailedPhase)),
		logging.Error(err),
	)
}

// failedPhase collapses the tracker phase at failure time onto the two
// recorded failure phases. Concatenation is a codec engine step, so its
// failures count as conversion failures.
func failedPhase(phase Phase) Phase {
	if phase == PhaseAudioConcat {
		return PhaseAudioConversion
	}
	return phase
}
