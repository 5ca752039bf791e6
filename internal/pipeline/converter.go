package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"soundscribe/internal/logging"
	"soundscribe/internal/services"
	"soundscribe/internal/services/ffmpeg"
)

// Converter runs the segment-by-segment audio conversion for one file. The
// codec engine is stateful and single-instance, so every call holds the
// conversion gate from the first probe through the final concatenation.
type Converter struct {
	engine  ffmpeg.Engine
	gate    *Gate
	tracker *Tracker
	logger  *slog.Logger

	workDir        string
	segmentSeconds float64
	bitrateKbps    int
	sampleRate     int
	faults         *FaultPolicy
}

// NewConverter wires a converter against a shared gate and tracker.
func NewConverter(engine ffmpeg.Engine, gate *Gate, tracker *Tracker, workDir string, audioCfg AudioSettings, faults *FaultPolicy, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	segmentSeconds := audioCfg.SegmentSeconds
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	return &Converter{
		engine:         engine,
		gate:           gate,
		tracker:        tracker,
		logger:         logger,
		workDir:        workDir,
		segmentSeconds: segmentSeconds,
		bitrateKbps:    audioCfg.BitrateKbps,
		sampleRate:     audioCfg.SampleRate,
		faults:         faults,
	}
}

// AudioSettings are the conversion parameters applied to every segment of a
// batch.
type AudioSettings struct {
	BitrateKbps    int
	SampleRate     int
	SegmentSeconds float64
}

// Convert produces the compressed audio blob for one video file, resuming
// from previously completed segments when present. It returns the path of the
// concatenated output.
func (c *Converter) Convert(ctx context.Context, index int, file FileUnit) (string, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire conversion gate: %w", err)
	}
	defer c.gate.Release()

	if err := c.engine.Load(ctx); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "conversion", "load", "codec engine unavailable", err)
	}

	c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Phase = PhaseAudioConversion
		s.Status = StatusConverting
		return s
	})

	status, ok := c.tracker.Get(index)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "conversion", "track", fmt.Sprintf("unknown file index %d", index), nil)
	}

	if len(status.Segments) == 0 {
		planned, err := c.plan(ctx, index, file)
		if err != nil {
			return "", err
		}
		status = planned
	}

	for _, segment := range status.Segments {
		if _, done := status.CompletedSegments[segment.Index]; done {
			continue
		}
		if err := c.convertSegment(ctx, index, file, segment); err != nil {
			return "", err
		}
	}

	return c.concatenate(ctx, index, file)
}

func (c *Converter) plan(ctx context.Context, index int, file FileUnit) (FileStatus, error) {
	duration, err := c.engine.Probe(ctx, file.Path)
	if err != nil {
		return FileStatus{}, services.Wrap(services.ErrExternalTool, "conversion", "probe", file.Name, err)
	}
	segments := PlanSegments(duration, c.segmentSeconds)
	if len(segments) == 0 {
		return FileStatus{}, services.Wrap(services.ErrValidation, "conversion", "plan", fmt.Sprintf("%s has no playable duration", file.Name), nil)
	}
	c.logger.Info("planned conversion segments",
		logging.String(logging.FieldComponent, "converter"),
		logging.Int(logging.FieldFileIndex, index),
		logging.Int("segments", len(segments)),
		logging.Float64("duration_seconds", duration),
	)
	status, _ := c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Segments = segments
		s.SegmentPaths = make([]string, len(segments))
		return s
	})
	return status, nil
}

func (c *Converter) convertSegment(ctx context.Context, index int, file FileUnit, segment Segment) error {
	c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Segments[segment.Index].State = SegmentConverting
		s.Segments[segment.Index].Progress = 0
		s.AudioProgress = aggregateProgress(s.Segments)
		return s
	})

	if c.faults.FailsConversion(index, segment.Index) {
		err := fmt.Errorf("convert segment %d of %s: %w", segment.Index, file.Name, ErrInjected)
		c.recordSegmentError(index, segment.Index)
		return err
	}

	outputPath := c.segmentPath(file, segment.Index)
	req := ffmpeg.SegmentRequest{
		InputPath:       file.Path,
		OutputPath:      outputPath,
		StartSeconds:    segment.StartSeconds,
		DurationSeconds: segment.EndSeconds - segment.StartSeconds,
		BitrateKbps:     c.bitrateKbps,
		SampleRate:      c.sampleRate,
	}
	_, err := c.engine.ConvertSegment(ctx, req, func(update ffmpeg.ProgressUpdate) {
		c.tracker.Update(index, func(s FileStatus) FileStatus {
			s.Segments[segment.Index].Progress = update.Percent
			s.AudioProgress = aggregateProgress(s.Segments)
			return s
		})
	})
	if err != nil {
		c.recordSegmentError(index, segment.Index)
		return services.Wrap(services.ErrExternalTool, "conversion", "segment",
			fmt.Sprintf("segment %d of %s", segment.Index, file.Name), err)
	}

	c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Segments[segment.Index].State = SegmentCompleted
		s.Segments[segment.Index].Progress = 100
		s.CompletedSegments[segment.Index] = struct{}{}
		s.SegmentPaths[segment.Index] = outputPath
		s.AudioProgress = aggregateProgress(s.Segments)
		return s
	})
	c.logger.Debug("segment converted",
		logging.String(logging.FieldComponent, "converter"),
		logging.Int(logging.FieldFileIndex, index),
		logging.Int("segment", segment.Index),
	)
	return nil
}

func (c *Converter) concatenate(ctx context.Context, index int, file FileUnit) (string, error) {
	status, _ := c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Phase = PhaseAudioConcat
		return s
	})

	outputPath := filepath.Join(c.workDir, baseName(file)+".opus")
	if _, err := c.engine.Concatenate(ctx, status.SegmentPaths, outputPath); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "conversion", "concatenate", file.Name, err)
	}

	c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.ConvertedAudioPath = outputPath
		s.AudioProgress = 100
		return s
	})
	c.logger.Info("conversion finished",
		logging.String(logging.FieldComponent, "converter"),
		logging.Int(logging.FieldFileIndex, index),
		logging.String("audio_path", outputPath),
	)
	return outputPath, nil
}

func (c *Converter) recordSegmentError(index, segmentIndex int) {
	c.tracker.Update(index, func(s FileStatus) FileStatus {
		s.Segments[segmentIndex].State = SegmentError
		s.AudioProgress = aggregateProgress(s.Segments)
		return s
	})
}

func (c *Converter) segmentPath(file FileUnit, segmentIndex int) string {
	return filepath.Join(c.workDir, fmt.Sprintf("%s.seg%03d.opus", baseName(file), segmentIndex))
}

func baseName(file FileUnit) string {
	return strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
}
