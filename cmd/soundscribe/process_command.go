package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"soundscribe/internal/docstore"
	"soundscribe/internal/logging"
	"soundscribe/internal/pipeline"
	"soundscribe/internal/proclock"
	"soundscribe/internal/services/ffmpeg"
	"soundscribe/internal/services/generation"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		promptIDs      []string
		bitrateKbps    int
		sampleRate     int
		segmentSeconds float64
		retryFailed    bool
		failConversion string
		failGeneration int
	)

	cmd := &cobra.Command{
		Use:   "process <file>...",
		Short: "Convert media files and generate documents for each selected prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bitrateKbps > 0 {
				cfg.BitrateKbps = bitrateKbps
			}
			if sampleRate > 0 {
				cfg.SampleRate = sampleRate
			}
			if segmentSeconds > 0 {
				cfg.SegmentSeconds = segmentSeconds
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			catalog, err := ctx.loadPrompts()
			if err != nil {
				return err
			}
			selected := promptIDs
			if len(selected) == 0 {
				selected = catalog.IDs()
			}

			files := make([]pipeline.FileUnit, 0, len(args))
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("input file: %w", err)
				}
				mimeType := mime.TypeByExtension(filepath.Ext(path))
				files = append(files, pipeline.NewFileUnit(path, mimeType, selected))
			}

			lock, err := proclock.New(cfg.DataDir)
			if err != nil {
				return err
			}
			if err := lock.Acquire(); err != nil {
				return err
			}
			defer lock.Release()

			store, err := docstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := ffmpeg.NewCLI(
				ffmpeg.WithBinary(cfg.FFmpeg.Binary),
				ffmpeg.WithProbeBinary(cfg.FFmpeg.ProbeBinary),
			)
			client := generation.NewClient(generation.Config{
				APIKey:         cfg.APIKey,
				BaseURL:        cfg.BaseURL,
				Model:          cfg.Model,
				TimeoutSeconds: cfg.Generation.TimeoutSeconds,
			})

			opts := []pipeline.Option{pipeline.WithLogger(logger)}
			if policy := buildFaultPolicy(failConversion, failGeneration); policy != nil {
				opts = append(opts, pipeline.WithFaultPolicy(policy))
			}
			p, err := pipeline.New(cfg, catalog, engine, client, store, files, opts...)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := p.Run(runCtx)
			if runErr != nil && retryFailed && runCtx.Err() == nil {
				runErr = resumeFailed(runCtx, p)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Batch %s\n", p.BatchID())
			fmt.Fprintln(out, renderStatuses(p.Statuses()))
			return runErr
		},
	}

	cmd.Flags().StringSliceVarP(&promptIDs, "prompt", "p", nil, "Prompt ids to apply (defaults to every catalog prompt)")
	cmd.Flags().IntVar(&bitrateKbps, "bitrate", 0, "Audio bitrate in kbps")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 0, "Audio sample rate in Hz")
	cmd.Flags().Float64Var(&segmentSeconds, "segment-seconds", 0, "Conversion window length in seconds")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Retry failed files once from where they stopped")
	cmd.Flags().StringVar(&failConversion, "fail-conversion-at", "", "Inject one conversion failure at file:segment")
	cmd.Flags().IntVar(&failGeneration, "fail-generation-at", -1, "Inject one generation failure at file index")
	_ = cmd.Flags().MarkHidden("fail-conversion-at")
	_ = cmd.Flags().MarkHidden("fail-generation-at")
	return cmd
}

func resumeFailed(ctx context.Context, p *pipeline.Pipeline) error {
	var errs []error
	for _, status := range p.Statuses() {
		if status.Status != pipeline.StatusError {
			continue
		}
		if err := p.ResumeFile(ctx, status.FileIndex); err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", status.FileName, err))
		}
	}
	return errors.Join(errs...)
}

func buildFaultPolicy(failConversion string, failGeneration int) *pipeline.FaultPolicy {
	if failConversion == "" && failGeneration < 0 {
		return nil
	}
	policy := &pipeline.FaultPolicy{MaxTriggers: 1}
	if failGeneration >= 0 {
		policy.InjectGenerationError = true
		policy.AtFileIndex = failGeneration
	}
	if failConversion != "" {
		parts := strings.SplitN(failConversion, ":", 2)
		fileIndex, err := strconv.Atoi(parts[0])
		if err != nil {
			return policy
		}
		segmentIndex := 0
		if len(parts) == 2 {
			if parsed, err := strconv.Atoi(parts[1]); err == nil {
				segmentIndex = parsed
			}
		}
		policy.InjectConversionError = true
		policy.AtFileIndex = fileIndex
		policy.AtSegmentIndex = segmentIndex
	}
	return policy
}

func renderStatuses(statuses []pipeline.FileStatus) string {
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{
			strconv.Itoa(status.FileIndex),
			truncate(status.FileName, 40),
			formatStatus(status),
			formatPercent(status.AudioProgress),
			formatGenerations(status),
		})
	}
	return renderTable(
		[]string{"#", "File", "Status", "Audio", "Documents"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
	)
}
