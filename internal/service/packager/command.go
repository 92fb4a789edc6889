package packager

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/oshokin/partial-tar-brotli/internal/config"
	"github.com/oshokin/partial-tar-brotli/internal/logger"
	"github.com/oshokin/partial-tar-brotli/internal/packer"
	"github.com/oshokin/partial-tar-brotli/internal/repository/output"
)

// progressThrottle limits how often the progress bar redraws.
const progressThrottle = 65 * time.Millisecond

// Options contains inputs for the packing entry point.
type Options struct {
	// Config holds the resolved settings.
	Config *config.Config
	// Files are the candidate paths in priority order.
	Files []string
	// Stdout receives the report (defaults to os.Stdout).
	Stdout io.Writer
	// Stderr receives the progress bar (defaults to os.Stderr).
	Stderr io.Writer
	// Repository stores the archive (defaults to a FileRepository on Config.Output).
	Repository output.Repository
}

// packager runs a single packing workflow.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type packager struct {
	// cfg holds the validated settings.
	cfg *config.Config
	// files are the candidates.
	files []string
	// stdout receives report lines.
	stdout io.Writer
	// repo stores the finished archive.
	repo output.Repository
	// bar is the optional progress bar.
	bar *progressbar.ProgressBar
}

// Run executes the packing workflow.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "packager")

	if len(opts.Files) == 0 {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, packer.ErrNoCandidates)
	}

	if opts.Config == nil {
		return config.ErrMaxSizeRequired
	}

	if err := config.Validate(opts.Config); err != nil {
		return err
	}

	p := newPackager(opts)

	if err := p.repo.Check(ctx); err != nil {
		return fmt.Errorf("check output: %w", err)
	}

	return p.Run(ctx)
}

func newPackager(opts *Options) *packager {
	p := &packager{
		cfg:    opts.Config,
		files:  opts.Files,
		stdout: opts.Stdout,
		repo:   opts.Repository,
	}

	if p.stdout == nil {
		p.stdout = os.Stdout
	}

	if p.repo == nil {
		p.repo = output.NewFileRepository(opts.Config.Output, opts.Config.Force)
	}

	if opts.Config.Progress {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}

		p.bar = progressbar.NewOptions(
			len(opts.Files),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("packing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(20),
			progressbar.OptionThrottle(progressThrottle),
			progressbar.OptionClearOnFinish(),
		)
	}

	return p
}

// Run packs the candidates, persists the archive and prints the summary.
func (p *packager) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Packing files",
		"files", len(p.files),
		"budget", humanize.IBytes(uint64(p.cfg.MaxSize)),
		"quality", p.cfg.Quality,
		"window", p.cfg.WindowBits)

	result, err := packer.Pack(ctx, p.files, packer.Config{
		Budget:          uint64(p.cfg.MaxSize),
		Encoder:         p.cfg.EncoderOptions(),
		StopAtFirstSkip: p.cfg.StopAtFirstSkip,
		OnDecision:      p.onDecision,
	})
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	if p.bar != nil {
		_ = p.bar.Finish() // Cosmetic only.
	}

	if err = p.repo.Save(ctx, result.Archive); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}

	report := result.Report

	if warning := report.Warning(); warning != "" {
		logger.WarnKV(ctx, "Budget too small for any file",
			"budget", report.Budget,
			"archive", report.ArchiveSize)
		p.println(warning)
	}

	p.println(report.Summary())

	logger.InfoKV(ctx, "Archive written",
		"path", p.cfg.Output,
		"size", humanize.IBytes(uint64(report.ArchiveSize)),
		"included", report.Included,
		"skipped", report.Skipped)

	return nil
}

// onDecision reports a decision as soon as it is made.
func (p *packager) onDecision(decision packer.Decision) {
	if message := decision.Message(); message != "" {
		p.println(message)
	} else if p.cfg.Verbose && decision.Included {
		p.println(decision.VerboseMessage())
	}

	if p.bar != nil {
		_ = p.bar.Add(1) // Cosmetic only.
	}
}

func (p *packager) println(line string) {
	_, _ = fmt.Fprintln(p.stdout, line)
}
