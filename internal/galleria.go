package internal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/hbomb79/galleria/internal/config"
	"github.com/hbomb79/galleria/internal/database"
	"github.com/hbomb79/galleria/internal/event"
	"github.com/hbomb79/galleria/internal/ffmpeg"
	"github.com/hbomb79/galleria/internal/imgx"
	"github.com/hbomb79/galleria/internal/manifest"
	"github.com/hbomb79/galleria/internal/media"
	"github.com/hbomb79/galleria/internal/migration"
	"github.com/hbomb79/galleria/internal/normalize"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/hbomb79/galleria/internal/standardize"
	"github.com/hbomb79/galleria/internal/toolrun"
	"github.com/hbomb79/galleria/pkg/logger"
)

var log = logger.Get("Core")

// Galleria wires the configured services together for a single invocation.
type Galleria struct {
	config *config.Config
	runner toolrun.Runner
}

// Outcome is everything produced by a migration run.
type Outcome struct {
	Report    *report.MigrationReport
	Artifacts *report.Artifacts
}

// New expects a finalized configuration.
func New(cfg *config.Config) *Galleria {
	log.Emit(logger.DEBUG, "Bootstrapping galleria using config: %#v\n", cfg)
	return &Galleria{config: cfg, runner: toolrun.New()}
}

// Migrate runs a verify, init or process pass and flushes the report
// artifacts. Artifacts are written even when the run is interrupted, in which
// case the context error is returned alongside the partial outcome.
func (g *Galleria) Migrate(ctx context.Context, mode report.Mode, createMissing bool) (*Outcome, error) {
	scanner, err := media.NewScanner(g.config.Ignore...)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}

	if mode == report.ModeProcess {
		g.checkTools()
	}

	run := migration.New(migration.Config{
		Mode:             mode,
		SourceRoot:       g.config.SourceRoot,
		TargetRoot:       g.config.TargetRoot,
		GallerySuffix:    g.config.GallerySuffix(),
		ContainerPattern: regexp.MustCompile(g.config.ContainerPattern),
		CreateMissing:    createMissing,
		Concurrency:      g.config.Concurrency,
		SuggestionLimit:  g.config.SuggestionLimit,
	}, scanner, g.normalizer())
	run.RegisterEventCoordinator(g.progressEvents())

	log.Emit(logger.NEW, "Starting %s run: %s -> %s\n", mode, g.config.SourceRoot, g.config.TargetRoot)
	rep, runErr := run.Execute(ctx)
	if rep == nil {
		return nil, runErr
	}

	artifacts, err := report.Flush(g.config.ReportDir, rep)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	log.Emit(logger.SUCCESS, "Report written to %s\n", artifacts.Log)

	if mode == report.ModeProcess && g.config.ManifestPath != "" {
		if err := g.recordManifest(rep); err != nil {
			return nil, errors.Join(runErr, err)
		}
	}

	return &Outcome{Report: rep, Artifacts: artifacts}, runErr
}

// Standardize renames apostrophe variants beneath the source root.
func (g *Galleria) Standardize(ctx context.Context, dryRun bool) (*standardize.Summary, error) {
	log.Emit(logger.NEW, "Standardizing apostrophes in %s (dry run: %v)\n", g.config.SourceRoot, dryRun)
	return standardize.Run(ctx, g.config.SourceRoot, dryRun)
}

// progressEvents returns an event bus which logs the progress of a run.
func (g *Galleria) progressEvents() event.EventCoordinator {
	bus := event.New()
	bus.RegisterHandlerFunction(event.PROJECT_STARTED, func(_ event.Event, p event.Payload) {
		started := p.(event.ProjectStarted)
		log.Infof("[%d/%d] %s\n", started.Position, started.Total, started.SourceDir)
	})

	var converted, failed atomic.Int64
	bus.RegisterHandlerFunction(event.ASSET_COMPLETE, func(_ event.Event, p event.Payload) {
		if p.(report.ConversionResult).Success {
			converted.Add(1)
		} else {
			failed.Add(1)
		}
	})
	bus.RegisterHandlerFunction(event.PROJECT_COMPLETE, func(_ event.Event, p event.Payload) {
		if len(p.(report.ProjectOutcome).Files) > 0 {
			log.Verbosef("%d asset(s) converted, %d failed so far\n", converted.Load(), failed.Load())
		}
	})

	return bus
}

func (g *Galleria) normalizer() *normalize.Normalizer {
	video := ffmpeg.New(g.config.Video, g.runner)
	return normalize.New(g.config.Image, imgx.New(), video, g.runner)
}

func (g *Galleria) recordManifest(rep *report.MigrationReport) error {
	db := database.New()
	if err := db.Connect(g.config.ManifestPath); err != nil {
		return err
	}
	defer db.Close()

	if err := manifest.NewStore().RecordTx(db.GetSqlxDb(), rep); err != nil {
		return fmt.Errorf("failed to record run in manifest: %w", err)
	}

	return nil
}

// checkTools warns about external converters which cannot be found. Missing
// tools only fail the assets which need them.
func (g *Galleria) checkTools() {
	tools := map[string]string{
		"ffmpeg":       g.config.Video.FfmpegBinPath,
		"pdftocairo":   g.config.Image.PdftocairoPath,
		"magick":       g.config.Image.MagickPath,
		"heif-convert": g.config.Image.HeifConvertPath,
	}

	for name, path := range tools {
		if !toolrun.IsAvailable(path) {
			log.Warnf("%s not found at %q, assets requiring it will fail\n", name, path)
		}
	}
}
