// Package migration orchestrates a complete pass over a source archive: it
// discovers project directories, reconciles them against the target tree and
// (in process mode) normalizes every gallery asset, recording each outcome in
// a MigrationReport.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hbomb79/galleria/internal/event"
	"github.com/hbomb79/galleria/internal/fsx"
	"github.com/hbomb79/galleria/internal/match"
	"github.com/hbomb79/galleria/internal/media"
	"github.com/hbomb79/galleria/internal/namekey"
	"github.com/hbomb79/galleria/internal/normalize"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/hbomb79/galleria/pkg/logger"
	"github.com/hbomb79/galleria/pkg/worker"
)

var log = logger.Get("Migrate")

type (
	// Normalizer converts a single planned asset. Implementations must capture
	// every failure in the result rather than returning it.
	Normalizer interface {
		Normalize(ctx context.Context, job normalize.Job) report.ConversionResult
	}

	Scanner interface {
		Scan(dir string) ([]media.Asset, []media.SkippedFile, error)
	}

	Config struct {
		Mode             report.Mode
		SourceRoot       string
		TargetRoot       string
		GallerySuffix    string
		ContainerPattern *regexp.Regexp

		// CreateMissing allows process mode to create (and then process) target
		// directories for unmatched projects, as init mode would.
		CreateMissing   bool
		Concurrency     int
		SuggestionLimit int
	}

	Run struct {
		config     Config
		scanner    Scanner
		normalizer Normalizer
		events     event.EventDispatcher
		clock      func() time.Time
	}

	// targets is the listing of the target root used as the candidate set for matching.
	targets struct {
		names []string
		paths []string
		used  []bool
		err   error
	}
)

func New(config Config, scanner Scanner, normalizer Normalizer) *Run {
	if config.GallerySuffix == "" {
		config.GallerySuffix = namekey.DefaultGallerySuffix
	}

	return &Run{config: config, scanner: scanner, normalizer: normalizer, clock: time.Now}
}

// RegisterEventCoordinator enables dispatching of progress events during Execute.
func (r *Run) RegisterEventCoordinator(ec event.EventCoordinator) {
	r.events = ec
}

// Execute performs the run and returns the finalized report. An error is only
// returned when the source root cannot be read, or the context is cancelled
// (in which case the partial report is still returned).
func (r *Run) Execute(ctx context.Context) (*report.MigrationReport, error) {
	rep := report.New(r.config.Mode, r.config.SourceRoot, r.config.TargetRoot, r.clock)

	source, err := discover(r.config.SourceRoot, r.config.ContainerPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to read source root %s: %w", r.config.SourceRoot, err)
	}

	tgts := r.listTargets()
	log.Emit(logger.INFO, "Discovered %d project(s) in %s, %d target candidate(s)\n", len(source.Projects), r.config.SourceRoot, len(tgts.names))

	var runErr error
	entries := r.candidateProjects(source, rep)
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			log.Warnf("Run cancelled, %d project(s) were not visited\n", len(entries)-i)
			runErr = err
			break
		}

		r.dispatch(event.PROJECT_STARTED, event.ProjectStarted{SourceDir: entry.Path, Position: i + 1, Total: len(entries)})
		outcome := r.handleProject(ctx, entry, tgts)
		r.logOutcome(outcome)
		rep.Add(outcome)
		r.dispatch(event.PROJECT_COMPLETE, outcome)
	}

	for i, used := range tgts.used {
		if !used {
			rep.UnusedTargets = append(rep.UnusedTargets, tgts.paths[i])
		}
	}

	rep.Finalize()
	return rep, runErr
}

type projectEntry struct {
	dirEntry
	key namekey.ProjectKey

	// written is the key as it appears on disk, used for exact matching.
	written namekey.ProjectKey
}

func newProjectEntry(d dirEntry, key namekey.ProjectKey) projectEntry {
	written, ok := namekey.SplitLeadingYear(d.Name)
	if !ok {
		written = key
	}

	return projectEntry{d, key, written}
}

// candidateProjects resolves a ProjectKey for every discovered directory. Project
// directories always qualify; other directories qualify only when a year can be
// found somewhere in their name. Directories with no year at all are recorded
// as InvalidNameFormat.
func (r *Run) candidateProjects(d *discovery, rep *report.MigrationReport) []projectEntry {
	out := make([]projectEntry, 0, len(d.Projects))
	for _, p := range d.Projects {
		key, ok := namekey.ExtractYearAndName(p.Name)
		if !ok {
			rep.Add(report.ProjectOutcome{SourceDir: p.Path, Status: report.StatusFailed, ErrorKind: report.InvalidNameFormat, Reason: "name does not contain a year and project name"})
			continue
		}
		out = append(out, newProjectEntry(p, key))
	}

	for _, o := range d.Other {
		if key, ok := namekey.ExtractYearAndName(o.Name); ok {
			log.Debugf("Using embedded year for %q -> %s\n", o.Name, key)
			out = append(out, newProjectEntry(o, key))
			continue
		}

		rep.Add(report.ProjectOutcome{SourceDir: o.Path, Status: report.StatusFailed, ErrorKind: report.InvalidNameFormat, Reason: "no four digit year found in directory name"})
	}

	return out
}

func (r *Run) listTargets() *targets {
	t := &targets{}
	d, err := discover(r.config.TargetRoot, r.config.ContainerPattern)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Errorf("Unable to list target root %s: %v\n", r.config.TargetRoot, err)
			t.err = err
		}
		return t
	}

	for _, p := range append(d.Projects, d.Other...) {
		t.names = append(t.names, p.Name)
		t.paths = append(t.paths, p.Path)
	}
	t.used = make([]bool, len(t.names))

	return t
}

func (r *Run) handleProject(ctx context.Context, entry projectEntry, tgts *targets) report.ProjectOutcome {
	key := entry.key
	outcome := report.ProjectOutcome{SourceDir: entry.Path, Key: &key}
	fail := func(kind report.ErrorKind, format string, args ...any) report.ProjectOutcome {
		outcome.Status = report.StatusFailed
		outcome.ErrorKind = kind
		outcome.Reason = fmt.Sprintf(format, args...)
		return outcome
	}

	gallery, err := findGallery(entry.Path, key.String(), r.config.GallerySuffix)
	if err != nil {
		return fail(report.GalleryMissing, "%v", err)
	}
	outcome.SourceGallery = gallery

	assets, skipped, err := r.scanner.Scan(gallery)
	if err != nil {
		return fail(report.GalleryMissing, "%v", err)
	}
	outcome.Skipped = skipped
	outcome.AssetCount = len(assets)
	if len(assets) == 0 {
		return fail(report.NoMediaFound, "%s contains no supported media (%d file(s) skipped)", filepath.Base(gallery), len(skipped))
	}

	if tgts.err != nil {
		return fail(report.TargetUnavailable, "target root unreadable: %v", tgts.err)
	}

	targetDir, created, done := r.resolveTarget(entry, tgts, &outcome)
	if done {
		return outcome
	}

	outcome.TargetDir = targetDir
	targetGallery, err := r.targetGallery(targetDir, key)
	if err != nil {
		return fail(report.TargetUnavailable, "%v", err)
	}
	outcome.TargetGallery = targetGallery

	jobs := normalize.PlanJobs(key, assets, targetGallery)
	existing, err := existingOutputs(jobs)
	if err != nil {
		return fail(report.TargetUnavailable, "unable to inspect target gallery: %v", err)
	}

	switch r.config.Mode {
	case report.ModeVerify:
		outcome.Status = classify(existing)
		return outcome
	case report.ModeInit:
		if err := fsx.EnsureDir(targetGallery); err != nil {
			return fail(report.TargetUnavailable, "unable to create %s: %v", targetGallery, err)
		}
		outcome.Status = classify(existing)
		if created {
			outcome.Status = report.StatusCreated
		}
		return outcome
	}

	if err := fsx.EnsureDir(targetGallery); err != nil {
		return fail(report.TargetUnavailable, "unable to create %s: %v", targetGallery, err)
	}

	outcome.Files = r.convert(ctx, jobs, existing)
	outcome.Status = report.StatusProcessed
	if classify(existing) == report.StatusAlreadyProcessed {
		outcome.Status = report.StatusAlreadyProcessed
	}

	return outcome
}

// resolveTarget matches the entry against the target candidates. When no target
// exists, init mode (and process mode with CreateMissing) creates one; verify
// mode records the project as unmatched. done is true if the outcome is
// final and no further processing should take place.
func (r *Run) resolveTarget(entry projectEntry, tgts *targets, outcome *report.ProjectOutcome) (dir string, created bool, done bool) {
	key := entry.key
	res, err := match.Match(entry.written, tgts.names)
	if err != nil {
		var ambiguous *match.AmbiguousMatchError
		if errors.As(err, &ambiguous) {
			outcome.Candidates = ambiguous.Candidates
		}

		outcome.Status = report.StatusFailed
		outcome.ErrorKind = report.AmbiguousMatch
		outcome.Reason = err.Error()
		return "", false, true
	}

	if res != nil {
		for i, name := range tgts.names {
			if name == res.Candidate {
				tgts.used[i] = true
				outcome.MatchTier = res.Tier.String()
				return tgts.paths[i], false, false
			}
		}
	}

	if r.config.Mode == report.ModeInit || (r.config.Mode == report.ModeProcess && r.config.CreateMissing) {
		dir := filepath.Join(r.config.TargetRoot, key.String())
		if err := fsx.EnsureDir(dir); err != nil {
			outcome.Status = report.StatusFailed
			outcome.ErrorKind = report.TargetUnavailable
			outcome.Reason = fmt.Sprintf("unable to create %s: %v", dir, err)
			return "", false, true
		}

		outcome.MatchTier = "created"
		return dir, true, false
	}

	for _, s := range match.Suggest(key, tgts.names, r.config.SuggestionLimit) {
		outcome.Suggestions = append(outcome.Suggestions, fmt.Sprintf("%s (%.2f)", s.Candidate, s.Similarity))
	}

	outcome.Status = report.StatusUnmatched
	outcome.ErrorKind = report.Unmatched
	outcome.Reason = "no target directory matches this project"
	return "", false, true
}

// targetGallery returns the gallery directory inside the target project
// directory, which need not exist yet.
func (r *Run) targetGallery(targetDir string, key namekey.ProjectKey) (string, error) {
	exists, err := fsx.DirExists(targetDir)
	if err != nil {
		return "", err
	}

	if exists {
		if gallery, err := findGallery(targetDir, key.String(), r.config.GallerySuffix); err == nil {
			return gallery, nil
		}
	}

	return filepath.Join(targetDir, filepath.Base(targetDir)+r.config.GallerySuffix), nil
}

// convert runs every pending job through the normalizer. Output paths were fixed
// by PlanJobs, so results are positioned by job index regardless of the order
// in which workers finish.
func (r *Run) convert(ctx context.Context, jobs []normalize.Job, existing []bool) []report.ConversionResult {
	results := worker.Map(ctx, "Convert", r.config.Concurrency, len(jobs), func(ctx context.Context, i int) report.ConversionResult {
		job := jobs[i]
		if existing[i] {
			log.Verbosef("Skipping %s, %s already exists\n", job.Asset.Name, filepath.Base(job.OutputPath))
			return report.ConversionResult{
				Asset:      job.Asset,
				OutputPath: job.OutputPath,
				OutputExt:  filepath.Ext(job.OutputPath),
				Success:    true,
				Skipped:    true,
			}
		}

		result := r.normalizer.Normalize(ctx, job)
		r.dispatch(event.ASSET_COMPLETE, result)
		return result
	})

	// Jobs never started due to cancellation leave a zero result behind
	out := results[:0]
	for _, res := range results {
		if res.OutputPath != "" {
			out = append(out, res)
		}
	}

	return out
}

func (r *Run) dispatch(ev event.Event, payload event.Payload) {
	if r.events != nil {
		r.events.Dispatch(ev, payload)
	}
}

func existingOutputs(jobs []normalize.Job) ([]bool, error) {
	out := make([]bool, len(jobs))
	for i, job := range jobs {
		ok, err := fsx.Exists(job.OutputPath)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}

	return out, nil
}

func classify(existing []bool) report.Status {
	for _, ok := range existing {
		if !ok {
			return report.StatusReady
		}
	}

	return report.StatusAlreadyProcessed
}

func (r *Run) logOutcome(o report.ProjectOutcome) {
	label := filepath.Base(o.SourceDir)
	if o.Key != nil {
		label = o.Key.String()
	}

	switch o.Status {
	case report.StatusFailed:
		log.Warnf("%s: %s (%s)\n", label, o.ErrorKind, o.Reason)
	case report.StatusUnmatched:
		log.Warnf("%s: no matching target\n", label)
	default:
		log.Emit(logger.SUCCESS, "%s: %s -> %s\n", label, o.Status, o.TargetGallery)
	}
}
