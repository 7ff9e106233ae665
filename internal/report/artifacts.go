package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbomb79/galleria/internal/fsx"
)

const artifactTimestamp = "20060102-150405"

var csvHeader = []string{"original_filename", "new_filename", "original_path", "new_path", "project_name", "year"}

// Artifacts holds the paths of the files written by Flush.
type Artifacts struct {
	Log     string
	Mapping string
	JSON    string
}

// Flush writes the match log, file-mapping CSV and JSON report in to dir. The
// report should be finalized first. Any failure here is fatal to the run.
func Flush(dir string, r *MigrationReport) (*Artifacts, error) {
	stamp := r.StartedAt.UTC().Format(artifactTimestamp)
	artifacts := &Artifacts{
		Log:     filepath.Join(dir, fmt.Sprintf("match-%s.log", stamp)),
		Mapping: filepath.Join(dir, fmt.Sprintf("file-mapping-%s.csv", stamp)),
		JSON:    filepath.Join(dir, fmt.Sprintf("report-%s.json", stamp)),
	}

	writers := []struct {
		path  string
		write func(io.Writer, *MigrationReport) error
	}{
		{artifacts.Log, WriteLog},
		{artifacts.Mapping, WriteMapping},
		{artifacts.JSON, WriteJSON},
	}

	for _, w := range writers {
		err := fsx.WriteFileAtomic(w.path, func(out io.Writer) error { return w.write(out, r) })
		if err != nil {
			return nil, fmt.Errorf("failed to write report artifact %s: %w", w.path, err)
		}
	}

	return artifacts, nil
}

// WriteJSON renders the full report as indented JSON.
func WriteJSON(w io.Writer, r *MigrationReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteMapping renders the file mapping as CSV with a header row.
func WriteMapping(w io.Writer, r *MigrationReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, row := range r.FileMappings() {
		record := []string{row.OriginalFilename, row.NewFilename, row.OriginalPath, row.NewPath, row.ProjectName, row.Year}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteLog renders the human readable, timestamped match log.
func WriteLog(w io.Writer, r *MigrationReport) error {
	lw := &lineWriter{w: w}
	lw.line(r.StartedAt, "RUN", "%s run %s (source=%s target=%s)", r.Mode, r.RunID, r.SourceRoot, r.TargetRoot)

	for _, p := range r.Projects {
		name := filepath.Base(p.SourceDir)
		if p.Key != nil {
			name = p.Key.String()
		}

		switch {
		case p.ErrorKind == GalleryMissing:
			lw.line(p.At, "MISSING_FOLDER", "%s: %s", name, p.Reason)
		case p.ErrorKind == NoMediaFound:
			lw.line(p.At, "NO_MEDIA_FILES", "%s: %s", name, p.Reason)
		case p.ErrorKind != "":
			lw.line(p.At, strings.ToUpper(string(p.ErrorKind)), "%s: %s", name, p.Reason)
		default:
			target := p.TargetGallery
			if target == "" {
				target = p.TargetDir
			}
			lw.line(p.At, strings.ToUpper(string(p.Status)), "%s -> %s (tier=%s, assets=%d)", name, target, p.MatchTier, p.AssetCount)
		}

		for _, s := range p.Suggestions {
			lw.line(p.At, "SUGGEST", "%s ~ %s", name, s)
		}
		for _, f := range p.Files {
			switch {
			case f.Skipped:
				lw.line(p.At, "EXISTS", "%s -> %s", f.Asset.Name, filepath.Base(f.OutputPath))
			case !f.Success:
				lw.line(p.At, "CONVERSION_FAILURE", "%s: %s", f.Asset.Name, f.FailureReason)
			case f.Warning != "":
				lw.line(p.At, strings.ToUpper(string(f.Warning)), "%s -> %s (%d bytes)", f.Asset.Name, filepath.Base(f.OutputPath), f.OutputBytes)
			default:
				lw.line(p.At, "CONVERTED", "%s -> %s", f.Asset.Name, filepath.Base(f.OutputPath))
			}
		}
		for _, s := range p.Skipped {
			lw.line(p.At, "SKIPPED", "%s: %s", filepath.Base(s.Path), s.Reason)
		}
	}

	for _, t := range r.UnusedTargets {
		lw.line(r.FinishedAt, "UNUSED_TARGET", "%s", t)
	}

	s := r.Summary
	lw.line(r.FinishedAt, "SUMMARY",
		"projects=%d ready=%d already_processed=%d processed=%d created=%d unmatched=%d failed=%d converted=%d already_converted=%d conversion_failures=%d size_warnings=%d skipped_files=%d",
		s.Projects, s.Ready, s.AlreadyProcessed, s.Processed, s.Created, s.Unmatched, s.Failed, s.Converted, s.AlreadyConverted, s.ConversionFailures, s.SizeWarnings, s.SkippedFiles)

	return lw.err
}

type lineWriter struct {
	w   io.Writer
	err error
}

func (lw *lineWriter) line(at time.Time, tag string, format string, args ...any) {
	if lw.err != nil {
		return
	}

	_, lw.err = fmt.Fprintf(lw.w, "%s [%s] %s\n", at.UTC().Format(time.RFC3339), tag, fmt.Sprintf(format, args...))
}
