// Package report holds the append-only record of a migration run and
// renders it to the match log, file-mapping CSV and JSON artifacts.
package report

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/galleria/internal/media"
	"github.com/hbomb79/galleria/internal/namekey"
)

type (
	Mode      string
	Status    string
	ErrorKind string
)

const (
	ModeVerify  Mode = "verify"
	ModeInit    Mode = "init"
	ModeProcess Mode = "process"
)

const (
	StatusReady            Status = "ready"
	StatusAlreadyProcessed Status = "already_processed"
	StatusProcessed        Status = "processed"
	StatusCreated          Status = "created"
	StatusUnmatched        Status = "unmatched"
	StatusFailed           Status = "failed"
)

const (
	InvalidNameFormat ErrorKind = "invalid_name_format"
	AmbiguousMatch    ErrorKind = "ambiguous_match"
	NoMediaFound      ErrorKind = "no_media_found"
	GalleryMissing    ErrorKind = "gallery_missing"
	ConversionFailure ErrorKind = "conversion_failure"
	SizeExceeded      ErrorKind = "size_exceeded"
	TargetUnavailable ErrorKind = "target_unavailable"
	Unmatched         ErrorKind = "unmatched"
)

type (
	// ConversionResult is the outcome of normalizing one asset. It is
	// never modified once appended to a ProjectOutcome.
	ConversionResult struct {
		Asset         media.Asset `json:"asset"`
		OutputPath    string      `json:"output_path"`
		OutputExt     string      `json:"output_ext"`
		Success       bool        `json:"success"`
		Skipped       bool        `json:"skipped,omitempty"`
		FailureReason string      `json:"failure_reason,omitempty"`
		ErrorKind     ErrorKind   `json:"error_kind,omitempty"`
		Warning       ErrorKind   `json:"warning,omitempty"`
		OutputBytes   int64       `json:"output_bytes,omitempty"`
		Profile       string      `json:"profile,omitempty"`
	}

	// ProjectOutcome records how one source project directory was handled.
	ProjectOutcome struct {
		At            time.Time           `json:"at"`
		SourceDir     string              `json:"source_dir"`
		Key           *namekey.ProjectKey `json:"key,omitempty"`
		SourceGallery string              `json:"source_gallery,omitempty"`
		TargetDir     string              `json:"target_dir,omitempty"`
		TargetGallery string              `json:"target_gallery,omitempty"`
		MatchTier     string              `json:"match_tier,omitempty"`
		Status        Status              `json:"status"`
		ErrorKind     ErrorKind           `json:"error_kind,omitempty"`
		Reason        string              `json:"reason,omitempty"`
		Candidates    []string            `json:"candidates,omitempty"`
		Suggestions   []string            `json:"suggestions,omitempty"`
		AssetCount    int                 `json:"asset_count"`
		Files         []ConversionResult  `json:"files,omitempty"`
		Skipped       []media.SkippedFile `json:"skipped,omitempty"`
	}

	Summary struct {
		Projects           int `json:"projects"`
		Ready              int `json:"ready"`
		AlreadyProcessed   int `json:"already_processed"`
		Processed          int `json:"processed"`
		Created            int `json:"created"`
		Unmatched          int `json:"unmatched"`
		Failed             int `json:"failed"`
		Converted          int `json:"converted"`
		AlreadyConverted   int `json:"already_converted"`
		ConversionFailures int `json:"conversion_failures"`
		SizeWarnings       int `json:"size_warnings"`
		SkippedFiles       int `json:"skipped_files"`
	}

	// MigrationReport is owned by a single run and appended to linearly.
	MigrationReport struct {
		RunID         uuid.UUID        `json:"run_id"`
		Mode          Mode             `json:"mode"`
		SourceRoot    string           `json:"source_root"`
		TargetRoot    string           `json:"target_root"`
		StartedAt     time.Time        `json:"started_at"`
		FinishedAt    time.Time        `json:"finished_at"`
		Projects      []ProjectOutcome `json:"projects"`
		UnusedTargets []string         `json:"unused_targets,omitempty"`
		Summary       Summary          `json:"summary"`

		clock func() time.Time
	}

	// FileMapping is one row of the tabular mapping consumed by downstream import tooling.
	FileMapping struct {
		OriginalFilename string
		NewFilename      string
		OriginalPath     string
		NewPath          string
		ProjectName      string
		Year             string
	}
)

// New creates an empty report. The clock is used for every timestamp
// recorded against the report, and may be nil to use time.Now.
func New(mode Mode, sourceRoot string, targetRoot string, clock func() time.Time) *MigrationReport {
	if clock == nil {
		clock = time.Now
	}

	return &MigrationReport{
		RunID:      uuid.New(),
		Mode:       mode,
		SourceRoot: sourceRoot,
		TargetRoot: targetRoot,
		StartedAt:  clock().UTC(),
		Projects:   make([]ProjectOutcome, 0),
		clock:      clock,
	}
}

// Add appends the outcome, stamping it with the current time.
func (r *MigrationReport) Add(outcome ProjectOutcome) {
	outcome.At = r.clock().UTC()
	r.Projects = append(r.Projects, outcome)
}

// Finalize stamps the finish time and computes the summary from the recorded outcomes.
func (r *MigrationReport) Finalize() {
	r.FinishedAt = r.clock().UTC()

	var s Summary
	for _, p := range r.Projects {
		s.Projects++
		switch p.Status {
		case StatusReady:
			s.Ready++
		case StatusAlreadyProcessed:
			s.AlreadyProcessed++
		case StatusProcessed:
			s.Processed++
		case StatusCreated:
			s.Created++
		case StatusUnmatched:
			s.Unmatched++
		case StatusFailed:
			s.Failed++
		}

		s.SkippedFiles += len(p.Skipped)
		for _, f := range p.Files {
			switch {
			case f.Skipped:
				s.AlreadyConverted++
			case f.Success:
				s.Converted++
			default:
				s.ConversionFailures++
			}
			if f.Warning == SizeExceeded {
				s.SizeWarnings++
			}
		}
	}

	r.Summary = s
}

// FileMappings returns one row per successful (or previously completed) conversion, in report order.
func (r *MigrationReport) FileMappings() []FileMapping {
	rows := make([]FileMapping, 0)
	for _, p := range r.Projects {
		if p.Key == nil {
			continue
		}

		for _, f := range p.Files {
			if !f.Success {
				continue
			}

			rows = append(rows, FileMapping{
				OriginalFilename: f.Asset.Name,
				NewFilename:      filepath.Base(f.OutputPath),
				OriginalPath:     f.Asset.SourcePath,
				NewPath:          f.OutputPath,
				ProjectName:      p.Key.Name,
				Year:             p.Key.Year,
			})
		}
	}

	return rows
}

// GalleryMappings returns the (project, target gallery) pairs for every
// project which has a target gallery.
func (r *MigrationReport) GalleryMappings() []ProjectOutcome {
	out := make([]ProjectOutcome, 0)
	for _, p := range r.Projects {
		if p.Key != nil && p.TargetGallery != "" && p.Status != StatusFailed && p.Status != StatusUnmatched {
			out = append(out, p)
		}
	}

	return out
}
