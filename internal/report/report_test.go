package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hbomb79/galleria/internal/media"
	"github.com/hbomb79/galleria/internal/namekey"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("NZDT", 13*3600))
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func sampleReport() *report.MigrationReport {
	r := report.New(report.ModeProcess, "/src", "/dst", fixedClock())
	key := namekey.ProjectKey{Year: "2023", Name: "Night Garden"}

	r.Add(report.ProjectOutcome{
		SourceDir:     "/src/2023 Night Garden",
		Key:           &key,
		TargetGallery: "/dst/2023 Night Garden/2023 Night Garden_gallery",
		MatchTier:     "exact",
		Status:        report.StatusProcessed,
		AssetCount:    3,
		Files: []report.ConversionResult{
			{Asset: media.Asset{Name: "a.jpg", SourcePath: "/src/a.jpg"}, OutputPath: "/dst/g/2023_Night_Garden_image01of03.png", Success: true},
			{Asset: media.Asset{Name: "b.jpg", SourcePath: "/src/b.jpg"}, OutputPath: "/dst/g/2023_Night_Garden_image02of03.png", Success: true, Warning: report.SizeExceeded, OutputBytes: 2 << 20},
			{Asset: media.Asset{Name: "c.jpg", SourcePath: "/src/c.jpg"}, OutputPath: "/dst/g/2023_Night_Garden_image03of03.png", Success: true, Skipped: true},
			{Asset: media.Asset{Name: "d.pdf", SourcePath: "/src/d.pdf"}, OutputPath: "/dst/g/x.png", Success: false, ErrorKind: report.ConversionFailure, FailureReason: "pdftocairo failed"},
		},
		Skipped: []media.SkippedFile{{Path: "/src/notes.txt", Reason: "unsupported extension"}},
	})
	r.Add(report.ProjectOutcome{SourceDir: "/src/Misc", Status: report.StatusFailed, ErrorKind: report.InvalidNameFormat, Reason: "no year"})
	r.Add(report.ProjectOutcome{SourceDir: "/src/2020 Empty", Key: &namekey.ProjectKey{Year: "2020", Name: "Empty"}, Status: report.StatusFailed, ErrorKind: report.NoMediaFound, Reason: "gallery has no media"})
	r.Add(report.ProjectOutcome{SourceDir: "/src/2021 Lost", Key: &namekey.ProjectKey{Year: "2021", Name: "Lost"}, Status: report.StatusUnmatched, ErrorKind: report.Unmatched, Suggestions: []string{"2021 Lost Things"}})
	r.UnusedTargets = []string{"/dst/1999 Orphan"}
	r.Finalize()
	return r
}

func TestFinalize_Summary(t *testing.T) {
	r := sampleReport()

	assert.Equal(t, report.Summary{
		Projects:           4,
		Processed:          1,
		Unmatched:          1,
		Failed:             2,
		Converted:          2,
		AlreadyConverted:   1,
		ConversionFailures: 1,
		SizeWarnings:       1,
		SkippedFiles:       1,
	}, r.Summary)
	assert.Equal(t, time.UTC, r.FinishedAt.Location())
	assert.True(t, r.FinishedAt.After(r.StartedAt))
	assert.True(t, r.Projects[0].At.Before(r.Projects[1].At), "outcomes are stamped in append order")
}

func TestFileMappings(t *testing.T) {
	rows := sampleReport().FileMappings()

	require.Len(t, rows, 3, "failed conversions are excluded")
	assert.Equal(t, report.FileMapping{
		OriginalFilename: "a.jpg",
		NewFilename:      "2023_Night_Garden_image01of03.png",
		OriginalPath:     "/src/a.jpg",
		NewPath:          "/dst/g/2023_Night_Garden_image01of03.png",
		ProjectName:      "Night Garden",
		Year:             "2023",
	}, rows[0])
}

func TestGalleryMappings(t *testing.T) {
	mappings := sampleReport().GalleryMappings()
	require.Len(t, mappings, 1)
	assert.Equal(t, "Night Garden", mappings[0].Key.Name)
}

func TestWriteMapping(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteMapping(&buf, sampleReport()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"original_filename", "new_filename", "original_path", "new_path", "project_name", "year"}, records[0])
	assert.Equal(t, "c.jpg", records[3][0])
}

func TestWriteLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteLog(&buf, sampleReport()))
	out := buf.String()

	for _, expected := range []string{
		"[RUN] process run",
		"[PROCESSED] 2023 Night Garden -> /dst/2023 Night Garden/2023 Night Garden_gallery (tier=exact, assets=3)",
		"[CONVERTED] a.jpg -> 2023_Night_Garden_image01of03.png",
		"[SIZE_EXCEEDED] b.jpg",
		"[EXISTS] c.jpg",
		"[CONVERSION_FAILURE] d.pdf: pdftocairo failed",
		"[SKIPPED] notes.txt",
		"[INVALID_NAME_FORMAT] Misc: no year",
		"[NO_MEDIA_FILES] 2020 Empty",
		"[SUGGEST] 2021 Lost ~ 2021 Lost Things",
		"[UNUSED_TARGET] /dst/1999 Orphan",
		"[SUMMARY] projects=4",
	} {
		assert.Contains(t, out, expected)
	}

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		_, err := time.Parse(time.RFC3339, strings.SplitN(line, " ", 2)[0])
		assert.NoError(t, err, "every line must start with a timestamp: %q", line)
	}
}

func TestFlush(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()

	artifacts, err := report.Flush(dir, r)
	require.NoError(t, err)

	assert.Contains(t, artifacts.Log, "match-20240229-210001.log")
	for _, p := range []string{artifacts.Log, artifacts.Mapping, artifacts.JSON} {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	raw, err := os.ReadFile(artifacts.JSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "process", decoded["mode"])
	assert.Equal(t, r.RunID.String(), decoded["run_id"])
	assert.Len(t, decoded["projects"], 4)
}

func TestFlush_UnwritableDirectory(t *testing.T) {
	file := t.TempDir() + "/occupied"
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := report.Flush(file, sampleReport())
	assert.Error(t, err)
}
