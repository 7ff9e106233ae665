package migration_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/galleria/internal/event"
	"github.com/hbomb79/galleria/internal/imgx"
	"github.com/hbomb79/galleria/internal/media"
	"github.com/hbomb79/galleria/internal/migration"
	"github.com/hbomb79/galleria/internal/normalize"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/hbomb79/galleria/internal/toolrun"
	"github.com/hbomb79/galleria/pkg/logger"
	"github.com/hbomb79/go-chanassert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

var containerPattern = regexp.MustCompile(`^(?i)(_.*|\d{4}s|projects?|archive.*)$`)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

// writingNormalizer writes a placeholder for every job it is handed.
type writingNormalizer struct {
	sync.Mutex
	jobs  []normalize.Job
	delay func(normalize.Job) time.Duration
}

func (w *writingNormalizer) Normalize(_ context.Context, job normalize.Job) report.ConversionResult {
	if w.delay != nil {
		time.Sleep(w.delay(job))
	}

	w.Lock()
	w.jobs = append(w.jobs, job)
	w.Unlock()

	res := report.ConversionResult{Asset: job.Asset, OutputPath: job.OutputPath, OutputExt: filepath.Ext(job.OutputPath)}
	if err := os.WriteFile(job.OutputPath, []byte("converted"), 0o644); err != nil {
		res.ErrorKind = report.ConversionFailure
		res.FailureReason = err.Error()
		return res
	}

	res.Success = true
	return res
}

func pngFixture(t *testing.T, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for x := 0; x < 16; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.String()
}

func newRun(t *testing.T, mode report.Mode, source string, target string, n migration.Normalizer) *migration.Run {
	t.Helper()

	scanner, err := media.NewScanner()
	require.NoError(t, err)

	return migration.New(migration.Config{
		Mode:             mode,
		SourceRoot:       source,
		TargetRoot:       target,
		ContainerPattern: containerPattern,
		Concurrency:      1,
		SuggestionLimit:  3,
	}, scanner, n)
}

func outcomeFor(t *testing.T, rep *report.MigrationReport, dirName string) report.ProjectOutcome {
	t.Helper()

	for _, p := range rep.Projects {
		if filepath.Base(p.SourceDir) == dirName {
			return p
		}
	}

	require.FailNowf(t, "missing outcome", "no outcome recorded for %q", dirName)
	return report.ProjectOutcome{}
}

func TestExecute_ProcessEndToEnd(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2023 Night Garden",
			fs.WithDir("2023 Night Garden_Gallery",
				fs.WithFile("b.png", pngFixture(t, color.RGBA{0, 200, 0, 255})),
				fs.WithFile("a.png", pngFixture(t, color.RGBA{200, 0, 0, 255})),
				fs.WithFile("c.PNG", pngFixture(t, color.RGBA{0, 0, 200, 255})),
				fs.WithFile("notes.txt", "not media"),
				fs.WithFile("Thumbs.db", ""),
			),
		),
	)
	target := fs.NewDir(t, "target", fs.WithDir("2023 Night Garden"))

	normalizer := normalize.New(normalize.Config{
		MaxDimension: 2500,
		MaxBytes:     1 << 20,
		PdfDPI:       150,
		ImageTimeout: time.Minute,
	}, imgx.New(), nil, toolrun.New())

	rep, err := newRun(t, report.ModeProcess, source.Path(), target.Path(), normalizer).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Projects, 1)

	outcome := rep.Projects[0]
	assert.Equal(t, report.StatusProcessed, outcome.Status)
	assert.Equal(t, 3, outcome.AssetCount)
	require.Len(t, outcome.Files, 3)
	assert.Len(t, outcome.Skipped, 1, "notes.txt is unsupported and Thumbs.db is ignored")

	gallery := target.Join("2023 Night Garden", "2023 Night Garden_gallery")
	expected := []struct{ source, output string }{
		{"a.png", "2023_Night_Garden_image01of03.png"},
		{"b.png", "2023_Night_Garden_image02of03.png"},
		{"c.PNG", "2023_Night_Garden_image03of03.png"},
	}
	for i, want := range expected {
		file := outcome.Files[i]
		assert.True(t, file.Success, file.FailureReason)
		assert.Equal(t, want.source, file.Asset.Name)
		assert.Equal(t, filepath.Join(gallery, want.output), file.OutputPath)
		assert.FileExists(t, file.OutputPath)
	}

	assert.Equal(t, 3, rep.Summary.Converted)
	assert.Equal(t, 0, rep.Summary.ConversionFailures)
	assert.Empty(t, rep.UnusedTargets)

	t.Run("rerun performs no conversions", func(t *testing.T) {
		spy := &writingNormalizer{}
		rep, err := newRun(t, report.ModeProcess, source.Path(), target.Path(), spy).Execute(context.Background())
		require.NoError(t, err)

		assert.Empty(t, spy.jobs)
		require.Len(t, rep.Projects, 1)
		assert.Equal(t, report.StatusAlreadyProcessed, rep.Projects[0].Status)
		assert.Equal(t, 3, rep.Summary.AlreadyConverted)
		assert.Equal(t, 0, rep.Summary.Converted)
		assert.Len(t, rep.FileMappings(), 3)
	})
}

func TestExecute_VerifyClassification(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2023 Ready Project", fs.WithDir("2023 Ready Project_gallery", fs.WithFile("one.jpg", "x"))),
		fs.WithDir("2023 Done Project", fs.WithDir("2023 Done Project_gallery", fs.WithFile("one.jpg", "x"))),
		fs.WithDir("2023 Cafe. Bar", fs.WithDir("2023 Cafe. Bar_gallery", fs.WithFile("one.jpg", "x"))),
		fs.WithDir("2023 Night Gardens", fs.WithDir("2023 Night Gardens_gallery", fs.WithFile("one.jpg", "x"))),
		fs.WithDir("2023 No Gallery", fs.WithFile("stray.jpg", "x")),
		fs.WithDir("2023 Empty Gallery", fs.WithDir("2023 Empty Gallery_gallery", fs.WithFile("readme.txt", "x"))),
		fs.WithDir("Misc Stuff"),
		fs.WithDir("Summer 2019 Shoot", fs.WithDir("Summer 2019 Shoot_gallery", fs.WithFile("one.png", "x"))),
	)
	target := fs.NewDir(t, "target",
		fs.WithDir("2023 ready project"),
		fs.WithDir("2023 Done Project", fs.WithDir("2023 Done Project_gallery", fs.WithFile("2023_Done_Project_image01of01.png", "x"))),
		fs.WithDir("2023 Cafe, Bar"),
		fs.WithDir("2023 Cafe Bar!"),
		fs.WithDir("2023 Night Garden"),
		fs.WithDir("2019 Summer Shoot"),
		fs.WithDir("2020 Never Matched"),
	)

	spy := &writingNormalizer{}
	rep, err := newRun(t, report.ModeVerify, source.Path(), target.Path(), spy).Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, spy.jobs, "verify must not convert anything")

	tests := []struct {
		dir    string
		status report.Status
		kind   report.ErrorKind
	}{
		{"2023 Ready Project", report.StatusReady, ""},
		{"2023 Done Project", report.StatusAlreadyProcessed, ""},
		{"2023 Cafe. Bar", report.StatusFailed, report.AmbiguousMatch},
		{"2023 Night Gardens", report.StatusUnmatched, report.Unmatched},
		{"2023 No Gallery", report.StatusFailed, report.GalleryMissing},
		{"2023 Empty Gallery", report.StatusFailed, report.NoMediaFound},
		{"Misc Stuff", report.StatusFailed, report.InvalidNameFormat},
		{"Summer 2019 Shoot", report.StatusReady, ""},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			outcome := outcomeFor(t, rep, tt.dir)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.kind, outcome.ErrorKind)
		})
	}

	assert.ElementsMatch(t, []string{"2023 Cafe Bar!", "2023 Cafe, Bar"}, outcomeFor(t, rep, "2023 Cafe. Bar").Candidates)
	assert.NotEmpty(t, outcomeFor(t, rep, "2023 Night Gardens").Suggestions)
	assert.Equal(t, "case-insensitive", outcomeFor(t, rep, "2023 Ready Project").MatchTier)

	assert.Contains(t, rep.UnusedTargets, target.Join("2020 Never Matched"))
	assert.Contains(t, rep.UnusedTargets, target.Join("2023 Night Garden"))
	assert.NotContains(t, rep.UnusedTargets, target.Join("2023 Done Project"))

	_, err = os.Stat(target.Join("2023 ready project", "2023 ready project_gallery"))
	assert.True(t, os.IsNotExist(err), "verify must not create directories")
}

func TestExecute_ContainerDirectories(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("_Archive",
			fs.WithDir("2019 Old Thing", fs.WithDir("2019 Old Thing_gallery", fs.WithFile("a.jpg", "x"))),
		),
		fs.WithDir("2010s",
			fs.WithDir("2012 Older Thing", fs.WithDir("2012 Older Thing_gallery", fs.WithFile("a.jpg", "x"))),
		),
	)
	target := fs.NewDir(t, "target",
		fs.WithDir("Projects", fs.WithDir("2019 Old Thing")),
		fs.WithDir("2012 Older Thing"),
	)

	rep, err := newRun(t, report.ModeVerify, source.Path(), target.Path(), &writingNormalizer{}).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Projects, 2)

	old := outcomeFor(t, rep, "2019 Old Thing")
	assert.Equal(t, report.StatusReady, old.Status)
	assert.Equal(t, target.Join("Projects", "2019 Old Thing"), old.TargetDir)
	assert.Equal(t, report.StatusReady, outcomeFor(t, rep, "2012 Older Thing").Status)
	assert.Empty(t, rep.UnusedTargets)
}

func TestExecute_InitCreatesMissingTargets(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2024 Brand New", fs.WithDir("2024 Brand New_gallery", fs.WithFile("a.jpg", "x"))),
		fs.WithDir("2024 Existing", fs.WithDir("2024 Existing_gallery", fs.WithFile("a.jpg", "x"))),
	)
	target := fs.NewDir(t, "target", fs.WithDir("2024 Existing"))

	spy := &writingNormalizer{}
	rep, err := newRun(t, report.ModeInit, source.Path(), target.Path(), spy).Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, spy.jobs)

	assert.Equal(t, report.StatusCreated, outcomeFor(t, rep, "2024 Brand New").Status)
	assert.DirExists(t, target.Join("2024 Brand New", "2024 Brand New_gallery"))

	assert.Equal(t, report.StatusReady, outcomeFor(t, rep, "2024 Existing").Status)
	assert.DirExists(t, target.Join("2024 Existing", "2024 Existing_gallery"))
	assert.Equal(t, 1, rep.Summary.Created)
}

func TestExecute_ProcessUnmatched(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2024 Brand New", fs.WithDir("2024 Brand New_gallery", fs.WithFile("a.jpg", "x"))),
	)

	t.Run("without create", func(t *testing.T) {
		target := fs.NewDir(t, "target")
		spy := &writingNormalizer{}
		rep, err := newRun(t, report.ModeProcess, source.Path(), target.Path(), spy).Execute(context.Background())
		require.NoError(t, err)

		assert.Empty(t, spy.jobs)
		assert.Equal(t, report.StatusUnmatched, rep.Projects[0].Status)
		assert.NoDirExists(t, target.Join("2024 Brand New"))
	})

	t.Run("with create", func(t *testing.T) {
		target := fs.NewDir(t, "target")
		scanner, err := media.NewScanner()
		require.NoError(t, err)

		spy := &writingNormalizer{}
		run := migration.New(migration.Config{
			Mode:          report.ModeProcess,
			SourceRoot:    source.Path(),
			TargetRoot:    target.Path(),
			CreateMissing: true,
			Concurrency:   1,
		}, scanner, spy)

		rep, err := run.Execute(context.Background())
		require.NoError(t, err)

		require.Len(t, spy.jobs, 1)
		assert.Equal(t, report.StatusProcessed, rep.Projects[0].Status)
		assert.FileExists(t, target.Join("2024 Brand New", "2024 Brand New_gallery", "2024_Brand_New_image01of01.png"))
	})
}

func TestExecute_MissingTargetRoot(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2024 Lonely", fs.WithDir("2024 Lonely_gallery", fs.WithFile("a.jpg", "x"))),
	)

	rep, err := newRun(t, report.ModeVerify, source.Path(), filepath.Join(source.Path(), "does-not-exist"), &writingNormalizer{}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.StatusUnmatched, rep.Projects[0].Status)
}

func TestExecute_MissingSourceRoot(t *testing.T) {
	target := fs.NewDir(t, "target")

	rep, err := newRun(t, report.ModeVerify, target.Join("nope"), target.Path(), &writingNormalizer{}).Execute(context.Background())
	assert.Error(t, err)
	assert.Nil(t, rep)
}

func TestExecute_ConcurrentResultsKeepOrder(t *testing.T) {
	files := make([]fs.PathOp, 0, 6)
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"} {
		files = append(files, fs.WithFile(name, "x"))
	}

	source := fs.NewDir(t, "source", fs.WithDir("2022 Busy", fs.WithDir("2022 Busy_gallery", files...)))
	target := fs.NewDir(t, "target", fs.WithDir("2022 Busy"))

	// Earlier jobs finish last
	spy := &writingNormalizer{delay: func(job normalize.Job) time.Duration {
		return time.Duration(job.Total-job.Index) * 10 * time.Millisecond
	}}

	scanner, err := media.NewScanner()
	require.NoError(t, err)
	run := migration.New(migration.Config{
		Mode:        report.ModeProcess,
		SourceRoot:  source.Path(),
		TargetRoot:  target.Path(),
		Concurrency: 4,
	}, scanner, spy)

	rep, err := run.Execute(context.Background())
	require.NoError(t, err)

	results := rep.Projects[0].Files
	require.Len(t, results, 6)
	for i, f := range results {
		assert.Equal(t, string(rune('a'+i))+".jpg", f.Asset.Name)
		assert.Contains(t, filepath.Base(f.OutputPath), "image0"+string(rune('1'+i))+"of06")
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2022 One", fs.WithDir("2022 One_gallery", fs.WithFile("a.jpg", "x"))),
	)
	target := fs.NewDir(t, "target", fs.WithDir("2022 One"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spy := &writingNormalizer{}
	rep, err := newRun(t, report.ModeProcess, source.Path(), target.Path(), spy).Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Projects)
	assert.Empty(t, spy.jobs)
	assert.False(t, rep.FinishedAt.IsZero())
}

func matchProjectStarted(sourceDir string, position, total int) chanassert.Matcher[event.HandlerEvent] {
	return chanassert.MatchPredicate(func(ev event.HandlerEvent) bool {
		started, ok := ev.Payload.(event.ProjectStarted)
		return ok && ev.Event == event.PROJECT_STARTED && started == event.ProjectStarted{SourceDir: sourceDir, Position: position, Total: total}
	})
}

func matchAssetComplete(sourceDir string) chanassert.Matcher[event.HandlerEvent] {
	return chanassert.MatchPredicate(func(ev event.HandlerEvent) bool {
		result, ok := ev.Payload.(report.ConversionResult)
		return ok && ev.Event == event.ASSET_COMPLETE && result.Success && strings.HasPrefix(result.Asset.SourcePath, sourceDir+string(filepath.Separator))
	})
}

func matchProjectComplete(sourceDir string, status report.Status) chanassert.Matcher[event.HandlerEvent] {
	return chanassert.MatchPredicate(func(ev event.HandlerEvent) bool {
		outcome, ok := ev.Payload.(report.ProjectOutcome)
		return ok && ev.Event == event.PROJECT_COMPLETE && outcome.SourceDir == sourceDir && outcome.Status == status
	})
}

func TestExecute_DispatchesProgressEvents(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2022 One", fs.WithDir("2022 One_gallery", fs.WithFile("a.jpg", "x"), fs.WithFile("b.jpg", "x"))),
		fs.WithDir("2022 Two", fs.WithDir("2022 Two_gallery", fs.WithFile("a.jpg", "x"))),
	)
	target := fs.NewDir(t, "target", fs.WithDir("2022 One"), fs.WithDir("2022 Two"))
	one, two := source.Join("2022 One"), source.Join("2022 Two")

	ch := make(chan event.HandlerEvent, 16)
	bus := event.New()
	bus.RegisterHandlerChannel(ch, event.PROJECT_STARTED, event.ASSET_COMPLETE, event.PROJECT_COMPLETE)

	exp := chanassert.NewChannelExpecter(ch).
		Expect(chanassert.OneOf(matchProjectStarted(one, 1, 2))).
		Expect(chanassert.ExactlyNOf(2, matchAssetComplete(one))).
		Expect(chanassert.OneOf(matchProjectComplete(one, report.StatusProcessed))).
		Expect(chanassert.OneOf(matchProjectStarted(two, 2, 2))).
		Expect(chanassert.OneOf(matchAssetComplete(two))).
		Expect(chanassert.OneOf(matchProjectComplete(two, report.StatusProcessed)))
	exp.Listen()

	run := newRun(t, report.ModeProcess, source.Path(), target.Path(), &writingNormalizer{})
	run.RegisterEventCoordinator(bus)
	_, err := run.Execute(context.Background())
	require.NoError(t, err)

	exp.AssertSatisfied(t, time.Second)
}

func TestExecute_MatchTierReflectsNameOnDisk(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2023 Bob's Shop", fs.WithDir("2023 Bob's Shop_gallery", fs.WithFile("a.jpg", "x"))),
		fs.WithDir("2023 Ana’s Cafe", fs.WithDir("2023 Ana’s Cafe_gallery", fs.WithFile("a.jpg", "x"))),
	)
	target := fs.NewDir(t, "target", fs.WithDir("2023 Bob’s Shop"), fs.WithDir("2023 Ana’s Cafe"))

	rep, err := newRun(t, report.ModeVerify, source.Path(), target.Path(), &writingNormalizer{}).Execute(context.Background())
	require.NoError(t, err)

	bob := outcomeFor(t, rep, "2023 Bob's Shop")
	assert.Equal(t, "normalized", bob.MatchTier)
	assert.Equal(t, target.Join("2023 Bob’s Shop"), bob.TargetDir)
	assert.Equal(t, "exact", outcomeFor(t, rep, "2023 Ana’s Cafe").MatchTier)
}

func TestIsProjectDir(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"2023 Night Garden", true},
		{"2023  Night   Garden ", true},
		{"2023", false},
		{"2023-Night", false},
		{"Night Garden 2023", false},
		{"_Archive", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migration.IsProjectDir(tt.name))
		})
	}
}
