// Package standardize rewrites apostrophe variants in archive directory names
// to the canonical form, so that folder names line up with what the matcher
// produces.
package standardize

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hbomb79/galleria/internal/namekey"
	"github.com/hbomb79/galleria/pkg/logger"
)

var (
	log        = logger.Get("Standardize")
	yearPrefix = regexp.MustCompile(`^\d{4}\s`)
)

type Outcome string

const (
	Renamed Outcome = "renamed"
	Planned Outcome = "planned"
	Exists  Outcome = "exists"
	Failed  Outcome = "failed"
)

type (
	Rename struct {
		From    string  `json:"from"`
		To      string  `json:"to"`
		Outcome Outcome `json:"outcome"`
		Error   string  `json:"error,omitempty"`
	}

	Summary struct {
		Renamed int      `json:"renamed"`
		Skipped int      `json:"skipped"`
		Errors  int      `json:"errors"`
		Renames []Rename `json:"renames"`
	}
)

// Run renames every directory beneath the year-prefixed directories of root
// (and those directories themselves) whose name contains a non-canonical
// apostrophe. Renames are applied deepest first so that parent paths stay
// valid. When dryRun is true nothing is modified and each rename is reported
// as Planned. A rename whose destination already exists is skipped.
func Run(ctx context.Context, root string, dryRun bool) (*Summary, error) {
	targets, err := collect(root)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Renames: make([]Rename, 0, len(targets))}
	for _, from := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		to := filepath.Join(filepath.Dir(from), namekey.FoldApostrophes(filepath.Base(from)))
		rename := Rename{From: from, To: to}
		switch _, err := os.Lstat(to); {
		case err == nil:
			rename.Outcome = Exists
		case !errors.Is(err, fs.ErrNotExist):
			rename.Outcome, rename.Error = Failed, err.Error()
		case dryRun:
			rename.Outcome = Planned
		default:
			if err := renamePreservingTimes(from, to); err != nil {
				rename.Outcome, rename.Error = Failed, err.Error()
			} else {
				rename.Outcome = Renamed
			}
		}

		switch rename.Outcome {
		case Renamed, Planned:
			summary.Renamed++
			log.Emit(logger.SUCCESS, "%s %q -> %q\n", rename.Outcome, from, filepath.Base(to))
		case Exists:
			summary.Skipped++
			log.Warnf("Skipping %q, %q already exists\n", from, filepath.Base(to))
		case Failed:
			summary.Errors++
			log.Errorf("Failed to rename %q: %s\n", from, rename.Error)
		}
		summary.Renames = append(summary.Renames, rename)
	}

	log.Infof("Standardization complete: %d renamed, %d skipped, %d error(s)\n", summary.Renamed, summary.Skipped, summary.Errors)
	return summary, nil
}

// collect returns the directories needing a rename, deepest first.
func collect(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() || !yearPrefix.MatchString(e.Name()) {
			continue
		}

		err := filepath.WalkDir(filepath.Join(root, e.Name()), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warnf("Unable to read %s: %v\n", path, err)
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			if namekey.FoldApostrophes(d.Name()) != d.Name() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], string(filepath.Separator)), strings.Count(paths[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})
	return paths, nil
}

func renamePreservingTimes(from string, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return err
	}

	return os.Chtimes(to, info.ModTime(), info.ModTime())
}
