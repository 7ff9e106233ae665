package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnorePatterns filters platform metadata which should never be
// treated as media (matched case-insensitively against the file name).
var DefaultIgnorePatterns = []string{
	".*",
	"thumbs.db",
	"desktop.ini",
	"ehthumbs.db",
	"icon?",
}

// SkippedFile records a gallery file which was not converted, and why.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Scanner enumerates the media assets directly inside a gallery directory.
type Scanner struct {
	ignore []string
}

// NewScanner returns a Scanner which ignores the default patterns plus any extras.
// Patterns use doublestar syntax and are matched against the lowercased file name.
func NewScanner(extraIgnore ...string) (*Scanner, error) {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(extraIgnore))
	patterns = append(patterns, DefaultIgnorePatterns...)
	for _, p := range extraIgnore {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}

		patterns = append(patterns, p)
	}

	return &Scanner{ignore: patterns}, nil
}

// Scan lists the gallery directory (non-recursively). Supported assets are
// returned sorted by file name in byte order; this ordering is the contract on
// which output indices are computed. Unsupported files are returned as skipped,
// ignored platform files are dropped silently.
func (s *Scanner) Scan(dir string) ([]Asset, []SkippedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read gallery directory %s: %w", dir, err)
	}

	assets := make([]Asset, 0, len(entries))
	skipped := make([]SkippedFile, 0)
	for _, entry := range entries {
		if entry.IsDir() || s.isIgnored(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			skipped = append(skipped, SkippedFile{Path: path, Reason: fmt.Sprintf("unreadable: %v", err)})
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		asset, ok := newAsset(path, info.Size())
		if !ok {
			skipped = append(skipped, SkippedFile{Path: path, Reason: fmt.Sprintf("unsupported extension %q", filepath.Ext(entry.Name()))})
			continue
		}

		assets = append(assets, asset)
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	return assets, skipped, nil
}

func (s *Scanner) isIgnored(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}

	return false
}
