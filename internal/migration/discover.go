package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hbomb79/galleria/internal/namekey"
)

var projectDirMatcher = regexp.MustCompile(`^\d{4}\s+.+$`)

// dirEntry is a directory discovered beneath a root, with the container it was found in (if any).
type dirEntry struct {
	Name      string
	Path      string
	Container string
}

// discovery is the result of walking one root: qualifying project directories
// and directories which could not be interpreted.
type discovery struct {
	Projects []dirEntry
	Other    []dirEntry
}

// IsProjectDir reports whether the (raw) directory name is a "YYYY Name" project directory.
func IsProjectDir(name string) bool {
	return projectDirMatcher.MatchString(namekey.Normalize(name))
}

// discover lists the directories directly below root. Project directories are
// collected, directories matching the container pattern are descended in to
// exactly once, and everything else is returned in Other. Hidden directories
// are ignored. Results are sorted by path.
func discover(root string, container *regexp.Regexp) (*discovery, error) {
	entries, err := readDirs(root)
	if err != nil {
		return nil, err
	}

	result := &discovery{}
	for _, name := range entries {
		path := filepath.Join(root, name)
		switch {
		case IsProjectDir(name):
			result.Projects = append(result.Projects, dirEntry{Name: name, Path: path})
		case container != nil && container.MatchString(name):
			children, err := readDirs(path)
			if err != nil {
				log.Warnf("Unable to read container directory %s: %v\n", path, err)
				result.Other = append(result.Other, dirEntry{Name: name, Path: path})
				continue
			}

			for _, child := range children {
				entry := dirEntry{Name: child, Path: filepath.Join(path, child), Container: name}
				if IsProjectDir(child) {
					result.Projects = append(result.Projects, entry)
				} else {
					result.Other = append(result.Other, entry)
				}
			}
		default:
			result.Other = append(result.Other, dirEntry{Name: name, Path: path})
		}
	}

	sort.SliceStable(result.Projects, func(i, j int) bool { return result.Projects[i].Path < result.Projects[j].Path })
	sort.SliceStable(result.Other, func(i, j int) bool { return result.Other[i].Path < result.Other[j].Path })
	return result, nil
}

// readDirs returns the sorted names of the visible subdirectories of dir.
func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}

	sort.Strings(names)
	return names, nil
}

// findGallery locates the media subdirectory of a project directory: a child
// whose name ends with the suffix (case-insensitive, after apostrophe and
// whitespace normalisation). When several exist, one named after the project
// itself is preferred.
func findGallery(projectDir string, projectName string, suffix string) (string, error) {
	children, err := readDirs(projectDir)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, child := range children {
		if namekey.HasSuffixFold(namekey.NormalizeWithSuffix(child, ""), suffix) {
			candidates = append(candidates, child)
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no %s directory inside %s", suffix, projectDir)
	}

	want := namekey.Normalize(projectName)
	for _, c := range candidates {
		if strings.EqualFold(namekey.NormalizeWithSuffix(c, suffix), want) {
			return filepath.Join(projectDir, c), nil
		}
	}

	return filepath.Join(projectDir, candidates[0]), nil
}
