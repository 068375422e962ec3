// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package takeout

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// bundleDirPattern matches extracted takeout bundle directories, e.g.
// takeout-20200101T000000Z-001.
var bundleDirPattern = regexp.MustCompile(`^takeout-.*Z-\d+$`)

// bundleHistoryPath is the fixed path of the watch history inside an
// extracted takeout bundle.
var bundleHistoryPath = filepath.Join("Takeout", "YouTube and YouTube Music", "history", "watch-history.html")

// Discover resolves the input path to the ordered list of archive files
// to scan. Three shapes are recognized, checked in order:
//
//  1. A single archive file.
//  2. A directory containing watch-history*.html files (suffixes allowed
//     to disambiguate multiple exports).
//  3. A directory of takeout-<TIMESTAMP>Z-<NN> bundle subdirectories,
//     each holding the fixed internal history path.
//
// The first shape that matches decides the mode; modes are not mixed.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("takeout path: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("takeout path: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "watch-history") && strings.HasSuffix(name, ".html") {
			files = append(files, filepath.Join(path, name))
		}
	}
	if len(files) > 0 {
		sort.Strings(files)
		return files, nil
	}

	for _, entry := range entries {
		if !entry.IsDir() || !bundleDirPattern.MatchString(entry.Name()) {
			continue
		}
		candidate := filepath.Join(path, entry.Name(), bundleHistoryPath)
		if _, err := os.Stat(candidate); err == nil {
			files = append(files, candidate)
		}
	}
	if len(files) > 0 {
		sort.Strings(files)
		return files, nil
	}

	return nil, fmt.Errorf("takeout path %s: %w", path, os.ErrNotExist)
}
