// ABOUTME: Chooses the rope project directory among workspace folders for a given file
// ABOUTME: Containment is by path components, and the innermost folder wins

package python

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNoProject means no workspace folder was given.
	ErrNoProject = errors.New("no project selected")
	// ErrNoContainingProject means no folder contains the file.
	ErrNoContainingProject = errors.New("no project contains the file")
	// ErrNoFile means several folders exist and no file was given to choose between them.
	ErrNoFile = errors.New("no file selected")
)

// ProjectDir picks the project for file. A single folder is always used.
// With several, the innermost folder containing file is chosen.
func ProjectDir(folders []string, file string) (string, error) {
	switch len(folders) {
	case 0:
		return "", ErrNoProject
	case 1:
		return filepath.Clean(folders[0]), nil
	}
	if file == "" {
		return "", ErrNoFile
	}

	best := ""
	for _, folder := range folders {
		folder = filepath.Clean(folder)
		if contains(folder, file) && len(folder) > len(best) {
			best = folder
		}
	}
	if best == "" {
		return "", ErrNoContainingProject
	}
	return best, nil
}

func contains(dir, file string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(file))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
