// ABOUTME: Standard filesystem paths for pyrefactor configuration and data
// ABOUTME: Resolves ~/.pyrefactor/ for global and .pyrefactor/ for project-local paths

package config

import (
	"os"
	"path/filepath"
)

const (
	globalDirName  = ".pyrefactor"
	projectDirName = ".pyrefactor"
	configFileName = "config.yaml"
)

// GlobalDir returns the user-global config directory (~/.pyrefactor/).
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// ProjectDir returns the project-local config directory.
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, projectDirName)
}

// GlobalConfigFile returns the path to the global config file.
func GlobalConfigFile() string {
	return filepath.Join(GlobalDir(), configFileName)
}

// ProjectConfigFile returns the path to the project-local config file.
func ProjectConfigFile(projectRoot string) string {
	return filepath.Join(ProjectDir(projectRoot), configFileName)
}

// PyprojectFile returns the project's pyproject.toml path.
func PyprojectFile(projectRoot string) string {
	return filepath.Join(projectRoot, "pyproject.toml")
}

// ScriptsDir returns where bundled Python scripts are installed.
func ScriptsDir() string {
	return filepath.Join(GlobalDir(), "scripts")
}

// WatchedFiles lists every file whose change affects the loaded settings.
func WatchedFiles(projectRoot string) []string {
	files := []string{GlobalConfigFile()}
	if projectRoot != "" {
		files = append(files, PyprojectFile(projectRoot), ProjectConfigFile(projectRoot))
	}
	return files
}

// EnsureDir creates a directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
