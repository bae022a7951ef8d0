// ABOUTME: Reads rope project settings from the [tool.rope] table of pyproject.toml
// ABOUTME: Only ignored_resources and source_folders are honored there

package config

import (
	"github.com/BurntSushi/toml"
)

type pyprojectToml struct {
	Tool struct {
		Rope struct {
			IgnoredResources []string `toml:"ignored_resources"`
			SourceFolders    []string `toml:"source_folders"`
		} `toml:"rope"`
	} `toml:"tool"`
}

// loadPyproject returns the [tool.rope] settings of a pyproject.toml file.
func loadPyproject(path string) (*Settings, error) {
	var doc pyprojectToml
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return &Settings{}, err
	}
	return &Settings{
		IgnoredResources: doc.Tool.Rope.IgnoredResources,
		SourceFolders:    doc.Tool.Rope.SourceFolders,
	}, nil
}
