package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader scans directories for YAML template files, parses them, and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new template Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a Template.
func (l *Loader) LoadAll(directories []string) ([]Template, error) {
	var templates []Template

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			tpl, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			templates = append(templates, tpl)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return templates, nil
}

// LoadFile loads and parses a single YAML template file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return Template{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	tpl.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	tpl.SourceFile = path

	return tpl, nil
}
