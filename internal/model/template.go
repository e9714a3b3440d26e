package model

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Template is one fixed-position message of the outreach sequence.
type Template struct {
	Order   int    `json:"order" yaml:"order"`
	Content string `json:"content" yaml:"content"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates reads a YAML file of the form
//
//	templates:
//	  - order: 1
//	    content: "..."
//
// and returns the templates sorted by order. Orders must be positive and unique.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "templates: read %s", path)
	}
	return ParseTemplates(data)
}

// ParseTemplates decodes YAML template definitions.
func ParseTemplates(data []byte) ([]Template, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "templates: decode yaml")
	}

	seen := make(map[int]bool, len(f.Templates))
	for _, t := range f.Templates {
		if t.Order <= 0 {
			return nil, eris.Errorf("templates: order must be positive, got %d", t.Order)
		}
		if seen[t.Order] {
			return nil, eris.Errorf("templates: duplicate order %d", t.Order)
		}
		if t.Content == "" {
			return nil, eris.Errorf("templates: order %d has empty content", t.Order)
		}
		seen[t.Order] = true
	}

	sort.Slice(f.Templates, func(i, j int) bool { return f.Templates[i].Order < f.Templates[j].Order })
	return f.Templates, nil
}
