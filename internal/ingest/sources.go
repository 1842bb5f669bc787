package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source is one RSS feed in the registry, joined onto every item it yields.
type Source struct {
	Name     string  `yaml:"name"`
	URL      string  `yaml:"url"`
	Category string  `yaml:"category"`
	Weight   float64 `yaml:"weight"`
	Lang     string  `yaml:"lang"`
}

// SourcesConfig is the YAML registry structure:
//
// sources:
//   - name: ...
//     url: https://...
//     category: game
//     weight: 1.2
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the feed registry from a YAML file.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse sources config %s: %w", path, err)
	}

	for i, src := range cfg.Sources {
		if src.URL == "" {
			return nil, fmt.Errorf("source %d (%s) has no url", i, src.Name)
		}
		if src.Weight <= 0 {
			cfg.Sources[i].Weight = 1.0
		}
	}
	return cfg.Sources, nil
}
