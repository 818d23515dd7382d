package memory

import (
	"fmt"
	"os"

	"superexam-session-service/internal/domain"

	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Documents []domain.Document `yaml:"documents"`
}

// LoadFixtures reads documents and their questions from a YAML file. Every question must pass
// domain validation.
func LoadFixtures(path string) (map[string]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML. Documents without a status are treated as ready.
func ParseFixtures(data []byte) (map[string]domain.Document, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	docs := make(map[string]domain.Document, len(file.Documents))
	for _, doc := range file.Documents {
		if doc.ID == "" {
			return nil, fmt.Errorf("fixture document without id")
		}
		if _, dup := docs[doc.ID]; dup {
			return nil, fmt.Errorf("duplicate fixture document %q", doc.ID)
		}
		for _, q := range doc.Questions {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("document %s: %w", doc.ID, err)
			}
		}
		if doc.Status == "" {
			doc.Status = domain.DocumentReady
		}
		docs[doc.ID] = doc
	}
	return docs, nil
}
