package session

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// knowledgeFile mirrors a .verifix/knowledge.yaml file: named snippets of
// domain facts, lemma hints, and conventions that repair prompts should see.
type knowledgeFile struct {
	Knowledge map[string]string `yaml:"knowledge"`
}

// LoadKnowledgeFile merges snippets from a knowledge YAML file into the
// session. Snippets with ids already present are overwritten.
func (s *Session) LoadKnowledgeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read knowledge file: %w", err)
	}

	var file knowledgeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse knowledge file: %w", err)
	}

	for id, text := range file.Knowledge {
		s.AddKnowledge(id, text)
	}
	return nil
}
