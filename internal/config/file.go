package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverlay holds the settings that are awkward to keep in environment variables.
type fileOverlay struct {
	PromptTemplate string `yaml:"prompt_template"`
	Greeting       string `yaml:"greeting"`
	RAG            struct {
		TopK               *int `yaml:"top_k"`
		SourcePreviewChars *int `yaml:"source_preview_chars"`
	} `yaml:"rag"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if overlay.PromptTemplate != "" {
		cfg.PromptTemplate = overlay.PromptTemplate
	}
	if overlay.Greeting != "" {
		cfg.SessionGreeting = overlay.Greeting
	}
	if overlay.RAG.TopK != nil {
		cfg.RAGTopK = *overlay.RAG.TopK
	}
	if overlay.RAG.SourcePreviewChars != nil {
		cfg.SourcePreviewChars = *overlay.RAG.SourcePreviewChars
	}
	return nil
}
