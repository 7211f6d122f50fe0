package domain

import (
	"sort"
	"strings"
)

// Recognized optional metadata keys on a retrieved node.
const (
	MetadataImagePath = "image_path"
	MetadataPageNum   = "page_num"
)

// ContentNode is a read-only unit of retrieved evidence.
type ContentNode struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// ExcludedLLMMetadataKeys lists metadata keys hidden from the model-facing content.
	ExcludedLLMMetadataKeys []string `json:"excluded_llm_metadata_keys,omitempty"`
}

func (n ContentNode) metadataValue(key string) (string, bool) {
	if n.Metadata == nil {
		return "", false
	}
	v, ok := n.Metadata[key]
	return v, ok
}

// ImagePath reports the raw image reference and whether the key is present at all.
func (n ContentNode) ImagePath() (string, bool) {
	return n.metadataValue(MetadataImagePath)
}

// PageNum reports the human-readable page locator, if any.
func (n ContentNode) PageNum() (string, bool) {
	return n.metadataValue(MetadataPageNum)
}

// LLMContent renders the node the way the completion model sees it: visible metadata
// as "key: value" lines sorted by key, a blank line, then the text.
func (n ContentNode) LLMContent() string {
	metadata := n.llmMetadataString()
	if metadata == "" {
		return n.Text
	}
	return metadata + "\n\n" + n.Text
}

func (n ContentNode) llmMetadataString() string {
	if len(n.Metadata) == 0 {
		return ""
	}

	excluded := make(map[string]struct{}, len(n.ExcludedLLMMetadataKeys))
	for _, key := range n.ExcludedLLMMetadataKeys {
		excluded[key] = struct{}{}
	}

	keys := make([]string, 0, len(n.Metadata))
	for key := range n.Metadata {
		if _, skip := excluded[key]; skip {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+n.Metadata[key])
	}
	return strings.Join(lines, "\n")
}
