package domain

import (
	"fmt"
	"strings"
)

// UnknownPageLabel is used for inline images whose node carries no page_num.
const UnknownPageLabel = "unknown"

type SourceEntry struct {
	Number  int     `json:"number"`
	NodeID  string  `json:"node_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type InlineImage struct {
	NodeID string `json:"node_id"`
	URL    string `json:"url"`
	Label  string `json:"label"`
}

// DisplayPayload is the plain data handed to a display collaborator.
type DisplayPayload struct {
	Answer     string        `json:"answer"`
	AnswerHTML string        `json:"answer_html,omitempty"`
	Sources    []SourceEntry `json:"sources"`
	Images     []InlineImage `json:"images"`
}

// SourcesText renders the numbered source list as chat text. Empty when there are no sources.
func (p DisplayPayload) SourcesText() string {
	if len(p.Sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, src := range p.Sources {
		fmt.Fprintf(&b, "%d. %s\n\n", src.Number, src.Content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Markdown renders the answer, the numbered sources and image links as one document.
func (p DisplayPayload) Markdown() string {
	var b strings.Builder
	b.WriteString(p.Answer)
	if sources := p.SourcesText(); sources != "" {
		b.WriteString("\n\n")
		b.WriteString(sources)
	}
	if len(p.Images) > 0 {
		b.WriteString("\nImages:\n")
		for _, img := range p.Images {
			fmt.Fprintf(&b, "- [%s](%s)\n", img.Label, img.URL)
		}
	}
	return b.String()
}
