package usecase

import (
	"unicode/utf8"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

type FormatOptions struct {
	// SourcePreviewChars truncates source entries; zero keeps full content.
	SourcePreviewChars int
}

// ResponseFormatter projects a Result into a display payload. It has no failure modes.
type ResponseFormatter struct {
	opts FormatOptions
}

func NewResponseFormatter(opts FormatOptions) ResponseFormatter {
	return ResponseFormatter{opts: opts}
}

func (f ResponseFormatter) Format(result *domain.Result) domain.DisplayPayload {
	payload := domain.DisplayPayload{
		Sources: []domain.SourceEntry{},
		Images:  []domain.InlineImage{},
	}
	if result == nil {
		return payload
	}
	payload.Answer = result.Answer

	for idx, node := range result.SourceNodes {
		payload.Sources = append(payload.Sources, domain.SourceEntry{
			Number:  idx + 1,
			NodeID:  node.ID,
			Content: previewText(node.LLMContent(), f.opts.SourcePreviewChars),
			Score:   node.Score,
		})
	}

	for _, node := range result.SourceNodes {
		ref, ok := result.ImageRefForNode(node.ID)
		if !ok {
			continue
		}
		payload.Images = append(payload.Images, domain.InlineImage{
			NodeID: node.ID,
			URL:    ref.URL,
			Label:  imageLabel(node),
		})
	}
	return payload
}

func imageLabel(node domain.ContentNode) string {
	page, ok := node.PageNum()
	if !ok || page == "" {
		page = domain.UnknownPageLabel
	}
	return "Image from page " + page
}

func previewText(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + "..."
}
