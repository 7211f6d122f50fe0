package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

const (
	contextPlaceholder = "{context_str}"
	queryPlaceholder   = "{query_str}"

	// QAPromptTemplateVersion changes whenever QAPromptTemplateV1 is edited.
	QAPromptTemplateVersion = "v1"
)

// QAPromptTemplateV1 grounds the answer in slide text and slide images.
const QAPromptTemplateV1 = `Below we give parsed text from slides in parsed markdown format, as well as the image.

---------------------
{context_str}
---------------------
Given the context information and not prior knowledge, answer the query. Explain whether you got the answer
from the parsed markdown or raw text or image, and if there's discrepancies, and your reasoning for the final answer.

Query: {query_str}
Answer: `

// PromptTemplate is an immutable grounding template with exactly one context
// and one query substitution point.
type PromptTemplate struct {
	text string
}

func DefaultPromptTemplate() PromptTemplate {
	return PromptTemplate{text: QAPromptTemplateV1}
}

func NewPromptTemplate(text string) (PromptTemplate, error) {
	if n := strings.Count(text, contextPlaceholder); n != 1 {
		return PromptTemplate{}, domain.WrapError(domain.ErrInvalidInput, "prompt template",
			fmt.Errorf("expected exactly one %s, found %d", contextPlaceholder, n))
	}
	if n := strings.Count(text, queryPlaceholder); n != 1 {
		return PromptTemplate{}, domain.WrapError(domain.ErrInvalidInput, "prompt template",
			fmt.Errorf("expected exactly one %s, found %d", queryPlaceholder, n))
	}
	return PromptTemplate{text: text}, nil
}

func (t PromptTemplate) Text() string {
	if t.text == "" {
		return QAPromptTemplateV1
	}
	return t.text
}

// Render substitutes in a single pass, so placeholder-like text inside the
// context or query is never expanded again.
func (t PromptTemplate) Render(contextStr, query string) string {
	return strings.NewReplacer(
		contextPlaceholder, contextStr,
		queryPlaceholder, query,
	).Replace(t.Text())
}

// AssemblePrompt joins the model-facing content of every node with a blank line,
// keeping empty segments so positions line up with the source nodes.
func AssemblePrompt(tmpl PromptTemplate, query string, nodes []domain.ContentNode) domain.PromptContext {
	segments := make([]string, len(nodes))
	for i, node := range nodes {
		segments[i] = node.LLMContent()
	}
	contextStr := strings.Join(segments, "\n\n")

	return domain.PromptContext{
		Query:      query,
		ContextStr: contextStr,
		Rendered:   tmpl.Render(contextStr, query),
	}
}
