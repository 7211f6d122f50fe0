package domain

// ImageSkip records a node whose image reference could not be constructed.
type ImageSkip struct {
	NodeID    string `json:"node_id"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// EvidenceSet is the per-query partition of retrieved nodes into text and image evidence.
type EvidenceSet struct {
	TextNodes []ContentNode
	ImageRefs []ImageRef
	Skips     []ImageSkip
}

// PromptContext is the immutable input to the completion backend.
type PromptContext struct {
	Query      string
	ContextStr string
	Rendered   string
}

// Result is the engine output for one query.
type Result struct {
	Answer      string        `json:"answer"`
	SourceNodes []ContentNode `json:"source_nodes"`
	ImageRefs   []ImageRef    `json:"image_refs"`
	ImageSkips  []ImageSkip   `json:"image_skips,omitempty"`
}

// ImageRefForNode returns the resolved image reference of a source node.
func (r *Result) ImageRefForNode(nodeID string) (ImageRef, bool) {
	if r == nil {
		return ImageRef{}, false
	}
	for _, ref := range r.ImageRefs {
		if ref.NodeID == nodeID {
			return ref, true
		}
	}
	return ImageRef{}, false
}
