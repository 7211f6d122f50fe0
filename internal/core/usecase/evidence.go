package usecase

import (
	"errors"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

// SplitEvidence partitions retrieved nodes into text and image evidence.
// Every node stays in TextNodes in retrieval order; nodes whose image_path cannot be
// turned into a reference are reported in Skips instead of ImageRefs.
func SplitEvidence(nodes []domain.ContentNode) domain.EvidenceSet {
	set := domain.EvidenceSet{
		TextNodes: make([]domain.ContentNode, len(nodes)),
		ImageRefs: make([]domain.ImageRef, 0, len(nodes)),
	}
	copy(set.TextNodes, nodes)

	for _, node := range nodes {
		raw, ok := node.ImagePath()
		if !ok {
			continue
		}
		ref, err := domain.NewImageRef(node, raw)
		if err != nil {
			set.Skips = append(set.Skips, imageSkipFromError(node, raw, err))
			continue
		}
		set.ImageRefs = append(set.ImageRefs, ref)
	}
	return set
}

func imageSkipFromError(node domain.ContentNode, raw string, err error) domain.ImageSkip {
	skip := domain.ImageSkip{NodeID: node.ID, Reference: raw, Reason: err.Error()}
	var refErr *domain.ImageReferenceError
	if errors.As(err, &refErr) {
		skip.Reason = refErr.Reason
	}
	return skip
}
