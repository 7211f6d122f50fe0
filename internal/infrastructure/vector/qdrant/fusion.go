package qdrant

import (
	"sort"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	node  domain.ContentNode
	score float64
	first int
}

// fuseRRF merges ranked lists by reciprocal rank. Ties keep the order in which a
// node was first seen, semantic hits before lexical ones.
func fuseRRF(rrfK int, lists ...[]domain.ContentNode) []domain.ContentNode {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	seen := 0
	for _, list := range lists {
		for rank, node := range list {
			candidate, ok := acc[node.ID]
			if !ok {
				candidate = &fusedCandidate{node: node, first: seen}
				acc[node.ID] = candidate
				seen++
			} else {
				candidate.node = preferRicherNode(candidate.node, node)
			}
			candidate.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	fused := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		fused = append(fused, c)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].first < fused[j].first
	})

	out := make([]domain.ContentNode, 0, len(fused))
	for _, c := range fused {
		node := c.node
		node.Score = c.score
		out = append(out, node)
	}
	return out
}

func preferRicherNode(current, candidate domain.ContentNode) domain.ContentNode {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if len(current.Metadata) < len(candidate.Metadata) {
		current.Metadata = candidate.Metadata
		current.ExcludedLLMMetadataKeys = candidate.ExcludedLLMMetadataKeys
	}
	return current
}
