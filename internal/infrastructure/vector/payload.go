// Package vector holds the node payload codec shared by the vector-store retrievers.
package vector

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload field names written by the slide indexer. Node content serialized by a
// LlamaIndex-style indexer is also understood through FieldNodeContent.
const (
	FieldText         = "text"
	FieldMetadata     = "metadata"
	FieldExcludedLLM  = "excluded_llm_metadata_keys"
	FieldNodeContent  = "_node_content"
	FieldEmbedding    = "embedding"
	FieldNodeIdentity = "id"
)

var reservedFields = map[string]struct{}{
	FieldText:         {},
	FieldMetadata:     {},
	FieldExcludedLLM:  {},
	FieldNodeContent:  {},
	FieldEmbedding:    {},
	FieldNodeIdentity: {},
}

// NodeFields is the decoded, backend-neutral form of a stored node.
type NodeFields struct {
	Text        string
	Metadata    map[string]string
	ExcludedLLM []string
}

// DecodePayload reads text and metadata from a flat payload. Metadata comes from the
// "metadata" field (object or JSON string) merged over the remaining scalar fields.
// When "_node_content" is present its metadata is authoritative and the flat copies
// next to it (plus doc_id, ref_doc_id and friends) are ignored.
func DecodePayload(payload map[string]any) (NodeFields, error) {
	out := NodeFields{Metadata: map[string]string{}}

	raw, serializedNode := payload[FieldNodeContent]
	if serializedNode {
		if err := decodeNodeContent(raw, &out); err != nil {
			return NodeFields{}, err
		}
	} else {
		for key, value := range payload {
			if _, reserved := reservedFields[key]; reserved || strings.HasPrefix(key, "_") {
				continue
			}
			if s, ok := scalarString(value); ok {
				out.Metadata[key] = s
			}
		}
	}

	if raw, ok := payload[FieldMetadata]; ok && raw != nil {
		meta, err := decodeMetadata(raw)
		if err != nil {
			return NodeFields{}, err
		}
		for key, value := range meta {
			out.Metadata[key] = value
		}
	}

	if raw, ok := payload[FieldText]; ok {
		text, ok := raw.(string)
		if !ok {
			return NodeFields{}, fmt.Errorf("payload field %q is %T, want string", FieldText, raw)
		}
		out.Text = text
	}

	if raw, ok := payload[FieldExcludedLLM]; ok {
		keys, err := decodeStringList(raw)
		if err != nil {
			return NodeFields{}, err
		}
		out.ExcludedLLM = keys
	}
	return out, nil
}

// DecodeMetadataJSON parses a JSON object of metadata into string values.
func DecodeMetadataJSON(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("decode metadata json: %w", err)
	}
	return stringifyObject(obj), nil
}

func decodeMetadata(raw any) (map[string]string, error) {
	switch v := raw.(type) {
	case string:
		return DecodeMetadataJSON(v)
	case map[string]any:
		return stringifyObject(v), nil
	default:
		return nil, fmt.Errorf("payload field %q is %T, want object", FieldMetadata, raw)
	}
}

func decodeNodeContent(raw any, out *NodeFields) error {
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("payload field %q is %T, want string", FieldNodeContent, raw)
	}
	var node struct {
		Text                    string         `json:"text"`
		Metadata                map[string]any `json:"metadata"`
		ExcludedLLMMetadataKeys []string       `json:"excluded_llm_metadata_keys"`
	}
	if err := json.Unmarshal([]byte(s), &node); err != nil {
		return fmt.Errorf("decode node content: %w", err)
	}
	out.Text = node.Text
	for key, value := range stringifyObject(node.Metadata) {
		out.Metadata[key] = value
	}
	out.ExcludedLLM = node.ExcludedLLMMetadataKeys
	return nil
}

func decodeStringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("payload field %q has non-string item %T", FieldExcludedLLM, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("decode %q: %w", FieldExcludedLLM, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload field %q is %T, want list", FieldExcludedLLM, raw)
	}
}

func stringifyObject(obj map[string]any) map[string]string {
	out := make(map[string]string, len(obj))
	for key, value := range obj {
		if s, ok := scalarString(value); ok {
			out[key] = s
		}
	}
	return out
}

// scalarString renders JSON scalars; page numbers decoded as float64 print without a fraction.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
