// Package redisearch retrieves slide nodes from a RediSearch HNSW index over hashes.
package redisearch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/vector"
)

const (
	fieldVector   = "embedding"
	scoreAlias    = "vector_distance"
	DefaultIndex  = "slide-nodes"
	DefaultPrefix = "node:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Index    string
	Prefix   string
}

type commander interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
}

type Retriever struct {
	client   commander
	embedder ports.Embedder
	index    string
	prefix   string
	executor *resilience.Executor
}

// NewClient opens a RESP2 connection; replies are parsed in their RESP2 array form.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Protocol: 2,
	})
}

func NewRetriever(client commander, embedder ports.Embedder, cfg Config, executor *resilience.Executor) *Retriever {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Retriever{client: client, embedder: embedder, index: cfg.Index, prefix: cfg.Prefix, executor: executor}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ContentNode, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewRetrievalError(domain.RetrievalRejected, "redisearch.retrieve", errors.New("empty query"))
	}
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, resilience.RetrievalFailure("embed_query", err)
	}

	args := []any{
		"FT.SEARCH", r.index,
		fmt.Sprintf("*=>[KNN %d @%s $vec AS %s]", topK, fieldVector, scoreAlias),
		"PARAMS", "2", "vec", encodeVector(embedding),
		"SORTBY", scoreAlias, "ASC",
		"RETURN", "4", vector.FieldText, vector.FieldMetadata, vector.FieldExcludedLLM, scoreAlias,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	}
	reply, err := resilience.Call(ctx, r.executor, "redisearch.search", func(ctx context.Context) (any, error) {
		return r.client.Do(ctx, args...).Result()
	}, classifyRedisError)
	if err != nil {
		return nil, resilience.RetrievalFailure("redisearch.search", err)
	}

	nodes, err := r.parseReply(reply)
	if err != nil {
		return nil, domain.NewRetrievalError(domain.RetrievalMalformed, "redisearch.search", err)
	}
	return nodes, nil
}

// parseReply reads [total, key1, [field, value, ...], key2, [...], ...].
func (r *Retriever) parseReply(reply any) ([]domain.ContentNode, error) {
	values, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected reply type %T", reply)
	}
	if len(values) == 0 {
		return []domain.ContentNode{}, nil
	}
	if (len(values)-1)%2 != 0 {
		return nil, fmt.Errorf("reply has %d elements, want key/field pairs", len(values))
	}

	nodes := make([]domain.ContentNode, 0, (len(values)-1)/2)
	for i := 1; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("document key is %T", values[i])
		}
		fields, ok := values[i+1].([]any)
		if !ok || len(fields)%2 != 0 {
			return nil, fmt.Errorf("document %s has malformed fields", key)
		}

		payload := make(map[string]any, len(fields)/2)
		distance := math.NaN()
		for j := 0; j < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)
			if name == scoreAlias {
				d, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("document %s score: %w", key, err)
				}
				distance = d
				continue
			}
			payload[name] = value
		}

		decoded, err := vector.DecodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", key, err)
		}
		nodes = append(nodes, domain.ContentNode{
			ID:                      strings.TrimPrefix(key, r.prefix),
			Text:                    decoded.Text,
			Score:                   1 - distance,
			Metadata:                decoded.Metadata,
			ExcludedLLMMetadataKeys: decoded.ExcludedLLM,
		})
	}
	return nodes, nil
}

// encodeVector packs the query as little-endian FLOAT32, the layout the index was created with.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func classifyRedisError(err error) resilience.ErrorClassification {
	if errors.Is(err, redis.Nil) {
		return resilience.ErrorClassification{}
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		// Server replies such as "no such index" are permanent.
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyTransportError(err)
}
