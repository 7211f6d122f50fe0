package redisearch

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

type embedderStub struct{ vector []float32 }

func (e embedderStub) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

type commanderFake struct {
	reply any
	err   error
	args  []any
}

func (c *commanderFake) Do(ctx context.Context, args ...any) *redis.Cmd {
	c.args = args
	cmd := redis.NewCmd(ctx, args...)
	if c.err != nil {
		cmd.SetErr(c.err)
	} else {
		cmd.SetVal(c.reply)
	}
	return cmd
}

func TestRetrieveParsesKNNReply(t *testing.T) {
	fake := &commanderFake{reply: []any{
		int64(2),
		"node:n1", []any{"text", "Revenue by quarter", "metadata", `{"page_num":1,"image_path":"https://blob.example/p1.png"}`, "vector_distance", "0.125"},
		"node:n2", []any{"text", "Appendix", "vector_distance", "0.5"},
	}}
	retriever := NewRetriever(fake, embedderStub{vector: []float32{1, 0.5}}, Config{}, nil)

	nodes, err := retriever.Retrieve(context.Background(), "revenue", 3)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "n1", nodes[0].ID)
	require.InDelta(t, 0.875, nodes[0].Score, 1e-9)
	path, ok := nodes[0].ImagePath()
	require.True(t, ok)
	require.Equal(t, "https://blob.example/p1.png", path)
	require.Equal(t, "n2", nodes[1].ID)

	require.Equal(t, "FT.SEARCH", fake.args[0])
	require.Equal(t, "slide-nodes", fake.args[1])
	require.Equal(t, "*=>[KNN 3 @embedding $vec AS vector_distance]", fake.args[2])
	blob := fake.args[6].([]byte)
	require.Len(t, blob, 8)
	require.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(blob[4:])))
}

func TestRetrieveEmptyReply(t *testing.T) {
	retriever := NewRetriever(&commanderFake{reply: []any{int64(0)}}, embedderStub{vector: []float32{1}}, Config{}, nil)
	nodes, err := retriever.Retrieve(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Empty(t, nodes)
}

func TestRetrieveMalformedReply(t *testing.T) {
	retriever := NewRetriever(&commanderFake{reply: []any{int64(1), "node:n1"}}, embedderStub{vector: []float32{1}}, Config{}, nil)
	_, err := retriever.Retrieve(context.Background(), "q", 3)
	retrievalErr, ok := domain.AsRetrievalError(err)
	require.True(t, ok)
	require.Equal(t, domain.RetrievalMalformed, retrievalErr.Kind)
}

func TestRetrieveConnectionFailure(t *testing.T) {
	retriever := NewRetriever(&commanderFake{err: errors.New("dial tcp: connection refused")}, embedderStub{vector: []float32{1}}, Config{}, nil)
	_, err := retriever.Retrieve(context.Background(), "q", 3)
	retrievalErr, ok := domain.AsRetrievalError(err)
	require.True(t, ok)
	require.Equal(t, domain.RetrievalUnavailable, retrievalErr.Kind)
}
