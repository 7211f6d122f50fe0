package pgvector

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

type embedderStub struct {
	vector []float32
	err    error
}

func (e embedderStub) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

var nodeColumns = []string{"id", "text", "metadata", "excluded", "score"}

func TestRetrieveMapsRowsToNodes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM slide_nodes").
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnRows(sqlmock.NewRows(nodeColumns).
			AddRow("n1", "Revenue by quarter", `{"page_num": 1, "image_path": "https://blob.example/p1.png"}`, `[]`, 0.92).
			AddRow("n2", "Appendix", `{}`, `["file_path"]`, 0.51))

	retriever, err := NewRetriever(db, embedderStub{vector: []float32{0.1, 0.2}}, "")
	require.NoError(t, err)

	nodes, err := retriever.Retrieve(context.Background(), "revenue", 3)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "n1", nodes[0].ID)
	require.InDelta(t, 0.92, nodes[0].Score, 1e-9)
	page, ok := nodes[0].PageNum()
	require.True(t, ok)
	require.Equal(t, "1", page)
	require.Equal(t, []string{"file_path"}, nodes[1].ExcludedLLMMetadataKeys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieveRejectsMalformedMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM slide_nodes").
		WillReturnRows(sqlmock.NewRows(nodeColumns).AddRow("n1", "x", `{broken`, `[]`, 0.5))

	retriever, err := NewRetriever(db, embedderStub{vector: []float32{0.1}}, "")
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), "q", 3)
	retrievalErr, ok := domain.AsRetrievalError(err)
	require.True(t, ok)
	require.Equal(t, domain.RetrievalMalformed, retrievalErr.Kind)
}

func TestRetrieveQueryFailureIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM slides.nodes").WillReturnError(errors.New("connection refused"))

	retriever, err := NewRetriever(db, embedderStub{vector: []float32{0.1}}, "slides.nodes")
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), "q", 3)
	retrievalErr, ok := domain.AsRetrievalError(err)
	require.True(t, ok)
	require.Equal(t, domain.RetrievalUnavailable, retrievalErr.Kind)
}

func TestNewRetrieverValidatesTableName(t *testing.T) {
	_, err := NewRetriever(nil, embedderStub{}, "nodes; DROP TABLE users")
	require.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}
