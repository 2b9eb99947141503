package rag

import (
	"context"
	"testing"

	"finchat/models"
	"finchat/pkg/chunk"
	"finchat/pkg/metric"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fact(company uint, year int, m metric.Metric, v int64) models.FinancialFact {
	return models.FinancialFact{CompanyID: company, Year: year, Metric: m, Value: decimal.NewFromInt(v), Currency: "USD"}
}

func sampleFacts(company uint) []models.FinancialFact {
	return []models.FinancialFact{
		fact(company, 2022, metric.Revenue, 900),
		fact(company, 2022, metric.Cash, 120),
		fact(company, 2023, metric.Revenue, 1000),
		fact(company, 2023, metric.Cash, 150),
		fact(company, 2023, metric.TotalEquity, 400),
	}
}

func TestIndexSyncSkipsUnchangedChunks(t *testing.T) {
	emb := &keywordEmbedder{}
	ix, err := NewIndex("", emb, nil)
	require.NoError(t, err)
	ctx := context.Background()
	chunks := chunk.Build(sampleFacts(1))

	rebuilt, err := ix.Sync(ctx, 1, chunks)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 1, emb.calls)

	rebuilt, err = ix.Sync(ctx, 1, chunks)
	require.NoError(t, err)
	assert.False(t, rebuilt)
	assert.Equal(t, 1, emb.calls)

	ix.Invalidate(1)
	rebuilt, err = ix.Sync(ctx, 1, chunks)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 2, emb.calls)

	rebuilt, err = ix.Sync(ctx, 1, chunks[:2])
	require.NoError(t, err)
	assert.True(t, rebuilt, "changed chunks rebuild the collection")
	assert.Equal(t, 1, ix.Collections())
}

func TestIndexSearch(t *testing.T) {
	emb := &keywordEmbedder{}
	ix, err := NewIndex("", emb, nil)
	require.NoError(t, err)
	ctx := context.Background()
	chunks := chunk.Build(sampleFacts(7))
	_, err = ix.Sync(ctx, 7, chunks)
	require.NoError(t, err)

	q, err := ix.Embed(ctx, "how much cash")
	require.NoError(t, err)
	hits, err := ix.Search(ctx, 7, q, 50)
	require.NoError(t, err)
	require.Len(t, hits, len(chunks), "k is capped at the collection size")
	assert.Equal(t, metric.Cash, metric.Metric(hits[0].Metadata[chunk.KeyMetric]))

	hits, err = ix.Search(ctx, 99, q, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexEmbedsQuestionsAsQueries(t *testing.T) {
	emb := &queryEmbedder{}
	ix, err := NewIndex("", emb, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ix.Sync(ctx, 1, chunk.Build(sampleFacts(1)))
	require.NoError(t, err)
	assert.Empty(t, emb.queries, "documents are not embedded as queries")

	v, err := ix.Embed(ctx, "what was revenue")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
	assert.Equal(t, []string{"what was revenue"}, emb.queries)
}

func TestIndexDrop(t *testing.T) {
	ix, err := NewIndex("", &keywordEmbedder{}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = ix.Sync(ctx, 3, chunk.Build(sampleFacts(3)))
	require.NoError(t, err)
	require.Equal(t, 1, ix.Collections())

	require.NoError(t, ix.Drop(3))
	assert.Equal(t, 0, ix.Collections())
	require.NoError(t, ix.Drop(3))
}

func TestIndexSyncEmbedFailureKeepsCollection(t *testing.T) {
	emb := &keywordEmbedder{}
	ix, err := NewIndex("", emb, nil)
	require.NoError(t, err)
	ctx := context.Background()
	chunks := chunk.Build(sampleFacts(2))
	_, err = ix.Sync(ctx, 2, chunks)
	require.NoError(t, err)

	emb.fail = errBoom
	ix.Invalidate(2)
	_, err = ix.Sync(ctx, 2, chunks)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, ix.Collections())
}
