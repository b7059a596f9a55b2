package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-docs-voice-api/internal/domain/entity"
)

func testRetriever(store *fakeStore, manifests *fakeManifests) *Retriever {
	return NewRetriever(&fakeEmbedder{dim: testDim}, store, manifests, RetrieverConfig{
		DefaultTopK:    3,
		MaxTopK:        10,
		MinSimilarity:  0.5,
		EmbeddingModel: "test-embed",
		Dimension:      testDim,
		Metric:         "COSINE",
	})
}

func readyManifest(passages int) entity.CollectionManifest {
	return entity.CollectionManifest{
		Collection:     "docs",
		EmbeddingModel: "test-embed",
		Dimension:      testDim,
		Metric:         "COSINE",
		PassageCount:   passages,
	}
}

func scored(url string, ordinal int, score float64) entity.ScoredPassage {
	return entity.ScoredPassage{
		Passage: entity.Passage{
			ID:         entity.PassageID("docs", url, ordinal),
			Collection: "docs",
			SourceURL:  url,
			Ordinal:    ordinal,
			Text:       "passage " + url,
		},
		Score: score,
	}
}

func TestRetrieveInvalidTopK(t *testing.T) {
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), readyManifest(1)))
	r := testRetriever(newFakeStore(), manifests)

	_, err := r.Retrieve(context.Background(), "docs", "how to install?", -1)
	assert.ErrorIs(t, err, ErrInvalidTopK)

	_, err = r.Retrieve(context.Background(), "docs", "how to install?", 11)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestRetrieveUnknownCollection(t *testing.T) {
	r := testRetriever(newFakeStore(), newFakeManifests())

	_, err := r.Retrieve(context.Background(), "nope", "how to install?", 0)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestRetrieveEmbeddingSpaceMismatch(t *testing.T) {
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), entity.CollectionManifest{
		Collection:     "docs",
		EmbeddingModel: "other-model",
		Dimension:      testDim,
		Metric:         "COSINE",
	}))
	r := testRetriever(newFakeStore(), manifests)

	_, err := r.Retrieve(context.Background(), "docs", "how to install?", 0)
	assert.ErrorIs(t, err, ErrEmbeddingSpaceMismatch)
}

func TestRetrieveEmptyCollection(t *testing.T) {
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), readyManifest(0)))
	r := testRetriever(newFakeStore(), manifests)

	got, err := r.Retrieve(context.Background(), "docs", "how to install?", 0)
	require.NoError(t, err)
	assert.True(t, got.Empty(), "empty collection yields an empty result, not an error")
}

func TestRetrieveFiltersBelowThresholdAndTruncates(t *testing.T) {
	store := newFakeStore()
	store.hits = []entity.ScoredPassage{
		scored("https://d/p1", 0, 0.91),
		scored("https://d/p2", 1, 0.85),
		scored("https://d/p3", 2, 0.72),
		scored("https://d/p4", 3, 0.61),
		scored("https://d/p5", 4, 0.49), // 低于阈值
	}
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), readyManifest(5)))
	r := testRetriever(store, manifests)

	got, err := r.Retrieve(context.Background(), "docs", "how to install?", 3)
	require.NoError(t, err)
	require.Len(t, got.Passages, 3)
	for _, p := range got.Passages {
		assert.GreaterOrEqual(t, p.Score, 0.5)
	}
	assert.Equal(t, "https://d/p1", got.Passages[0].SourceURL)
}

func TestRetrieveOrderingAndTieBreak(t *testing.T) {
	store := newFakeStore()
	store.hits = []entity.ScoredPassage{
		scored("https://d/late", 7, 0.8),
		scored("https://d/early", 2, 0.8), // 同分，序号小者在前
		scored("https://d/top", 5, 0.95),
	}
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), readyManifest(3)))
	r := testRetriever(store, manifests)

	got, err := r.Retrieve(context.Background(), "docs", "how to install?", 3)
	require.NoError(t, err)
	require.Len(t, got.Passages, 3)
	assert.Equal(t, "https://d/top", got.Passages[0].SourceURL)
	assert.Equal(t, "https://d/early", got.Passages[1].SourceURL)
	assert.Equal(t, "https://d/late", got.Passages[2].SourceURL)

	// 确定性：重复查询得到同样的排序
	again, err := r.Retrieve(context.Background(), "docs", "how to install?", 3)
	require.NoError(t, err)
	assert.Equal(t, got.Passages, again.Passages)
}

func TestRetrieveDefaultTopK(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 8; i++ {
		store.hits = append(store.hits, scored("https://d/p", i, 0.9))
	}
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), readyManifest(8)))
	r := testRetriever(store, manifests)

	got, err := r.Retrieve(context.Background(), "docs", "how to install?", 0)
	require.NoError(t, err)
	assert.Len(t, got.Passages, 3)
}

func TestRetrieveEndToEndTopHitFromRelevantPage(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	embedder := &fakeEmbedder{dim: testDim}
	p := NewPipeline(&fakeCrawler{docs: []entity.Document{
		{SourceURL: "https://d/page1", Content: "installation prerequisites and setup"},
		{SourceURL: "https://d/page2", Content: "authentication tokens and api keys"},
		{SourceURL: "https://d/page3", Content: "troubleshooting common failures"},
	}}, NewChunker(400, 0, 0), embedder, store, manifests, newFakeLock(), newFakeRuns(), PipelineConfig{
		EmbedBatchSize: 2,
		EmbeddingModel: "test-embed",
		Dimension:      testDim,
	})
	require.NoError(t, p.Run(context.Background(), &entity.IngestionRun{ID: "r1", Collection: "docs", RootURL: "https://d"}))

	r := NewRetriever(embedder, store, manifests, RetrieverConfig{
		DefaultTopK:    3,
		MaxTopK:        10,
		MinSimilarity:  0,
		EmbeddingModel: "test-embed",
		Dimension:      testDim,
		Metric:         "COSINE",
	})

	// 查询文本与 page2 内容一致，向量完全相同，必然命中 page2
	got, err := r.Retrieve(context.Background(), "docs", "authentication tokens and api keys", 1)
	require.NoError(t, err)
	require.Len(t, got.Passages, 1)
	assert.Equal(t, "https://d/page2", got.Passages[0].SourceURL)
}
