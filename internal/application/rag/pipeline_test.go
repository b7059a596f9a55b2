package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-docs-voice-api/internal/domain/entity"
)

const testDim = 8

func testPipeline(crawler Crawler, embedder *fakeEmbedder, store *fakeStore) (*Pipeline, *fakeManifests, *fakeRuns, *fakeLock) {
	manifests := newFakeManifests()
	runs := newFakeRuns()
	lock := newFakeLock()
	p := NewPipeline(crawler, NewChunker(400, 80, 40), embedder, store, manifests, lock, runs, PipelineConfig{
		EmbedBatchSize: 4,
		EmbedWorkers:   2,
		BatchRetries:   2,
		RetryBackoff:   time.Millisecond,
		EmbeddingModel: "test-embed",
		Dimension:      testDim,
		Metric:         "COSINE",
	})
	return p, manifests, runs, lock
}

func testDocs() []entity.Document {
	return []entity.Document{
		{SourceURL: "https://docs.example.com/install", Content: strings.Repeat("install step. ", 80)},
		{SourceURL: "https://docs.example.com/config", Content: strings.Repeat("config option. ", 80)},
		{SourceURL: "", Content: "malformed page without source"},
	}
}

func TestPipelineRunSucceeds(t *testing.T) {
	store := newFakeStore()
	p, manifests, _, _ := testPipeline(&fakeCrawler{docs: testDocs()}, &fakeEmbedder{dim: testDim}, store)

	run := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com", PageLimit: 5}
	require.NoError(t, p.Run(context.Background(), run))

	assert.Equal(t, entity.PhaseReady, run.Phase)
	assert.Equal(t, 2, run.PageCount, "malformed page is dropped at the boundary")
	assert.Positive(t, run.PassageCount)
	assert.Equal(t, run.PassageCount, store.count("docs"))

	m, err := manifests.Get(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "test-embed", m.EmbeddingModel)
	assert.Equal(t, testDim, m.Dimension)
	assert.Equal(t, "COSINE", m.Metric)
	assert.Equal(t, run.PassageCount, m.PassageCount)
}

func TestPipelineRunIdempotent(t *testing.T) {
	store := newFakeStore()
	crawler := &fakeCrawler{docs: testDocs()}
	p, _, _, _ := testPipeline(crawler, &fakeEmbedder{dim: testDim}, store)

	run1 := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com"}
	require.NoError(t, p.Run(context.Background(), run1))
	first := store.count("docs")

	run2 := &entity.IngestionRun{ID: "run-2", Collection: "docs", RootURL: "https://docs.example.com"}
	require.NoError(t, p.Run(context.Background(), run2))
	assert.Equal(t, first, store.count("docs"), "re-ingesting the same source must not grow the collection")
}

func TestPipelineReingestSupersedesStaleContent(t *testing.T) {
	store := newFakeStore()
	crawler := &fakeCrawler{docs: []entity.Document{
		{SourceURL: "https://docs.example.com/a", Content: "old content about widgets"},
	}}
	p, _, _, _ := testPipeline(crawler, &fakeEmbedder{dim: testDim}, store)

	require.NoError(t, p.Run(context.Background(), &entity.IngestionRun{ID: "r1", Collection: "docs", RootURL: "https://docs.example.com"}))

	crawler.docs = []entity.Document{
		{SourceURL: "https://docs.example.com/a", Content: "completely new content about gadgets"},
	}
	require.NoError(t, p.Run(context.Background(), &entity.IngestionRun{ID: "r2", Collection: "docs", RootURL: "https://docs.example.com"}))

	for _, stored := range store.data["docs"] {
		assert.NotContains(t, stored.Text, "widgets", "stale passage text must never survive re-ingestion")
	}
}

func TestPipelineCrawlFailure(t *testing.T) {
	crawler := &fakeCrawler{err: fmt.Errorf("%w: site unreachable", ErrCrawlFailed)}
	p, manifests, _, _ := testPipeline(crawler, &fakeEmbedder{dim: testDim}, newFakeStore())

	run := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com"}
	err := p.Run(context.Background(), run)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrawlFailed)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, entity.PhaseCrawling, perr.Phase)

	_, err = manifests.Get(context.Background(), "docs")
	assert.ErrorIs(t, err, ErrCollectionNotFound, "a failed run must not expose a ready collection")
}

func TestPipelineEmbeddingRetriesThenSucceeds(t *testing.T) {
	embedder := &fakeEmbedder{dim: testDim, failures: 2}
	p, _, _, _ := testPipeline(&fakeCrawler{docs: testDocs()[:1]}, embedder, newFakeStore())

	run := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com"}
	require.NoError(t, p.Run(context.Background(), run))
	assert.Equal(t, entity.PhaseReady, run.Phase)
}

func TestPipelineEmbeddingFailsAfterRetries(t *testing.T) {
	embedder := &fakeEmbedder{dim: testDim, err: errors.New("quota exceeded")}
	p, manifests, _, _ := testPipeline(&fakeCrawler{docs: testDocs()[:1]}, embedder, newFakeStore())

	run := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com"}
	err := p.Run(context.Background(), run)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, entity.PhaseEmbedding, perr.Phase)

	_, err = manifests.Get(context.Background(), "docs")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestPipelineEmptyCrawlYieldsEmptyReadyCollection(t *testing.T) {
	p, manifests, _, _ := testPipeline(&fakeCrawler{docs: nil}, &fakeEmbedder{dim: testDim}, newFakeStore())

	run := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com"}
	require.NoError(t, p.Run(context.Background(), run))

	m, err := manifests.Get(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, 0, m.PassageCount, "empty-but-initialized collection is distinct from not found")
}

func TestPipelineDeleteBeforeUpsertPerSource(t *testing.T) {
	store := newFakeStore()
	p, _, _, _ := testPipeline(&fakeCrawler{docs: testDocs()[:2]}, &fakeEmbedder{dim: testDim}, store)

	run := &entity.IngestionRun{ID: "run-1", Collection: "docs", RootURL: "https://docs.example.com"}
	require.NoError(t, p.Run(context.Background(), run))

	require.NotEmpty(t, store.deletes)
	require.NotEmpty(t, store.upserts)
	// 每个来源先删后写
	assert.Equal(t, store.deletes[0], store.upserts[0])
}

func TestStartIngestionRejectsConcurrentRun(t *testing.T) {
	lockedCrawler := &blockingCrawler{release: make(chan struct{})}
	store := newFakeStore()
	p, _, runs, _ := testPipeline(lockedCrawler, &fakeEmbedder{dim: testDim}, store)

	id, err := p.StartIngestion(context.Background(), "docs", "https://docs.example.com", 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = p.StartIngestion(context.Background(), "docs", "https://docs.example.com", 0)
	assert.ErrorIs(t, err, ErrIngestionInProgress)

	// 不同集合的摄取互不影响
	_, err = p.StartIngestion(context.Background(), "other", "https://other.example.com", 0)
	assert.NoError(t, err)

	close(lockedCrawler.release)
	require.Eventually(t, func() bool {
		r := runs.get(id)
		return r != nil && r.Status == entity.IngestionStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	// 运行结束后锁释放，可再次摄取
	require.Eventually(t, func() bool {
		_, err := p.StartIngestion(context.Background(), "docs", "https://docs.example.com", 0)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

// blockingCrawler 阻塞直到 release 关闭
type blockingCrawler struct {
	release chan struct{}
}

func (b *blockingCrawler) Crawl(ctx context.Context, _ string, _ int) ([]entity.Document, error) {
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
