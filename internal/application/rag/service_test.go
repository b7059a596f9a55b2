package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-docs-voice-api/internal/domain/entity"
)

// mapCache 进程内读穿透缓存
type mapCache struct {
	data  map[string]*entity.Answer
	loads int
}

func (m *mapCache) GetOrLoad(ctx context.Context, key string, _ time.Duration, loader func(context.Context) (*entity.Answer, error)) (*entity.Answer, error) {
	if a, ok := m.data[key]; ok {
		return a, nil
	}
	m.loads++
	a, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	m.data[key] = a
	return a, nil
}

func testService(t *testing.T, cache AnswerCache) *Service {
	t.Helper()
	store := newFakeStore()
	store.hits = []entity.ScoredPassage{scored("https://d/p1", 0, 0.9)}
	manifests := newFakeManifests()
	require.NoError(t, manifests.Save(context.Background(), readyManifest(1)))

	retriever := testRetriever(store, manifests)
	composer := NewComposer(&fakeChatModel{reply: "the answer"}, 0)
	packager := NewPackager(&fakeSpeech{})
	return NewService(retriever, composer, packager, cache, time.Minute)
}

func TestServiceQuery(t *testing.T) {
	s := testService(t, nil)

	got, err := s.Query(context.Background(), QueryInput{Collection: "docs", Question: "how to install?"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", got.Text)
	assert.Equal(t, []string{"https://d/p1"}, got.Sources)
	assert.True(t, got.Grounded)
	require.NotNil(t, got.Audio)
	assert.Equal(t, "audio/mpeg", got.Audio.MIME)
}

func TestServiceQueryRejectsUnknownVoice(t *testing.T) {
	s := testService(t, nil)

	_, err := s.Query(context.Background(), QueryInput{Collection: "docs", Question: "q", Voice: "robot"})
	assert.Error(t, err)
}

func TestServiceQueryUsesAnswerCache(t *testing.T) {
	cache := &mapCache{data: make(map[string]*entity.Answer)}
	s := testService(t, cache)

	in := QueryInput{Collection: "docs", Question: "how to install?", TopK: 3}
	_, err := s.Query(context.Background(), in)
	require.NoError(t, err)
	_, err = s.Query(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.loads, "second identical query is served from cache")
}

func TestServiceQueryPropagatesRetrievalErrors(t *testing.T) {
	store := newFakeStore()
	retriever := testRetriever(store, newFakeManifests())
	s := NewService(retriever, NewComposer(&fakeChatModel{reply: "x"}, 0), NewPackager(&fakeSpeech{}), nil, 0)

	_, err := s.Query(context.Background(), QueryInput{Collection: "missing", Question: "q"})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
