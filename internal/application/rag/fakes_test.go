package rag

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-docs-voice-api/internal/domain/entity"
)

// fakeEmbedder 由文本内容确定性地生成向量
type fakeEmbedder struct {
	mu       sync.Mutex
	dim      int
	calls    int
	failures int // 前 N 次调用失败
	err      error
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient embedding failure")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = embedText(t, f.dim)
	}
	return out, nil
}

func embedText(text string, dim int) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		vec[i] = float64(sum[i%len(sum)]) + 1
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// fakeStore 内存向量库，按段落 ID 覆盖写入
type fakeStore struct {
	mu       sync.Mutex
	data     map[string]map[string]entity.IndexedPassage // collection -> passage id -> passage
	hits     []entity.ScoredPassage                      // 非空时 Search 直接返回
	err      error
	deletes  []string
	upserts  []string
	readyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]entity.IndexedPassage)}
}

func (f *fakeStore) EnsureReady(context.Context) error { return f.readyErr }

func (f *fakeStore) Upsert(_ context.Context, collection string, passages []entity.IndexedPassage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.data[collection] == nil {
		f.data[collection] = make(map[string]entity.IndexedPassage)
	}
	for _, p := range passages {
		f.data[collection][p.ID] = p
		f.upserts = append(f.upserts, p.SourceURL)
	}
	return nil
}

func (f *fakeStore) DeleteBySource(_ context.Context, collection, sourceURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, sourceURL)
	for id, p := range f.data[collection] {
		if p.SourceURL == sourceURL {
			delete(f.data[collection], id)
		}
	}
	return nil
}

func (f *fakeStore) Search(_ context.Context, collection string, vector []float32, limit int) ([]entity.ScoredPassage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.hits != nil {
		if len(f.hits) > limit {
			return f.hits[:limit], nil
		}
		return f.hits, nil
	}
	var out []entity.ScoredPassage
	for _, p := range f.data[collection] {
		out = append(out, entity.ScoredPassage{Passage: p.Passage, Score: cosine(vector, p.Vector)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[collection])
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fakeManifests 内存集合清单
type fakeManifests struct {
	mu   sync.Mutex
	data map[string]entity.CollectionManifest
}

func newFakeManifests() *fakeManifests {
	return &fakeManifests{data: make(map[string]entity.CollectionManifest)}
}

func (f *fakeManifests) Save(_ context.Context, m entity.CollectionManifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[m.Collection] = m
	return nil
}

func (f *fakeManifests) Get(_ context.Context, collection string) (*entity.CollectionManifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.data[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrCollectionNotFound)
	}
	return &m, nil
}

// fakeLock 进程内集合锁
type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (f *fakeLock) Acquire(_ context.Context, collection string, _ time.Duration) (func(context.Context), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[collection] {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrIngestionInProgress)
	}
	f.held[collection] = true
	return func(context.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, collection)
	}, nil
}

// fakeRuns 内存运行记录
type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]*entity.IngestionRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]*entity.IngestionRun)}
}

func (f *fakeRuns) Create(_ context.Context, run *entity.IngestionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) Update(_ context.Context, run *entity.IngestionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) ListByCollection(_ context.Context, collection string, limit int) ([]entity.IngestionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.IngestionRun
	for _, r := range f.runs {
		if r.Collection == collection && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRuns) get(id string) *entity.IngestionRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

// fakeCrawler 返回固定页面集
type fakeCrawler struct {
	docs []entity.Document
	err  error
}

func (f *fakeCrawler) Crawl(context.Context, string, int) ([]entity.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// fakeChatModel 返回固定回答
type fakeChatModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, m := range in {
		f.prompts = append(f.prompts, m.Content)
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

// fakeSpeech 返回固定音频
type fakeSpeech struct {
	err    error
	voices []string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, voice string) (*entity.AudioArtifact, error) {
	f.voices = append(f.voices, voice)
	if f.err != nil {
		return nil, f.err
	}
	return &entity.AudioArtifact{MIME: "audio/mpeg", Data: []byte("mp3:" + text)}, nil
}
