package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractx/logic/aggregate"
	"contractx/logic/ingestion/pipeline"
	"contractx/logic/retrieval"
	"contractx/logic/retry"
	"contractx/storage"
	"contractx/storage/memory"
	"contractx/types"
)

var fastRetry = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), float64(strings.Count(t, "a"))}
	}
	return out, nil
}

type fakeExtractor struct {
	failPage int
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, in types.PageInput) (*types.PageExtraction, error) {
	if in.Number == f.failPage {
		return nil, f.err
	}
	p := samplePage(in.Number)
	return &p, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, pageSummaries []string, _ types.CanonicalEntities) (string, error) {
	return fmt.Sprintf("%d pages about payment", len(pageSummaries)), nil
}

type fakeAnswerer struct {
	got *types.FusedContext
}

func (f *fakeAnswerer) Answer(_ context.Context, _ string, fused *types.FusedContext) (string, error) {
	f.got = fused
	return "Acme Corp pays within 30 days.", nil
}

type brokenVectors struct {
	*memory.VectorStore
}

func (brokenVectors) Upsert(context.Context, string, []types.Chunk) error {
	return errors.New("connection refused")
}

func samplePage(n int) types.PageExtraction {
	return types.PageExtraction{
		PageNumber: n,
		Summary:    fmt.Sprintf("Page %d covers payment terms.", n),
		Sections: []types.Section{{
			ID:      fmt.Sprintf("%d", n),
			Heading: "Payment",
			SubHeadings: []types.SubHeading{{
				ID:      fmt.Sprintf("%d.1", n),
				Text:    "Terms",
				Clauses: []types.Clause{{ID: fmt.Sprintf("%d.1.1", n), Text: "Buyer pays within 30 days"}},
			}},
		}},
		Entities: types.EntityBag{BuyerName: "Acme Corp", SellerName: "Globex", Dates: []string{"2024-01-01"}},
	}
}

func pages(numbers ...int) []types.PageExtraction {
	out := make([]types.PageExtraction, len(numbers))
	for i, n := range numbers {
		out[i] = samplePage(n)
	}
	return out
}

type env struct {
	docs    *memory.DocumentStore
	vectors *memory.VectorStore
	graph   *memory.GraphStore
	buffer  *pipeline.Buffer
	svc     *IngestionService
}

func newEnv(t *testing.T, extractor pipeline.Extractor, vectors storage.VectorStore) *env {
	t.Helper()
	e := &env{
		docs:    memory.NewDocumentStore(),
		vectors: memory.NewVectorStore(fakeEmbedder{}),
		graph:   memory.NewGraphStore(),
		buffer:  pipeline.NewBuffer(),
	}
	if vectors == nil {
		vectors = e.vectors
	}
	if extractor == nil {
		extractor = &fakeExtractor{}
	}
	pool := pipeline.NewPool(extractor, e.buffer, pipeline.Config{Concurrency: 2, Retry: fastRetry}, nil)
	agg := aggregate.NewAggregator(fakeSummarizer{}, fastRetry, 200)
	e.svc = NewIngestionService(e.docs, NewIndexer(vectors, e.graph, fastRetry, nil), pool, agg, nil, nil)
	return e
}

func TestFinalizeThenDeleteLeavesNoResidue(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	doc, err := e.svc.FinalizeDocument(ctx, "doc-1", pages(2, 1, 3))
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 3)
	assert.Equal(t, "Acme Corp", doc.CanonicalEntities.BuyerName)
	assert.Equal(t, "3 pages about payment", doc.OverallSummary)

	assert.Equal(t, 1, e.docs.Len())
	assert.Positive(t, e.vectors.Count("doc-1"))
	nodes, edges := e.graph.Count("doc-1")
	assert.Positive(t, nodes)
	assert.Positive(t, edges)

	require.NoError(t, e.svc.DeleteDocument(ctx, "doc-1"))
	assert.Equal(t, 0, e.docs.Len())
	assert.Equal(t, 0, e.vectors.Count("doc-1"))
	nodes, edges = e.graph.Count("doc-1")
	assert.Zero(t, nodes)
	assert.Zero(t, edges)

	_, err = e.svc.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFinalizeRejectsPageGap(t *testing.T) {
	e := newEnv(t, nil, nil)

	_, err := e.svc.FinalizeDocument(context.Background(), "doc-1", pages(1, 2, 4))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIncompleteDocument)
	se, ok := types.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, "doc-1", se.DocumentID)
	assert.Equal(t, 0, e.docs.Len())
	assert.Equal(t, 0, e.vectors.Count("doc-1"))
}

func TestFinalizeTwiceConflicts(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	_, err := e.svc.FinalizeDocument(ctx, "doc-1", pages(1))
	require.NoError(t, err)
	_, err = e.svc.FinalizeDocument(ctx, "doc-1", pages(1, 2))
	assert.ErrorIs(t, err, types.ErrConflict)

	doc, err := e.svc.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
}

func TestFinalizeRequiresDocumentID(t *testing.T) {
	e := newEnv(t, nil, nil)
	_, err := e.svc.FinalizeDocument(context.Background(), "  ", pages(1))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestIndexFailureRollsBackEveryStore(t *testing.T) {
	e := newEnv(t, nil, brokenVectors{memory.NewVectorStore(fakeEmbedder{})})

	_, err := e.svc.FinalizeDocument(context.Background(), "doc-1", pages(1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCollaboratorUnavailable)
	se, ok := types.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, types.StageIndexVector, se.Stage)
	assert.Equal(t, 2, se.Attempts)

	assert.Equal(t, 0, e.docs.Len())
	nodes, _ := e.graph.Count("doc-1")
	assert.Zero(t, nodes)
}

func TestDeleteUnknownDocument(t *testing.T) {
	e := newEnv(t, nil, nil)
	err := e.svc.DeleteDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestIngestPagesEndToEnd(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	inputs := []types.PageInput{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}, {Number: 3, Text: "c"}}
	doc, err := e.svc.IngestPages(ctx, "doc-1", inputs)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{doc.Pages[0].PageNumber, doc.Pages[1].PageNumber, doc.Pages[2].PageNumber})
	assert.Equal(t, 0, e.buffer.Pending())

	list, err := e.svc.ListDocuments(ctx, storage.DocumentFilter{Party: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "doc-1", list[0].DocumentID)

	_, err = e.svc.IngestPages(ctx, "doc-1", inputs)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestIngestPagesExtractionFailureDiscardsBuffer(t *testing.T) {
	e := newEnv(t, &fakeExtractor{failPage: 2, err: fmt.Errorf("%w: bad json", types.ErrInvalidContent)}, nil)

	inputs := []types.PageInput{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}, {Number: 3, Text: "c"}}
	_, err := e.svc.IngestPages(context.Background(), "doc-1", inputs)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidContent)
	assert.Equal(t, 0, e.buffer.Pending())
	assert.Equal(t, 0, e.docs.Len())
	assert.False(t, e.svc.CancelIngestion("doc-1"))
}

func TestMergeAndReconcileStandalone(t *testing.T) {
	e := newEnv(t, nil, nil)
	p := pages(1, 2)
	p[0].Tables = []types.TableCandidate{{Title: "Fees", Headers: []string{"Item", "Fee"}, Rows: [][]string{{"a", "1"}}, ContinuesToNextPage: true}}
	p[1].Tables = []types.TableCandidate{{Title: "Fees", Headers: []string{"Item", "Fee"}, Rows: [][]string{{"b", "2"}}, ContinuedFromPreviousPage: true}}

	tables, err := e.svc.MergeTables(p)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, 2, tables[0].TotalRows)
	assert.Equal(t, []int{1, 2}, tables[0].SourcePages)

	entities := e.svc.ReconcileEntities(p)
	assert.Equal(t, "Globex", entities.SellerName)
}

func TestAskUsesBothBranches(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	_, err := e.svc.FinalizeDocument(ctx, "doc-1", pages(1, 2))
	require.NoError(t, err)

	engine := retrieval.NewEngine(fakeEmbedder{}, e.vectors, e.graph, retrieval.Config{DefaultK: 3, MaxDepth: 1, Retry: fastRetry}, nil)
	answerer := &fakeAnswerer{}
	svc := NewRetrievalService(engine, answerer, fastRetry, nil)

	resp, err := svc.Ask(ctx, types.ContextRequest{DocumentID: "doc-1", Question: "When does Acme pay?", IncludeVector: true, IncludeGraph: true})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp pays within 30 days.", resp.Answer)
	assert.Len(t, resp.Context.Chunks, 3)
	assert.NotEmpty(t, resp.Context.Nodes)
	assert.Same(t, resp.Context, answerer.got)

	_, err = svc.Ask(ctx, types.ContextRequest{DocumentID: "nope", Question: "When does Acme pay?", IncludeVector: true})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("doc")
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size())

	// 不同 key 互不阻塞
	a := k.Lock("a")
	b := k.Lock("b")
	assert.Equal(t, 2, k.size())
	a()
	b()
}

type fakeUsage struct {
	forgotten []string
}

func (f *fakeUsage) Usage(documentID string) []types.LLMUsage {
	return []types.LLMUsage{{Stage: types.StageExtract, Calls: 3, TotalTokens: 90}}
}

func (f *fakeUsage) Forget(documentID string) { f.forgotten = append(f.forgotten, documentID) }

func TestDocumentStatsAndChatbotInfo(t *testing.T) {
	e := newEnv(t, nil, nil)
	usage := &fakeUsage{}
	e.svc.WithUsage(usage)
	ctx := context.Background()

	_, err := e.svc.DocumentStats(ctx, "doc-1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = e.svc.FinalizeDocument(ctx, "doc-1", pages(1, 2))
	require.NoError(t, err)

	stats, err := e.svc.DocumentStats(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, e.vectors.Count("doc-1"), stats.Chunks)
	nodes, edges := e.graph.Count("doc-1")
	assert.Equal(t, nodes, stats.Nodes)
	assert.Equal(t, edges, stats.Edges)
	require.Len(t, stats.Usage, 1)
	assert.Equal(t, 90, stats.Usage[0].TotalTokens)

	info, err := e.svc.ChatbotInfo(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, info.Ready)
	assert.Equal(t, 2, info.PageCount)
	assert.Equal(t, "Acme Corp", info.BuyerName)
	assert.Equal(t, *stats, info.Stats)

	require.NoError(t, e.svc.DeleteDocument(ctx, "doc-1"))
	assert.Equal(t, []string{"doc-1"}, usage.forgotten)
	_, err = e.svc.ChatbotInfo(ctx, "doc-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDocumentStatsWithoutUsageIsEmptyList(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	_, err := e.svc.FinalizeDocument(ctx, "doc-1", pages(1))
	require.NoError(t, err)

	stats, err := e.svc.DocumentStats(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotNil(t, stats.Usage)
	assert.Empty(t, stats.Usage)
}
