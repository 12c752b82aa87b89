package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"contractx/logic/retry"
	"contractx/storage/memory"
	"contractx/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docID = "doc-1"

// fakeEmbedder 按文本查表，查不到返回零向量
type fakeEmbedder struct {
	vecs map[string][]float64
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vecs[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float64{0, 0}
	}
	return out, nil
}

type failingVectors struct {
	*memory.VectorStore
	err   error
	calls int
}

func (f *failingVectors) Query(context.Context, string, []float64, int) ([]types.ChunkHit, error) {
	f.calls++
	return nil, f.err
}

type failingGraph struct {
	*memory.GraphStore
	err error
}

func (f *failingGraph) EntityNodes(context.Context, string) ([]types.GraphNode, error) {
	return nil, f.err
}

const question = "What is the payment schedule for Acme?"

func fixture(t *testing.T) (*fakeEmbedder, *memory.VectorStore, *memory.GraphStore) {
	t.Helper()
	ctx := context.Background()
	emb := &fakeEmbedder{vecs: map[string][]float64{
		"payment terms":   {1, 0},
		"delivery window": {0, 1},
		"payment due":     {0.9, 0.1},
		question:          {1, 0},
	}}
	vs := memory.NewVectorStore(emb)
	require.NoError(t, vs.Upsert(ctx, docID, []types.Chunk{
		{ChunkID: "c1", DocumentID: docID, Content: "payment terms", ChunkType: types.ChunkSection},
		{ChunkID: "c2", DocumentID: docID, Content: "delivery window", ChunkType: types.ChunkSection},
		{ChunkID: "c3", DocumentID: docID, Content: "payment due", ChunkType: types.ChunkTable},
	}))

	gs := memory.NewGraphStore()
	require.NoError(t, gs.UpsertSubgraph(ctx, docID, []types.GraphNode{
		{ID: "doc-1:document", Type: types.NodeDocument, Label: docID, Seq: 0},
		{ID: "doc-1:entity:buyer", Type: types.NodeEntity, Label: "Acme Corp", Properties: map[string]string{"value": "Acme Corp"}, Seq: 1},
		{ID: "doc-1:entity:seller", Type: types.NodeEntity, Label: "Globex", Properties: map[string]string{"value": "Globex"}, Seq: 2},
	}, []types.GraphEdge{
		{From: "doc-1:document", To: "doc-1:entity:buyer", Type: types.EdgeHasEntity},
		{From: "doc-1:document", To: "doc-1:entity:seller", Type: types.EdgeHasEntity},
		{From: "doc-1:entity:buyer", To: "doc-1:entity:seller", Type: types.EdgeContractsWith},
	}))
	return emb, vs, gs
}

func testConfig() Config {
	return Config{DefaultK: 8, MaxDepth: 2, Retry: retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}}
}

func nodeIDs(nodes []types.RankedNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Node.ID
	}
	return ids
}

func chunkIDs(chunks []types.RankedChunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.Chunk.ChunkID
	}
	return ids
}

func TestAnswerContextBothBranches(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb, vs, gs, testConfig(), nil)

	req := types.ContextRequest{DocumentID: docID, Question: question, IncludeVector: true, IncludeGraph: true, K: 2}
	fused, err := e.AnswerContext(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c3"}, chunkIDs(fused.Chunks))
	assert.Equal(t, 1, fused.Chunks[0].Rank)
	assert.InDelta(t, 0, fused.Chunks[0].Distance, 1e-9)
	assert.Equal(t, []string{"doc-1:entity:buyer"}, fused.SeedNodeIDs)
	assert.Equal(t, []string{"doc-1:entity:buyer", "doc-1:document", "doc-1:entity:seller"}, nodeIDs(fused.Nodes))
	assert.Equal(t, 0, fused.Nodes[0].Depth)
	assert.Equal(t, 1, fused.Nodes[2].Depth)
	assert.Empty(t, fused.Diagnostics)

	again, err := e.AnswerContext(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fused, again)
}

func TestAnswerContextDefaultK(t *testing.T) {
	emb, vs, gs := fixture(t)
	cfg := testConfig()
	cfg.DefaultK = 1
	e := NewEngine(emb, vs, gs, cfg, nil)

	fused, err := e.AnswerContext(context.Background(), types.ContextRequest{DocumentID: docID, Question: question, IncludeVector: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, chunkIDs(fused.Chunks))
	assert.Empty(t, fused.Nodes)
}

func TestAnswerContextVectorTimeoutDegrades(t *testing.T) {
	emb, vs, gs := fixture(t)
	broken := &failingVectors{VectorStore: vs, err: context.DeadlineExceeded}
	e := NewEngine(emb, broken, gs, testConfig(), nil)

	fused, err := e.AnswerContext(context.Background(), types.ContextRequest{
		DocumentID: docID, Question: question, IncludeVector: true, IncludeGraph: true,
	})
	require.NoError(t, err)
	assert.Empty(t, fused.Chunks)
	assert.NotEmpty(t, fused.Nodes)
	require.Len(t, fused.Diagnostics, 1)
	d := fused.Diagnostics[0]
	assert.Equal(t, BranchVector, d.Branch)
	assert.Equal(t, types.StageVectorQuery, d.Stage)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, 2, broken.calls)
}

func TestAnswerContextAllBranchesFail(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb,
		&failingVectors{VectorStore: vs, err: errors.New("connection refused")},
		&failingGraph{GraphStore: gs, err: errors.New("connection reset by peer")},
		testConfig(), nil)

	_, err := e.AnswerContext(context.Background(), types.ContextRequest{
		DocumentID: docID, Question: question, IncludeVector: true, IncludeGraph: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetrievalUnavailable)
	se, ok := types.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, types.StageRetrieval, se.Stage)
}

func TestAnswerContextSingleBranchFailureIsUnavailable(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb, &failingVectors{VectorStore: vs, err: errors.New("503 service unavailable")}, gs, testConfig(), nil)

	_, err := e.AnswerContext(context.Background(), types.ContextRequest{DocumentID: docID, Question: question, IncludeVector: true})
	assert.ErrorIs(t, err, types.ErrRetrievalUnavailable)
}

func TestAnswerContextUnknownDocument(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb, vs, gs, testConfig(), nil)

	_, err := e.AnswerContext(context.Background(), types.ContextRequest{
		DocumentID: "missing", Question: question, IncludeVector: true, IncludeGraph: true,
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAnswerContextNoSeeds(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb, vs, gs, testConfig(), nil)

	fused, err := e.AnswerContext(context.Background(), types.ContextRequest{
		DocumentID: docID, Question: "weather tomorrow", IncludeGraph: true,
	})
	require.NoError(t, err)
	assert.Empty(t, fused.Nodes)
	assert.Empty(t, fused.SeedNodeIDs)
	assert.Equal(t, []string{"weather", "tomorrow"}, fused.Terms)
	assert.Empty(t, fused.Diagnostics)
}

func TestAnswerContextValidation(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb, vs, gs, testConfig(), nil)
	ctx := context.Background()

	cases := []types.ContextRequest{
		{DocumentID: " ", Question: question, IncludeVector: true},
		{DocumentID: docID, Question: "", IncludeVector: true},
		{DocumentID: docID, Question: question},
	}
	for _, req := range cases {
		_, err := e.AnswerContext(ctx, req)
		assert.ErrorIs(t, err, types.ErrValidation)
	}
}

func TestAnswerContextCanceled(t *testing.T) {
	emb, vs, gs := fixture(t)
	e := NewEngine(emb, vs, gs, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.AnswerContext(ctx, types.ContextRequest{DocumentID: docID, Question: question, IncludeVector: true, IncludeGraph: true})
	assert.ErrorIs(t, err, context.Canceled)
}
