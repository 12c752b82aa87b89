// Package retrieval 混合检索：向量相似度和实体图遍历并发执行，结果分两列各自排序
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"contractx/logic/retry"
	"contractx/storage"
	"contractx/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"
)

const (
	BranchVector = "vector"
	BranchGraph  = "graph"
)

type Config struct {
	DefaultK int
	MaxDepth int
	Retry    retry.Policy
}

type Engine struct {
	embedder embedding.Embedder
	vectors  storage.VectorStore
	graph    storage.GraphStore
	cfg      Config
	log      *logrus.Entry
}

func NewEngine(embedder embedding.Embedder, vectors storage.VectorStore, graph storage.GraphStore, cfg Config, log *logrus.Entry) *Engine {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 8
	}
	if cfg.MaxDepth <= 0 || cfg.MaxDepth > 2 {
		cfg.MaxDepth = 2
	}
	if log == nil {
		log = logrus.WithField("component", "retrieval")
	}
	return &Engine{embedder: embedder, vectors: vectors, graph: graph, cfg: cfg, log: log}
}

type branchResult struct {
	chunks []types.RankedChunk
	nodes  []types.RankedNode
	terms  []string
	seeds  []string
	err    error
}

// AnswerContext 单路失败只记诊断；请求的分支全部失败才返回 RetrievalUnavailable。
// 任一分支报告文档不存在则返回 NotFound。
func (e *Engine) AnswerContext(ctx context.Context, req types.ContextRequest) (*types.FusedContext, error) {
	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		return nil, types.NewStageError(docID, types.StageRetrieval, types.ErrValidation, errors.New("document_id is required"))
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, types.NewStageError(docID, types.StageRetrieval, types.ErrValidation, errors.New("question is required"))
	}
	if !req.IncludeVector && !req.IncludeGraph {
		return nil, types.NewStageError(docID, types.StageRetrieval, types.ErrValidation, errors.New("at least one of include_vector, include_graph must be set"))
	}
	k := req.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}

	start := time.Now()
	log := e.log.WithFields(logrus.Fields{"document_id": docID, "k": k})

	var (
		wg         sync.WaitGroup
		vres, gres branchResult
	)
	if req.IncludeVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vres = e.vectorBranch(ctx, docID, req.Question, k)
		}()
	}
	if req.IncludeGraph {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gres = e.graphBranch(ctx, docID, req.Question)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, types.NewStageError(docID, types.StageRetrieval, nil, err)
	}

	fused := &types.FusedContext{
		DocumentID:  docID,
		Question:    req.Question,
		Terms:       gres.terms,
		SeedNodeIDs: gres.seeds,
		Chunks:      []types.RankedChunk{},
		Nodes:       []types.RankedNode{},
	}
	var failures []error
	record := func(branch string, res branchResult) {
		if res.err == nil {
			return
		}
		failures = append(failures, fmt.Errorf("%s branch: %w", branch, res.err))
		d := types.Diagnostic{Branch: branch, Error: res.err.Error()}
		if se, ok := types.AsStageError(res.err); ok {
			d.Stage = se.Stage
			d.Attempts = se.Attempts
		}
		fused.Diagnostics = append(fused.Diagnostics, d)
	}

	requested := 0
	if req.IncludeVector {
		requested++
		if errors.Is(vres.err, types.ErrNotFound) {
			return nil, types.NewStageError(docID, types.StageRetrieval, types.ErrNotFound, vres.err)
		}
		record(BranchVector, vres)
		if vres.err == nil {
			fused.Chunks = vres.chunks
		}
	}
	if req.IncludeGraph {
		requested++
		if errors.Is(gres.err, types.ErrNotFound) {
			return nil, types.NewStageError(docID, types.StageRetrieval, types.ErrNotFound, gres.err)
		}
		record(BranchGraph, gres)
		if gres.err == nil {
			fused.Nodes = gres.nodes
		}
	}

	if len(failures) == requested {
		log.WithField("failures", len(failures)).Error("检索分支全部失败")
		return nil, &types.StageError{
			DocumentID: docID,
			Stage:      types.StageRetrieval,
			Kind:       types.ErrRetrievalUnavailable,
			Err:        errors.Join(failures...),
		}
	}
	for _, d := range fused.Diagnostics {
		log.WithFields(logrus.Fields{"branch": d.Branch, "stage": d.Stage, "attempts": d.Attempts}).Warn("检索分支失败，已降级: " + d.Error)
	}
	log.WithFields(logrus.Fields{
		"chunks":  len(fused.Chunks),
		"nodes":   len(fused.Nodes),
		"elapsed": time.Since(start),
	}).Info("混合检索完成")
	return fused, nil
}

func (e *Engine) vectorBranch(ctx context.Context, docID, question string, k int) branchResult {
	vectors, err := retry.Do(ctx, e.cfg.Retry, docID, types.StageEmbed, func(ctx context.Context) ([][]float64, error) {
		vs, err := e.embedder.EmbedStrings(ctx, []string{question})
		return vs, retry.Classify(err)
	})
	if err != nil {
		return branchResult{err: err}
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return branchResult{err: types.NewStageError(docID, types.StageEmbed, types.ErrInvalidContent, errors.New("embedder returned no vector"))}
	}

	hits, err := retry.Do(ctx, e.cfg.Retry, docID, types.StageVectorQuery, func(ctx context.Context) ([]types.ChunkHit, error) {
		hits, err := e.vectors.Query(ctx, docID, vectors[0], k)
		return hits, retry.Classify(err)
	})
	if err != nil {
		return branchResult{err: err}
	}
	return branchResult{chunks: RankChunks(hits, k)}
}

func (e *Engine) graphBranch(ctx context.Context, docID, question string) branchResult {
	entities, err := retry.Do(ctx, e.cfg.Retry, docID, types.StageGraphQuery, func(ctx context.Context) ([]types.GraphNode, error) {
		nodes, err := e.graph.EntityNodes(ctx, docID)
		return nodes, retry.Classify(err)
	})
	if err != nil {
		return branchResult{err: err}
	}

	terms := ExtractTerms(question)
	seeds := MatchSeeds(question, terms, entities)
	if len(seeds) == 0 {
		return branchResult{terms: terms, nodes: []types.RankedNode{}}
	}

	sub, err := retry.Do(ctx, e.cfg.Retry, docID, types.StageGraphQuery, func(ctx context.Context) (*types.Subgraph, error) {
		sub, err := e.graph.Traverse(ctx, docID, seeds, e.cfg.MaxDepth)
		return sub, retry.Classify(err)
	})
	if err != nil {
		return branchResult{terms: terms, seeds: seeds, err: err}
	}
	return branchResult{terms: terms, seeds: seeds, nodes: RankNodes(sub)}
}
