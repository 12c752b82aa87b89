package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"contractx/logic/ingestion/transform"
	"contractx/logic/retry"
	"contractx/storage"
	"contractx/types"
)

// Indexer 把定稿文档写入向量库和图库
type Indexer struct {
	vectors storage.VectorStore
	graph   storage.GraphStore
	retry   retry.Policy
	log     *logrus.Entry
}

func NewIndexer(vectors storage.VectorStore, graph storage.GraphStore, policy retry.Policy, log *logrus.Entry) *Indexer {
	if log == nil {
		log = logrus.WithField("component", "indexer")
	}
	return &Indexer{vectors: vectors, graph: graph, retry: policy, log: log}
}

// Index 向量和图并发写入，任一失败即返回；回滚由调用方负责
func (x *Indexer) Index(ctx context.Context, doc *types.Document) error {
	start := time.Now()
	chunks := transform.BuildChunks(doc)
	nodes, edges := transform.BuildGraph(doc)
	log := x.log.WithField("document_id", doc.DocumentID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := retry.Do(gctx, x.retry, doc.DocumentID, types.StageIndexVector, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, retry.Classify(x.vectors.Upsert(ctx, doc.DocumentID, chunks))
		})
		return err
	})
	g.Go(func() error {
		_, err := retry.Do(gctx, x.retry, doc.DocumentID, types.StageIndexGraph, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, retry.Classify(x.graph.UpsertSubgraph(ctx, doc.DocumentID, nodes, edges))
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"chunks":  len(chunks),
		"nodes":   len(nodes),
		"edges":   len(edges),
		"elapsed": time.Since(start),
	}).Info("索引写入完成")
	return nil
}

// Stats 两个索引里该文档的规模
func (x *Indexer) Stats(ctx context.Context, documentID string) (types.DocumentStats, error) {
	stats := types.DocumentStats{DocumentID: documentID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := x.vectors.CountChunks(gctx, documentID)
		stats.Chunks = n
		return err
	})
	g.Go(func() error {
		n, e, err := x.graph.CountGraph(gctx, documentID)
		stats.Nodes, stats.Edges = n, e
		return err
	})
	if err := g.Wait(); err != nil {
		return stats, types.NewStageError(documentID, types.StageStats, nil, err)
	}
	return stats, nil
}

// Remove 从两个索引里删除文档，尽量都删，错误合并返回
func (x *Indexer) Remove(ctx context.Context, documentID string) error {
	var errs []error
	if err := x.vectors.Delete(ctx, documentID); err != nil {
		errs = append(errs, types.NewStageError(documentID, types.StageDelete, nil, err))
	}
	if err := x.graph.Delete(ctx, documentID); err != nil {
		errs = append(errs, types.NewStageError(documentID, types.StageDelete, nil, err))
	}
	return errors.Join(errs...)
}
