package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"contractx/logic/aggregate"
	"contractx/logic/ingestion/pipeline"
	"contractx/logic/merge"
	"contractx/logic/reconcile"
	"contractx/storage"
	"contractx/types"
)

// PageLoader 把上传的文件或磁盘上的文件切成逐页输入
type PageLoader interface {
	Parse(ctx context.Context, r io.Reader, name string) ([]types.PageInput, error)
	Load(ctx context.Context, path string) ([]types.PageInput, error)
}

type IngestionService struct {
	docs       storage.DocumentStore
	indexer    *Indexer
	pool       *pipeline.Pool
	aggregator *aggregate.Aggregator
	loader     PageLoader
	locks      *KeyedMutex
	usage      UsageReporter
	log        *logrus.Entry
}

// 构造函数：依赖注入
func NewIngestionService(docs storage.DocumentStore, indexer *Indexer, pool *pipeline.Pool, aggregator *aggregate.Aggregator, loader PageLoader, log *logrus.Entry) *IngestionService {
	if log == nil {
		log = logrus.WithField("component", "ingestion")
	}
	return &IngestionService{
		docs:       docs,
		indexer:    indexer,
		pool:       pool,
		aggregator: aggregator,
		loader:     loader,
		locks:      NewKeyedMutex(),
		log:        log,
	}
}

// NewDocumentID 文档 ID 只在这里分配，不复用
func NewDocumentID() string {
	return uuid.New().String()
}

// UploadAndProcess 上传的 PDF 走完整条链路：解析、逐页抽取、汇总、入库、索引。
// documentID 为空时自动分配。
func (s *IngestionService) UploadAndProcess(ctx context.Context, fileHeader *multipart.FileHeader, documentID string) (*types.Document, error) {
	if s.loader == nil {
		return nil, types.NewStageError(documentID, types.StageExtract, types.ErrValidation, errors.New("no page loader configured"))
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, types.NewStageError(documentID, types.StageExtract, types.ErrValidation, err)
	}
	defer src.Close()

	if documentID == "" {
		documentID = NewDocumentID()
	}
	inputs, err := s.loader.Parse(ctx, src, fileHeader.Filename)
	if err != nil {
		return nil, types.NewStageError(documentID, types.StageExtract, nil, err)
	}
	s.log.WithFields(logrus.Fields{"document_id": documentID, "file": fileHeader.Filename, "pages": len(inputs)}).Info("PDF 解析完成")
	return s.IngestPages(ctx, documentID, inputs)
}

// IngestFile 供 inbox 任务使用，从磁盘加载 PDF
func (s *IngestionService) IngestFile(ctx context.Context, path string) (*types.Document, error) {
	documentID := NewDocumentID()
	if s.loader == nil {
		return nil, types.NewStageError(documentID, types.StageExtract, types.ErrValidation, errors.New("no page loader configured"))
	}
	inputs, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, types.NewStageError(documentID, types.StageExtract, nil, err)
	}
	return s.IngestPages(ctx, documentID, inputs)
}

// IngestPages 逐页抽取后直接 finalize。抽取失败或被取消时不会产生任何部分结果。
func (s *IngestionService) IngestPages(ctx context.Context, documentID string, inputs []types.PageInput) (*types.Document, error) {
	if len(inputs) == 0 {
		return nil, types.NewStageError(documentID, types.StageExtract, types.ErrValidation, errors.New("document has no pages"))
	}
	if _, err := s.docs.Load(ctx, documentID); err == nil {
		return nil, types.NewStageError(documentID, types.StageFinalize, types.ErrConflict, errors.New("document already exists"))
	}
	start := time.Now()
	pages, err := s.pool.Run(ctx, documentID, inputs)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"document_id": documentID, "elapsed": time.Since(start)}).Info("逐页抽取耗时")
	return s.FinalizeDocument(ctx, documentID, pages)
}

// CancelIngestion 取消文档在途的逐页抽取，返回是否确实有在途任务
func (s *IngestionService) CancelIngestion(documentID string) bool {
	ok := s.pool.Cancel(documentID)
	if ok {
		s.log.WithField("document_id", documentID).Warn("已取消逐页抽取，缓冲页面已丢弃")
	}
	return ok
}

// FinalizeDocument 汇总、入库、索引。索引失败时从所有存储回滚，不留半成品。
func (s *IngestionService) FinalizeDocument(ctx context.Context, documentID string, pages []types.PageExtraction) (*types.Document, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, types.NewStageError(documentID, types.StageFinalize, types.ErrValidation, errors.New("document_id is required"))
	}
	unlock := s.locks.Lock(documentID)
	defer unlock()

	log := s.log.WithField("document_id", documentID)
	start := time.Now()

	_, err := s.docs.Load(ctx, documentID)
	switch {
	case err == nil:
		return nil, types.NewStageError(documentID, types.StageFinalize, types.ErrConflict, errors.New("document already finalized"))
	case !errors.Is(err, types.ErrNotFound):
		return nil, types.NewStageError(documentID, types.StagePersist, nil, err)
	}

	doc, err := s.aggregator.Finalize(ctx, documentID, pages)
	if err != nil {
		return nil, err
	}

	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, types.NewStageError(documentID, types.StagePersist, nil, err)
	}
	log.Info("文档已入库")

	if err := s.indexer.Index(ctx, doc); err != nil {
		// 回滚不受请求取消影响
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		rbErr := errors.Join(s.indexer.Remove(rbCtx, documentID), s.docs.Delete(rbCtx, documentID))
		if rbErr != nil {
			log.WithError(rbErr).Error("索引失败后回滚不完整")
		} else {
			log.WithError(err).Warn("索引失败，已回滚关系库和索引")
		}
		return nil, err
	}

	log.WithField("elapsed", time.Since(start)).Info("文档 finalize 完成")
	return doc, nil
}

// DeleteDocument 删除关系库记录以及向量、图索引。文档不存在时仍清理索引残留，然后返回 NotFound。
func (s *IngestionService) DeleteDocument(ctx context.Context, documentID string) error {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	_, loadErr := s.docs.Load(ctx, documentID)
	if loadErr != nil && !errors.Is(loadErr, types.ErrNotFound) {
		return types.NewStageError(documentID, types.StageDelete, nil, loadErr)
	}
	if err := s.indexer.Remove(ctx, documentID); err != nil {
		return err
	}
	if loadErr != nil {
		return types.NewStageError(documentID, types.StageDelete, nil, loadErr)
	}
	if err := s.docs.Delete(ctx, documentID); err != nil {
		return types.NewStageError(documentID, types.StageDelete, nil, err)
	}
	if s.usage != nil {
		s.usage.Forget(documentID)
	}
	s.log.WithField("document_id", documentID).Info("文档已删除")
	return nil
}

func (s *IngestionService) GetDocument(ctx context.Context, documentID string) (*types.Document, error) {
	doc, err := s.docs.Load(ctx, documentID)
	if err != nil {
		return nil, types.NewStageError(documentID, types.StagePersist, nil, err)
	}
	return doc, nil
}

func (s *IngestionService) ListDocuments(ctx context.Context, filter storage.DocumentFilter) ([]storage.DocumentSummary, error) {
	if filter.Limit <= 0 {
		filter.Limit = storage.DefaultListLimit
	}
	return s.docs.List(ctx, filter)
}

// MergeTables 单独暴露表格合并，不落库
func (s *IngestionService) MergeTables(pages []types.PageExtraction) ([]types.MergedTable, error) {
	tables, err := merge.Tables(pages)
	if err != nil {
		return nil, types.NewStageError("", types.StageMerge, nil, fmt.Errorf("merge tables: %w", err))
	}
	return tables, nil
}

// ReconcileEntities 单独暴露实体归并，不落库
func (s *IngestionService) ReconcileEntities(pages []types.PageExtraction) types.CanonicalEntities {
	return reconcile.Entities(pages)
}
