// Package pipeline 并发受限的逐页抽取，以及按文档缓存页面结果的完成屏障
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"contractx/logic/retry"
	"contractx/types"
)

// Extractor 单页抽取的外部协作方。
// 可能返回 ErrRateLimited（可重试）或 ErrInvalidContent（不可重试）。
type Extractor interface {
	Extract(ctx context.Context, page types.PageInput) (*types.PageExtraction, error)
}

type Config struct {
	Concurrency int     // 同时在途的抽取调用上限
	RPS         float64 // 每秒请求数，<=0 表示不限速
	Burst       int
	Retry       retry.Policy
}

type Pool struct {
	extractor Extractor
	buffer    *Buffer
	sem       chan struct{}
	limiter   *rate.Limiter
	retry     retry.Policy
	log       *logrus.Entry
}

func NewPool(extractor Extractor, buffer *Buffer, cfg Config, log *logrus.Entry) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}
	if log == nil {
		log = logrus.WithField("component", "extract_pool")
	}
	return &Pool{
		extractor: extractor,
		buffer:    buffer,
		sem:       make(chan struct{}, cfg.Concurrency),
		limiter:   limiter,
		retry:     cfg.Retry,
		log:       log,
	}
}

// Run 抽取文档所有页面，返回按页码排序的结果。
// 任意一页最终失败都会取消其余在途调用，并丢弃该文档的缓冲。
// 并发上限由 Pool 内所有文档共享，对应上游 LLM 的整体限流。
func (p *Pool) Run(ctx context.Context, documentID string, inputs []types.PageInput) ([]types.PageExtraction, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.buffer.Open(documentID, len(inputs), cancel); err != nil {
		return nil, err
	}
	log := p.log.WithField("document_id", documentID)
	log.WithField("pages", len(inputs)).Info("开始逐页抽取")

	var wg sync.WaitGroup
	for i, in := range inputs {
		if in.Number == 0 {
			in.Number = i + 1
		}
		wg.Add(1)
		go func(in types.PageInput) {
			defer wg.Done()
			page, err := p.extractOne(ctx, documentID, in)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).WithField("page", in.Number).Error("页面抽取失败")
				}
				p.buffer.Fail(documentID, err)
				cancel()
				return
			}
			if err := p.buffer.Put(documentID, *page); err != nil {
				p.buffer.Fail(documentID, err)
				cancel()
			}
		}(in)
	}

	pages, err := p.buffer.Wait(ctx, documentID)
	if err != nil {
		cancel()
		p.buffer.Discard(documentID)
	}
	wg.Wait()
	if err != nil {
		return nil, err
	}
	log.Info("逐页抽取完成")
	return pages, nil
}

// Cancel 外部取消文档的抽取，已缓存的页面直接丢弃
func (p *Pool) Cancel(documentID string) bool {
	return p.buffer.Discard(documentID)
}

func (p *Pool) extractOne(ctx context.Context, documentID string, in types.PageInput) (*types.PageExtraction, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, types.NewStageError(documentID, types.StageExtract, nil, ctx.Err())
	}
	defer func() { <-p.sem }()

	page, err := retry.Do(ctx, p.retry, documentID, types.StageExtract, func(ctx context.Context) (*types.PageExtraction, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.extractor.Extract(ctx, in)
	})
	if err != nil {
		if se, ok := types.AsStageError(err); ok {
			se.Err = fmt.Errorf("page %d: %w", in.Number, se.Err)
		}
		return nil, err
	}
	if page == nil {
		return nil, types.NewStageError(documentID, types.StageExtract, types.ErrInvalidContent, fmt.Errorf("page %d: empty extraction", in.Number))
	}
	page.PageNumber = in.Number
	return page, nil
}
