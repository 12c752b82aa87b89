// Package aggregate 把完整的一组页面结果汇总成只读的 Document
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"contractx/logic/merge"
	"contractx/logic/reconcile"
	"contractx/logic/retry"
	"contractx/types"
)

// Summarizer 生成全文摘要的外部协作方
type Summarizer interface {
	Summarize(ctx context.Context, pageSummaries []string, entities types.CanonicalEntities) (string, error)
}

type Aggregator struct {
	summarizer Summarizer
	retry      retry.Policy
	maxChars   int
	now        func() time.Time
	log        *logrus.Entry
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithLogger(l *logrus.Entry) Option {
	return func(a *Aggregator) { a.log = l }
}

func NewAggregator(summarizer Summarizer, policy retry.Policy, maxSummaryChars int, opts ...Option) *Aggregator {
	a := &Aggregator{
		summarizer: summarizer,
		retry:      policy,
		maxChars:   maxSummaryChars,
		now:        time.Now,
		log:        logrus.WithField("component", "aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Finalize 页码必须从 1 连续到 N，否则返回 IncompleteDocument。
// 摘要失败不影响文档生成，overall_summary 置空。
func (a *Aggregator) Finalize(ctx context.Context, documentID string, pages []types.PageExtraction) (*types.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, types.NewStageError(documentID, types.StageFinalize, types.ErrValidation, fmt.Errorf("empty document id"))
	}
	ordered, err := CheckContiguous(pages)
	if err != nil {
		return nil, types.NewStageError(documentID, types.StageFinalize, nil, err)
	}
	log := a.log.WithFields(logrus.Fields{"document_id": documentID, "pages": len(ordered)})

	// 合并表格和实体互不依赖，并发执行
	var (
		tables   []types.MergedTable
		entities types.CanonicalEntities
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tables, err = merge.Tables(ordered)
		if err != nil {
			return types.NewStageError(documentID, types.StageMerge, nil, err)
		}
		return nil
	})
	g.Go(func() error {
		entities = reconcile.Entities(ordered)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary, err := a.summarize(ctx, documentID, ordered, entities)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewStageError(documentID, types.StageSummarize, nil, ctx.Err())
		}
		log.WithError(err).Warn("摘要生成失败，overall_summary 置空")
		summary = ""
	}

	log.WithFields(logrus.Fields{"tables": len(tables)}).Info("文档汇总完成")
	return &types.Document{
		DocumentID:        documentID,
		Pages:             ordered,
		MergedTables:      tables,
		CanonicalEntities: entities,
		OverallSummary:    summary,
		CreatedAt:         a.now().UTC(),
	}, nil
}

func (a *Aggregator) summarize(ctx context.Context, documentID string, pages []types.PageExtraction, entities types.CanonicalEntities) (string, error) {
	var summaries []string
	for _, p := range pages {
		if s := strings.TrimSpace(p.Summary); s != "" {
			summaries = append(summaries, s)
		}
	}
	if len(summaries) == 0 || a.summarizer == nil {
		return "", nil
	}
	out, err := retry.Do(ctx, a.retry, documentID, types.StageSummarize, func(ctx context.Context) (string, error) {
		return a.summarizer.Summarize(ctx, summaries, entities)
	})
	if err != nil {
		return "", err
	}
	return truncate(strings.TrimSpace(out), a.maxChars), nil
}

// CheckContiguous 返回按页码排序的副本；页码重复是 ErrValidation，有缺页是 ErrIncompleteDocument
func CheckContiguous(pages []types.PageExtraction) ([]types.PageExtraction, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", types.ErrIncompleteDocument)
	}
	ordered := make([]types.PageExtraction, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})
	for i, p := range ordered {
		want := i + 1
		switch {
		case p.PageNumber == want:
		case i > 0 && p.PageNumber == ordered[i-1].PageNumber:
			return nil, fmt.Errorf("%w: duplicate page %d", types.ErrValidation, p.PageNumber)
		default:
			return nil, fmt.Errorf("%w: expected page %d, got %d", types.ErrIncompleteDocument, want, p.PageNumber)
		}
	}
	return ordered, nil
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}
