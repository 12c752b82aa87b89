package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"contractx/types"
)

// Buffer 按文档缓存逐页抽取结果。每个文档一把锁，文档之间互不竞争。
// 所有页到齐后关闭 done，聚合方在 Wait 里拿到按页码排序的结果。
type Buffer struct {
	docs sync.Map // document_id -> *slot
	now  func() time.Time
}

type slot struct {
	mu       sync.Mutex
	expected int
	pages    map[int]types.PageExtraction
	err      error
	done     chan struct{}
	closed   bool
	cancel   context.CancelFunc
	openedAt time.Time
}

func NewBuffer() *Buffer {
	return &Buffer{now: time.Now}
}

// Open 为文档登记 expected 个页槽位，cancel 用于取消该文档所有在途抽取
func (b *Buffer) Open(documentID string, expected int, cancel context.CancelFunc) error {
	if expected <= 0 {
		return types.NewStageError(documentID, types.StageExtract, types.ErrValidation, fmt.Errorf("expected pages must be positive, got %d", expected))
	}
	s := &slot{
		expected: expected,
		pages:    make(map[int]types.PageExtraction, expected),
		done:     make(chan struct{}),
		cancel:   cancel,
		openedAt: b.now(),
	}
	if _, loaded := b.docs.LoadOrStore(documentID, s); loaded {
		return types.NewStageError(documentID, types.StageExtract, types.ErrConflict, fmt.Errorf("page buffer already open"))
	}
	return nil
}

// Put 写入一页。页码越界或重复写入返回 ErrValidation。
func (b *Buffer) Put(documentID string, page types.PageExtraction) error {
	s, err := b.slot(documentID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewStageError(documentID, types.StageExtract, types.ErrConflict, fmt.Errorf("page buffer already completed"))
	}
	if page.PageNumber < 1 || page.PageNumber > s.expected {
		return types.NewStageError(documentID, types.StageExtract, types.ErrValidation,
			fmt.Errorf("page %d out of range 1..%d", page.PageNumber, s.expected))
	}
	if _, dup := s.pages[page.PageNumber]; dup {
		return types.NewStageError(documentID, types.StageExtract, types.ErrValidation,
			fmt.Errorf("page %d delivered twice", page.PageNumber))
	}
	s.pages[page.PageNumber] = page
	if len(s.pages) == s.expected {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Fail 标记文档失败并唤醒等待方；只记录第一次失败
func (b *Buffer) Fail(documentID string, err error) {
	s, lookupErr := b.slot(documentID)
	if lookupErr != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.done)
}

// Wait 阻塞到所有页到齐、文档失败或 ctx 结束。返回后缓冲区条目被移除。
func (b *Buffer) Wait(ctx context.Context, documentID string) ([]types.PageExtraction, error) {
	s, err := b.slot(documentID)
	if err != nil {
		return nil, err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		// 失败方先 Fail 再 cancel，此时 done 已关闭，优先返回真实的失败原因
		select {
		case <-s.done:
		default:
			b.Discard(documentID)
			return nil, types.NewStageError(documentID, types.StageExtract, nil, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b.docs.Delete(documentID)
	if s.err != nil {
		return nil, s.err
	}
	pages := make([]types.PageExtraction, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

// Discard 取消文档的在途抽取并丢弃已缓存的页，不做部分聚合
func (b *Buffer) Discard(documentID string) bool {
	v, ok := b.docs.LoadAndDelete(documentID)
	if !ok {
		return false
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if !s.closed {
		s.err = types.NewStageError(documentID, types.StageExtract, nil, context.Canceled)
		s.closed = true
		close(s.done)
	}
	s.pages = nil
	return true
}

// Sweep 丢弃打开时间超过 olderThan 的缓冲，返回被丢弃的文档 ID
func (b *Buffer) Sweep(olderThan time.Duration) []string {
	cutoff := b.now().Add(-olderThan)
	var stale []string
	b.docs.Range(func(key, value any) bool {
		s := value.(*slot)
		s.mu.Lock()
		old := s.openedAt.Before(cutoff)
		s.mu.Unlock()
		if old {
			stale = append(stale, key.(string))
		}
		return true
	})
	sort.Strings(stale)
	var dropped []string
	for _, id := range stale {
		if b.Discard(id) {
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Pending 当前还在等待的文档数
func (b *Buffer) Pending() int {
	n := 0
	b.docs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (b *Buffer) slot(documentID string) (*slot, error) {
	v, ok := b.docs.Load(documentID)
	if !ok {
		return nil, types.NewStageError(documentID, types.StageExtract, types.ErrNotFound, fmt.Errorf("no page buffer open"))
	}
	return v.(*slot), nil
}
