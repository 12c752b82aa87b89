// Package retry 外部调用（抽取、摘要、向量/图查询）的指数退避重试
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"contractx/types"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// IsRetryable 限流、超时、网络抖动可以重试；InvalidContent 之类的数据问题不重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrInvalidContent) || errors.Is(err, types.ErrValidation) ||
		errors.Is(err, types.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, types.ErrRateLimited) || errors.Is(err, types.ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Classify 给外部调用的原始错误打上重试分类。已分类的错误和取消原样返回；
// 提到 429 / rate limit 的归为限流，其余视为临时故障
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, kind := range []error{
		types.ErrRateLimited, types.ErrTransient, types.ErrInvalidContent,
		types.ErrValidation, types.ErrNotFound, types.ErrConflict,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return fmt.Errorf("%w: %w", types.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %w", types.ErrTransient, err)
}

// Backoff 第 attempt 次（从 0 开始）失败后的等待时间，带抖动
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay << uint(attempt)
	if base <= 0 || (p.MaxDelay > 0 && base > p.MaxDelay) {
		base = p.MaxDelay
	}
	if base <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(base)/2 + 1))
	return base + jitter
}

// Do 执行 fn，可重试的错误按退避重试；耗尽后返回 CollaboratorUnavailable，带尝试次数
func Do[T any](ctx context.Context, p Policy, documentID, stage string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	ctx = WithScope(ctx, documentID, stage)

	var lastErr error
	for attempt := range attempts {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, types.NewStageError(documentID, stage, nil, ctx.Err())
		}
		if !IsRetryable(err) {
			return zero, &types.StageError{DocumentID: documentID, Stage: stage, Attempts: attempt + 1, Err: err}
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return zero, types.NewStageError(documentID, stage, nil, ctx.Err())
		}
	}
	return zero, &types.StageError{
		DocumentID: documentID,
		Stage:      stage,
		Attempts:   attempts,
		Kind:       types.ErrCollaboratorUnavailable,
		Err:        lastErr,
	}
}
