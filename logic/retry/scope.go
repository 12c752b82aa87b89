package retry

import "context"

// Scope 当前外部调用所属的文档和阶段，Do 会写进 ctx
type Scope struct {
	DocumentID string
	Stage      string
}

type scopeKey struct{}

func WithScope(ctx context.Context, documentID, stage string) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{DocumentID: documentID, Stage: stage})
}

func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
