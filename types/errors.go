package types

import (
	"errors"
	"fmt"
	"strings"
)

// 错误种类，统一用 errors.Is 判断
var (
	ErrValidation              = errors.New("validation error")
	ErrIncompleteDocument      = errors.New("incomplete document")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrRetrievalUnavailable    = errors.New("retrieval unavailable")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrRateLimited             = errors.New("rate limited")
	ErrInvalidContent          = errors.New("invalid content")
	ErrTransient               = errors.New("transient failure")
)

// 出错阶段
const (
	StageExtract     = "extract"
	StageMerge       = "merge_tables"
	StageReconcile   = "reconcile_entities"
	StageSummarize   = "summarize"
	StageFinalize    = "finalize"
	StagePersist     = "persist"
	StageIndexVector = "index_vector"
	StageIndexGraph  = "index_graph"
	StageEmbed       = "embed_question"
	StageVectorQuery = "vector_query"
	StageGraphQuery  = "graph_query"
	StageRetrieval   = "answer_context"
	StageAnswer      = "answer"
	StageDelete      = "delete"
	StageStats       = "index_stats"
)

// StageError 对外暴露的错误都带文档 ID 和阶段，重试耗尽时带尝试次数
type StageError struct {
	DocumentID string
	Stage      string
	Attempts   int
	Kind       error
	Err        error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "document %s: stage %s", e.DocumentID, e.Stage)
	if e.Kind != nil {
		fmt.Fprintf(&b, ": %v", e.Kind)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewStageError 包装 err；err 已经是 StageError 时只补全缺失的文档 ID
func NewStageError(documentID, stage string, kind, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		if se.DocumentID == "" {
			se.DocumentID = documentID
		}
		return se
	}
	return &StageError{DocumentID: documentID, Stage: stage, Kind: kind, Err: err}
}

// AsStageError 取出错误链上的 StageError
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
