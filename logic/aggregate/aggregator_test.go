package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractx/logic/retry"
	"contractx/types"
)

type fakeSummarizer struct {
	mu       sync.Mutex
	calls    int
	failN    int
	err      error
	out      string
	received []string
	entities types.CanonicalEntities
}

func (f *fakeSummarizer) Summarize(_ context.Context, pageSummaries []string, entities types.CanonicalEntities) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.received = pageSummaries
	f.entities = entities
	if f.calls <= f.failN {
		return "", f.err
	}
	return f.out, nil
}

var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newAgg(s Summarizer, maxChars int) *Aggregator {
	return NewAggregator(s, fastRetry, maxChars, WithClock(func() time.Time { return fixed }))
}

func sample() []types.PageExtraction {
	return []types.PageExtraction{
		{
			PageNumber: 2,
			Summary:    "Pricing continues.",
			Entities:   types.EntityBag{BuyerName: "Acme Corp"},
			Tables: []types.TableCandidate{{
				Title: "Pricing Schedule", Headers: []string{"Item", "Price"},
				Rows: [][]string{{"b", "2"}}, ContinuedFromPreviousPage: true,
			}},
		},
		{
			PageNumber: 1,
			Summary:    "Parties and pricing.",
			Entities:   types.EntityBag{BuyerName: "Acme"},
			Tables: []types.TableCandidate{{
				Title: "Pricing Schedule", Headers: []string{"Item", "Price"},
				Rows: [][]string{{"a", "1"}}, ContinuesToNextPage: true,
			}},
		},
	}
}

func TestFinalizeBuildsDocument(t *testing.T) {
	s := &fakeSummarizer{out: "  Acme buys widgets.  "}
	doc, err := newAgg(s, 100).Finalize(context.Background(), "doc-1", sample())
	require.NoError(t, err)

	assert.Equal(t, "doc-1", doc.DocumentID)
	assert.Equal(t, fixed, doc.CreatedAt)
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, 1, doc.Pages[0].PageNumber)
	require.Len(t, doc.MergedTables, 1)
	assert.Equal(t, []int{1, 2}, doc.MergedTables[0].SourcePages)
	assert.Equal(t, "Acme", doc.CanonicalEntities.BuyerName)
	assert.Equal(t, "Acme buys widgets.", doc.OverallSummary)
	assert.Equal(t, []string{"Parties and pricing.", "Pricing continues."}, s.received)
	assert.Equal(t, "Acme", s.entities.BuyerName)
}

func TestFinalizeRejectsGap(t *testing.T) {
	pages := []types.PageExtraction{{PageNumber: 1}, {PageNumber: 2}, {PageNumber: 4}}
	_, err := newAgg(&fakeSummarizer{}, 0).Finalize(context.Background(), "doc-gap", pages)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIncompleteDocument)

	se, ok := types.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, "doc-gap", se.DocumentID)
	assert.Equal(t, types.StageFinalize, se.Stage)
}

func TestFinalizeRejectsMissingFirstPage(t *testing.T) {
	_, err := newAgg(nil, 0).Finalize(context.Background(), "d", []types.PageExtraction{{PageNumber: 2}})
	assert.ErrorIs(t, err, types.ErrIncompleteDocument)
}

func TestFinalizeRejectsDuplicatePage(t *testing.T) {
	_, err := newAgg(nil, 0).Finalize(context.Background(), "d", []types.PageExtraction{{PageNumber: 1}, {PageNumber: 1}})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestFinalizeRejectsEmptyInput(t *testing.T) {
	_, err := newAgg(nil, 0).Finalize(context.Background(), "d", nil)
	assert.ErrorIs(t, err, types.ErrIncompleteDocument)

	_, err = newAgg(nil, 0).Finalize(context.Background(), " ", []types.PageExtraction{{PageNumber: 1}})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSummaryRetriedThenSucceeds(t *testing.T) {
	s := &fakeSummarizer{failN: 2, err: types.ErrRateLimited, out: "ok"}
	doc, err := newAgg(s, 0).Finalize(context.Background(), "doc-1", sample())
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.OverallSummary)
	assert.Equal(t, 3, s.calls)
}

func TestSummaryExhaustionKeepsDocument(t *testing.T) {
	s := &fakeSummarizer{failN: 10, err: fmt.Errorf("timeout: %w", types.ErrTransient)}
	doc, err := newAgg(s, 0).Finalize(context.Background(), "doc-1", sample())
	require.NoError(t, err)
	assert.Equal(t, "", doc.OverallSummary)
	assert.Equal(t, 3, s.calls)
	assert.Len(t, doc.MergedTables, 1)
}

func TestSummaryNonRetryableFailureKeepsDocument(t *testing.T) {
	s := &fakeSummarizer{failN: 10, err: types.ErrInvalidContent}
	doc, err := newAgg(s, 0).Finalize(context.Background(), "doc-1", sample())
	require.NoError(t, err)
	assert.Equal(t, "", doc.OverallSummary)
	assert.Equal(t, 1, s.calls)
}

func TestSummarySkippedWithoutPageSummaries(t *testing.T) {
	s := &fakeSummarizer{out: "never"}
	pages := []types.PageExtraction{{PageNumber: 1}, {PageNumber: 2, Summary: "   "}}
	doc, err := newAgg(s, 0).Finalize(context.Background(), "doc-1", pages)
	require.NoError(t, err)
	assert.Equal(t, "", doc.OverallSummary)
	assert.Equal(t, 0, s.calls)
}

func TestSummaryIsBounded(t *testing.T) {
	s := &fakeSummarizer{out: strings.Repeat("合同", 50)}
	doc, err := newAgg(s, 10).Finalize(context.Background(), "doc-1", sample())
	require.NoError(t, err)
	assert.Len(t, []rune(doc.OverallSummary), 10)
}

func TestMergeValidationErrorSurfacesWithStage(t *testing.T) {
	pages := []types.PageExtraction{
		{PageNumber: 1, Tables: []types.TableCandidate{{Headers: []string{"A"}, Rows: [][]string{{"1", "2"}}}}},
	}
	_, err := newAgg(nil, 0).Finalize(context.Background(), "doc-bad", pages)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	se, ok := types.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, types.StageMerge, se.Stage)
	assert.Equal(t, "doc-bad", se.DocumentID)
}

func TestFinalizeCancelledDuringSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSummarizer{failN: 10, err: types.ErrTransient}
	_, err := newAgg(s, 0).Finalize(ctx, "doc-1", sample())
	assert.ErrorIs(t, err, context.Canceled)
}
