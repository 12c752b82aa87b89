package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractx/types"
)

type fakeIngester struct {
	seen []string
}

func (f *fakeIngester) IngestFile(_ context.Context, path string) (*types.Document, error) {
	f.seen = append(f.seen, filepath.Base(path))
	if strings.Contains(path, "broken") {
		return nil, errors.New("parse pdf failed")
	}
	return &types.Document{DocumentID: filepath.Base(path)}, nil
}

type fakeSweeper struct {
	ttl time.Duration
}

func (f *fakeSweeper) Sweep(olderThan time.Duration) []string {
	f.ttl = olderThan
	return []string{"stale"}
}

func TestProcessInbox(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "broken.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	ing := &fakeIngester{}
	ok, failed := ProcessInbox(context.Background(), dir, ing, logrus.NewEntry(logrus.New()))
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"a.PDF.processing", "b.pdf.processing", "broken.pdf.processing"}, ing.seen)

	for _, name := range []string{"a.PDF.done", "b.pdf.done", "broken.pdf.failed", "notes.txt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	// 第二轮没有待处理文件
	ing.seen = nil
	ok, failed = ProcessInbox(context.Background(), dir, ing, logrus.NewEntry(logrus.New()))
	assert.Zero(t, ok+failed)
	assert.Empty(t, ing.seen)
}

func TestSweepBuffers(t *testing.T) {
	s := &fakeSweeper{}
	dropped := SweepBuffers(s, 30*time.Minute, logrus.NewEntry(logrus.New()))
	assert.Equal(t, []string{"stale"}, dropped)
	assert.Equal(t, 30*time.Minute, s.ttl)
}

func TestStartCronJobRejectsBadSpec(t *testing.T) {
	_, err := StartCronJob(Config{SweepSpec: "not a spec"}, &fakeSweeper{}, &fakeIngester{})
	assert.Error(t, err)

	c, err := StartCronJob(Config{SweepSpec: "@every 1h", BufferTTL: time.Minute}, &fakeSweeper{}, &fakeIngester{})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}

type slowIngester struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *slowIngester) IngestFile(_ context.Context, path string) (*types.Document, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return &types.Document{DocumentID: filepath.Base(path)}, nil
}

func TestSlowInboxRunIsNotOverlapped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))

	ing := &slowIngester{delay: 2500 * time.Millisecond}
	c, err := StartCronJob(Config{SweepSpec: "@every 1h", InboxDir: dir, InboxSpec: "@every 1s"}, &fakeSweeper{}, ing)
	require.NoError(t, err)
	time.Sleep(3200 * time.Millisecond)
	<-c.Stop().Done()

	assert.Equal(t, int32(1), ing.calls.Load())
	_, err = os.Stat(filepath.Join(dir, "a.pdf.done"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "a.pdf.processing"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessingFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf.processing"), []byte("x"), 0o644))

	ing := &fakeIngester{}
	ok, failed := ProcessInbox(context.Background(), dir, ing, logrus.NewEntry(logrus.New()))
	assert.Zero(t, ok+failed)
	assert.Empty(t, ing.seen)
}
