package job

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"contractx/types"
)

// Sweeper 清理超时未完成的页缓冲
type Sweeper interface {
	Sweep(olderThan time.Duration) []string
}

type FileIngester interface {
	IngestFile(ctx context.Context, path string) (*types.Document, error)
}

type Config struct {
	SweepSpec string
	BufferTTL time.Duration
	InboxDir  string
	InboxSpec string
}

// StartCronJob 注册并启动定时任务，调用方负责 Stop
func StartCronJob(cfg Config, sweeper Sweeper, ingester FileIngester) (*cron.Cron, error) {
	c := cron.New()
	log := logrus.WithField("component", "cron")

	if _, err := c.AddFunc(cfg.SweepSpec, func() {
		SweepBuffers(sweeper, cfg.BufferTTL, log)
	}); err != nil {
		return nil, err
	}

	if cfg.InboxDir != "" {
		// 上一轮还没跑完就跳过本轮，避免同一文件被重复入库
		inbox := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))).Then(cron.FuncJob(func() {
			ProcessInbox(context.Background(), cfg.InboxDir, ingester, log)
		}))
		if _, err := c.AddJob(cfg.InboxSpec, inbox); err != nil {
			return nil, err
		}
		log.WithField("dir", cfg.InboxDir).Info("inbox 任务已启用")
	}

	c.Start()
	return c, nil
}

func SweepBuffers(sweeper Sweeper, ttl time.Duration, log *logrus.Entry) []string {
	dropped := sweeper.Sweep(ttl)
	if len(dropped) > 0 {
		log.WithField("documents", dropped).Warn("[Cron] 丢弃超时的页缓冲")
	}
	return dropped
}

// processingSuffix 入库期间的文件名后缀，扫描时不再匹配 .pdf
const processingSuffix = ".processing"

// ProcessInbox 逐个入库目录下的 PDF。入库前先改名为 .processing，
// 成功改名为 .done，失败改名为 .failed，避免重复处理
func ProcessInbox(ctx context.Context, dir string, ingester FileIngester, log *logrus.Entry) (ok, failed int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.WithError(err).Error("[Cron] 读取 inbox 失败")
		return 0, 0
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	for _, path := range files {
		working := path + processingSuffix
		if err := os.Rename(path, working); err != nil {
			// 多半是别的进程已经取走了
			log.WithError(err).WithField("file", path).Warn("[Cron] inbox 文件占用失败，跳过")
			continue
		}
		doc, err := ingester.IngestFile(ctx, working)
		suffix := ".done"
		if err != nil {
			suffix = ".failed"
			failed++
			log.WithError(err).WithField("file", path).Error("[Cron] inbox 文件入库失败")
		} else {
			ok++
			log.WithFields(logrus.Fields{"file": path, "document_id": doc.DocumentID}).Info("[Cron] inbox 文件入库完成")
		}
		if err := os.Rename(working, path+suffix); err != nil {
			log.WithError(err).WithField("file", path).Error("[Cron] inbox 文件改名失败")
		}
	}
	return ok, failed
}
