package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fachebot/feedback-intel/internal/config"
	"github.com/fachebot/feedback-intel/internal/insights"
	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/fachebot/feedback-intel/internal/model"
	"github.com/robfig/cron/v3"
)

// insightsBuilder 生成洞察（便于测试注入 mock）
type insightsBuilder interface {
	Build(ctx context.Context, category string) (*insights.Payload, error)
}

// digestStore 洞察摘要存储（便于测试注入 mock）
type digestStore interface {
	Create(ctx context.Context, data *model.DigestData) (*model.Digest, error)
	GetByDateRange(ctx context.Context, startTime, endTime time.Time) (*model.Digest, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	builder insightsBuilder
	digests digestStore
	config  *config.Digest
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(aggregator *insights.Aggregator, digestModel *model.DigestModel, cfg *config.Digest) *Scheduler {
	return newScheduler(aggregator, digestModel, cfg)
}

func newScheduler(builder insightsBuilder, digests digestStore, cfg *config.Digest) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(locUTC)),
		builder: builder,
		digests: digests,
		config:  cfg,
		now:     time.Now,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.mu.Unlock()

	// 注册每日洞察任务
	_, err := s.cron.AddFunc(s.config.Cron, s.runDailyDigest)
	if err != nil {
		return fmt.Errorf("注册每日洞察任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，每日洞察任务: %s", s.config.Cron)

	// 启动时补跑当日缺失的洞察
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recoverDailyDigest(ctx)
	}()

	return nil
}

// Stop 停止调度器。启动时的补跑受 LLM 超时约束，先等待其完成再取消正在执行的任务。
func (s *Scheduler) Stop() {
	s.wg.Wait()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

// todayRange 返回当日 [00:00, 次日 00:00) 区间（UTC）
func (s *Scheduler) todayRange() (time.Time, time.Time) {
	now := s.now().In(locUTC)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, locUTC)
	return todayStart, todayStart.AddDate(0, 0, 1)
}

// recoverDailyDigest 若当日没有洞察摘要，视为漏跑并执行
func (s *Scheduler) recoverDailyDigest(ctx context.Context) {
	startTime, endTime := s.todayRange()

	_, err := s.digests.GetByDateRange(ctx, startTime, endTime)
	if err == nil {
		logger.Infof("[Scheduler] 当日洞察已存在，跳过补跑")
		return
	}
	if !errors.Is(err, model.ErrDigestNotFound) {
		logger.Errorf("[Scheduler] 查询当日洞察失败: %v", err)
		return
	}

	logger.Infof("[Scheduler] 当日无洞察记录，补跑: %s", startTime.Format("2006-01-02"))
	if err := s.executeDigest(ctx); err != nil {
		logger.Errorf("[Scheduler] 补跑每日洞察失败: %v", err)
	}
}

// runDailyDigest 执行每日洞察任务（cron 触发）
func (s *Scheduler) runDailyDigest() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	logger.Infof("[Scheduler] 开始执行每日洞察任务")
	if err := s.executeDigest(ctx); err != nil {
		logger.Errorf("[Scheduler] 每日洞察执行失败: %v", err)
		return
	}
	logger.Infof("[Scheduler] 每日洞察任务完成")
}

// executeDigest 生成全量洞察、保存摘要并清理过期摘要
func (s *Scheduler) executeDigest(ctx context.Context) error {
	payload, err := s.builder.Build(ctx, insights.CategoryAll)
	if err != nil {
		return fmt.Errorf("生成洞察失败: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("任务已取消")
	default:
	}

	digest, err := s.digests.Create(ctx, &model.DigestData{
		Category:         payload.SelectedCategory,
		TotalSubmissions: payload.TotalSubmissions,
		Summary:          payload.Summary,
		SummarySource:    payload.SummarySource,
	})
	if err != nil {
		return err
	}
	logger.Infof("[Scheduler] 洞察摘要已保存: id=%s, total=%d, source=%s", digest.ID, digest.TotalSubmissions, digest.SummarySource)

	s.cleanupDigests(ctx)
	return nil
}

// cleanupDigests 清理超过保留天数的洞察摘要
func (s *Scheduler) cleanupDigests(ctx context.Context) {
	if s.config.RetentionDays <= 0 {
		return
	}

	todayStart, _ := s.todayRange()
	cutoffDate := todayStart.AddDate(0, 0, -s.config.RetentionDays)

	logger.Infof("[Scheduler] 开始清理 %s 之前的洞察摘要", cutoffDate.Format("2006-01-02"))
	deleted, err := s.digests.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		logger.Errorf("[Scheduler] 清理洞察摘要失败: %v", err)
	} else {
		logger.Infof("[Scheduler] 已清理 %d 条洞察摘要", deleted)
	}
}
