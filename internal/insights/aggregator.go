// Package insights 汇总话题数据（总数、热门话题、分类分布、趋势、主题、严重度排行榜），
// 并生成一段摘要：优先由 LLM 生成，失败或未开启时使用固定模板。
package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fachebot/feedback-intel/internal/config"
	"github.com/fachebot/feedback-intel/internal/llm"
	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/fachebot/feedback-intel/internal/model"
	"github.com/fachebot/feedback-intel/internal/severity"
	"github.com/fachebot/feedback-intel/internal/theme"
	"golang.org/x/sync/errgroup"
)

// topicReader 读取话题快照（便于测试注入 mock）
type topicReader interface {
	CountByFilter(ctx context.Context, filter model.TopicFilter) (int, error)
	FindSortedByVotes(ctx context.Context, filter model.TopicFilter, limit int) ([]*model.Topic, error)
	FindByFilter(ctx context.Context, filter model.TopicFilter, limit int) ([]*model.Topic, error)
	AggregateByCategory(ctx context.Context, filter model.TopicFilter) ([]model.CategoryCount, error)
	AggregateByDateRange(ctx context.Context, filter model.TopicFilter, startTime, endTime time.Time) ([]model.DailyCount, error)
}

// themeClusterer 主题聚类（便于测试注入 mock）
type themeClusterer interface {
	Cluster(topics []*model.Topic, threshold float64) []theme.Theme
}

type Aggregator struct {
	store          topicReader
	clusterer      themeClusterer
	oracle         llm.Oracle
	categories     map[model.Category]struct{}
	threshold      float64
	config         config.Insights
	summaryTimeout time.Duration
	now            func() time.Time
}

type Option func(*Aggregator)

// WithClock 指定计算严重度和趋势时使用的时钟
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator 创建聚合器。oracle 为 nil 时摘要始终使用模板。
func NewAggregator(store *model.TopicModel, engine *theme.Engine, oracle llm.Oracle, categories []model.Category, cfg *config.Config, opts ...Option) *Aggregator {
	return newAggregator(store, engine, oracle, categories, cfg, opts...)
}

func newAggregator(store topicReader, clusterer themeClusterer, oracle llm.Oracle, categories []model.Category, cfg *config.Config, opts ...Option) *Aggregator {
	set := make(map[model.Category]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}

	a := &Aggregator{
		store:          store,
		clusterer:      clusterer,
		oracle:         oracle,
		categories:     set,
		threshold:      *cfg.Engine.Threshold,
		config:         cfg.Insights,
		summaryTimeout: time.Duration(cfg.LLM.SummaryTimeout) * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolveCategory 将请求的分类规范化为 All 或合法分类，未知分类按 All 处理
func (a *Aggregator) ResolveCategory(category string) (string, model.TopicFilter) {
	category = strings.TrimSpace(category)
	if category == "" || category == CategoryAll {
		return CategoryAll, model.TopicFilter{}
	}
	if _, ok := a.categories[model.Category(category)]; !ok {
		logger.Warnf("[Insights] 未知分类 %q，按 All 统计", category)
		return CategoryAll, model.TopicFilter{}
	}
	return category, model.TopicFilter{Category: model.Category(category)}
}

// Build 生成指定分类的洞察。存储错误直接返回；LLM 异常时回退到模板摘要。
func (a *Aggregator) Build(ctx context.Context, category string) (*Payload, error) {
	selected, filter := a.ResolveCategory(category)
	now := a.now().UTC()
	logger.Infof("[Insights] 开始生成洞察, category=%s", selected)

	trendEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	trendStart := trendEnd.AddDate(0, 0, -a.config.TrendDays)

	var (
		total        int
		topTopics    []*model.Topic
		sample       []*model.Topic
		distribution []model.CategoryCount
		daily        []model.DailyCount
	)

	// 各项读取互不依赖，并发执行
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = a.store.CountByFilter(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		topTopics, err = a.store.FindSortedByVotes(gctx, filter, a.config.TopN)
		return err
	})
	g.Go(func() (err error) {
		sample, err = a.store.FindByFilter(gctx, filter, a.config.SampleSize)
		return err
	})
	g.Go(func() (err error) {
		distribution, err = a.store.AggregateByCategory(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		daily, err = a.store.AggregateByDateRange(gctx, filter, trendStart, trendEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("读取话题数据失败: %w", err)
	}

	themes := a.clusterer.Cluster(sample, a.threshold)
	if len(themes) > a.config.ThemeLimit {
		themes = themes[:a.config.ThemeLimit]
	}

	if distribution == nil {
		distribution = []model.CategoryCount{}
	}

	data := Data{
		SelectedCategory:     selected,
		TotalSubmissions:     total,
		TopTopics:            toTopicItems(topTopics),
		CategoryDistribution: distribution,
		WeeklyTrends:         fillTrend(daily, trendStart, a.config.TrendDays),
		Themes:               themes,
		SeverityLeaderboard:  a.leaderboard(topTopics, now),
	}

	summary, source := a.summarize(ctx, &data)
	logger.Infof("[Insights] 洞察生成完成, category=%s, total=%d, themes=%d, source=%s",
		selected, total, len(themes), source)

	return &Payload{Data: data, Summary: summary, SummarySource: source}, nil
}

// leaderboard 按严重度降序、票数降序排列热门话题
func (a *Aggregator) leaderboard(topics []*model.Topic, now time.Time) []LeaderboardItem {
	items := make([]LeaderboardItem, 0, len(topics))
	for _, t := range topics {
		items = append(items, LeaderboardItem{
			ID:        t.ID,
			Title:     t.Title,
			Category:  t.Category,
			Votes:     t.Votes,
			CreatedAt: t.CreatedAt,
			Severity:  severity.Score(t.Votes, t.CreatedAt, now),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Severity != items[j].Severity {
			return items[i].Severity > items[j].Severity
		}
		return items[i].Votes > items[j].Votes
	})
	if len(items) > a.config.LeaderboardSize {
		items = items[:a.config.LeaderboardSize]
	}
	return items
}

func toTopicItems(topics []*model.Topic) []TopicItem {
	items := make([]TopicItem, 0, len(topics))
	for _, t := range topics {
		items = append(items, TopicItem{
			ID:        t.ID,
			Title:     t.Title,
			Category:  t.Category,
			Votes:     t.Votes,
			CreatedAt: t.CreatedAt,
		})
	}
	return items
}

// fillTrend 补齐没有提交的日期，返回从 start 起连续 days 天的计数
func fillTrend(daily []model.DailyCount, start time.Time, days int) []model.DailyCount {
	counts := make(map[string]int, len(daily))
	for _, d := range daily {
		counts[d.Date] = d.Count
	}

	trend := make([]model.DailyCount, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		trend = append(trend, model.DailyCount{Date: day, Count: counts[day]})
	}
	return trend
}
