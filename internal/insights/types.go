package insights

import (
	"time"

	"github.com/fachebot/feedback-intel/internal/model"
	"github.com/fachebot/feedback-intel/internal/theme"
)

const (
	// CategoryAll 不按分类过滤
	CategoryAll = "All"

	SourceLLM           = "llm"
	SourceDeterministic = "deterministic"
)

// TopicItem 票数靠前的话题
type TopicItem struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Category  model.Category `json:"category"`
	Votes     int            `json:"votes"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LeaderboardItem 严重度排行榜条目
type LeaderboardItem struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Category  model.Category `json:"category"`
	Votes     int            `json:"votes"`
	CreatedAt time.Time      `json:"createdAt"`
	Severity  int            `json:"severity"`
}

// Data 聚合出的统计数据，同时作为 LLM 摘要的输入
type Data struct {
	SelectedCategory     string                `json:"selectedCategory"`
	TotalSubmissions     int                   `json:"totalSubmissions"`
	TopTopics            []TopicItem           `json:"topTopics"`
	CategoryDistribution []model.CategoryCount `json:"categoryDistribution"`
	WeeklyTrends         []model.DailyCount    `json:"weeklyTrends"`
	Themes               []theme.Theme         `json:"themes"`
	SeverityLeaderboard  []LeaderboardItem     `json:"severityLeaderboard"`
}

// Payload 洞察结果
type Payload struct {
	Data
	Summary       string `json:"summary"`
	SummarySource string `json:"summarySource"`
}
