// Package theme 将话题按分类分组，并在分类内按词汇重叠度贪心聚类为主题。
// 不依赖 LLM，相同输入（话题、顺序、阈值、时间）必然得到相同输出。
package theme

import (
	"sort"
	"time"

	"github.com/fachebot/feedback-intel/internal/lexical"
	"github.com/fachebot/feedback-intel/internal/model"
	"github.com/fachebot/feedback-intel/internal/severity"
)

const (
	// DefaultThreshold 默认相似度阈值
	DefaultThreshold = 0.25

	// MaxThemeTopics 每个主题最多展示的话题数
	MaxThemeTopics = 5

	untitled = "Untitled"
)

// ThemeTopic 主题中展示的话题摘要
type ThemeTopic struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Votes     int       `json:"votes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Theme 一次聚类计算出的主题，不持久化
type Theme struct {
	Category   model.Category `json:"category"`
	Title      string         `json:"title"`
	Count      int            `json:"count"`
	VotesTotal int            `json:"votesTotal"`
	Severity   int            `json:"severity"`
	Topics     []ThemeTopic   `json:"topics"`
}

// cluster 聚类过程中的可变状态
type cluster struct {
	title       string
	tokens      lexical.TokenSet
	members     []*model.Topic
	votesTotal  int
	severityMax int
}

// Engine 主题聚类引擎
type Engine struct {
	tokenizer *lexical.Tokenizer
	now       func() time.Time
}

type Option func(*Engine)

// WithClock 指定计算严重度时使用的时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(tokenizer *lexical.Tokenizer, opts ...Option) *Engine {
	e := &Engine{
		tokenizer: tokenizer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cluster 将话题聚类为主题，结果按 votesTotal 降序。
//
// 分类内按输入顺序逐个处理：与每个已有簇的词集合并集计算 Jaccard，
// 取严格最高分的簇（同分保留最早创建的簇），最高分 >= threshold 则并入，否则新建簇。
// 分词结果为空的话题永远无法并入任何簇。
func (e *Engine) Cluster(topics []*model.Topic, threshold float64) []Theme {
	now := e.now()

	var order []model.Category
	byCategory := make(map[model.Category][]*model.Topic)
	for _, t := range topics {
		if t == nil {
			continue
		}
		category := t.Category
		if category == "" {
			category = model.CategoryOther
		}
		if _, ok := byCategory[category]; !ok {
			order = append(order, category)
		}
		byCategory[category] = append(byCategory[category], t)
	}

	result := make([]Theme, 0)
	for _, category := range order {
		clusters := e.clusterCategory(byCategory[category], threshold, now)

		themes := make([]Theme, 0, len(clusters))
		for _, c := range clusters {
			themes = append(themes, c.toTheme(category))
		}
		sortByVotesTotal(themes)
		result = append(result, themes...)
	}

	sortByVotesTotal(result)
	return result
}

func (e *Engine) clusterCategory(topics []*model.Topic, threshold float64, now time.Time) []*cluster {
	var clusters []*cluster
	for _, t := range topics {
		tokens := e.tokenizer.Tokenize(t.Title + " " + t.Description)
		set := lexical.NewTokenSet(tokens)
		sev := severity.Score(t.Votes, t.CreatedAt, now)

		bestIdx := -1
		bestScore := 0.0
		for i, c := range clusters {
			score := lexical.Jaccard(set, c.tokens)
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx != -1 && bestScore >= threshold {
			c := clusters[bestIdx]
			c.members = append(c.members, t)
			c.tokens.Add(tokens)
			c.votesTotal += t.Votes
			c.severityMax = max(c.severityMax, sev)
			continue
		}

		title := t.Title
		if title == "" {
			title = untitled
		}
		clusters = append(clusters, &cluster{
			title:       title,
			tokens:      set,
			members:     []*model.Topic{t},
			votesTotal:  t.Votes,
			severityMax: sev,
		})
	}
	return clusters
}

func (c *cluster) toTheme(category model.Category) Theme {
	members := make([]*model.Topic, len(c.members))
	copy(members, c.members)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Votes > members[j].Votes
	})
	if len(members) > MaxThemeTopics {
		members = members[:MaxThemeTopics]
	}

	topics := make([]ThemeTopic, len(members))
	for i, m := range members {
		topics[i] = ThemeTopic{
			ID:        m.ID,
			Title:     m.Title,
			Votes:     m.Votes,
			CreatedAt: m.CreatedAt,
		}
	}

	return Theme{
		Category:   category,
		Title:      c.title,
		Count:      len(c.members),
		VotesTotal: c.votesTotal,
		Severity:   c.severityMax,
		Topics:     topics,
	}
}

func sortByVotesTotal(themes []Theme) {
	sort.SliceStable(themes, func(i, j int) bool {
		return themes[i].VotesTotal > themes[j].VotesTotal
	})
}
