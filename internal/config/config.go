package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultThreshold = 0.25

	// categoryOther 分类兜底值，自定义分类列表必须包含它
	categoryOther = "Other"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type LLM struct {
	Enable          bool   `yaml:"Enable"`          // 关闭时所有调用直接走本地兜底
	BaseURL         string `yaml:"BaseURL"`         // 兼容 OpenAI API 的端点，如 http://localhost:11434/v1
	APIKey          string `yaml:"APIKey"`          // Ollama 可填任意非空值
	Model           string `yaml:"Model"`           // 如 gemma:2b
	ClassifyTimeout int    `yaml:"ClassifyTimeout"` // 分类调用超时（秒），默认 10
	MatchTimeout    int    `yaml:"MatchTimeout"`    // 重复匹配调用超时（秒），默认 10
	SummaryTimeout  int    `yaml:"SummaryTimeout"`  // 洞察摘要调用超时（秒），默认 3
}

type Database struct {
	Path string `yaml:"Path"` // sqlite 文件路径，默认 data/feedback.db
}

type KeywordRule struct {
	Category string   `yaml:"Category"`
	Keywords []string `yaml:"Keywords"`
}

type Engine struct {
	Threshold    *float64      `yaml:"Threshold"`    // 主题聚类阈值，未配置时为 0.25，可显式配置为 0
	Stopwords    []string      `yaml:"Stopwords"`    // 为空时使用内置停用词
	Categories   []string      `yaml:"Categories"`   // 为空时使用内置分类
	KeywordRules []KeywordRule `yaml:"KeywordRules"` // 为空时使用内置关键词规则
}

type Insights struct {
	EnableLLMSummary bool `yaml:"EnableLLMSummary"`
	TopN             int  `yaml:"TopN"`            // 按票数取前 N 个话题，默认 10
	SampleSize       int  `yaml:"SampleSize"`      // 参与聚类的话题上限，默认 500
	ThemeLimit       int  `yaml:"ThemeLimit"`      // 输出主题上限，默认 10
	LeaderboardSize  int  `yaml:"LeaderboardSize"` // 严重度排行榜长度，默认 10
	PayloadBudget    int  `yaml:"PayloadBudget"`   // 发送给 LLM 的数据字符上限，默认 8000
	TrendDays        int  `yaml:"TrendDays"`       // 趋势统计天数，默认 7
}

type Digest struct {
	Enable        bool   `yaml:"Enable"`
	Cron          string `yaml:"Cron"`          // cron 表达式，如 "0 23 * * *"
	RetentionDays int    `yaml:"RetentionDays"` // 摘要保留天数，0 表示不清理
}

type Config struct {
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Database   Database   `yaml:"Database"`
	Engine     Engine     `yaml:"Engine"`
	Insights   Insights   `yaml:"Insights"`
	Digest     Digest     `yaml:"Digest"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate 填充默认值并验证配置的有效性
func (c *Config) Validate() error {
	// 验证 LLM
	if c.LLM.Enable {
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("LLM.BaseURL 不能为空")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("LLM.Model 不能为空")
		}
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = "ollama"
		}
	}
	if c.LLM.ClassifyTimeout < 0 || c.LLM.MatchTimeout < 0 || c.LLM.SummaryTimeout < 0 {
		return fmt.Errorf("LLM 超时时间必须 >= 0")
	}
	if c.LLM.ClassifyTimeout == 0 {
		c.LLM.ClassifyTimeout = 10
	}
	if c.LLM.MatchTimeout == 0 {
		c.LLM.MatchTimeout = 10
	}
	if c.LLM.SummaryTimeout == 0 {
		c.LLM.SummaryTimeout = 3
	}

	// 验证 Database
	if c.Database.Path == "" {
		c.Database.Path = "data/feedback.db"
	}

	// 验证 Engine
	if c.Engine.Threshold == nil {
		threshold := defaultThreshold
		c.Engine.Threshold = &threshold
	}
	if *c.Engine.Threshold < 0 || *c.Engine.Threshold > 1 {
		return fmt.Errorf("Engine.Threshold 必须在 [0, 1] 区间内")
	}
	categories := make(map[string]struct{}, len(c.Engine.Categories))
	for _, name := range c.Engine.Categories {
		if name == "" {
			return fmt.Errorf("Engine.Categories 不能包含空分类")
		}
		categories[name] = struct{}{}
	}
	if len(categories) > 0 {
		if _, ok := categories[categoryOther]; !ok {
			return fmt.Errorf("Engine.Categories 必须包含 %s", categoryOther)
		}
	}
	for _, rule := range c.Engine.KeywordRules {
		if rule.Category == "" || len(rule.Keywords) == 0 {
			return fmt.Errorf("Engine.KeywordRules 的 Category 和 Keywords 不能为空")
		}
		if _, ok := categories[rule.Category]; len(categories) > 0 && !ok {
			return fmt.Errorf("Engine.KeywordRules 的分类 %s 不在 Engine.Categories 中", rule.Category)
		}
	}

	// 验证 Insights
	if c.Insights.TopN < 0 || c.Insights.SampleSize < 0 || c.Insights.ThemeLimit < 0 ||
		c.Insights.LeaderboardSize < 0 || c.Insights.PayloadBudget < 0 || c.Insights.TrendDays < 0 {
		return fmt.Errorf("Insights 配置项必须 >= 0")
	}
	if c.Insights.TopN == 0 {
		c.Insights.TopN = 10
	}
	if c.Insights.SampleSize == 0 {
		c.Insights.SampleSize = 500
	}
	if c.Insights.ThemeLimit == 0 {
		c.Insights.ThemeLimit = 10
	}
	if c.Insights.LeaderboardSize == 0 {
		c.Insights.LeaderboardSize = 10
	}
	if c.Insights.PayloadBudget == 0 {
		c.Insights.PayloadBudget = 8000
	}
	if c.Insights.TrendDays == 0 {
		c.Insights.TrendDays = 7
	}

	// 验证 Digest
	if c.Digest.Enable && c.Digest.Cron == "" {
		return fmt.Errorf("Digest.Cron 不能为空")
	}
	if c.Digest.RetentionDays < 0 {
		return fmt.Errorf("Digest.RetentionDays 必须 >= 0")
	}

	return nil
}
