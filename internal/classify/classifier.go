// Package classify 负责反馈的分类和重复话题匹配。两者都优先咨询 LLM，
// LLM 不可用时分类退化为本地关键词规则，重复匹配退化为"不匹配"。
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fachebot/feedback-intel/internal/llm"
	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/fachebot/feedback-intel/internal/model"
)

// KeywordRule 关键词族，描述中出现任一关键词即归入对应分类
type KeywordRule struct {
	Category model.Category
	Keywords []string
}

// DefaultKeywordRules 返回内置关键词规则，按顺序匹配，先命中者优先
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{Category: model.CategoryFaculty, Keywords: []string{"professor", "teacher", "faculty"}},
		{Category: model.CategoryInfrastructure, Keywords: []string{"wifi", "internet", "network"}},
		{Category: model.CategoryHostel, Keywords: []string{"hostel", "dorm", "room"}},
		{Category: model.CategoryAcademics, Keywords: []string{"course", "class", "exam"}},
	}
}

// Classifier 将 (标题, 描述) 映射到固定分类之一
type Classifier struct {
	oracle     llm.Oracle
	timeout    time.Duration
	categories []model.Category
	valid      map[string]model.Category
	rules      []KeywordRule
}

// NewClassifier 创建分类器。oracle 可为 nil，此时直接使用关键词规则。
// categories、rules 为空时使用内置值；传入的切片会被复制。
// 分类列表总是包含 Other，分类不在列表中的关键词规则会被忽略。
func NewClassifier(oracle llm.Oracle, timeout time.Duration, categories []model.Category, rules []KeywordRule) *Classifier {
	if len(categories) == 0 {
		categories = model.DefaultCategories()
	}
	if len(rules) == 0 {
		rules = DefaultKeywordRules()
	}

	c := &Classifier{
		oracle:     oracle,
		timeout:    timeout,
		categories: append([]model.Category(nil), categories...),
		valid:      make(map[string]model.Category, len(categories)),
	}
	for _, cat := range categories {
		c.valid[string(cat)] = cat
	}
	// 分类和兜底结果必须落在分类列表内
	if _, ok := c.valid[string(model.CategoryOther)]; !ok {
		c.categories = append(c.categories, model.CategoryOther)
		c.valid[string(model.CategoryOther)] = model.CategoryOther
	}
	for _, rule := range rules {
		if _, ok := c.valid[string(rule.Category)]; !ok {
			logger.Warnf("[Classifier] 关键词规则的分类 %q 不在分类列表中，已忽略", rule.Category)
			continue
		}
		keywords := make([]string, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			keywords[i] = strings.ToLower(kw)
		}
		c.rules = append(c.rules, KeywordRule{Category: rule.Category, Keywords: keywords})
	}
	return c
}

// Categories 返回分类列表副本
func (c *Classifier) Categories() []model.Category {
	return append([]model.Category(nil), c.categories...)
}

// IsValid 判断是否为合法分类
func (c *Classifier) IsValid(category string) bool {
	_, ok := c.valid[category]
	return ok
}

// Classify 先咨询 LLM：返回合法分类则采用，返回其他内容则为 Other；
// 仅当 LLM 调用本身失败（或未配置）时才使用关键词规则。
func (c *Classifier) Classify(ctx context.Context, title, description string) model.Category {
	if c.oracle == nil {
		return c.Fallback(description)
	}

	output, err := c.oracle.Complete(ctx, c.buildPrompt(title, description), c.timeout)
	if err != nil {
		category := c.Fallback(description)
		logger.Warnf("[Classifier] LLM 分类失败，使用关键词规则: %s, %v", category, err)
		return category
	}

	if category, ok := c.valid[strings.TrimSpace(output)]; ok {
		return category
	}
	logger.Debugf("[Classifier] LLM 返回非法分类 %q，归为 Other", output)
	return model.CategoryOther
}

// Fallback 按顺序扫描描述中的关键词，先命中的规则胜出，都不命中则为 Other
func (c *Classifier) Fallback(description string) model.Category {
	text := strings.ToLower(description)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Category
			}
		}
	}
	return model.CategoryOther
}

func (c *Classifier) buildPrompt(title, description string) string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = string(cat)
	}

	return fmt.Sprintf(`Classify this student feedback into ONE category only.

Categories:
%s

Topic:
%q

Description:
%q

Rules:
- Reply ONLY with the category name
- If unsure, reply "Other"
`, strings.Join(names, ", "), title, description)
}
