package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fachebot/feedback-intel/internal/logger"
)

const summaryPromptHeader = `You are an analytics assistant for a university feedback platform.
Summarize the key insights in 4-6 bullet points. Be concrete and action-oriented.
Data (JSON):
`

// summarize 返回摘要及其来源。LLM 只尝试一次，任何失败都回退到模板。
func (a *Aggregator) summarize(ctx context.Context, data *Data) (string, string) {
	if !a.config.EnableLLMSummary || a.oracle == nil {
		return DeterministicSummary(data), SourceDeterministic
	}

	prompt, err := a.buildSummaryPrompt(data)
	if err != nil {
		logger.Warnf("[Insights] 序列化摘要数据失败，使用模板摘要: %v", err)
		return DeterministicSummary(data), SourceDeterministic
	}

	content, err := a.oracle.Complete(ctx, prompt, a.summaryTimeout)
	if err != nil {
		logger.Warnf("[Insights] LLM 摘要失败，使用模板摘要: %v", err)
		return DeterministicSummary(data), SourceDeterministic
	}

	summary := strings.TrimSpace(content)
	if summary == "" {
		return DeterministicSummary(data), SourceDeterministic
	}
	return summary, SourceLLM
}

// buildSummaryPrompt 构造摘要提示词，数据部分按字符数截断到 PayloadBudget
func (a *Aggregator) buildSummaryPrompt(data *Data) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return summaryPromptHeader + truncateRunes(string(raw), a.config.PayloadBudget), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// DeterministicSummary 使用固定模板生成摘要：总数、前 3 个热门话题、票数最高的主题
func DeterministicSummary(data *Data) string {
	top := make([]string, 0, 3)
	for i, t := range data.TopTopics {
		if i == 3 {
			break
		}
		if t.Title != "" {
			top = append(top, t.Title)
		}
	}
	topLine := strings.Join(top, ", ")
	if topLine == "" {
		topLine = "N/A"
	}

	themeLine := "No dominant theme yet."
	if len(data.Themes) > 0 {
		th := data.Themes[0]
		themeLine = fmt.Sprintf("Top theme is \"%s\" in %s (votes: %d).", th.Title, th.Category, th.VotesTotal)
	}

	return fmt.Sprintf("Total submissions: %d. Top topics: %s. %s", data.TotalSubmissions, topLine, themeLine)
}
