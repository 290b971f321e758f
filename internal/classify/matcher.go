package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fachebot/feedback-intel/internal/llm"
	"github.com/fachebot/feedback-intel/internal/logger"
)

// Match 重复匹配结果
type Match struct {
	Matched      bool   `json:"matched"`
	MatchedTopic string `json:"matchedTopic,omitempty"`
}

// Matcher 判断新反馈是否与已有话题重复。没有本地兜底：LLM 失败即视为不匹配。
type Matcher struct {
	oracle  llm.Oracle
	timeout time.Duration
}

func NewMatcher(oracle llm.Oracle, timeout time.Duration) *Matcher {
	return &Matcher{oracle: oracle, timeout: timeout}
}

// FindMatch 返回匹配结果。MatchedTopic 必须与 existingTitles 中的某个标题完全一致，
// 否则按不匹配处理，宁可漏判也不误合并。
func (m *Matcher) FindMatch(ctx context.Context, newTitle string, existingTitles []string) Match {
	if len(existingTitles) == 0 || m.oracle == nil {
		return Match{}
	}

	output, err := m.oracle.Complete(ctx, buildMatchPrompt(newTitle, existingTitles), m.timeout)
	if err != nil {
		logger.Warnf("[Matcher] LLM 重复匹配失败，按新话题处理: %v", err)
		return Match{}
	}

	var result Match
	if err := json.Unmarshal([]byte(llm.StripCodeFence(output)), &result); err != nil {
		logger.Warnf("[Matcher] 解析 LLM 返回的 JSON 失败，按新话题处理: %s", output)
		return Match{}
	}
	if !result.Matched || result.MatchedTopic == "" {
		return Match{}
	}

	for _, title := range existingTitles {
		if title == result.MatchedTopic {
			return result
		}
	}
	logger.Warnf("[Matcher] LLM 返回的话题不存在，按新话题处理: %q", result.MatchedTopic)
	return Match{}
}

func buildMatchPrompt(newTitle string, existingTitles []string) string {
	var sb strings.Builder
	for _, title := range existingTitles {
		sb.WriteString("- ")
		sb.WriteString(title)
		sb.WriteString("\n")
	}

	return fmt.Sprintf(`You are clustering university feedback topics.

Existing topics:
%s
New topic:
%q

Rules:
- Reply ONLY in JSON
- If similar, reply:
  {"matched": true, "matchedTopic": "<exact existing topic>"}
- If not similar, reply:
  {"matched": false}
`, sb.String(), newTitle)
}
