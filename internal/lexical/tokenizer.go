// Package lexical 提供反馈文本的归一化、分词以及 Jaccard 相似度计算。
package lexical

import (
	"strings"
)

// minTokenLength 短于该长度的词会被丢弃
const minTokenLength = 3

// DefaultStopwords 返回内置的英文停用词（每次返回新切片）
func DefaultStopwords() []string {
	return []string{
		"the", "a", "an", "and", "or", "to", "of", "in", "on", "for",
		"with", "is", "are", "was", "were", "be", "been", "it", "this", "that",
		"we", "i", "you", "they", "he", "she", "as", "at", "by", "from",
		"into", "not", "no", "too", "very",
	}
}

// Tokenizer 将自由文本转换为过滤停用词后的词列表，构造后不可变，可并发使用
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer 创建分词器，stopwords 为空时使用内置停用词
func NewTokenizer(stopwords []string) *Tokenizer {
	if len(stopwords) == 0 {
		stopwords = DefaultStopwords()
	}
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Tokenizer{stopwords: set}
}

// Normalize 转小写，非 [a-z0-9\s] 字符替换为空格，合并连续空白并去掉首尾空白
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Tokenize 返回保留顺序和重复的词列表，空输入返回空列表
func (t *Tokenizer) Tokenize(s string) []string {
	normalized := Normalize(s)
	if normalized == "" {
		return []string{}
	}

	words := strings.Split(normalized, " ")
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < minTokenLength {
			continue
		}
		if _, stop := t.stopwords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
