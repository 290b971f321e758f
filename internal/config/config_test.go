package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	var c Config
	require.NoError(t, c.Validate())

	require.NotNil(t, c.Engine.Threshold)
	assert.Equal(t, 0.25, *c.Engine.Threshold)
	assert.Equal(t, "data/feedback.db", c.Database.Path)
	assert.Equal(t, 10, c.LLM.ClassifyTimeout)
	assert.Equal(t, 10, c.LLM.MatchTimeout)
	assert.Equal(t, 3, c.LLM.SummaryTimeout)
	assert.Equal(t, 10, c.Insights.TopN)
	assert.Equal(t, 500, c.Insights.SampleSize)
	assert.Equal(t, 8000, c.Insights.PayloadBudget)
	assert.Equal(t, 7, c.Insights.TrendDays)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"启用 LLM 但缺少 BaseURL", Config{LLM: LLM{Enable: true, Model: "gemma:2b"}}, "LLM.BaseURL"},
		{"启用 LLM 但缺少 Model", Config{LLM: LLM{Enable: true, BaseURL: "http://x"}}, "LLM.Model"},
		{"阈值越界", Config{Engine: Engine{Threshold: float64Ptr(1.5)}}, "Engine.Threshold"},
		{"阈值为负", Config{Engine: Engine{Threshold: float64Ptr(-0.1)}}, "Engine.Threshold"},
		{"分类缺少 Other", Config{Engine: Engine{Categories: []string{"Academics", "Faculty"}}}, "Other"},
		{"分类为空字符串", Config{Engine: Engine{Categories: []string{"", "Other"}}}, "Engine.Categories"},
		{"规则分类不在分类列表中", Config{Engine: Engine{
			Categories:   []string{"Academics", "Faculty", "Other"},
			KeywordRules: []KeywordRule{{Category: "Infrastructure", Keywords: []string{"wifi"}}},
		}}, "Infrastructure"},
		{"关键词规则为空", Config{Engine: Engine{KeywordRules: []KeywordRule{{Category: "Hostel"}}}}, "Engine.KeywordRules"},
		{"负数样本", Config{Insights: Insights{SampleSize: -1}}, "Insights"},
		{"启用摘要但缺少 Cron", Config{Digest: Digest{Enable: true}}, "Digest.Cron"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ZeroThresholdKept(t *testing.T) {
	c := Config{Engine: Engine{Threshold: float64Ptr(0)}}
	require.NoError(t, c.Validate())
	assert.Equal(t, 0.0, *c.Engine.Threshold)
}

func TestValidate_CustomCategories(t *testing.T) {
	c := Config{Engine: Engine{
		Categories:   []string{"Canteen", "Other"},
		KeywordRules: []KeywordRule{{Category: "Canteen", Keywords: []string{"food"}}},
	}}
	assert.NoError(t, c.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
LLM:
  Enable: true
  BaseURL: http://localhost:11434/v1
  Model: gemma:2b
Engine:
  Threshold: 0.3
  Stopwords: ["the", "and"]
Insights:
  EnableLLMSummary: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.LLM.APIKey)
	assert.Equal(t, 0.3, *c.Engine.Threshold)
	assert.Equal(t, []string{"the", "and"}, c.Engine.Stopwords)
	assert.True(t, c.Insights.EnableLLMSummary)
	assert.Equal(t, 3, c.LLM.SummaryTimeout)
}

func TestLoadFromFile_ZeroThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Engine:\n  Threshold: 0\n"), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *c.Engine.Threshold)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func float64Ptr(v float64) *float64 {
	return &v
}
