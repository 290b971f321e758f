package insights

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fachebot/feedback-intel/internal/config"
	"github.com/fachebot/feedback-intel/internal/lexical"
	"github.com/fachebot/feedback-intel/internal/model"
	"github.com/fachebot/feedback-intel/internal/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// mockTopicReader 用于测试的 topicReader mock
type mockTopicReader struct {
	mu sync.Mutex

	total        int
	sorted       []*model.Topic
	sample       []*model.Topic
	distribution []model.CategoryCount
	daily        []model.DailyCount
	err          error

	filters    []model.TopicFilter
	limits     map[string]int
	trendStart time.Time
	trendEnd   time.Time
}

func (m *mockTopicReader) record(name string, filter model.TopicFilter, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.limits == nil {
		m.limits = make(map[string]int)
	}
	m.limits[name] = limit
}

func (m *mockTopicReader) CountByFilter(ctx context.Context, filter model.TopicFilter) (int, error) {
	m.record("count", filter, 0)
	return m.total, nil
}

func (m *mockTopicReader) FindSortedByVotes(ctx context.Context, filter model.TopicFilter, limit int) ([]*model.Topic, error) {
	m.record("sorted", filter, limit)
	return m.sorted, nil
}

func (m *mockTopicReader) FindByFilter(ctx context.Context, filter model.TopicFilter, limit int) ([]*model.Topic, error) {
	m.record("sample", filter, limit)
	return m.sample, m.err
}

func (m *mockTopicReader) AggregateByCategory(ctx context.Context, filter model.TopicFilter) ([]model.CategoryCount, error) {
	m.record("distribution", filter, 0)
	return m.distribution, nil
}

func (m *mockTopicReader) AggregateByDateRange(ctx context.Context, filter model.TopicFilter, startTime, endTime time.Time) ([]model.DailyCount, error) {
	m.record("daily", filter, 0)
	m.mu.Lock()
	m.trendStart, m.trendEnd = startTime, endTime
	m.mu.Unlock()
	return m.daily, nil
}

// mockClusterer 用于测试的 themeClusterer mock
type mockClusterer struct {
	themes    []theme.Theme
	topics    []*model.Topic
	threshold float64
}

func (m *mockClusterer) Cluster(topics []*model.Topic, threshold float64) []theme.Theme {
	m.topics = topics
	m.threshold = threshold
	return m.themes
}

// mockOracle 模拟 LLM
type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	args := m.Called(ctx, prompt, timeout)
	return args.String(0), args.Error(1)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	require.NoError(t, cfg.Validate())
	cfg.Insights.TrendDays = 3
	return cfg
}

func newTestAggregator(store topicReader, clusterer themeClusterer, oracle *mockOracle, cfg *config.Config) *Aggregator {
	a := newAggregator(store, clusterer, nil, model.DefaultCategories(), cfg, WithClock(func() time.Time { return testNow }))
	if oracle != nil {
		a.oracle = oracle
	}
	return a
}

func TestBuild_DeterministicSummary(t *testing.T) {
	store := &mockTopicReader{
		total: 4,
		sorted: []*model.Topic{
			{ID: "a", Title: "WiFi issues in hostel", Category: model.CategoryInfrastructure, Votes: 5, CreatedAt: testNow},
			{ID: "b", Title: "Library seats", Category: model.CategoryAcademics, Votes: 3, CreatedAt: testNow},
			{ID: "c", Title: "", Category: model.CategoryOther, Votes: 2, CreatedAt: testNow},
			{ID: "d", Title: "Exam clash", Category: model.CategoryAcademics, Votes: 1, CreatedAt: testNow},
		},
	}
	clusterer := &mockClusterer{themes: []theme.Theme{
		{Category: model.CategoryInfrastructure, Title: "WiFi issues in hostel", Count: 2, VotesTotal: 7},
	}}
	oracle := new(mockOracle)

	payload, err := newTestAggregator(store, clusterer, oracle, testConfig(t)).Build(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, CategoryAll, payload.SelectedCategory)
	assert.Equal(t, SourceDeterministic, payload.SummarySource)
	assert.Equal(t,
		`Total submissions: 4. Top topics: WiFi issues in hostel, Library seats. Top theme is "WiFi issues in hostel" in Infrastructure (votes: 7).`,
		payload.Summary)
	assert.Len(t, payload.TopTopics, 4)
	oracle.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestBuild_Empty(t *testing.T) {
	store := &mockTopicReader{}
	clusterer := &mockClusterer{themes: []theme.Theme{}}

	payload, err := newTestAggregator(store, clusterer, nil, testConfig(t)).Build(context.Background(), CategoryAll)
	require.NoError(t, err)

	assert.Equal(t, "Total submissions: 0. Top topics: N/A. No dominant theme yet.", payload.Summary)
	assert.NotNil(t, payload.TopTopics)
	assert.NotNil(t, payload.CategoryDistribution)
	assert.Empty(t, payload.SeverityLeaderboard)
	assert.Equal(t, []model.DailyCount{
		{Date: "2026-10-13", Count: 0},
		{Date: "2026-10-14", Count: 0},
		{Date: "2026-10-15", Count: 0},
	}, payload.WeeklyTrends)
}

func TestBuild_LLMSummary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Insights.EnableLLMSummary = true
	cfg.Insights.PayloadBudget = 50

	oracle := new(mockOracle)
	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		data := strings.TrimPrefix(prompt, summaryPromptHeader)
		return strings.HasPrefix(prompt, summaryPromptHeader) &&
			strings.HasPrefix(data, `{"selectedCategory":"All"`) &&
			utf8.RuneCountInString(data) == 50
	}), 3*time.Second).Return("  - Fix hostel WiFi\n- Add library seats  ", nil)

	store := &mockTopicReader{total: 1, sorted: []*model.Topic{{ID: "a", Title: "WiFi issues", Votes: 1, CreatedAt: testNow}}}
	payload, err := newTestAggregator(store, &mockClusterer{themes: []theme.Theme{}}, oracle, cfg).Build(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, SourceLLM, payload.SummarySource)
	assert.Equal(t, "- Fix hostel WiFi\n- Add library seats", payload.Summary)
	oracle.AssertExpectations(t)
}

func TestBuild_LLMFailureFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Insights.EnableLLMSummary = true

	oracle := new(mockOracle)
	oracle.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", context.DeadlineExceeded)

	payload, err := newTestAggregator(&mockTopicReader{}, &mockClusterer{}, oracle, cfg).Build(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, SourceDeterministic, payload.SummarySource)
	assert.Equal(t, "Total submissions: 0. Top topics: N/A. No dominant theme yet.", payload.Summary)
	oracle.AssertNumberOfCalls(t, "Complete", 1)
}

func TestBuild_NilOracleUsesTemplate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Insights.EnableLLMSummary = true

	payload, err := newTestAggregator(&mockTopicReader{}, &mockClusterer{}, nil, cfg).Build(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, SourceDeterministic, payload.SummarySource)
}

func TestBuild_CategoryFilter(t *testing.T) {
	tests := []struct {
		name         string
		category     string
		wantSelected string
		wantFilter   model.TopicFilter
	}{
		{"空分类", "", CategoryAll, model.TopicFilter{}},
		{"All", "All", CategoryAll, model.TopicFilter{}},
		{"合法分类", " Hostel ", "Hostel", model.TopicFilter{Category: model.CategoryHostel}},
		{"未知分类", "Parking", CategoryAll, model.TopicFilter{}},
		{"大小写不同视为未知", "hostel", CategoryAll, model.TopicFilter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockTopicReader{}
			payload, err := newTestAggregator(store, &mockClusterer{}, nil, testConfig(t)).Build(context.Background(), tt.category)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSelected, payload.SelectedCategory)
			require.Len(t, store.filters, 5)
			for _, f := range store.filters {
				assert.Equal(t, tt.wantFilter, f)
			}
		})
	}
}

func TestBuild_Limits(t *testing.T) {
	cfg := testConfig(t)
	cfg.Insights.ThemeLimit = 2

	sample := []*model.Topic{{ID: "a"}, {ID: "b"}}
	store := &mockTopicReader{sample: sample}
	clusterer := &mockClusterer{themes: []theme.Theme{
		{Title: "t1", VotesTotal: 9}, {Title: "t2", VotesTotal: 5}, {Title: "t3", VotesTotal: 1},
	}}

	payload, err := newTestAggregator(store, clusterer, nil, cfg).Build(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, payload.Themes, 2)
	assert.Equal(t, "t1", payload.Themes[0].Title)
	assert.Equal(t, sample, clusterer.topics)
	assert.Equal(t, *cfg.Engine.Threshold, clusterer.threshold)
	assert.Equal(t, cfg.Insights.TopN, store.limits["sorted"])
	assert.Equal(t, cfg.Insights.SampleSize, store.limits["sample"])
}

func TestBuild_SeverityLeaderboard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Insights.LeaderboardSize = 3

	old := testNow.AddDate(0, 0, -40)
	store := &mockTopicReader{sorted: []*model.Topic{
		{ID: "t1", Title: "popular but old", Votes: 10, CreatedAt: old},
		{ID: "t4", Title: "some votes old", Votes: 5, CreatedAt: old},
		{ID: "t2", Title: "fresh", Votes: 3, CreatedAt: testNow},
		{ID: "t3", Title: "fresh single", Votes: 1, CreatedAt: testNow},
	}}

	payload, err := newTestAggregator(store, &mockClusterer{}, nil, cfg).Build(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, payload.SeverityLeaderboard, 3)
	var ids []string
	var scores []int
	for _, item := range payload.SeverityLeaderboard {
		ids = append(ids, item.ID)
		scores = append(scores, item.Severity)
	}
	assert.Equal(t, []string{"t2", "t1", "t3"}, ids)
	assert.Equal(t, []int{4, 3, 3}, scores)
}

func TestBuild_WeeklyTrends(t *testing.T) {
	store := &mockTopicReader{daily: []model.DailyCount{{Date: "2026-10-14", Count: 3}}}

	payload, err := newTestAggregator(store, &mockClusterer{}, nil, testConfig(t)).Build(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), store.trendStart)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), store.trendEnd)
	assert.Equal(t, []model.DailyCount{
		{Date: "2026-10-13", Count: 0},
		{Date: "2026-10-14", Count: 3},
		{Date: "2026-10-15", Count: 0},
	}, payload.WeeklyTrends)
}

func TestBuild_StorageError(t *testing.T) {
	dbErr := errors.New("disk I/O error")
	store := &mockTopicReader{err: dbErr}

	payload, err := newTestAggregator(store, &mockClusterer{}, nil, testConfig(t)).Build(context.Background(), "")
	assert.Nil(t, payload)
	assert.ErrorIs(t, err, dbErr)
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"宿舍网络很慢", 2, "宿舍"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateRunes(tt.in, tt.limit))
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	db, err := model.Open(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	defer db.Close()

	topics := model.NewTopicModel(db)
	ctx := context.Background()
	for _, data := range []*model.TopicData{
		{Title: "WiFi issues in hostel", Category: model.CategoryInfrastructure, Votes: 2},
		{Title: "WiFi problem in hostel room", Category: model.CategoryInfrastructure, Votes: 3},
		{Title: "Library needs more seats", Category: model.CategoryAcademics, Votes: 1},
	} {
		_, err := topics.Create(ctx, data)
		require.NoError(t, err)
	}

	cfg := testConfig(t)
	engine := theme.NewEngine(lexical.NewTokenizer(nil))
	payload, err := NewAggregator(topics, engine, nil, model.DefaultCategories(), cfg).Build(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 3, payload.TotalSubmissions)
	require.Len(t, payload.Themes, 2)
	assert.Equal(t, 5, payload.Themes[0].VotesTotal)
	assert.Equal(t, []model.CategoryCount{
		{Category: model.CategoryInfrastructure, Count: 2},
		{Category: model.CategoryAcademics, Count: 1},
	}, payload.CategoryDistribution)

	trendTotal := 0
	for _, d := range payload.WeeklyTrends {
		trendTotal += d.Count
	}
	assert.Equal(t, 3, trendTotal)
	assert.Equal(t, SourceDeterministic, payload.SummarySource)
	assert.Contains(t, payload.Summary, `Top theme is "WiFi issues in hostel" in Infrastructure (votes: 5).`)
}
