// Package ingest 处理学生提交的新反馈：先判断是否与已有话题重复，
// 重复则原子地给已有话题加票，否则分类后创建新话题。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fachebot/feedback-intel/internal/classify"
	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/fachebot/feedback-intel/internal/model"
)

// topicStore 话题存储（便于测试注入 mock）
type topicStore interface {
	FindTitleList(ctx context.Context) ([]model.TopicRef, error)
	IncrementVotes(ctx context.Context, id string) (*model.Topic, error)
	Create(ctx context.Context, data *model.TopicData) (*model.Topic, error)
}

// duplicateMatcher 重复话题匹配（便于测试注入 mock）
type duplicateMatcher interface {
	FindMatch(ctx context.Context, newTitle string, existingTitles []string) classify.Match
}

// categoryClassifier 分类器（便于测试注入 mock）
type categoryClassifier interface {
	Classify(ctx context.Context, title, description string) model.Category
}

// Submission 学生提交的反馈
type Submission struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// Result 提交结果
type Result struct {
	Merged   bool           `json:"merged"`
	Topic    *model.Topic   `json:"topic"`
	Category model.Category `json:"category"`
}

type Flow struct {
	store      topicStore
	matcher    duplicateMatcher
	classifier categoryClassifier
}

func NewFlow(store *model.TopicModel, matcher *classify.Matcher, classifier *classify.Classifier) *Flow {
	return &Flow{
		store:      store,
		matcher:    matcher,
		classifier: classifier,
	}
}

// Submit 处理一条新反馈。存储错误直接返回；LLM 异常由匹配器和分类器在内部兜底。
func (f *Flow) Submit(ctx context.Context, sub Submission) (*Result, error) {
	sub.Title = strings.TrimSpace(sub.Title)
	sub.Description = strings.TrimSpace(sub.Description)
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	// 1. 加载所有已有话题标题（不区分分类）
	refs, err := f.store.FindTitleList(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载已有话题失败: %w", err)
	}
	titles := make([]string, len(refs))
	for i, ref := range refs {
		titles[i] = ref.Title
	}

	// 2. 重复匹配，命中则原子加票
	match := f.matcher.FindMatch(ctx, sub.Title, titles)
	if match.Matched {
		topic, err := f.mergeInto(ctx, refs, match.MatchedTopic)
		if err == nil {
			logger.Infof("[Ingest] 反馈与已有话题重复，已加票: %q -> %q (votes=%d)", sub.Title, topic.Title, topic.Votes)
			return &Result{Merged: true, Topic: topic, Category: topic.Category}, nil
		}
		if !errors.Is(err, model.ErrTopicNotFound) {
			return nil, err
		}
		logger.Warnf("[Ingest] 匹配到的话题已被删除，按新话题处理: %q", match.MatchedTopic)
	}

	// 3. 分类
	category := f.classifier.Classify(ctx, sub.Title, sub.Description)

	// 4. 创建新话题
	topic, err := f.store.Create(ctx, &model.TopicData{
		Title:       sub.Title,
		Description: sub.Description,
		Category:    category,
		Votes:       1,
	})
	if err != nil {
		return nil, fmt.Errorf("创建话题失败: %w", err)
	}

	logger.Infof("[Ingest] 新话题已创建: %q, category=%s", topic.Title, category)
	return &Result{Merged: false, Topic: topic, Category: category}, nil
}

// mergeInto 给标题完全一致的第一个话题加票
func (f *Flow) mergeInto(ctx context.Context, refs []model.TopicRef, title string) (*model.Topic, error) {
	for _, ref := range refs {
		if ref.Title != title {
			continue
		}
		topic, err := f.store.IncrementVotes(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, model.ErrTopicNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("增加话题票数失败: %w", err)
		}
		return topic, nil
	}
	return nil, model.ErrTopicNotFound
}
