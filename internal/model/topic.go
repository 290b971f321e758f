package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrTopicNotFound 话题不存在
var ErrTopicNotFound = errors.New("话题不存在")

type Category string

const (
	CategoryAcademics      Category = "Academics"
	CategoryFaculty        Category = "Faculty"
	CategoryInfrastructure Category = "Infrastructure"
	CategoryHostel         Category = "Hostel"
	CategoryAdministration Category = "Administration"
	CategoryOther          Category = "Other"
)

// DefaultCategories 返回内置分类列表（每次返回新切片）
func DefaultCategories() []Category {
	return []Category{
		CategoryAcademics,
		CategoryFaculty,
		CategoryInfrastructure,
		CategoryHostel,
		CategoryAdministration,
		CategoryOther,
	}
}

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

type Topic struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Category    Category  `db:"category" json:"category"`
	Votes       int       `db:"votes" json:"votes"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// TopicRef 只包含 id 和标题，用于重复匹配
type TopicRef struct {
	ID    string `db:"id"`
	Title string `db:"title"`
}

type TopicData struct {
	Title       string
	Description string
	Category    Category
	Votes       int
}

// TopicFilter 查询过滤条件，Category 为空表示全部分类
type TopicFilter struct {
	Category Category
}

type CategoryCount struct {
	Category Category `db:"category" json:"category"`
	Count    int      `db:"count" json:"count"`
}

type DailyCount struct {
	Date  string `db:"day" json:"date"`
	Count int    `db:"count" json:"count"`
}

type TopicModel struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewTopicModel(db *sqlx.DB) *TopicModel {
	return &TopicModel{db: db, now: time.Now}
}

func (f TopicFilter) where() (string, []any) {
	if f.Category == "" {
		return "", nil
	}
	return " WHERE category = ?", []any{string(f.Category)}
}

// Create 创建话题，票数默认为 1，分类默认为 Other
func (m *TopicModel) Create(ctx context.Context, data *TopicData) (*Topic, error) {
	now := m.now().UTC()
	topic := &Topic{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(data.Title),
		Description: data.Description,
		Category:    data.Category,
		Votes:       data.Votes,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if topic.Category == "" {
		topic.Category = CategoryOther
	}
	if topic.Votes <= 0 {
		topic.Votes = 1
	}

	_, err := m.db.NamedExecContext(ctx,
		`INSERT INTO topics(id, title, description, category, votes, status, created_at, updated_at)
		 VALUES(:id, :title, :description, :category, :votes, :status, :created_at, :updated_at)`,
		topic)
	if err != nil {
		return nil, fmt.Errorf("创建话题失败: %w", err)
	}
	return topic, nil
}

// FindByID 按 ID 查询话题
func (m *TopicModel) FindByID(ctx context.Context, id string) (*Topic, error) {
	var topic Topic
	err := m.db.GetContext(ctx, &topic, `SELECT * FROM topics WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询话题失败: %w", err)
	}
	return &topic, nil
}

// FindTitleList 查询所有话题的 ID 和标题（不区分分类），按创建顺序
func (m *TopicModel) FindTitleList(ctx context.Context) ([]TopicRef, error) {
	var refs []TopicRef
	err := m.db.SelectContext(ctx, &refs, `SELECT id, title FROM topics ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("查询话题标题失败: %w", err)
	}
	return refs, nil
}

// CountByFilter 统计话题数量
func (m *TopicModel) CountByFilter(ctx context.Context, filter TopicFilter) (int, error) {
	where, args := filter.where()

	var count int
	if err := m.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM topics`+where, args...); err != nil {
		return 0, fmt.Errorf("统计话题数量失败: %w", err)
	}
	return count, nil
}

// FindSortedByVotes 按票数降序查询话题，票数相同按创建顺序
func (m *TopicModel) FindSortedByVotes(ctx context.Context, filter TopicFilter, limit int) ([]*Topic, error) {
	where, args := filter.where()
	args = append(args, limit)

	var topics []*Topic
	err := m.db.SelectContext(ctx, &topics,
		`SELECT * FROM topics`+where+` ORDER BY votes DESC, created_at, rowid LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("按票数查询话题失败: %w", err)
	}
	return topics, nil
}

// FindByFilter 按创建顺序查询话题，用于主题聚类
func (m *TopicModel) FindByFilter(ctx context.Context, filter TopicFilter, limit int) ([]*Topic, error) {
	where, args := filter.where()
	args = append(args, limit)

	var topics []*Topic
	err := m.db.SelectContext(ctx, &topics,
		`SELECT * FROM topics`+where+` ORDER BY created_at, rowid LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("查询话题失败: %w", err)
	}
	return topics, nil
}

// IncrementVotes 原子地将票数加 1，返回更新后的话题。
// 加票和回读在同一个事务内完成，话题被删除时不会出现已加票却返回不存在的情况。
func (m *TopicModel) IncrementVotes(ctx context.Context, id string) (*Topic, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("增加票数失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE topics SET votes = votes + 1, updated_at = ? WHERE id = ?`, m.now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("增加票数失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("增加票数失败: %w", err)
	}
	if affected == 0 {
		logger.Warnf("[Store] 加票的话题不存在: %s", id)
		return nil, ErrTopicNotFound
	}

	var topic Topic
	if err := tx.GetContext(ctx, &topic, `SELECT * FROM topics WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("查询话题失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("增加票数失败: %w", err)
	}
	return &topic, nil
}

// AggregateByCategory 按分类统计话题数量
func (m *TopicModel) AggregateByCategory(ctx context.Context, filter TopicFilter) ([]CategoryCount, error) {
	where, args := filter.where()

	var counts []CategoryCount
	err := m.db.SelectContext(ctx, &counts,
		`SELECT category, COUNT(*) AS count FROM topics`+where+` GROUP BY category ORDER BY count DESC, category`, args...)
	if err != nil {
		return nil, fmt.Errorf("按分类统计失败: %w", err)
	}
	return counts, nil
}

// AggregateByDateRange 按天统计 [startTime, endTime) 区间内的话题数量（UTC）
func (m *TopicModel) AggregateByDateRange(ctx context.Context, filter TopicFilter, startTime, endTime time.Time) ([]DailyCount, error) {
	query := `SELECT substr(created_at, 1, 10) AS day, COUNT(*) AS count FROM topics WHERE created_at >= ? AND created_at < ?`
	args := []any{startTime.UTC().Format(sqliteTimeLayout), endTime.UTC().Format(sqliteTimeLayout)}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` GROUP BY day ORDER BY day`

	var counts []DailyCount
	if err := m.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("按日期统计失败: %w", err)
	}
	return counts, nil
}
