package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrDigestNotFound 区间内没有洞察摘要
var ErrDigestNotFound = errors.New("洞察摘要不存在")

type Digest struct {
	ID               string    `db:"id"`
	Category         string    `db:"category"`
	TotalSubmissions int       `db:"total_submissions"`
	Summary          string    `db:"summary"`
	SummarySource    string    `db:"summary_source"`
	CreatedAt        time.Time `db:"created_at"`
}

type DigestData struct {
	Category         string
	TotalSubmissions int
	Summary          string
	SummarySource    string
}

type DigestModel struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewDigestModel(db *sqlx.DB) *DigestModel {
	return &DigestModel{db: db, now: time.Now}
}

// Create 保存一条洞察摘要
func (m *DigestModel) Create(ctx context.Context, data *DigestData) (*Digest, error) {
	digest := &Digest{
		ID:               uuid.NewString(),
		Category:         data.Category,
		TotalSubmissions: data.TotalSubmissions,
		Summary:          data.Summary,
		SummarySource:    data.SummarySource,
		CreatedAt:        m.now().UTC(),
	}
	_, err := m.db.NamedExecContext(ctx,
		`INSERT INTO digests(id, category, total_submissions, summary, summary_source, created_at)
		 VALUES(:id, :category, :total_submissions, :summary, :summary_source, :created_at)`,
		digest)
	if err != nil {
		return nil, fmt.Errorf("保存洞察摘要失败: %w", err)
	}
	return digest, nil
}

// GetByDateRange 查询 [startTime, endTime) 区间内最新的一条摘要
func (m *DigestModel) GetByDateRange(ctx context.Context, startTime, endTime time.Time) (*Digest, error) {
	var digest Digest
	err := m.db.GetContext(ctx, &digest,
		`SELECT * FROM digests WHERE created_at >= ? AND created_at < ? ORDER BY created_at DESC LIMIT 1`,
		startTime.UTC().Format(sqliteTimeLayout), endTime.UTC().Format(sqliteTimeLayout))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDigestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询洞察摘要失败: %w", err)
	}
	return &digest, nil
}

// DeleteBefore 删除指定时间之前的摘要
func (m *DigestModel) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM digests WHERE created_at < ?`, cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("清理洞察摘要失败: %w", err)
	}
	return res.RowsAffected()
}
